package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/config"
	"github.com/ulocker/u-locker-server/internal/database"
	"github.com/ulocker/u-locker-server/internal/device"
	"github.com/ulocker/u-locker-server/internal/handler"
	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/middleware"
	"github.com/ulocker/u-locker-server/internal/nfc"
	"github.com/ulocker/u-locker-server/internal/rent"
	"github.com/ulocker/u-locker-server/internal/repository"
	"github.com/ulocker/u-locker-server/internal/router"
	"github.com/ulocker/u-locker-server/internal/scheduler"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	lockers := repository.NewLockerRepo(db)
	rooms := repository.NewRoomRepo(db)
	rentings := repository.NewRentingRepo(db)
	transactions := repository.NewTransactionRepo(db)
	nfcEntries := repository.NewNFCQueueRepo(db)

	creditLedger := ledger.New(transactions)
	taps := nfc.NewQueue(nfcEntries)

	bus, err := device.DialBus(cfg.BusURL)
	if err != nil {
		log.Fatalf("device bus: %v", err)
	}
	defer bus.Close()

	snapshots := device.NewSnapshotBuilder(rentings)
	gateway := device.NewGateway(bus, cfg.CommandTopic, rentings, lockers, taps, snapshots)
	rents := rent.NewService(rentings, rooms, creditLedger, gateway)

	go func() {
		if err := device.StartConsumer(ctx, cfg.BusURL, cfg.ResponseTopic, func(payload []byte) {
			gateway.HandleMessage(ctx, payload)
		}); err != nil && ctx.Err() == nil {
			log.Printf("device-consumer: %v", err)
		}
	}()

	sweeps := scheduler.New(rentings, users, creditLedger,
		cfg.OverdueSweep, cfg.ReplenishEvery, cfg.WeeklyGrantHours)
	go sweeps.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), config.NewRedisClient()))

	router.Register(e, router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, users, creditLedger, taps, gateway),
		Rents:        handler.NewRentHandler(rents),
		Lockers:      handler.NewLockerHandler(lockers),
		Rooms:        handler.NewRoomHandler(rooms),
		NFC:          handler.NewNFCHandler(taps),
		Transactions: handler.NewTransactionHandler(transactions, creditLedger),
		Statistics:   handler.NewStatisticsHandler(users, lockers, rooms, rentings, transactions),
	}, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
