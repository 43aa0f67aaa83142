package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// StatisticsHandler serves the admin dashboard counters.
type StatisticsHandler struct {
	Users        *repository.UserRepo
	Lockers      *repository.LockerRepo
	Rooms        *repository.RoomRepo
	Rentings     *repository.RentingRepo
	Transactions *repository.TransactionRepo
}

func NewStatisticsHandler(u *repository.UserRepo, l *repository.LockerRepo, ro *repository.RoomRepo,
	rt *repository.RentingRepo, t *repository.TransactionRepo) *StatisticsHandler {
	return &StatisticsHandler{Users: u, Lockers: l, Rooms: ro, Rentings: rt, Transactions: t}
}

// Dashboard returns fleet and ledger totals in one call.
func (h *StatisticsHandler) Dashboard(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	lockers, err := h.Lockers.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	rooms, err := h.Rooms.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	activeRents, err := h.Rentings.CountActive(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// Hours spent by users are the earnings side of the ledger; hours
	// topped up (settled only) are the purchased side.
	spent, err := h.Transactions.SumAll(ctx, model.TransactionOut, false)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	purchased, err := h.Transactions.SumAll(ctx, model.TransactionIn, true)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"users":           users,
		"lockers":         lockers,
		"rooms":           rooms,
		"active_rentings": activeRents,
		"hours_spent":     spent,
		"hours_purchased": purchased,
	})
}
