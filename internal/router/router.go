package router // package router wires HTTP routes to their handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/handler"
	"github.com/ulocker/u-locker-server/internal/middleware"
	"github.com/ulocker/u-locker-server/internal/model"
)

// Handlers collects every handler the API mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Rents        *handler.RentHandler
	Lockers      *handler.LockerHandler
	Rooms        *handler.RoomHandler
	NFC          *handler.NFCHandler
	Transactions *handler.TransactionHandler
	Statistics   *handler.StatisticsHandler
}

// Register mounts all routes on the Echo instance. Three tiers:
// public (health, auth, the registration tap poll and the payment
// webhook), authenticated user routes, and admin-only fleet
// management.
func Register(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", handler.Health)

	// Pre-auth surface. The tap poll is public because registration
	// happens before the user has any token; the settle callback is
	// authenticated by knowledge of the opaque ref.
	e.POST("/v1/auth/register", h.Auth.Register)
	e.POST("/v1/auth/login", h.Auth.Login)
	e.GET("/v1/nfc/latest", h.NFC.Latest)
	e.POST("/v1/payments/settle", h.Transactions.Settle)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))

	auth.GET("/me", h.Auth.Me)

	auth.GET("/rents", h.Rents.History)
	auth.GET("/rents/active", h.Rents.Active)
	auth.GET("/rents/:id", h.Rents.Get)
	auth.POST("/rents", h.Rents.Start)
	auth.PUT("/rents/:id/open", h.Rents.Open)
	auth.DELETE("/rents/:id", h.Rents.Stop)

	auth.GET("/balance", h.Transactions.Balance)
	auth.GET("/transactions/mine", h.Transactions.Mine)
	auth.GET("/transactions/:id", h.Transactions.Get)
	auth.POST("/topups", h.Transactions.TopUp)

	// Browsing the fleet is open to any authenticated user so the app
	// can present available rooms.
	auth.GET("/lockers", h.Lockers.List)
	auth.GET("/lockers/:id", h.Lockers.Get)
	auth.GET("/lockers/:id/rooms", h.Rooms.List)
	auth.GET("/lockers/:id/rooms/:roomId", h.Rooms.Get)

	admin := e.Group("/v1")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.POST("/lockers", h.Lockers.Create)
	admin.PUT("/lockers/:id", h.Lockers.Update)
	admin.DELETE("/lockers/:id", h.Lockers.Delete)
	admin.POST("/lockers/:id/rooms", h.Rooms.Create)
	admin.PUT("/lockers/:id/rooms/:roomId", h.Rooms.Update)
	admin.DELETE("/lockers/:id/rooms/:roomId", h.Rooms.Delete)

	admin.GET("/transactions", h.Transactions.ListAll)
	admin.GET("/statistics", h.Statistics.Dashboard)
}
