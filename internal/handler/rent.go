package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/rent"
)

// RentHandler exposes the rent lifecycle endpoints.
type RentHandler struct {
	Rents *rent.Service
}

func NewRentHandler(s *rent.Service) *RentHandler { return &RentHandler{Rents: s} }

type startRentReq struct {
	RoomID    uint64    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Start rents a room for the given window. The rental hours are
// debited up front; an insufficient balance reports the missing
// credit-hours as 402.
func (h *RentHandler) Start(c echo.Context) error {
	var req startRentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.RoomID == 0 || req.StartTime.IsZero() || req.EndTime.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "room_id/start_time/end_time required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rt, err := h.Rents.StartRent(ctx, currentUserID(c), req.RoomID, req.StartTime, req.EndTime)
	if err != nil {
		var short *ledger.InsufficientCreditError
		switch {
		case errors.Is(err, rent.ErrInvalidRange):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "end time cannot be before start time"})
		case errors.Is(err, rent.ErrRoomNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
		case errors.Is(err, rent.ErrRoomOccupied):
			return c.JSON(http.StatusConflict, echo.Map{"error": "room is already rented"})
		case errors.As(err, &short):
			return c.JSON(http.StatusPaymentRequired, echo.Map{
				"error":     "insufficient credit",
				"shortfall": short.Shortfall,
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "start rent failed"})
	}
	return c.JSON(http.StatusCreated, rt)
}

// Get returns one renting, refreshing its overdue status first.
func (h *RentHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rt, err := h.Rents.GetRent(ctx, id)
	if err != nil {
		if errors.Is(err, rent.ErrRentNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rent not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if rt.UserID != currentUserID(c) && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, rt)
}

// History lists the user's full rent history.
func (h *RentHandler) History(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Rents.History(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

// Active lists the user's ACTIVE and OVERDUE rentings.
func (h *RentHandler) Active(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Rents.Active(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

// Open unlocks the rented door without ending the rental. Overdue
// rents are refused until the fine is settled through Stop.
func (h *RentHandler) Open(c echo.Context) error {
	id, ok, err := h.authorizedRent(c)
	if !ok {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	switch err := h.Rents.OpenRoom(ctx, id); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, rent.ErrRentNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "rent not found"})
	case errors.Is(err, rent.ErrOverdue):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "rent overdue, pay fine first"})
	case errors.Is(err, rent.ErrNotActive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "rent is not active"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open failed"})
	}
}

// Stop ends the rental, billing the overdue fine when applicable. A
// balance too small for the fine leaves the rent untouched and
// reports the shortfall as 402.
func (h *RentHandler) Stop(c echo.Context) error {
	id, ok, err := h.authorizedRent(c)
	if !ok {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Rents.StopRent(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, rent.ErrRentNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rent not found"})
		case errors.Is(err, rent.ErrAlreadyDone):
			return c.JSON(http.StatusConflict, echo.Map{"error": "rent is already done"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stop failed"})
	}
	if res.Status == rent.StopNeedsPayment {
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"status":    res.Status,
			"shortfall": res.Shortfall,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": res.Status})
}

// authorizedRent parses the :id parameter and verifies that the rent
// belongs to the caller (or the caller is an admin). When ok is false
// the error response has already been written and the handler must
// return err as-is.
func (h *RentHandler) authorizedRent(c echo.Context) (uint64, bool, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return 0, false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rt, err := h.Rents.GetRent(ctx, id)
	if err != nil {
		if errors.Is(err, rent.ErrRentNotFound) {
			return 0, false, c.JSON(http.StatusNotFound, echo.Map{"error": "rent not found"})
		}
		return 0, false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if rt.UserID != currentUserID(c) && !isAdmin(c) {
		return 0, false, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return id, true, nil
}
