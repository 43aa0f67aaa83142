package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/device"
	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// LockerHandler exposes admin CRUD for locker cabinets.
type LockerHandler struct {
	Lockers *repository.LockerRepo
}

func NewLockerHandler(l *repository.LockerRepo) *LockerHandler { return &LockerHandler{Lockers: l} }

type lockerReq struct {
	MachineID   string `json:"machine_id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// List returns all registered cabinets.
func (h *LockerHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Lockers.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns one cabinet.
func (h *LockerHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	l, err := h.Lockers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "locker not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, l)
}

// Create registers a cabinet. The machine ID must be a well-formed
// bus address; a cabinet that can never be addressed is rejected.
func (h *LockerHandler) Create(c echo.Context) error {
	var req lockerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.MachineID = strings.TrimSpace(req.MachineID)
	if !device.ValidMachineID(req.MachineID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid machine_id"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	l := model.Locker{
		MachineID:   req.MachineID,
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
	}
	if err := h.Lockers.Create(ctx, &l); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return c.JSON(http.StatusConflict, echo.Map{"error": "machine_id already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create locker failed"})
	}
	return c.JSON(http.StatusCreated, l)
}

// Update rewrites a cabinet's editable fields.
func (h *LockerHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req lockerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.MachineID = strings.TrimSpace(req.MachineID)
	if !device.ValidMachineID(req.MachineID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid machine_id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	l := model.Locker{
		ID:          id,
		MachineID:   req.MachineID,
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
	}
	if err := h.Lockers.Update(ctx, &l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "locker not found"})
		}
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return c.JSON(http.StatusConflict, echo.Map{"error": "machine_id already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update locker failed"})
	}
	return c.JSON(http.StatusOK, l)
}

// Delete removes a cabinet. Refused while any of its rooms is still
// rented.
func (h *LockerHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	switch err := h.Lockers.Delete(ctx, id); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "locker not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "locker has rented rooms"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete locker failed"})
	}
}
