package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// RoomHandler exposes admin CRUD for rooms, always scoped to the
// owning locker.
type RoomHandler struct {
	Rooms *repository.RoomRepo
}

func NewRoomHandler(r *repository.RoomRepo) *RoomHandler { return &RoomHandler{Rooms: r} }

type roomReq struct {
	DoorID int    `json:"door_id"`
	Name   string `json:"name"`
	Size   string `json:"size"`
}

// List returns the rooms of a locker ordered by door number.
func (h *RoomHandler) List(c echo.Context) error {
	lockerID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Rooms.ListByLocker(ctx, lockerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns one room of a locker.
func (h *RoomHandler) Get(c echo.Context) error {
	lockerID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	roomID, err := pathID(c, "roomId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	room, err := h.Rooms.GetByID(ctx, lockerID, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, room)
}

// Create adds a room to a locker. Door numbers are unique per locker.
func (h *RoomHandler) Create(c echo.Context) error {
	lockerID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.DoorID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "door_id must be positive"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	room := model.Room{LockerID: lockerID, DoorID: req.DoorID, Name: req.Name, Size: req.Size}
	if err := h.Rooms.Create(ctx, &room); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return c.JSON(http.StatusConflict, echo.Map{"error": "door already exists on this locker"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create room failed"})
	}
	return c.JSON(http.StatusCreated, room)
}

// Update rewrites a room's editable fields.
func (h *RoomHandler) Update(c echo.Context) error {
	lockerID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	roomID, err := pathID(c, "roomId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.DoorID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "door_id must be positive"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	room := model.Room{ID: roomID, LockerID: lockerID, DoorID: req.DoorID, Name: req.Name, Size: req.Size}
	if err := h.Rooms.Update(ctx, &room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
		}
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return c.JSON(http.StatusConflict, echo.Map{"error": "door already exists on this locker"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update room failed"})
	}
	return c.JSON(http.StatusOK, room)
}

// Delete removes a room. Refused while it is rented.
func (h *RoomHandler) Delete(c echo.Context) error {
	lockerID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	roomID, err := pathID(c, "roomId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	switch err := h.Rooms.Delete(ctx, lockerID, roomID); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "room is rented"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete room failed"})
	}
}
