package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/nfc"
)

// NFCHandler exposes the binding queue poll endpoint used by the
// registration flow: the app polls while the new user taps their
// card on a cabinet.
type NFCHandler struct {
	Taps *nfc.Queue
}

func NewNFCHandler(q *nfc.Queue) *NFCHandler { return &NFCHandler{Taps: q} }

// Latest returns the newest unclaimed tap without consuming it. 404
// while nobody has tapped.
func (h *NFCHandler) Latest(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	e, err := h.Taps.PeekLatest(ctx)
	if err != nil {
		if errors.Is(err, nfc.ErrEmpty) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no queued tap"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"card_uid":   e.CardUID,
		"machine_id": e.MachineID,
		"created_at": e.CreatedAt,
	})
}
