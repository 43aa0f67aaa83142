package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// TransactionHandler exposes the ledger endpoints: balance and
// history reads, top-up initiation and the settlement callback.
type TransactionHandler struct {
	Transactions *repository.TransactionRepo
	Ledger       *ledger.Service
}

func NewTransactionHandler(t *repository.TransactionRepo, lg *ledger.Service) *TransactionHandler {
	return &TransactionHandler{Transactions: t, Ledger: lg}
}

// Balance returns the caller's spendable credit-hours.
func (h *TransactionHandler) Balance(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	balance, err := h.Ledger.Balance(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": balance})
}

// Mine lists the caller's visible ledger entries: all charges plus
// settled top-ups. Pending top-ups stay hidden until settlement.
func (h *TransactionHandler) Mine(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Transactions.ListByUser(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns one entry. Users may only read their own entries;
// admins may read any.
func (h *TransactionHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "transaction not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if t.UserID != currentUserID(c) && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, t)
}

// ListAll is the admin view of the full ledger. Supports ?type=IN|OUT
// and ?order=asc|desc (newest first by default).
func (h *TransactionHandler) ListAll(c echo.Context) error {
	typ := strings.ToUpper(strings.TrimSpace(c.QueryParam("type")))
	if typ != "" && typ != model.TransactionIn && typ != model.TransactionOut {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be IN or OUT"})
	}
	newestFirst := !strings.EqualFold(c.QueryParam("order"), "asc")

	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Transactions.List(ctx, typ, newestFirst)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, list)
}

type topUpReq struct {
	Hours int64 `json:"hours"`
}

// TopUp opens a pending IN entry for the caller and returns its
// reference. The hours do not count toward the balance until the
// payment provider settles the reference via Settle.
func (h *TransactionHandler) TopUp(c echo.Context) error {
	var req topUpReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Hours <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hours must be positive"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Ledger.Credit(ctx, currentUserID(c), req.Hours, false)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create top-up failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ref":    t.Ref,
		"hours":  t.Amount,
		"status": "PENDING",
	})
}

type settleReq struct {
	Ref string `json:"ref"`
}

// Settle is the payment provider callback. It validates the pending
// entry with the given reference; repeated deliveries are no-ops.
func (h *TransactionHandler) Settle(c echo.Context) error {
	var req settleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Ref) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ref required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Ledger.Validate(ctx, strings.TrimSpace(req.Ref))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown ref"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "settle failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ref":          t.Ref,
		"validated_at": t.ValidatedAt,
	})
}
