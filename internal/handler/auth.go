package handler

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ulocker/u-locker-server/internal/config"
	"github.com/ulocker/u-locker-server/internal/device"
	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/nfc"
	"github.com/ulocker/u-locker-server/internal/repository"
	"github.com/ulocker/u-locker-server/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints. Devices
// may be nil, in which case card-bind confirmations are skipped.
type AuthHandler struct {
	Cfg     config.Config
	Users   *repository.UserRepo
	Ledger  *ledger.Service
	Taps    *nfc.Queue
	Devices *device.Gateway
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, lg *ledger.Service, taps *nfc.Queue, gw *device.Gateway) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Ledger: lg, Taps: taps, Devices: gw}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	CardUID  string `json:"card_uid"` // optional, must match a queued tap
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID      uint64  `json:"id"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	CardUID *string `json:"card_uid"`
	Balance int64   `json:"balance"`
}
type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

// Register creates a USER account, grants the signup bonus and
// optionally claims a queued NFC tap to bind the card. Binding
// requires that the card was actually tapped on a cabinet first; a
// card UID nobody tapped is rejected.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	cardUID := strings.TrimSpace(req.CardUID)

	ctx, cancel := reqCtx(c)
	defer cancel()

	// Resolve the tap before creating anything so a bad card UID
	// fails the whole registration.
	var tap model.NFCQueueEntry
	if cardUID != "" {
		var err error
		tap, err = h.Taps.Consume(ctx, cardUID)
		if err != nil {
			if errors.Is(err, nfc.ErrNotFound) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "card has not been tapped on any locker"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "claim card failed"})
		}
	}

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	if h.Cfg.SignupBonusHours > 0 {
		if _, err := h.Ledger.Credit(ctx, uid, h.Cfg.SignupBonusHours, true); err != nil {
			log.Printf("auth: signup bonus for user %d: %v", uid, err)
		}
	}

	var boundCard *string
	if cardUID != "" {
		if err := h.Users.BindCard(ctx, uid, cardUID); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "1062") {
				return c.JSON(http.StatusConflict, echo.Map{"error": "card already bound"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "bind card failed"})
		}
		boundCard = &cardUID
		// Echo the tap back so the cabinet confirms the binding.
		if h.Devices != nil {
			if err := h.Devices.Publish(ctx, tap.MachineID, device.CmdNFCRead, cardUID); err != nil {
				log.Printf("auth: bind confirmation to %s: %v", tap.MachineID, err)
			}
		}
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, model.RoleUser, h.Cfg.AccessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	balance, err := h.Ledger.Balance(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balance failed"})
	}

	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{ID: uid, Email: req.Email, Role: model.RoleUser, CardUID: boundCard, Balance: balance},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Login verifies credentials and returns a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	balance, err := h.Ledger.Balance(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balance failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: u.ID, Email: u.Email, Role: u.Role, CardUID: u.CardUID, Balance: balance},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the authenticated user's profile and current balance.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	balance, err := h.Ledger.Balance(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balance failed"})
	}
	return c.JSON(http.StatusOK, userPart{
		ID: u.ID, Email: u.Email, Role: u.Role, CardUID: u.CardUID, Balance: balance,
	})
}
