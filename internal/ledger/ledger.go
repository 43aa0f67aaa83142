// Package ledger implements the append-only credit ledger. A user's
// balance is the sum of validated IN entries minus all OUT entries,
// recomputed from the transaction log on every read. Keeping the
// balance derived rather than stored avoids lost-update races on a
// mutable counter: concurrent debits and credits can only append,
// and any double-billing stays visible in the audit trail.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ulocker/u-locker-server/internal/model"
)

// ErrNotFound is returned by Validate when no transaction matches
// the given reference.
var ErrNotFound = errors.New("transaction not found")

// InsufficientCreditError reports that an operation needs more
// credit-hours than the user's balance holds. Shortfall is the
// amount the user must top up before retrying.
type InsufficientCreditError struct {
	Shortfall int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: short %d credit-hours", e.Shortfall)
}

// Store is the slice of the transaction repository the ledger needs.
type Store interface {
	SumByUser(ctx context.Context, userID uint64, typ string, validatedOnly bool) (int64, error)
	Create(ctx context.Context, t *model.Transaction) error
	GetByRef(ctx context.Context, ref string) (model.Transaction, error)
	MarkValidated(ctx context.Context, id uint64, at time.Time) error
}

// Service exposes the ledger operations. Construct with New.
type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Balance returns the user's spendable credit-hours: validated IN
// entries minus all OUT entries. A user with no transactions (or no
// account at all) has a balance of zero.
func (s *Service) Balance(ctx context.Context, userID uint64) (int64, error) {
	in, err := s.store.SumByUser(ctx, userID, model.TransactionIn, true)
	if err != nil {
		return 0, err
	}
	out, err := s.store.SumByUser(ctx, userID, model.TransactionOut, false)
	if err != nil {
		return 0, err
	}
	return in - out, nil
}

// Debit appends an OUT entry of the given credit-hours, validated
// immediately ("spend now" semantics). The caller is expected to
// have checked the balance beforehand; Debit itself does not
// re-check, so a racing debit is recorded rather than rejected and
// shows up in reconciliation. rentingID optionally links the charge
// to the renting it pays for.
func (s *Service) Debit(ctx context.Context, userID uint64, hours int64, rentingID *uint64) (*model.Transaction, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", hours)
	}
	now := s.now()
	t := &model.Transaction{
		Ref:         newRef(),
		UserID:      userID,
		RentingID:   rentingID,
		Type:        model.TransactionOut,
		Amount:      hours,
		ValidatedAt: &now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Credit appends an IN entry. When validatedImmediately is false the
// entry stays pending and does not count toward the balance until
// Validate is called with its reference (the payment settlement
// path).
func (s *Service) Credit(ctx context.Context, userID uint64, hours int64, validatedImmediately bool) (*model.Transaction, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", hours)
	}
	t := &model.Transaction{
		Ref:    newRef(),
		UserID: userID,
		Type:   model.TransactionIn,
		Amount: hours,
	}
	if validatedImmediately {
		now := s.now()
		t.ValidatedAt = &now
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate stamps the settlement time on the transaction with the
// given external reference. Validating an already validated entry is
// a no-op, so settlement callbacks may be delivered more than once.
func (s *Service) Validate(ctx context.Context, ref string) (*model.Transaction, error) {
	t, err := s.store.GetByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.Validated() {
		return &t, nil
	}
	now := s.now()
	if err := s.store.MarkValidated(ctx, t.ID, now); err != nil {
		return nil, err
	}
	t.ValidatedAt = &now
	return &t, nil
}

// newRef returns a random hex reference used as the external
// transaction identifier handed to the payment gateway.
func newRef() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}
