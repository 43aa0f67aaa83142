package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulocker/u-locker-server/internal/model"
)

// memStore is an in-memory Store used to exercise the ledger without
// a database.
type memStore struct {
	entries []model.Transaction
	nextID  uint64
}

func (m *memStore) SumByUser(_ context.Context, userID uint64, typ string, validatedOnly bool) (int64, error) {
	var sum int64
	for _, t := range m.entries {
		if t.UserID != userID || t.Type != typ {
			continue
		}
		if validatedOnly && t.ValidatedAt == nil {
			continue
		}
		sum += t.Amount
	}
	return sum, nil
}

func (m *memStore) Create(_ context.Context, t *model.Transaction) error {
	m.nextID++
	t.ID = m.nextID
	m.entries = append(m.entries, *t)
	return nil
}

func (m *memStore) GetByRef(_ context.Context, ref string) (model.Transaction, error) {
	for _, t := range m.entries {
		if t.Ref == ref {
			return t, nil
		}
	}
	return model.Transaction{}, sql.ErrNoRows
}

func (m *memStore) MarkValidated(_ context.Context, id uint64, at time.Time) error {
	for i := range m.entries {
		if m.entries[i].ID == id && m.entries[i].ValidatedAt == nil {
			v := at
			m.entries[i].ValidatedAt = &v
		}
	}
	return nil
}

func newTestService() (*Service, *memStore) {
	store := &memStore{}
	svc := New(store)
	return svc, store
}

func TestBalanceZeroForUnknownUser(t *testing.T) {
	svc, _ := newTestService()

	balance, err := svc.Balance(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCreditValidatedImmediately(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, 1, 24, true)
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(24), balance)
}

func TestPendingCreditExcludedUntilValidated(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tx, err := svc.Credit(ctx, 1, 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, tx.Ref)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "pending top-up must not count")

	_, err = svc.Validate(ctx, tx.Ref)
	require.NoError(t, err)

	balance, err = svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestDebitReducesBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, 1, 5, true)
	require.NoError(t, err)

	rentingID := uint64(7)
	tx, err := svc.Debit(ctx, 1, 3, &rentingID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionOut, tx.Type)
	require.NotNil(t, tx.RentingID)
	assert.Equal(t, rentingID, *tx.RentingID)
	assert.NotNil(t, tx.ValidatedAt, "debits settle immediately")

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.Debit(context.Background(), 1, 0, nil)
	assert.Error(t, err)
	_, err = svc.Debit(context.Background(), 1, -3, nil)
	assert.Error(t, err)
	assert.Empty(t, store.entries)
}

func TestValidateIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tx, err := svc.Credit(ctx, 1, 10, false)
	require.NoError(t, err)

	first, err := svc.Validate(ctx, tx.Ref)
	require.NoError(t, err)
	require.NotNil(t, first.ValidatedAt)

	second, err := svc.Validate(ctx, tx.Ref)
	require.NoError(t, err)
	assert.Equal(t, first.ValidatedAt.Unix(), second.ValidatedAt.Unix())

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "repeated settlement must not double-credit")
}

func TestValidateUnknownRef(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Validate(context.Background(), "no-such-ref")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceIgnoresOtherUsers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, 1, 5, true)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, 2, 9, true)
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}
