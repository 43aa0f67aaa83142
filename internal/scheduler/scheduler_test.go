package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
)

var schedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubRentings struct {
	expired []model.Renting
	marked  []uint64
}

func (s *stubRentings) ListExpiredActive(_ context.Context, _ time.Time) ([]model.Renting, error) {
	return s.expired, nil
}

func (s *stubRentings) MarkOverdue(_ context.Context, ids []uint64) (int64, error) {
	s.marked = append(s.marked, ids...)
	return int64(len(ids)), nil
}

type stubUsers struct {
	ids []uint64
}

func (s *stubUsers) ListIDs(_ context.Context) ([]uint64, error) { return s.ids, nil }

// memLedgerStore backs a real ledger service in the tests.
type memLedgerStore struct {
	entries []model.Transaction
	nextID  uint64
}

func (m *memLedgerStore) SumByUser(_ context.Context, userID uint64, typ string, validatedOnly bool) (int64, error) {
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

func (m *memLedgerStore) Create(_ context.Context, t *model.Transaction) error {
	m.nextID++
	t.ID = m.nextID
	m.entries = append(m.entries, *t)
	return nil
}

func (m *memLedgerStore) GetByRef(_ context.Context, ref string) (model.Transaction, error) {
	for _, t := range m.entries {
		if t.Ref == ref {
			return t, nil
		}
	}
	return model.Transaction{}, sql.ErrNoRows
}

func (m *memLedgerStore) MarkValidated(_ context.Context, id uint64, at time.Time) error {
	for i := range m.entries {
		if m.entries[i].ID == id && m.entries[i].ValidatedAt == nil {
			v := at
			m.entries[i].ValidatedAt = &v
		}
	}
	return nil
}

func TestSweepOverdueMarksExpired(t *testing.T) {
	rentings := &stubRentings{expired: []model.Renting{
		{ID: 1, Status: model.RentActive, EndTime: schedNow.Add(-time.Hour)},
		{ID: 2, Status: model.RentActive, EndTime: schedNow.Add(-2 * time.Hour)},
	}}
	s := New(rentings, &stubUsers{}, ledger.New(&memLedgerStore{}), time.Hour, 24*time.Hour, 3)
	s.now = func() time.Time { return schedNow }

	n, err := s.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []uint64{1, 2}, rentings.marked)
}

func TestSweepOverdueNothingExpired(t *testing.T) {
	rentings := &stubRentings{}
	s := New(rentings, &stubUsers{}, ledger.New(&memLedgerStore{}), time.Hour, 24*time.Hour, 3)

	n, err := s.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rentings.marked)
}

func TestReplenishCreditsGrantsEveryUser(t *testing.T) {
	lg := ledger.New(&memLedgerStore{})
	s := New(&stubRentings{}, &stubUsers{ids: []uint64{1, 2, 3}}, lg, time.Hour, 24*time.Hour, 3)

	credited, err := s.ReplenishCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, credited)

	for _, uid := range []uint64{1, 2, 3} {
		balance, err := lg.Balance(context.Background(), uid)
		require.NoError(t, err)
		assert.Equal(t, int64(3), balance, "user %d", uid)
	}
}
