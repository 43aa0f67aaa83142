package nfc

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulocker/u-locker-server/internal/model"
)

// memStore is an in-memory Store ordered by insertion.
type memStore struct {
	entries []model.NFCQueueEntry
	nextID  uint64
	clock   time.Time
}

func (m *memStore) Create(_ context.Context, e *model.NFCQueueEntry) error {
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	e.ID = m.nextID
	e.CreatedAt = m.clock
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) FindByCardUID(_ context.Context, cardUID string) (model.NFCQueueEntry, error) {
	for _, e := range m.entries {
		if e.CardUID == cardUID {
			return e, nil
		}
	}
	return model.NFCQueueEntry{}, sql.ErrNoRows
}

func (m *memStore) FindLatest(_ context.Context) (model.NFCQueueEntry, error) {
	if len(m.entries) == 0 {
		return model.NFCQueueEntry{}, sql.ErrNoRows
	}
	latest := m.entries[0]
	for _, e := range m.entries[1:] {
		if e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest, nil
}

func (m *memStore) Delete(_ context.Context, id uint64) error {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestEnqueueCreatesEntry(t *testing.T) {
	q := NewQueue(&memStore{})

	e, created, err := q.Enqueue(context.Background(), "04a1b2c3", "0cfa-4ed7-a8d7")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "04a1b2c3", e.CardUID)
}

func TestEnqueueIdempotentPerCard(t *testing.T) {
	q := NewQueue(&memStore{})
	ctx := context.Background()

	first, created, err := q.Enqueue(ctx, "04a1b2c3", "0cfa-4ed7-a8d7")
	require.NoError(t, err)
	require.True(t, created)

	// Repeated tap, even from another cabinet, keeps the original.
	second, created, err := q.Enqueue(ctx, "04a1b2c3", "1111-2222-3333")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "0cfa-4ed7-a8d7", second.MachineID)
}

func TestConsumeRemovesEntry(t *testing.T) {
	store := &memStore{}
	q := NewQueue(store)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, "04a1b2c3", "0cfa-4ed7-a8d7")
	require.NoError(t, err)

	e, err := q.Consume(ctx, "04a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, "04a1b2c3", e.CardUID)
	assert.Empty(t, store.entries)

	_, err = q.Consume(ctx, "04a1b2c3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPeekLatestEmpty(t *testing.T) {
	q := NewQueue(&memStore{})

	_, err := q.PeekLatest(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPeekLatestReturnsNewestWithoutConsuming(t *testing.T) {
	store := &memStore{}
	q := NewQueue(store)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, "aaaa", "0cfa-4ed7-a8d7")
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, "bbbb", "0cfa-4ed7-a8d7")
	require.NoError(t, err)

	e, err := q.PeekLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", e.CardUID)
	assert.Len(t, store.entries, 2, "peek must not consume")
}
