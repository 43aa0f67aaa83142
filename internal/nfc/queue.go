// Package nfc implements the transient binding queue that pairs
// freshly tapped cards with users. The device gateway enqueues taps
// it cannot match to a renting; registration consumes the entry to
// bind the card to the new account; a polling endpoint lets the UI
// show the latest unclaimed tap.
package nfc

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/ulocker/u-locker-server/internal/model"
)

// ErrNotFound is returned by Consume when no entry exists for the
// card.
var ErrNotFound = errors.New("no queued tap for card")

// ErrEmpty is returned by PeekLatest when the queue holds no
// unclaimed taps.
var ErrEmpty = errors.New("nfc queue is empty")

// Store is the slice of the queue repository the service needs.
type Store interface {
	Create(ctx context.Context, e *model.NFCQueueEntry) error
	FindByCardUID(ctx context.Context, cardUID string) (model.NFCQueueEntry, error)
	FindLatest(ctx context.Context) (model.NFCQueueEntry, error)
	Delete(ctx context.Context, id uint64) error
}

// Queue exposes the binding queue operations.
type Queue struct {
	store Store
}

func NewQueue(store Store) *Queue { return &Queue{store: store} }

// Enqueue records a tap unless one already exists for the card. The
// returned bool reports whether a new entry was created; a repeated
// tap before consumption is a no-op so the queue never holds
// duplicates per card.
func (q *Queue) Enqueue(ctx context.Context, cardUID, machineID string) (model.NFCQueueEntry, bool, error) {
	existing, err := q.store.FindByCardUID(ctx, cardUID)
	if err == nil {
		log.Printf("nfc-queue: card %s already queued from %s", cardUID, existing.MachineID)
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.NFCQueueEntry{}, false, err
	}
	e := model.NFCQueueEntry{CardUID: cardUID, MachineID: machineID}
	if err := q.store.Create(ctx, &e); err != nil {
		return model.NFCQueueEntry{}, false, err
	}
	return e, true, nil
}

// Consume fetches and deletes the entry for the card. Called once
// during registration to bind the card permanently to the user.
func (q *Queue) Consume(ctx context.Context, cardUID string) (model.NFCQueueEntry, error) {
	e, err := q.store.FindByCardUID(ctx, cardUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NFCQueueEntry{}, ErrNotFound
		}
		return model.NFCQueueEntry{}, err
	}
	if err := q.store.Delete(ctx, e.ID); err != nil {
		return model.NFCQueueEntry{}, err
	}
	return e, nil
}

// PeekLatest returns the newest unclaimed tap without consuming it.
func (q *Queue) PeekLatest(ctx context.Context) (model.NFCQueueEntry, error) {
	e, err := q.store.FindLatest(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NFCQueueEntry{}, ErrEmpty
		}
		return model.NFCQueueEntry{}, err
	}
	return e, nil
}
