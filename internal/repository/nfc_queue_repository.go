package repository

import (
	"context"
	"database/sql"

	"github.com/ulocker/u-locker-server/internal/model"
)

// NFCQueueRepo persists unclaimed card taps.
type NFCQueueRepo struct{ DB *sql.DB }

func NewNFCQueueRepo(db *sql.DB) *NFCQueueRepo { return &NFCQueueRepo{DB: db} }

const nfcColumns = "id,card_uid,machine_id,created_at"

// Create inserts a tap record and populates the generated ID.
func (r *NFCQueueRepo) Create(ctx context.Context, e *model.NFCQueueEntry) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO nfc_queue (card_uid, machine_id) VALUES (?,?)",
		e.CardUID, e.MachineID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// FindByCardUID returns the unclaimed tap for a card, or
// sql.ErrNoRows.
func (r *NFCQueueRepo) FindByCardUID(ctx context.Context, cardUID string) (model.NFCQueueEntry, error) {
	var e model.NFCQueueEntry
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+nfcColumns+" FROM nfc_queue WHERE card_uid=? LIMIT 1", cardUID).Scan(
		&e.ID, &e.CardUID, &e.MachineID, &e.CreatedAt)
	return e, err
}

// FindLatest returns the most recent unclaimed tap, or
// sql.ErrNoRows when the queue is empty.
func (r *NFCQueueRepo) FindLatest(ctx context.Context) (model.NFCQueueEntry, error) {
	var e model.NFCQueueEntry
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+nfcColumns+" FROM nfc_queue ORDER BY created_at DESC, id DESC LIMIT 1").Scan(
		&e.ID, &e.CardUID, &e.MachineID, &e.CreatedAt)
	return e, err
}

// Delete removes a consumed tap.
func (r *NFCQueueRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM nfc_queue WHERE id=?", id)
	return err
}
