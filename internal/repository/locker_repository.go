package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ulocker/u-locker-server/internal/model"
)

// LockerRepo provides CRUD operations for locker cabinets plus the
// heartbeat watermark update driven by the device gateway. All
// timestamp fields are assumed to be stored in UTC.
type LockerRepo struct{ DB *sql.DB }

func NewLockerRepo(db *sql.DB) *LockerRepo { return &LockerRepo{DB: db} }

const lockerColumns = "id,machine_id,name,location,description,last_seen_at,created_at,updated_at"

// Create inserts a locker and populates the generated ID.
func (r *LockerRepo) Create(ctx context.Context, l *model.Locker) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO lockers (machine_id, name, location, description) VALUES (?,?,?,?)",
		l.MachineID, l.Name, l.Location, l.Description)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// GetByID fetches a locker by primary key.
func (r *LockerRepo) GetByID(ctx context.Context, id uint64) (model.Locker, error) {
	return r.scanOne(ctx, "SELECT "+lockerColumns+" FROM lockers WHERE id=? LIMIT 1", id)
}

// GetByMachineID fetches a locker by its hardware bus address.
func (r *LockerRepo) GetByMachineID(ctx context.Context, machineID string) (model.Locker, error) {
	return r.scanOne(ctx, "SELECT "+lockerColumns+" FROM lockers WHERE machine_id=? LIMIT 1", machineID)
}

// List returns all lockers ordered by creation time.
func (r *LockerRepo) List(ctx context.Context) ([]model.Locker, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+lockerColumns+" FROM lockers ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Locker, 0)
	for rows.Next() {
		l, err := scanLocker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update rewrites the locker's editable fields.
func (r *LockerRepo) Update(ctx context.Context, l *model.Locker) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE lockers SET machine_id=?, name=?, location=?, description=? WHERE id=?",
		l.MachineID, l.Name, l.Location, l.Description, l.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a locker. Fails with ErrConflict while any of its
// rooms still has an ACTIVE or OVERDUE renting, since rentings must
// never reference a deleted locker.
func (r *LockerRepo) Delete(ctx context.Context, id uint64) error {
	var active int64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rentings rt
		 JOIN rooms ro ON ro.id = rt.room_id
		 WHERE ro.locker_id=? AND rt.status IN (?,?)`,
		id, model.RentActive, model.RentOverdue).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrConflict
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM lockers WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateHeartbeat advances the last_seen_at watermark for the
// cabinet. Returns false when no locker with that machine ID exists.
func (r *LockerRepo) UpdateHeartbeat(ctx context.Context, machineID string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE lockers SET last_seen_at=? WHERE machine_id=?", at.UTC(), machineID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the total number of lockers.
func (r *LockerRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM lockers").Scan(&n)
	return n, err
}

func (r *LockerRepo) scanOne(ctx context.Context, query string, args ...interface{}) (model.Locker, error) {
	return scanLocker(r.DB.QueryRowContext(ctx, query, args...))
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanLocker(row rowScanner) (model.Locker, error) {
	var l model.Locker
	var lastSeen sql.NullTime
	err := row.Scan(&l.ID, &l.MachineID, &l.Name, &l.Location, &l.Description,
		&lastSeen, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		l.LastSeenAt = &t
	}
	return l, nil
}
