package repository

import (
	"context"
	"database/sql"

	"github.com/ulocker/u-locker-server/internal/model"
)

// RoomRepo provides CRUD operations for rooms scoped to their
// owning locker.
type RoomRepo struct{ DB *sql.DB }

func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{DB: db} }

const roomColumns = "id,locker_id,door_id,name,size,created_at,updated_at"

// RoomDetail is a room joined with its locker's bus address. The
// rent service needs the machine ID to target device commands and
// snapshot pushes without a second lookup.
type RoomDetail struct {
	model.Room
	MachineID string
}

// Create inserts a room under the given locker and populates the
// generated ID.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO rooms (locker_id, door_id, name, size) VALUES (?,?,?,?)",
		room.LockerID, room.DoorID, room.Name, room.Size)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = uint64(id)
	return nil
}

// GetByID fetches a room, enforcing that it belongs to the locker.
func (r *RoomRepo) GetByID(ctx context.Context, lockerID, roomID uint64) (model.Room, error) {
	var room model.Room
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id=? AND locker_id=? LIMIT 1",
		roomID, lockerID).Scan(
		&room.ID, &room.LockerID, &room.DoorID, &room.Name, &room.Size,
		&room.CreatedAt, &room.UpdatedAt)
	return room, err
}

// GetDetail fetches a room together with its locker's machine ID.
func (r *RoomRepo) GetDetail(ctx context.Context, roomID uint64) (RoomDetail, error) {
	var d RoomDetail
	err := r.DB.QueryRowContext(ctx,
		`SELECT ro.id, ro.locker_id, ro.door_id, ro.name, ro.size, ro.created_at, ro.updated_at, l.machine_id
		 FROM rooms ro
		 JOIN lockers l ON l.id = ro.locker_id
		 WHERE ro.id=? LIMIT 1`, roomID).Scan(
		&d.ID, &d.LockerID, &d.DoorID, &d.Name, &d.Size,
		&d.CreatedAt, &d.UpdatedAt, &d.MachineID)
	return d, err
}

// ListByLocker returns all rooms of a locker ordered by door number.
func (r *RoomRepo) ListByLocker(ctx context.Context, lockerID uint64) ([]model.Room, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE locker_id=? ORDER BY door_id", lockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Room, 0)
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.LockerID, &room.DoorID, &room.Name,
			&room.Size, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// Update rewrites a room's editable fields.
func (r *RoomRepo) Update(ctx context.Context, room *model.Room) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE rooms SET door_id=?, name=?, size=? WHERE id=? AND locker_id=?",
		room.DoorID, room.Name, room.Size, room.ID, room.LockerID)
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

// Delete removes a room. Fails with ErrConflict while an ACTIVE or
// OVERDUE renting references it.
func (r *RoomRepo) Delete(ctx context.Context, lockerID, roomID uint64) error {
	var active int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rentings WHERE room_id=? AND status IN (?,?)",
		roomID, model.RentActive, model.RentOverdue).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrConflict
	}
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM rooms WHERE id=? AND locker_id=?", roomID, lockerID)
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

// Count returns the total number of rooms.
func (r *RoomRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n)
	return n, err
}
