package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ulocker/u-locker-server/internal/model"
)

// RentingRepo provides persistence for rentings, the per-room
// occupancy lifecycle records. Status transitions go through
// UpdateStatusIf so concurrent writers cannot blindly overwrite each
// other: the UPDATE carries the expected current status and reports
// whether it matched.
type RentingRepo struct{ DB *sql.DB }

func NewRentingRepo(db *sql.DB) *RentingRepo { return &RentingRepo{DB: db} }

const rentingColumns = "id,user_id,room_id,start_time,end_time,status,created_at,updated_at"

// RentingDetail is a renting joined with the hardware coordinates
// needed to drive the device: the room's door number and the owning
// locker's machine ID, plus the renting user's bound card.
type RentingDetail struct {
	model.Renting
	DoorID    int
	MachineID string
	CardUID   *string
}

// Occupancy is one occupied door on a cabinet, as reported to the
// device in STATE snapshots.
type Occupancy struct {
	DoorID  int    `json:"doorId"`
	CardUID string `json:"cardUid"`
}

// Create inserts a renting and populates the generated ID.
func (r *RentingRepo) Create(ctx context.Context, rt *model.Renting) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO rentings (user_id, room_id, start_time, end_time, status) VALUES (?,?,?,?,?)",
		rt.UserID, rt.RoomID, rt.StartTime.UTC(), rt.EndTime.UTC(), rt.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	return nil
}

// GetByID fetches a renting by primary key.
func (r *RentingRepo) GetByID(ctx context.Context, id uint64) (model.Renting, error) {
	var rt model.Renting
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+rentingColumns+" FROM rentings WHERE id=? LIMIT 1", id).Scan(
		&rt.ID, &rt.UserID, &rt.RoomID, &rt.StartTime, &rt.EndTime, &rt.Status,
		&rt.CreatedAt, &rt.UpdatedAt)
	return rt, err
}

// GetDetail fetches a renting joined with door, machine ID and the
// user's card.
func (r *RentingRepo) GetDetail(ctx context.Context, id uint64) (RentingDetail, error) {
	return r.scanDetail(ctx, `WHERE rt.id=?`, id)
}

// FindActiveByRoom returns the renting currently occupying the room
// (status ACTIVE or OVERDUE). sql.ErrNoRows means the room is free.
func (r *RentingRepo) FindActiveByRoom(ctx context.Context, roomID uint64) (model.Renting, error) {
	var rt model.Renting
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+rentingColumns+" FROM rentings WHERE room_id=? AND status IN (?,?) LIMIT 1",
		roomID, model.RentActive, model.RentOverdue).Scan(
		&rt.ID, &rt.UserID, &rt.RoomID, &rt.StartTime, &rt.EndTime, &rt.Status,
		&rt.CreatedAt, &rt.UpdatedAt)
	return rt, err
}

// FindActiveByCardUID resolves an NFC tap to the ACTIVE renting of
// the card's owner, with the hardware coordinates needed to answer
// the tap.
func (r *RentingRepo) FindActiveByCardUID(ctx context.Context, cardUID string) (RentingDetail, error) {
	return r.scanDetail(ctx, `WHERE u.card_uid=? AND rt.status='ACTIVE'`, cardUID)
}

// ListByUser returns the user's full rent history, newest first.
func (r *RentingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Renting, error) {
	return r.list(ctx,
		"SELECT "+rentingColumns+" FROM rentings WHERE user_id=? ORDER BY created_at DESC", userID)
}

// ListActiveByUser returns the user's ACTIVE and OVERDUE rentings.
func (r *RentingRepo) ListActiveByUser(ctx context.Context, userID uint64) ([]model.Renting, error) {
	return r.list(ctx,
		"SELECT "+rentingColumns+" FROM rentings WHERE user_id=? AND status IN (?,?) ORDER BY created_at DESC",
		userID, model.RentActive, model.RentOverdue)
}

// ListExpiredActive returns ACTIVE rentings whose paid window ended
// before the given instant. Input for the scheduler's overdue sweep.
func (r *RentingRepo) ListExpiredActive(ctx context.Context, now time.Time) ([]model.Renting, error) {
	return r.list(ctx,
		"SELECT "+rentingColumns+" FROM rentings WHERE status=? AND end_time < ?",
		model.RentActive, now.UTC())
}

// MarkOverdue bulk-transitions the given rentings from ACTIVE to
// OVERDUE and returns how many rows actually changed. Rentings that
// were stopped or already swept in the meantime are left alone.
func (r *RentingRepo) MarkOverdue(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, model.RentOverdue)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, model.RentActive)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE rentings SET status=? WHERE id IN ("+strings.Join(placeholders, ",")+") AND status=?",
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateStatusIf transitions a renting's status only when the
// current status is one of the expected values. Returns false when
// another writer got there first.
func (r *RentingRepo) UpdateStatusIf(ctx context.Context, id uint64, from []string, to string) (bool, error) {
	placeholders := make([]string, len(from))
	args := make([]interface{}, 0, len(from)+2)
	args = append(args, to, id)
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, s)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE rentings SET status=? WHERE id=? AND status IN ("+strings.Join(placeholders, ",")+")",
		args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOccupancy returns one (doorId, cardUid) pair per room of the
// cabinet that has an ACTIVE renting. Rooms without one are omitted,
// which makes the result a complete occupancy snapshot for the
// machine.
func (r *RentingRepo) ListOccupancy(ctx context.Context, machineID string) ([]Occupancy, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT ro.door_id, COALESCE(u.card_uid, '')
		 FROM rentings rt
		 JOIN rooms ro ON ro.id = rt.room_id
		 JOIN lockers l ON l.id = ro.locker_id
		 JOIN users u ON u.id = rt.user_id
		 WHERE l.machine_id=? AND rt.status=?
		 ORDER BY ro.door_id`,
		machineID, model.RentActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Occupancy, 0)
	for rows.Next() {
		var o Occupancy
		if err := rows.Scan(&o.DoorID, &o.CardUID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountActive returns how many rentings are ACTIVE or OVERDUE.
func (r *RentingRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rentings WHERE status IN (?,?)",
		model.RentActive, model.RentOverdue).Scan(&n)
	return n, err
}

func (r *RentingRepo) scanDetail(ctx context.Context, where string, arg interface{}) (RentingDetail, error) {
	var d RentingDetail
	var cardUID sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT rt.id, rt.user_id, rt.room_id, rt.start_time, rt.end_time, rt.status,
		        rt.created_at, rt.updated_at, ro.door_id, l.machine_id, u.card_uid
		 FROM rentings rt
		 JOIN rooms ro ON ro.id = rt.room_id
		 JOIN lockers l ON l.id = ro.locker_id
		 JOIN users u ON u.id = rt.user_id
		 `+where+` LIMIT 1`, arg).Scan(
		&d.ID, &d.UserID, &d.RoomID, &d.StartTime, &d.EndTime, &d.Status,
		&d.CreatedAt, &d.UpdatedAt, &d.DoorID, &d.MachineID, &cardUID)
	if err != nil {
		return d, err
	}
	if cardUID.Valid {
		v := cardUID.String
		d.CardUID = &v
	}
	return d, nil
}

func (r *RentingRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Renting, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Renting, 0)
	for rows.Next() {
		var rt model.Renting
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.RoomID, &rt.StartTime, &rt.EndTime,
			&rt.Status, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
