package model

import "time"

// Renting statuses.  A renting starts ACTIVE, becomes OVERDUE once
// its end time passes (detected lazily on read paths or eagerly by
// the scheduler sweep) and ends DONE when the user stops the rent.
// DONE is terminal.  Rentings are never deleted; they double as the
// audit history of room usage.
const (
	RentActive  = "ACTIVE"
	RentOverdue = "OVERDUE"
	RentDone    = "DONE"
)

// Renting records one rental of a room by a user.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – renting user.
//  RoomID    – rented room.
//  StartTime – start of the paid window.
//  EndTime   – end of the paid window.
//  Status    – ACTIVE, OVERDUE or DONE.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Renting struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	RoomID    uint64    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiredAt reports whether the renting's paid window has elapsed at
// the given instant while the renting is still ACTIVE.  It is the
// single time comparison behind both the lazy overdue refresh on
// read paths and the scheduler's eager sweep.
func (r *Renting) ExpiredAt(now time.Time) bool {
	return r.Status == RentActive && now.After(r.EndTime)
}
