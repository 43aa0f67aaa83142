package model

import "time"

// Room is a single rentable compartment inside a locker cabinet.
// The DoorID is the compartment's physical door number on the
// hardware; it is what the device expects in OPEN_DOOR commands and
// what it reports in occupancy state.  At most one renting may be
// ACTIVE or OVERDUE for a room at any time.
//
// Fields:
//  ID        – primary key identifier.
//  LockerID  – owning locker cabinet.
//  DoorID    – physical door number on the cabinet.
//  Name      – display name.
//  Size      – size class label (e.g. "S", "M", "L").
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Room struct {
	ID        uint64    `json:"id"`
	LockerID  uint64    `json:"locker_id"`
	DoorID    int       `json:"door_id"`
	Name      string    `json:"name"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
