package model

import "time"

// Locker models a physical locker cabinet on the device bus.  Each
// cabinet is addressed by a stable machine ID (three dash-separated
// hex groups, e.g. "0cfa-4ed7-a8d7") and owns a set of rooms.  The
// LastSeenAt watermark is advanced every time the device reports a
// heartbeat and lets operators spot cabinets that dropped off the
// bus.
//
// Fields:
//  ID          – primary key identifier.
//  MachineID   – hardware bus address of the cabinet.
//  Name        – display name.
//  Location    – where the cabinet is installed.
//  Description – free-form description.
//  LastSeenAt  – last heartbeat time (nullable, never seen when nil).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Locker struct {
	ID          uint64     `json:"id"`
	MachineID   string     `json:"machine_id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	LastSeenAt  *time.Time `json:"last_seen_at"` // nullable, never seen when nil
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
