package model

import "time"

// NFCQueueEntry is an ephemeral record of a card tap that no user
// has claimed yet.  The device gateway inserts one per unknown card
// and registration consumes it to bind the card to the new user.
// Entries are deleted on consumption, so the table only ever holds
// unclaimed taps.
//
// Fields:
//  ID        – primary key identifier.
//  CardUID   – identifier read from the tapped card.
//  MachineID – locker cabinet that reported the tap.
//  CreatedAt – when the tap was reported.
type NFCQueueEntry struct {
	ID        uint64    // nfc_queue.id
	CardUID   string    // nfc_queue.card_uid
	MachineID string    // nfc_queue.machine_id
	CreatedAt time.Time // nfc_queue.created_at
}
