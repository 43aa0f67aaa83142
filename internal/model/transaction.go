package model

import "time"

// Transaction types.  IN entries add credit-hours to a user's
// balance once validated by the payment settlement webhook; OUT
// entries spend credit-hours immediately.
const (
	TransactionIn  = "IN"
	TransactionOut = "OUT"
)

// Transaction is one immutable entry in the credit ledger.  The
// balance of a user is always derived by summing entries, never
// stored as a mutable counter, so concurrent debits and credits can
// only ever append and double-billing stays visible in the audit
// trail.
//
// Fields:
//  ID          – primary key identifier.
//  Ref         – external reference handed to the payment gateway.
//  UserID      – owning user.
//  RentingID   – linked renting for rent debits and fines (nullable).
//  Type        – IN or OUT.
//  Amount      – credit-hours, always positive.
//  ValidatedAt – settlement time; nil means pending confirmation.
//                OUT entries are validated at creation, IN entries
//                only count toward the balance once validated.
//  CreatedAt   – creation timestamp.
type Transaction struct {
	ID          uint64     `json:"id"`
	Ref         string     `json:"ref"`
	UserID      uint64     `json:"user_id"`
	RentingID   *uint64    `json:"renting_id"` // nullable
	Type        string     `json:"type"`
	Amount      int64      `json:"amount"`
	ValidatedAt *time.Time `json:"validated_at"` // nil while pending
	CreatedAt   time.Time  `json:"created_at"`
}

// Validated reports whether the entry counts toward a balance.
func (t *Transaction) Validated() bool { return t.ValidatedAt != nil }
