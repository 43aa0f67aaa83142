package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ulocker/u-locker-server/internal/model"
)

// TransactionRepo persists ledger entries. Entries are append-only:
// the only mutation ever performed is stamping validated_at when the
// payment gateway confirms settlement. Balances are always derived
// by summing entries, never stored.
type TransactionRepo struct{ DB *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{DB: db} }

const transactionColumns = "id,ref,user_id,renting_id,type,amount,validated_at,created_at"

// Create appends a ledger entry and populates the generated ID.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	var rentingID interface{}
	if t.RentingID != nil {
		rentingID = *t.RentingID
	}
	var validatedAt interface{}
	if t.ValidatedAt != nil {
		validatedAt = t.ValidatedAt.UTC()
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO transactions (ref, user_id, renting_id, type, amount, validated_at) VALUES (?,?,?,?,?,?)",
		t.Ref, t.UserID, rentingID, t.Type, t.Amount, validatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByID fetches an entry by primary key.
func (r *TransactionRepo) GetByID(ctx context.Context, id uint64) (model.Transaction, error) {
	return scanTransaction(r.DB.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id=? LIMIT 1", id))
}

// GetByRef fetches an entry by the external reference handed to the
// payment gateway.
func (r *TransactionRepo) GetByRef(ctx context.Context, ref string) (model.Transaction, error) {
	return scanTransaction(r.DB.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE ref=? LIMIT 1", ref))
}

// SumByUser sums entry amounts for a user by type. When
// validatedOnly is set, pending entries are excluded. A user with no
// entries sums to zero.
func (r *TransactionRepo) SumByUser(ctx context.Context, userID uint64, typ string, validatedOnly bool) (int64, error) {
	query := "SELECT COALESCE(SUM(amount),0) FROM transactions WHERE user_id=? AND type=?"
	if validatedOnly {
		query += " AND validated_at IS NOT NULL"
	}
	var sum int64
	err := r.DB.QueryRowContext(ctx, query, userID, typ).Scan(&sum)
	return sum, err
}

// SumAll sums entry amounts across all users by type. Used by the
// statistics dashboard for cash flow totals.
func (r *TransactionRepo) SumAll(ctx context.Context, typ string, validatedOnly bool) (int64, error) {
	query := "SELECT COALESCE(SUM(amount),0) FROM transactions WHERE type=?"
	if validatedOnly {
		query += " AND validated_at IS NOT NULL"
	}
	var sum int64
	err := r.DB.QueryRowContext(ctx, query, typ).Scan(&sum)
	return sum, err
}

// MarkValidated stamps validated_at on a pending entry. Already
// validated entries are left untouched; callers treat that as a
// no-op, which makes settlement callbacks idempotent.
func (r *TransactionRepo) MarkValidated(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE transactions SET validated_at=? WHERE id=? AND validated_at IS NULL",
		at.UTC(), id)
	return err
}

// List returns entries, optionally filtered by type, newest or
// oldest first.
func (r *TransactionRepo) List(ctx context.Context, typ string, newestFirst bool) ([]model.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions"
	args := []interface{}{}
	if typ != "" {
		query += " WHERE type=?"
		args = append(args, typ)
	}
	if newestFirst {
		query += " ORDER BY created_at DESC"
	} else {
		query += " ORDER BY created_at ASC"
	}
	return r.list(ctx, query, args...)
}

// ListByUser returns the entries a user may see: all OUT entries and
// validated IN entries. Pending top-ups are hidden until settled.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Transaction, error) {
	return r.list(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE user_id=? AND (type='OUT' OR validated_at IS NOT NULL)
		 ORDER BY created_at DESC`, userID)
}

func (r *TransactionRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Transaction, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var t model.Transaction
	var rentingID sql.NullInt64
	var validatedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Ref, &t.UserID, &rentingID, &t.Type, &t.Amount,
		&validatedAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if rentingID.Valid {
		v := uint64(rentingID.Int64)
		t.RentingID = &v
	}
	if validatedAt.Valid {
		v := validatedAt.Time
		t.ValidatedAt = &v
	}
	return t, nil
}
