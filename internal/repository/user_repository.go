package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(ctx,
		"SELECT id,email,password_hash,role,card_uid,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(ctx,
		"SELECT id,email,password_hash,role,card_uid,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id)
}

// FindByCardUID fetches the user a card is bound to. Returns
// sql.ErrNoRows when the card is unbound.
func (r *UserRepo) FindByCardUID(ctx context.Context, cardUID string) (model.User, error) {
	return r.scanOne(ctx,
		"SELECT id,email,password_hash,role,card_uid,created_at,updated_at FROM users WHERE card_uid=? LIMIT 1",
		cardUID)
}

// BindCard permanently assigns a card identifier to the user.
func (r *UserRepo) BindCard(ctx context.Context, userID uint64, cardUID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET card_uid=? WHERE id=?", cardUID, userID)
	return err
}

// ListIDs returns all user IDs. Used by the weekly credit
// replenishment sweep.
func (r *UserRepo) ListIDs(ctx context.Context) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

func (r *UserRepo) scanOne(ctx context.Context, query string, args ...interface{}) (model.User, error) {
	var u model.User
	var cardUID sql.NullString
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &cardUID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	if cardUID.Valid {
		v := cardUID.String
		u.CardUID = &v
	}
	return u, nil
}
