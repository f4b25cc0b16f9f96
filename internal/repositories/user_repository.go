package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository keeps the directory of users seen by the service.
type UserRepository interface {
	UpsertUser(ctx context.Context, user models.UserRef) error
	GetUser(ctx context.Context, userID int64) (models.UserRef, error)
	ListOtherUsers(ctx context.Context, userID int64) ([]models.UserRef, error)
}

// UserRepo is a sqlx-backed repository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertUser records the user, refreshing the username.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.UserRef) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users (id, username) VALUES (?, ?)
        ON CONFLICT (id) DO UPDATE SET username = excluded.username`), user.ID, user.Username)
	return err
}

func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.UserRef, error) {
	var user models.UserRef
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT id, username FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRef{}, ErrUserNotFound
	}
	return user, err
}

// ListOtherUsers returns every known user except userID.
func (r *UserRepo) ListOtherUsers(ctx context.Context, userID int64) ([]models.UserRef, error) {
	users := []models.UserRef{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`SELECT id, username FROM users WHERE id <> ? ORDER BY username, id`), userID)
	return users, err
}
