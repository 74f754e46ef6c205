package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"marketplace-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads marketplace user profiles.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.UserProfile, error)
	SearchUsers(ctx context.Context, excludeID string, query string, limit int) ([]models.UserProfile, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a public profile by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	var u models.UserProfile
	err := r.db.GetContext(ctx, &u, `SELECT id, name, email, image FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return u, err
}

// SearchUsers matches name or email case-insensitively, excluding one user.
func (r *UserRepo) SearchUsers(ctx context.Context, excludeID string, query string, limit int) ([]models.UserProfile, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	users := []models.UserProfile{}
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, image FROM users
        WHERE id <> $1 AND (name ILIKE $2 OR email ILIKE $2)
        ORDER BY name NULLS LAST, id
        LIMIT $3`, excludeID, pattern, limit)
	return users, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
