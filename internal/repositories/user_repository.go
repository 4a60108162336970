package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, external_id, name, email, avatar_url, is_online, last_seen, created_at`

// UserRepository abstracts user persistence and identity sync.
type UserRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (models.User, error)
	GetByID(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	ListOthers(ctx context.Context, excludeUserID int, search string) ([]models.User, error)
	UpsertLogin(ctx context.Context, externalID, name, email string, avatarURL *string) (models.User, error)
	UpsertFromEvent(ctx context.Context, externalID, name, email string, avatarURL *string) error
	DeleteByExternalID(ctx context.Context, externalID string) error
	SetPresence(ctx context.Context, userID int, online bool) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByExternalID resolves a user by the identity provider's subject id.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE external_id=$1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByID fetches a user by internal id.
func (r *UserRepo) GetByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches multiple users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var users []models.User
	err = r.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

// ListOthers returns every user except the given one, optionally filtered by
// a case-insensitive name search.
func (r *UserRepo) ListOthers(ctx context.Context, excludeUserID int, search string) ([]models.User, error) {
	var users []models.User
	if search == "" {
		err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id<>$1 ORDER BY name ASC`, excludeUserID)
		return users, err
	}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id<>$1 AND name ILIKE '%'||$2||'%' ORDER BY name ASC`, excludeUserID, search)
	return users, err
}

// UpsertLogin creates or refreshes a user on login, marking them online.
func (r *UserRepo) UpsertLogin(ctx context.Context, externalID, name, email string, avatarURL *string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (external_id, name, email, avatar_url, is_online, last_seen)
        VALUES ($1, $2, $3, $4, TRUE, NOW())
        ON CONFLICT (external_id) DO UPDATE
        SET name = EXCLUDED.name, email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url, is_online = TRUE, last_seen = NOW()
        RETURNING `+userColumns, externalID, name, email, avatarURL).
		StructScan(&user)
	return user, err
}

// UpsertFromEvent applies a provider lifecycle event. A fresh record starts
// offline; an existing record keeps its presence state.
func (r *UserRepo) UpsertFromEvent(ctx context.Context, externalID, name, email string, avatarURL *string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (external_id, name, email, avatar_url, is_online, last_seen)
        VALUES ($1, $2, $3, $4, FALSE, NOW())
        ON CONFLICT (external_id) DO UPDATE
        SET name = EXCLUDED.name, email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url`,
		externalID, name, email, avatarURL)
	return err
}

// DeleteByExternalID removes a user after upstream account deletion.
func (r *UserRepo) DeleteByExternalID(ctx context.Context, externalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE external_id=$1`, externalID)
	return err
}

// SetPresence patches the online flag and refreshes last-seen.
func (r *UserRepo) SetPresence(ctx context.Context, userID int, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2, last_seen=NOW() WHERE id=$1`, userID, online)
	return err
}
