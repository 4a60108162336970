package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// PresenceRepository covers typing indicators and read receipts.
type PresenceRepository interface {
	UpsertTyping(ctx context.Context, conversationID, userID int, at time.Time) error
	ListTyping(ctx context.Context, conversationID int) ([]models.TypingIndicator, error)
	UpsertReadReceipt(ctx context.Context, conversationID, userID int, at time.Time) (models.ReadReceipt, error)
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// UpsertTyping overwrites the (conversation, user) typing record. Stale
// records are never swept; they age out of the liveness filter.
func (r *PresenceRepo) UpsertTyping(ctx context.Context, conversationID, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO typing_indicators (conversation_id, user_id, last_typed)
        VALUES ($1, $2, $3)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_typed = EXCLUDED.last_typed`,
		conversationID, userID, at)
	return err
}

// ListTyping returns every typing record for the conversation, live or stale.
func (r *PresenceRepo) ListTyping(ctx context.Context, conversationID int) ([]models.TypingIndicator, error) {
	var indicators []models.TypingIndicator
	err := r.db.SelectContext(ctx, &indicators, `SELECT conversation_id, user_id, last_typed FROM typing_indicators WHERE conversation_id=$1`, conversationID)
	return indicators, err
}

// UpsertReadReceipt sets the (conversation, user) watermark to the given time.
// No monotonicity guard: a stale time regresses the watermark.
func (r *PresenceRepo) UpsertReadReceipt(ctx context.Context, conversationID, userID int, at time.Time) (models.ReadReceipt, error) {
	var receipt models.ReadReceipt
	err := r.db.QueryRowxContext(ctx, `INSERT INTO read_receipts (conversation_id, user_id, last_read_time)
        VALUES ($1, $2, $3)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_read_time = EXCLUDED.last_read_time
        RETURNING conversation_id, user_id, last_read_time`,
		conversationID, userID, at).
		StructScan(&receipt)
	return receipt, err
}
