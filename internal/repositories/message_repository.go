package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_id, sender_id, content, is_deleted, created_at`

const previewLimit = 100

// MessageRepository defines interactions for the message ledger.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID int, content string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int) error
	ToggleReaction(ctx context.Context, messageID, userID int, emoji string) error
	ListReactions(ctx context.Context, conversationID int) ([]models.ReactionRow, error)
	ListMessageReactions(ctx context.Context, messageID int) ([]models.ReactionRow, error)
	CountUnread(ctx context.Context, conversationID, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message and, in the same transaction, bumps the
// conversation's last-message fields and clears the sender's typing record.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content)
        VALUES ($1, $2, $3)
        RETURNING `+messageColumns, conversationID, senderID, content).
		StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_time=$2, last_message_preview=$3 WHERE id=$1`,
		conversationID, msg.CreatedAt, previewText(content)); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM typing_indicators WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, senderID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the conversation history in ascending creation order.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage flips the deleted flag. Content and reactions stay stored.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ToggleReaction removes the caller's reaction with the given emoji if
// present, otherwise adds it. Exactly one state mutation per call; the
// primary key keeps a user under an emoji at most once, and an emoji with no
// reactors simply has no rows.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID int, emoji string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID); err != nil {
		return err
	}
	if !exists {
		err = ErrMessageNotFound
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if removed == 0 {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)`, messageID, userID, emoji); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// ListReactions returns all reaction rows for a conversation's messages in
// application order.
func (r *MessageRepo) ListReactions(ctx context.Context, conversationID int) ([]models.ReactionRow, error) {
	var rows []models.ReactionRow
	query := `SELECT mr.message_id, mr.user_id, mr.emoji, mr.created_at
        FROM message_reactions mr
        JOIN messages m ON m.id = mr.message_id
        WHERE m.conversation_id = $1
        ORDER BY mr.created_at ASC`
	err := r.db.SelectContext(ctx, &rows, query, conversationID)
	return rows, err
}

// ListMessageReactions returns the reaction rows of one message.
func (r *MessageRepo) ListMessageReactions(ctx context.Context, messageID int) ([]models.ReactionRow, error) {
	var rows []models.ReactionRow
	err := r.db.SelectContext(ctx, &rows, `SELECT message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id=$1 ORDER BY created_at ASC`, messageID)
	return rows, err
}

// CountUnread counts non-deleted messages from other senders created after
// the user's read watermark (epoch when no receipt exists).
func (r *MessageRepo) CountUnread(ctx context.Context, conversationID, userID int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages m
        WHERE m.conversation_id = $1
          AND m.is_deleted = FALSE
          AND m.sender_id <> $2
          AND m.created_at > COALESCE(
              (SELECT last_read_time FROM read_receipts WHERE conversation_id=$1 AND user_id=$2),
              to_timestamp(0))`
	err := r.db.GetContext(ctx, &count, query, conversationID, userID)
	return count, err
}

// previewText truncates content to the preview limit, rune-safe.
func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit])
}
