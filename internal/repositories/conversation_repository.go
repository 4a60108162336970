package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `id, is_group, group_name, last_message_time, last_message_preview, created_at`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindDirectConversation(ctx context.Context, userID, otherUserID int) (models.Conversation, error)
	CreateDirect(ctx context.Context, userID, otherUserID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	ParticipantIDs(ctx context.Context, conversationID int) ([]int, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// FindDirectConversation looks up an existing non-group conversation whose
// participant set is exactly the given pair. The caller is expected to create
// one on ErrConversationNotFound; that lookup-then-insert is not atomic under
// concurrent first contact, which is accepted.
func (r *ConversationRepo) FindDirectConversation(ctx context.Context, userID, otherUserID int) (models.Conversation, error) {
	var convo models.Conversation
	query := `SELECT c.id, c.is_group, c.group_name, c.last_message_time, c.last_message_preview, c.created_at
        FROM conversations c
        JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
        JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
        WHERE c.is_group = FALSE
          AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
        ORDER BY c.id ASC
        LIMIT 1`
	err := r.db.GetContext(ctx, &convo, query, userID, otherUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return convo, err
}

// CreateDirect inserts a two-participant conversation.
func (r *ConversationRepo) CreateDirect(ctx context.Context, userID, otherUserID int) (models.Conversation, error) {
	return r.create(ctx, false, nil, []int{userID, otherUserID})
}

// CreateGroup inserts a group conversation. The participant set is the
// de-duplicated union of owner and members, owner first.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Conversation, error) {
	participants := dedupeParticipants(ownerID, memberIDs)
	return r.create(ctx, true, &name, participants)
}

func (r *ConversationRepo) create(ctx context.Context, isGroup bool, groupName *string, participantIDs []int) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var convo models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, group_name, last_message_time)
        VALUES ($1, $2, NOW())
        RETURNING `+conversationColumns, isGroup, groupName).
		StructScan(&convo); err != nil {
		return models.Conversation{}, err
	}

	for pos, id := range participantIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES ($1, $2, $3)`, convo.ID, id, pos); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return convo, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var convo models.Conversation
	err := r.db.GetContext(ctx, &convo, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return convo, err
}

// ListForUser returns the user's conversations, most recent activity first.
// Conversations with no messages yet sort by creation time.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convos []models.Conversation
	query := `SELECT c.id, c.is_group, c.group_name, c.last_message_time, c.last_message_preview, c.created_at
        FROM conversations c
        JOIN conversation_participants cp ON cp.conversation_id = c.id
        WHERE cp.user_id = $1
        ORDER BY COALESCE(c.last_message_time, c.created_at) DESC`
	err := r.db.SelectContext(ctx, &convos, query, userID)
	return convos, err
}

// ParticipantIDs returns the ordered participant ids of a conversation.
func (r *ConversationRepo) ParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY position ASC`, conversationID)
	return ids, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// dedupeParticipants builds the owner-first participant list with duplicates
// collapsed, preserving first-seen order.
func dedupeParticipants(ownerID int, memberIDs []int) []int {
	seen := map[int]struct{}{ownerID: {}}
	ids := []int{ownerID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
