package models

import "time"

// Message is the stored message row. Content is immutable after creation;
// only the soft-delete flag may change.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ReactionRow is one stored (message, user, emoji) reaction.
type ReactionRow struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// ReactionGroup is the merged per-emoji view of reactions on a message.
type ReactionGroup struct {
	Emoji   string `json:"emoji"`
	UserIDs []int  `json:"user_ids"`
}

// MessageView is a message enriched with its sender and merged reactions.
type MessageView struct {
	Message
	Sender    *User           `json:"sender,omitempty"`
	Reactions []ReactionGroup `json:"reactions"`
}

// ConversationEvent is broadcasted through websocket subscriptions.
type ConversationEvent struct {
	Type         string          `json:"type"`
	Message      *MessageView    `json:"message,omitempty"`
	MessageID    int             `json:"message_id,omitempty"`
	Reactions    []ReactionGroup `json:"reactions,omitempty"`
	UserID       int             `json:"user_id,omitempty"`
	LastReadTime *time.Time      `json:"last_read_time,omitempty"`
}
