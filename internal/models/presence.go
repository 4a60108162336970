package models

import "time"

// TypingIndicator is the (conversation, user) liveness record, overwritten
// on each keystroke. Expiry is by age at query time, never by deletion.
type TypingIndicator struct {
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	LastTyped      time.Time `db:"last_typed" json:"last_typed"`
}

// ReadReceipt is the per-user last-read watermark for a conversation.
type ReadReceipt struct {
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	LastReadTime   time.Time `db:"last_read_time" json:"last_read_time"`
}
