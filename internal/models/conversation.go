package models

import "time"

// Conversation is the stored conversation row. Participants live in a
// separate join table and are attached by the enrichment step.
type Conversation struct {
	ID                 int        `db:"id" json:"id"`
	IsGroup            bool       `db:"is_group" json:"is_group"`
	GroupName          *string    `db:"group_name" json:"group_name,omitempty"`
	LastMessageTime    *time.Time `db:"last_message_time" json:"last_message_time,omitempty"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// ConversationSummary is the enriched list view of a conversation for one
// caller, distinct from the stored row.
type ConversationSummary struct {
	Conversation
	Participants []User `json:"participants"`
	UnreadCount  int    `json:"unread_count"`
}

// ConversationDetail is the enriched single-conversation view.
type ConversationDetail struct {
	Conversation
	Participants []User `json:"participants"`
	Me           *User  `json:"me,omitempty"`
}
