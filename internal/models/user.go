package models

import "time"

// User is the stored user record, synced from the identity provider.
type User struct {
	ID         int       `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"-"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	AvatarURL  *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	IsOnline   bool      `db:"is_online" json:"is_online"`
	LastSeen   time.Time `db:"last_seen" json:"last_seen"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
