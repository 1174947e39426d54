package models

import (
	"time"
)

// Conversation is the message thread between one account and one
// correspondent address. At most one row exists per (account, participant)
// pair; the composite unique index backs the lookup-or-create contract.
type Conversation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	AccountID        uint      `gorm:"not null;uniqueIndex:idx_conversations_account_participant" json:"account_id"`
	ParticipantEmail string    `gorm:"size:255;not null;uniqueIndex:idx_conversations_account_participant" json:"participant_email"`
	CreatedAt        time.Time `json:"created_at"`
	LastMessageAt    time.Time `gorm:"index" json:"last_message_at"`

	// Relations
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}
