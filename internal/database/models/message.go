package models

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation. EmailMessageID carries the mail
// protocol's Message-ID header for user turns and is nil for assistant
// turns; when present it is unique and used to deduplicate ingestion.
// Messages are never mutated after creation.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	Role           string    `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Subject        string    `gorm:"size:500" json:"subject"`
	EmailMessageID *string   `gorm:"size:500;uniqueIndex" json:"email_message_id"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}
