package models

import (
	"time"
)

// AuthType identifies how an account authenticates against its mail servers.
const (
	AuthTypeBasic  = "basic"
	AuthTypeOAuth2 = "oauth2"
)

// EmailAccount represents one configured mailbox the assistant polls and
// sends from. Password and OAuth tokens are stored encrypted (AES-256-GCM).
type EmailAccount struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	EmailAddress          string    `gorm:"size:255;uniqueIndex;not null" json:"email_address"`
	IMAPHost              string    `gorm:"size:255;not null" json:"imap_host"`
	IMAPPort              int       `gorm:"not null" json:"imap_port"`
	SMTPHost              string    `gorm:"size:255;not null" json:"smtp_host"`
	SMTPPort              int       `gorm:"not null" json:"smtp_port"`
	UseSSL                bool      `gorm:"default:true" json:"use_ssl"`
	Username              string    `gorm:"size:255;not null" json:"username"`
	PasswordEncrypted     string    `gorm:"size:500" json:"-"`
	AuthType              string    `gorm:"size:20;default:basic" json:"auth_type"`
	Provider              string    `gorm:"size:50" json:"provider"`
	AccessTokenEncrypted  string    `gorm:"type:text" json:"-"`
	RefreshTokenEncrypted string    `gorm:"type:text" json:"-"`
	TokenExpiresAt        time.Time `json:"token_expires_at"`
	Active                bool      `gorm:"default:true" json:"active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`

	// Relations
	Conversations []Conversation `gorm:"foreignKey:AccountID" json:"conversations,omitempty"`
}

// IsOAuth2 reports whether the account authenticates with OAuth2 tokens.
func (a *EmailAccount) IsOAuth2() bool {
	return a.AuthType == AuthTypeOAuth2
}
