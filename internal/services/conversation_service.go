package services

import (
	"errors"
	"strings"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/functions/ai"
	"gorm.io/gorm"
)

var (
	// ErrConversationNotFound indicates the conversation was not found
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDuplicateMessage indicates the mail message was already handled
	ErrDuplicateMessage = errors.New("message already handled")
)

// historyLimit caps how many prior turns are fed back into generation
const historyLimit = 40

// ConversationService threads inbound mail into per-correspondent
// conversations and records both sides of each exchange
type ConversationService struct {
	db         *gorm.DB
	logService *LogService
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(db *gorm.DB, logService *LogService) *ConversationService {
	return &ConversationService{
		db:         db,
		logService: logService,
	}
}

// GetOrCreate returns the conversation between the account and the
// participant address, creating it on first contact. Addresses are
// normalized to lower case so a correspondent maps to one thread.
func (s *ConversationService) GetOrCreate(accountID uint, participantEmail string) (*models.Conversation, error) {
	participantEmail = strings.ToLower(strings.TrimSpace(participantEmail))

	var conv models.Conversation
	err := s.db.Where("account_id = ? AND participant_email = ?", accountID, participantEmail).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.Conversation{
		AccountID:        accountID,
		ParticipantEmail: participantEmail,
		LastMessageAt:    time.Now(),
	}
	if err := s.db.Create(&conv).Error; err != nil {
		// Lost a race against a concurrent create; the unique index
		// guarantees the existing row is the one we want
		var existing models.Conversation
		if lookupErr := s.db.Where("account_id = ? AND participant_email = ?", accountID, participantEmail).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	s.logService.LogInfo(accountID, models.LogModuleConversation, "create", "Conversation started with "+participantEmail, nil)

	return &conv, nil
}

// AddUserMessage appends an inbound mail turn to the conversation.
// The mail Message-ID deduplicates ingestion: a second call with the
// same ID writes nothing and returns the existing message with
// created false, so retried processing continues from it.
func (s *ConversationService) AddUserMessage(conv *models.Conversation, content, subject, emailMessageID string) (*models.Message, bool, error) {
	var msgIDPtr *string
	if emailMessageID != "" {
		existing, err := s.findByEmailMessageID(emailMessageID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		msgIDPtr = &emailMessageID
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
		Subject:        subject,
		EmailMessageID: msgIDPtr,
	}

	if err := s.db.Create(msg).Error; err != nil {
		// The unique index on email_message_id closes the check-then-create
		// window under concurrent ingestion
		if emailMessageID != "" && isUniqueViolation(err) {
			existing, lookupErr := s.findByEmailMessageID(emailMessageID)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	if err := s.touch(conv, msg.CreatedAt); err != nil {
		return nil, false, err
	}

	return msg, true, nil
}

// findByEmailMessageID looks up an ingested message by its mail Message-ID
func (s *ConversationService) findByEmailMessageID(emailMessageID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.Where("email_message_id = ?", emailMessageID).First(&msg).Error
	if err == nil {
		return &msg, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// AnsweredAfter reports whether an assistant turn was recorded in the
// conversation after the given message
func (s *ConversationService) AnsweredAfter(conversationID, messageID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND role = ? AND id > ?", conversationID, models.RoleAssistant, messageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddAssistantMessage appends a generated reply turn to the conversation
func (s *ConversationService) AddAssistantMessage(conv *models.Conversation, content, subject string) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        content,
		Subject:        subject,
	}

	if err := s.db.Create(msg).Error; err != nil {
		return nil, err
	}

	if err := s.touch(conv, msg.CreatedAt); err != nil {
		return nil, err
	}

	return msg, nil
}

// touch advances the conversation's last activity timestamp
func (s *ConversationService) touch(conv *models.Conversation, at time.Time) error {
	conv.LastMessageAt = at
	return s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("last_message_at", at).Error
}

// History returns the most recent turns of the conversation as chat
// messages, ordered oldest first, ready to feed into generation
func (s *ConversationService) History(conversationID uint) ([]ai.ChatMessage, error) {
	var messages []models.Message
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC").
		Limit(historyLimit).
		Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse into chronological order
	history := make([]ai.ChatMessage, len(messages))
	for i, msg := range messages {
		history[len(messages)-1-i] = ai.ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return history, nil
}

// GetConversation retrieves a conversation with its messages in
// chronological order
func (s *ConversationService) GetConversation(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("id ASC")
	}).First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// ListConversations retrieves conversations for an account, most recently
// active first. accountID 0 lists across all accounts.
func (s *ConversationService) ListConversations(accountID uint, page, limit int) ([]models.Conversation, int64, error) {
	db := s.db.Model(&models.Conversation{})
	if accountID > 0 {
		db = db.Where("account_id = ?", accountID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var conversations []models.Conversation
	if err := db.Order("last_message_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&conversations).Error; err != nil {
		return nil, 0, err
	}

	return conversations, total, nil
}

// DeleteConversation removes a conversation and its messages
func (s *ConversationService) DeleteConversation(id uint) error {
	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	if err := s.db.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&conv).Error
}

// isUniqueViolation detects a unique constraint failure from sqlite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
