package services

import (
	"fmt"
	"os"
	"testing"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// Create a temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	// Open database
	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.EmailAccount{},
		&models.Conversation{},
		&models.Message{},
		&models.Log{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

func createTestAccount(t *testing.T, db *gorm.DB, email string) *models.EmailAccount {
	account := &models.EmailAccount{
		EmailAddress: email,
		IMAPHost:     "imap.test.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.test.com",
		SMTPPort:     587,
		Username:     email,
		UseSSL:       true,
		AuthType:     models.AuthTypeBasic,
		Active:       true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}

func TestProperty_MessageIngestionIdempotency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// Ingesting the same mail Message-ID twice stores exactly one turn
	// and the second call resolves to the stored row
	properties.Property("duplicate_message_id_resolves_to_existing", prop.ForAll(
		func(content string, localPart string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			logService := NewLogServiceWithLevel(db, "ERROR")
			service := NewConversationService(db, logService)

			account := createTestAccount(t, db, "owner@example.com")
			conv, err := service.GetOrCreate(account.ID, "alice@example.com")
			if err != nil {
				return false
			}

			messageID := fmt.Sprintf("<%s@example.com>", localPart)

			first, created, err := service.AddUserMessage(conv, content, "[AI_REQUEST] hello", messageID)
			if err != nil || !created {
				return false
			}

			second, created, err := service.AddUserMessage(conv, "different body", "[AI_REQUEST] hello", messageID)
			if err != nil || created {
				return false
			}
			if second.ID != first.ID || second.Content != content {
				return false
			}

			var count int64
			db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
			return count == 1
		},
		gen.AlphaString(),
		gen.Identifier(),
	))

	// A message without a Message-ID is never treated as a duplicate
	properties.Property("missing_message_id_always_ingests", prop.ForAll(
		func(content string, repeats uint8) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			logService := NewLogServiceWithLevel(db, "ERROR")
			service := NewConversationService(db, logService)

			account := createTestAccount(t, db, "owner@example.com")
			conv, err := service.GetOrCreate(account.ID, "alice@example.com")
			if err != nil {
				return false
			}

			n := int(repeats%3) + 2
			for i := 0; i < n; i++ {
				if _, created, err := service.AddUserMessage(conv, content, "subject", ""); err != nil || !created {
					return false
				}
			}

			var count int64
			db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
			return count == int64(n)
		},
		gen.AlphaString(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestProperty_ConversationUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// Repeated GetOrCreate for the same correspondent returns one thread,
	// however the address is cased
	properties.Property("one_thread_per_account_and_participant", prop.ForAll(
		func(localPart string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			logService := NewLogServiceWithLevel(db, "ERROR")
			service := NewConversationService(db, logService)

			account := createTestAccount(t, db, "owner@example.com")

			lower := localPart + "@example.com"
			upper := localPart + "@EXAMPLE.COM"

			first, err := service.GetOrCreate(account.ID, lower)
			if err != nil {
				return false
			}
			second, err := service.GetOrCreate(account.ID, upper)
			if err != nil {
				return false
			}
			third, err := service.GetOrCreate(account.ID, "  "+lower+"  ")
			if err != nil {
				return false
			}

			if first.ID != second.ID || first.ID != third.ID {
				return false
			}

			var count int64
			db.Model(&models.Conversation{}).Where("account_id = ?", account.ID).Count(&count)
			return count == 1
		},
		gen.Identifier(),
	))

	// Different accounts keep separate threads with the same correspondent
	properties.Property("threads_are_scoped_to_the_account", prop.ForAll(
		func(localPart string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			logService := NewLogServiceWithLevel(db, "ERROR")
			service := NewConversationService(db, logService)

			first := createTestAccount(t, db, "one@example.com")
			second := createTestAccount(t, db, "two@example.com")

			participant := localPart + "@example.com"

			convA, err := service.GetOrCreate(first.ID, participant)
			if err != nil {
				return false
			}
			convB, err := service.GetOrCreate(second.ID, participant)
			if err != nil {
				return false
			}

			return convA.ID != convB.ID
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestProperty_HistoryOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// History alternates roles in the order turns were recorded
	properties.Property("history_is_chronological", prop.ForAll(
		func(turns uint8) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			logService := NewLogServiceWithLevel(db, "ERROR")
			service := NewConversationService(db, logService)

			account := createTestAccount(t, db, "owner@example.com")
			conv, err := service.GetOrCreate(account.ID, "alice@example.com")
			if err != nil {
				return false
			}

			n := int(turns%5) + 1
			for i := 0; i < n; i++ {
				msgID := fmt.Sprintf("<turn-%d@example.com>", i)
				if _, _, err := service.AddUserMessage(conv, fmt.Sprintf("question %d", i), "subject", msgID); err != nil {
					return false
				}
				if _, err := service.AddAssistantMessage(conv, fmt.Sprintf("answer %d", i), "Re: subject"); err != nil {
					return false
				}
			}

			history, err := service.History(conv.ID)
			if err != nil {
				return false
			}
			if len(history) != n*2 {
				return false
			}

			for i := 0; i < n; i++ {
				if history[i*2].Role != models.RoleUser {
					return false
				}
				if history[i*2].Content != fmt.Sprintf("question %d", i) {
					return false
				}
				if history[i*2+1].Role != models.RoleAssistant {
					return false
				}
				if history[i*2+1].Content != fmt.Sprintf("answer %d", i) {
					return false
				}
			}
			return true
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestHistoryLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logService := NewLogServiceWithLevel(db, "ERROR")
	service := NewConversationService(db, logService)

	account := createTestAccount(t, db, "owner@example.com")
	conv, err := service.GetOrCreate(account.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	total := historyLimit + 10
	for i := 0; i < total; i++ {
		msgID := fmt.Sprintf("<limit-%d@example.com>", i)
		if _, _, err := service.AddUserMessage(conv, fmt.Sprintf("message %d", i), "subject", msgID); err != nil {
			t.Fatalf("AddUserMessage failed: %v", err)
		}
	}

	history, err := service.History(conv.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(history) != historyLimit {
		t.Fatalf("expected %d turns, got %d", historyLimit, len(history))
	}

	// The window keeps the newest turns
	if history[len(history)-1].Content != fmt.Sprintf("message %d", total-1) {
		t.Errorf("last turn should be the newest message, got %q", history[len(history)-1].Content)
	}
	if history[0].Content != fmt.Sprintf("message %d", total-historyLimit) {
		t.Errorf("first turn should be the oldest kept message, got %q", history[0].Content)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logService := NewLogServiceWithLevel(db, "ERROR")
	service := NewConversationService(db, logService)

	account := createTestAccount(t, db, "owner@example.com")
	conv, err := service.GetOrCreate(account.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, _, err := service.AddUserMessage(conv, "hello", "subject", "<del-1@example.com>"); err != nil {
		t.Fatalf("AddUserMessage failed: %v", err)
	}
	if _, err := service.AddAssistantMessage(conv, "hi there", "Re: subject"); err != nil {
		t.Fatalf("AddAssistantMessage failed: %v", err)
	}

	if err := service.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	var count int64
	db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected messages to be removed, %d remain", count)
	}

	if _, err := service.GetConversation(conv.ID); err != ErrConversationNotFound {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}
