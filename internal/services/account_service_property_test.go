package services

import (
	"testing"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestAccountService(t *testing.T) (*AccountService, func()) {
	db, cleanup := setupTestDB(t)
	logService := NewLogServiceWithLevel(db, "ERROR")
	encryptionKey := []byte("test-encryption-key-32-bytes!!")
	return NewAccountService(db, encryptionKey, logService), cleanup
}

func TestProperty_SecretRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// A stored password decrypts back to what was stored
	properties.Property("password_survives_storage", prop.ForAll(
		func(password string) bool {
			service, cleanup := newTestAccountService(t)
			defer cleanup()

			account, err := service.CreateAccount(CreateAccountInput{
				EmailAddress: "roundtrip@example.com",
				IMAPHost:     "imap.test.com",
				IMAPPort:     993,
				SMTPHost:     "smtp.test.com",
				SMTPPort:     587,
				Username:     "roundtrip@example.com",
				Password:     password,
				UseSSL:       true,
			})
			if err != nil {
				return false
			}

			// The plaintext never touches the row
			if account.PasswordEncrypted == password {
				return false
			}

			decrypted, err := service.GetDecryptedPassword(account)
			if err != nil {
				return false
			}
			return decrypted == password
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	// OAuth token pairs survive storage the same way
	properties.Property("oauth_tokens_survive_storage", prop.ForAll(
		func(access, refresh string) bool {
			service, cleanup := newTestAccountService(t)
			defer cleanup()

			account, err := service.UpsertOAuthAccount(&models.EmailAccount{
				EmailAddress:   "oauth@example.com",
				IMAPHost:       "imap.gmail.com",
				IMAPPort:       993,
				SMTPHost:       "smtp.gmail.com",
				SMTPPort:       587,
				Username:       "oauth@example.com",
				UseSSL:         true,
				Provider:       "google",
				TokenExpiresAt: time.Now().Add(time.Hour),
			}, access, refresh)
			if err != nil {
				return false
			}

			gotAccess, gotRefresh, err := service.GetDecryptedOAuthTokens(account)
			if err != nil {
				return false
			}
			return gotAccess == access && gotRefresh == refresh
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}

func TestProperty_AccountActiveToggle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// Setting the same active state repeatedly keeps it unchanged
	properties.Property("set_active_is_idempotent", prop.ForAll(
		func(target bool) bool {
			service, cleanup := newTestAccountService(t)
			defer cleanup()

			account, err := service.CreateAccount(CreateAccountInput{
				EmailAddress: "toggle@example.com",
				IMAPHost:     "imap.test.com",
				IMAPPort:     993,
				SMTPHost:     "smtp.test.com",
				SMTPPort:     587,
				Username:     "toggle@example.com",
				Password:     "secret",
				UseSSL:       true,
			})
			if err != nil {
				return false
			}

			for i := 0; i < 3; i++ {
				updated, err := service.SetAccountActive(account.ID, target)
				if err != nil {
					return false
				}
				if updated.Active != target {
					return false
				}
			}

			final, err := service.GetAccountByID(account.ID)
			if err != nil {
				return false
			}
			return final.Active == target
		},
		gen.Bool(),
	))

	// Inactive accounts drop out of the polling list
	properties.Property("inactive_accounts_are_not_polled", prop.ForAll(
		func(active bool) bool {
			service, cleanup := newTestAccountService(t)
			defer cleanup()

			account, err := service.CreateAccount(CreateAccountInput{
				EmailAddress: "polled@example.com",
				IMAPHost:     "imap.test.com",
				IMAPPort:     993,
				SMTPHost:     "smtp.test.com",
				SMTPPort:     587,
				Username:     "polled@example.com",
				Password:     "secret",
				UseSSL:       true,
			})
			if err != nil {
				return false
			}

			if _, err := service.SetAccountActive(account.ID, active); err != nil {
				return false
			}

			activeAccounts, err := service.ListActiveAccounts()
			if err != nil {
				return false
			}

			found := false
			for _, a := range activeAccounts {
				if a.ID == account.ID {
					found = true
				}
			}
			return found == active
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCreateAccountValidation(t *testing.T) {
	service, cleanup := newTestAccountService(t)
	defer cleanup()

	_, err := service.CreateAccount(CreateAccountInput{
		EmailAddress: "",
		IMAPHost:     "imap.test.com",
		SMTPHost:     "smtp.test.com",
		Username:     "user",
		Password:     "secret",
	})
	if err != ErrInvalidAccountData {
		t.Errorf("expected ErrInvalidAccountData, got %v", err)
	}
}

func TestCreateAccountRejectsDuplicateAddress(t *testing.T) {
	service, cleanup := newTestAccountService(t)
	defer cleanup()

	input := CreateAccountInput{
		EmailAddress: "dup@example.com",
		IMAPHost:     "imap.test.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.test.com",
		SMTPPort:     587,
		Username:     "dup@example.com",
		Password:     "secret",
		UseSSL:       true,
	}

	if _, err := service.CreateAccount(input); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := service.CreateAccount(input); err != ErrAccountAlreadyExists {
		t.Errorf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestUpsertOAuthAccountSwitchesAuthType(t *testing.T) {
	service, cleanup := newTestAccountService(t)
	defer cleanup()

	account, err := service.CreateAccount(CreateAccountInput{
		EmailAddress: "switch@example.com",
		IMAPHost:     "imap.test.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.test.com",
		SMTPPort:     587,
		Username:     "switch@example.com",
		Password:     "secret",
		UseSSL:       true,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if account.AuthType != models.AuthTypeBasic {
		t.Fatalf("expected basic auth, got %q", account.AuthType)
	}

	upserted, err := service.UpsertOAuthAccount(&models.EmailAccount{
		EmailAddress:   "switch@example.com",
		Provider:       "google",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}, "access-token", "refresh-token")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if upserted.ID != account.ID {
		t.Errorf("upsert created a second account")
	}
	if upserted.AuthType != models.AuthTypeOAuth2 {
		t.Errorf("expected oauth2 auth, got %q", upserted.AuthType)
	}
}

func TestDowngradeToBasicAuth(t *testing.T) {
	service, cleanup := newTestAccountService(t)
	defer cleanup()

	account, err := service.UpsertOAuthAccount(&models.EmailAccount{
		EmailAddress:   "revoked@example.com",
		IMAPHost:       "imap.gmail.com",
		IMAPPort:       993,
		SMTPHost:       "smtp.gmail.com",
		SMTPPort:       587,
		Username:       "revoked@example.com",
		UseSSL:         true,
		Provider:       "google",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}, "access-token", "refresh-token")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := service.DowngradeToBasicAuth(account.ID); err != nil {
		t.Fatalf("downgrade failed: %v", err)
	}

	downgraded, err := service.GetAccountByID(account.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if downgraded.AuthType != models.AuthTypeBasic {
		t.Errorf("expected basic auth after downgrade, got %q", downgraded.AuthType)
	}
	if downgraded.AccessTokenEncrypted != "" || downgraded.RefreshTokenEncrypted != "" {
		t.Error("tokens must be cleared on downgrade")
	}
}
