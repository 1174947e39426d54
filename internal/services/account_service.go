package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound indicates the email account was not found
	ErrAccountNotFound = errors.New("email account not found")
	// ErrAccountAlreadyExists indicates the email account already exists
	ErrAccountAlreadyExists = errors.New("email account already exists")
	// ErrInvalidAccountData indicates invalid account data
	ErrInvalidAccountData = errors.New("invalid account data")
	// ErrEncryptionFailed indicates secret encryption failed
	ErrEncryptionFailed = errors.New("secret encryption failed")
	// ErrDecryptionFailed indicates secret decryption failed
	ErrDecryptionFailed = errors.New("secret decryption failed")
)

// AccountService handles email account business logic and secret storage
type AccountService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
	logService    *LogService
}

// NewAccountService creates a new AccountService instance
func NewAccountService(db *gorm.DB, encryptionKey []byte, logService *LogService) *AccountService {
	// Ensure key is 32 bytes for AES-256
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &AccountService{
		db:            db,
		encryptionKey: key,
		logService:    logService,
	}
}

// encryptSecret encrypts a secret using AES-256-GCM
func (s *AccountService) encryptSecret(secret string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts a secret using AES-256-GCM
func (s *AccountService) decryptSecret(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// CreateAccountInput represents the input for creating a basic-auth account
type CreateAccountInput struct {
	EmailAddress string
	IMAPHost     string
	IMAPPort     int
	SMTPHost     string
	SMTPPort     int
	Username     string
	Password     string
	UseSSL       bool
}

// CreateAccount creates a new password-authenticated email account
func (s *AccountService) CreateAccount(input CreateAccountInput) (*models.EmailAccount, error) {
	if input.EmailAddress == "" || input.IMAPHost == "" || input.SMTPHost == "" || input.Username == "" || input.Password == "" {
		return nil, ErrInvalidAccountData
	}

	var existing models.EmailAccount
	if err := s.db.Where("email_address = ?", input.EmailAddress).First(&existing).Error; err == nil {
		return nil, ErrAccountAlreadyExists
	}

	encryptedPassword, err := s.encryptSecret(input.Password)
	if err != nil {
		return nil, err
	}

	account := &models.EmailAccount{
		EmailAddress:      input.EmailAddress,
		IMAPHost:          input.IMAPHost,
		IMAPPort:          input.IMAPPort,
		SMTPHost:          input.SMTPHost,
		SMTPPort:          input.SMTPPort,
		Username:          input.Username,
		PasswordEncrypted: encryptedPassword,
		UseSSL:            input.UseSSL,
		AuthType:          models.AuthTypeBasic,
		Active:            true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, err
	}

	s.logService.LogAccountCreated(account.ID, account.EmailAddress)

	return account, nil
}

// GetAccountByID retrieves an email account by ID
func (s *AccountService) GetAccountByID(id uint) (*models.EmailAccount, error) {
	var account models.EmailAccount
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountByEmail retrieves an email account by its address
func (s *AccountService) GetAccountByEmail(email string) (*models.EmailAccount, error) {
	var account models.EmailAccount
	if err := s.db.Where("email_address = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListAccounts retrieves all email accounts
func (s *AccountService) ListAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	if err := s.db.Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListActiveAccounts retrieves all active email accounts
func (s *AccountService) ListActiveAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	if err := s.db.Where("active = ?", true).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateAccountInput represents the input for updating an email account
type UpdateAccountInput struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	Username string
	Password string // only updated if not empty
	UseSSL   *bool  // pointer distinguishes false from unset
}

// UpdateAccount updates an email account
func (s *AccountService) UpdateAccount(id uint, input UpdateAccountInput) (*models.EmailAccount, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return nil, err
	}

	if input.IMAPHost != "" {
		account.IMAPHost = input.IMAPHost
	}
	if input.IMAPPort > 0 {
		account.IMAPPort = input.IMAPPort
	}
	if input.SMTPHost != "" {
		account.SMTPHost = input.SMTPHost
	}
	if input.SMTPPort > 0 {
		account.SMTPPort = input.SMTPPort
	}
	if input.Username != "" {
		account.Username = input.Username
	}
	if input.UseSSL != nil {
		account.UseSSL = *input.UseSSL
	}

	if input.Password != "" {
		encryptedPassword, err := s.encryptSecret(input.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordEncrypted = encryptedPassword
	}

	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	s.logService.LogAccountUpdated(account.ID, account.EmailAddress)

	return account, nil
}

// DeleteAccount deletes an email account
func (s *AccountService) DeleteAccount(id uint) error {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return err
	}

	email := account.EmailAddress

	if err := s.db.Delete(account).Error; err != nil {
		return err
	}

	s.logService.LogAccountDeleted(id, email)

	return nil
}

// SetAccountActive sets the active status of an account
func (s *AccountService) SetAccountActive(id uint, active bool) (*models.EmailAccount, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return nil, err
	}

	account.Active = active

	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	s.logService.LogAccountStatusChanged(account.ID, account.EmailAddress, active)

	return account, nil
}

// GetDecryptedPassword retrieves the decrypted password for an account
func (s *AccountService) GetDecryptedPassword(account *models.EmailAccount) (string, error) {
	return s.decryptSecret(account.PasswordEncrypted)
}

// UpsertOAuthAccount creates or updates an account obtained via an OAuth flow.
// Existing accounts with the same address are switched to OAuth2 auth and get
// fresh tokens; server settings are only applied on first creation.
func (s *AccountService) UpsertOAuthAccount(account *models.EmailAccount, accessToken, refreshToken string) (*models.EmailAccount, error) {
	encryptedAccess, err := s.encryptSecret(accessToken)
	if err != nil {
		return nil, err
	}
	encryptedRefresh, err := s.encryptSecret(refreshToken)
	if err != nil {
		return nil, err
	}

	var existing models.EmailAccount
	if err := s.db.Where("email_address = ?", account.EmailAddress).First(&existing).Error; err == nil {
		existing.AuthType = models.AuthTypeOAuth2
		existing.Provider = account.Provider
		existing.AccessTokenEncrypted = encryptedAccess
		existing.RefreshTokenEncrypted = encryptedRefresh
		existing.TokenExpiresAt = account.TokenExpiresAt
		existing.Active = true

		if err := s.db.Save(&existing).Error; err != nil {
			return nil, err
		}
		s.logService.LogAccountUpdated(existing.ID, existing.EmailAddress)
		return &existing, nil
	}

	account.AuthType = models.AuthTypeOAuth2
	account.AccessTokenEncrypted = encryptedAccess
	account.RefreshTokenEncrypted = encryptedRefresh
	account.Active = true

	if err := s.db.Create(account).Error; err != nil {
		return nil, err
	}

	s.logService.LogAccountCreated(account.ID, account.EmailAddress)

	return account, nil
}

// GetDecryptedOAuthTokens returns the decrypted OAuth tokens for an account
func (s *AccountService) GetDecryptedOAuthTokens(account *models.EmailAccount) (accessToken, refreshToken string, err error) {
	if account.AccessTokenEncrypted != "" {
		accessToken, err = s.decryptSecret(account.AccessTokenEncrypted)
		if err != nil {
			return "", "", err
		}
	}
	if account.RefreshTokenEncrypted != "" {
		refreshToken, err = s.decryptSecret(account.RefreshTokenEncrypted)
		if err != nil {
			return "", "", err
		}
	}
	return accessToken, refreshToken, nil
}

// UpdateOAuthTokens updates the OAuth tokens for an account
func (s *AccountService) UpdateOAuthTokens(accountID uint, accessToken, refreshToken string, expiry time.Time) error {
	updates := make(map[string]interface{})

	if accessToken != "" {
		encryptedAccess, err := s.encryptSecret(accessToken)
		if err != nil {
			return err
		}
		updates["access_token_encrypted"] = encryptedAccess
	}

	if refreshToken != "" {
		encryptedRefresh, err := s.encryptSecret(refreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token_encrypted"] = encryptedRefresh
	}

	if !expiry.IsZero() {
		updates["token_expires_at"] = expiry
	}

	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).Updates(updates).Error
}

// DowngradeToBasicAuth switches an account back to password authentication
// and clears the stored OAuth tokens. Used when a refresh token is revoked.
func (s *AccountService) DowngradeToBasicAuth(accountID uint) error {
	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).Updates(map[string]interface{}{
		"auth_type":               models.AuthTypeBasic,
		"access_token_encrypted":  "",
		"refresh_token_encrypted": "",
	}).Error
}
