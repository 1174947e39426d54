package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/oauth"
	"golang.org/x/oauth2"
)

// refreshLookahead is how far before expiry a token counts as stale.
const refreshLookahead = 5 * time.Minute

var (
	// ErrNotOAuthAccount indicates the account uses password authentication
	ErrNotOAuthAccount = errors.New("account does not use oauth2 authentication")
	// ErrTokenRevoked indicates the refresh token was revoked by the provider
	ErrTokenRevoked = errors.New("refresh token revoked")
)

// TokenService keeps OAuth2 access tokens fresh for polling and sending
type TokenService struct {
	accountService *AccountService
	registry       *oauth.Registry
	logService     *LogService
	now            func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(accountService *AccountService, registry *oauth.Registry, logService *LogService) *TokenService {
	return &TokenService{
		accountService: accountService,
		registry:       registry,
		logService:     logService,
		now:            time.Now,
	}
}

// needsRefresh reports whether the stored token expires strictly within the
// lookahead window. A token expiring exactly at the window's edge is still
// usable. A zero expiry is treated as expired.
func (s *TokenService) needsRefresh(account *models.EmailAccount) bool {
	if account.TokenExpiresAt.IsZero() {
		return true
	}
	return s.now().Add(refreshLookahead).After(account.TokenExpiresAt)
}

// AccessToken returns a usable access token for the account, refreshing it
// first when it expires within the lookahead window. The bool is false when
// no usable token could be obtained; the account should be skipped for this
// cycle rather than treated as failed.
func (s *TokenService) AccessToken(ctx context.Context, account *models.EmailAccount) (string, bool) {
	if !account.IsOAuth2() {
		return "", false
	}

	if !s.needsRefresh(account) {
		access, _, err := s.accountService.GetDecryptedOAuthTokens(account)
		if err != nil || access == "" {
			return "", false
		}
		return access, true
	}

	if err := s.Refresh(ctx, account); err != nil {
		return "", false
	}

	// Reload so callers see the persisted token state
	fresh, err := s.accountService.GetAccountByID(account.ID)
	if err != nil {
		return "", false
	}
	*account = *fresh

	access, _, err := s.accountService.GetDecryptedOAuthTokens(account)
	if err != nil || access == "" {
		return "", false
	}
	return access, true
}

// Refresh forces a token refresh for the account and persists the result.
// A revoked refresh token downgrades the account to password authentication
// so the operator notices instead of the poller retrying forever.
func (s *TokenService) Refresh(ctx context.Context, account *models.EmailAccount) error {
	if !account.IsOAuth2() {
		return ErrNotOAuthAccount
	}

	provider, err := s.registry.Get(account.Provider)
	if err != nil {
		s.logService.LogTokenRefresh(account.ID, account.Provider, err)
		return err
	}

	_, refreshToken, err := s.accountService.GetDecryptedOAuthTokens(account)
	if err != nil {
		s.logService.LogTokenRefresh(account.ID, account.Provider, err)
		return err
	}

	token, err := provider.Refresh(ctx, refreshToken)
	if err != nil {
		if isRevokedGrant(err) {
			s.logService.LogTokenRefresh(account.ID, account.Provider, ErrTokenRevoked)
			if dgErr := s.accountService.DowngradeToBasicAuth(account.ID); dgErr != nil {
				return dgErr
			}
			return ErrTokenRevoked
		}
		s.logService.LogTokenRefresh(account.ID, account.Provider, err)
		return err
	}

	if err := s.accountService.UpdateOAuthTokens(account.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		return err
	}

	s.logService.LogTokenRefresh(account.ID, account.Provider, nil)
	return nil
}

// RefreshExpiring refreshes tokens for every active OAuth account whose
// token falls inside the lookahead window. Errors are logged per account
// and do not stop the sweep.
func (s *TokenService) RefreshExpiring(ctx context.Context) {
	accounts, err := s.accountService.ListActiveAccounts()
	if err != nil {
		return
	}

	for i := range accounts {
		account := &accounts[i]
		if !account.IsOAuth2() || !s.needsRefresh(account) {
			continue
		}
		_ = s.Refresh(ctx, account)
	}
}

// isRevokedGrant detects the provider telling us the grant is gone for good
func isRevokedGrant(err error) bool {
	if errors.Is(err, oauth.ErrNoRefreshToken) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode == "invalid_grant"
	}
	return strings.Contains(err.Error(), "invalid_grant")
}
