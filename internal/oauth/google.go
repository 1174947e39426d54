package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider implements Provider for Gmail accounts
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a Google provider. Returns nil when the client
// credentials are not configured so the registry skips it.
func NewGoogleProvider(clientID, clientSecret, redirectBaseURL string) Provider {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectBaseURL + "/api/oauth/google/callback",
			Scopes: []string{
				"https://mail.google.com/",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// Name returns the provider identifier
func (p *GoogleProvider) Name() string {
	return "google"
}

// AuthCodeURL builds the authorization URL, requesting offline access so
// Google issues a refresh token
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}
	return fromOAuth2Token(tok, ""), nil
}

// Refresh obtains a new access token using the refresh token
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}
	return fromOAuth2Token(tok, refreshToken), nil
}

// UserEmail resolves the mailbox address behind an access token
func (p *GoogleProvider) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", err
	}
	return userInfo.Email, nil
}

// Defaults returns the Gmail server settings
func (p *GoogleProvider) Defaults() ServerDefaults {
	return ServerDefaults{
		IMAPHost: "imap.gmail.com",
		IMAPPort: 993,
		SMTPHost: "smtp.gmail.com",
		SMTPPort: 587,
	}
}
