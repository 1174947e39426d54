package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const microsoftProfileURL = "https://graph.microsoft.com/v1.0/me"

// MicrosoftProvider implements Provider for Outlook/Office365 accounts
type MicrosoftProvider struct {
	config     *oauth2.Config
	profileURL string
}

// NewMicrosoftProvider creates a Microsoft provider for the given tenant.
// Returns nil when the client credentials are not configured.
func NewMicrosoftProvider(clientID, clientSecret, tenant, redirectBaseURL string) Provider {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	if tenant == "" {
		tenant = "common"
	}
	return &MicrosoftProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectBaseURL + "/api/oauth/microsoft/callback",
			Scopes: []string{
				"https://outlook.office.com/IMAP.AccessAsUser.All",
				"https://outlook.office.com/SMTP.Send",
				"offline_access",
				"User.Read",
			},
			Endpoint: microsoft.AzureADEndpoint(tenant),
		},
		profileURL: microsoftProfileURL,
	}
}

// Name returns the provider identifier
func (p *MicrosoftProvider) Name() string {
	return "microsoft"
}

// AuthCodeURL builds the authorization URL. offline_access in the scope
// list makes Azure AD issue a refresh token.
func (p *MicrosoftProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens
func (p *MicrosoftProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("microsoft token exchange failed: %w", err)
	}
	return fromOAuth2Token(tok, ""), nil
}

// Refresh obtains a new access token using the refresh token
func (p *MicrosoftProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("microsoft token refresh failed: %w", err)
	}
	return fromOAuth2Token(tok, refreshToken), nil
}

// UserEmail resolves the mailbox address via Microsoft Graph
func (p *MicrosoftProvider) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
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
		return "", fmt.Errorf("failed to get user profile: status %d", resp.StatusCode)
	}

	var profile struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", err
	}
	if profile.Mail != "" {
		return profile.Mail, nil
	}
	return profile.UserPrincipalName, nil
}

// Defaults returns the Outlook server settings
func (p *MicrosoftProvider) Defaults() ServerDefaults {
	return ServerDefaults{
		IMAPHost: "outlook.office365.com",
		IMAPPort: 993,
		SMTPHost: "smtp.office365.com",
		SMTPPort: 587,
	}
}
