package oauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Errors returned by providers
var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrNoRefreshToken  = errors.New("no refresh token available")
)

// ServerDefaults are the mail server settings a provider implies
type ServerDefaults struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// Token is the provider-agnostic token material persisted per account
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider abstracts one OAuth2 identity provider (Google, Microsoft)
type Provider interface {
	// Name returns the provider identifier stored on accounts
	Name() string

	// AuthCodeURL builds the authorization URL for the given state token
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code string) (*Token, error)

	// Refresh obtains a new access token using the refresh token.
	// The returned token keeps the old refresh token if the provider
	// does not rotate it.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// UserEmail resolves the mailbox address behind an access token
	UserEmail(ctx context.Context, accessToken string) (string, error)

	// Defaults returns the IMAP/SMTP server settings for this provider
	Defaults() ServerDefaults
}

// Registry holds the configured providers by name
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers, skipping nil entries
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// fromOAuth2Token converts an oauth2.Token, falling back to the previous
// refresh token when the provider did not rotate it
func fromOAuth2Token(tok *oauth2.Token, previousRefresh string) *Token {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Expiry:       tok.Expiry,
	}
}
