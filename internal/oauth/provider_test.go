package oauth

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestRegistrySkipsUnconfiguredProviders(t *testing.T) {
	// Providers come back nil when their credentials are absent
	registry := NewRegistry(NewGoogleProvider("", "", "http://localhost:8080"), nil)

	if names := registry.Names(); len(names) != 0 {
		t.Errorf("expected empty registry, got %v", names)
	}
	if _, err := registry.Get("google"); err != ErrUnknownProvider {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistryResolvesConfiguredProviders(t *testing.T) {
	registry := NewRegistry(
		NewGoogleProvider("client-id", "client-secret", "http://localhost:8080"),
		NewMicrosoftProvider("client-id", "client-secret", "common", "http://localhost:8080"),
	)

	for _, name := range []string{"google", "microsoft"} {
		p, err := registry.Get(name)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("provider registered under %q reports name %q", name, p.Name())
		}

		defaults := p.Defaults()
		if defaults.IMAPHost == "" || defaults.IMAPPort == 0 {
			t.Errorf("%s has no IMAP defaults", name)
		}
		if defaults.SMTPHost == "" || defaults.SMTPPort == 0 {
			t.Errorf("%s has no SMTP defaults", name)
		}

		url := p.AuthCodeURL("state-token")
		if url == "" {
			t.Errorf("%s produced an empty authorization URL", name)
		}
	}
}

func TestFromOAuth2TokenKeepsPreviousRefreshToken(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	// Providers that rotate the refresh token pass the new one through
	rotated := fromOAuth2Token(&oauth2.Token{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		Expiry:       expiry,
	}, "old-refresh")
	if rotated.RefreshToken != "new-refresh" {
		t.Errorf("rotated refresh token lost: %q", rotated.RefreshToken)
	}

	// Providers that do not rotate keep the stored refresh token alive
	kept := fromOAuth2Token(&oauth2.Token{
		AccessToken: "new-access",
		Expiry:      expiry,
	}, "old-refresh")
	if kept.RefreshToken != "old-refresh" {
		t.Errorf("previous refresh token must be kept, got %q", kept.RefreshToken)
	}
	if kept.AccessToken != "new-access" || !kept.Expiry.Equal(expiry) {
		t.Error("access token and expiry must pass through unchanged")
	}
}
