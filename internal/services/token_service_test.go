package services

import (
	"errors"
	"testing"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/oauth"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/oauth2"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	service := &TokenService{now: fixedClock(now)}

	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"zero expiry counts as expired", time.Time{}, true},
		{"already expired", now.Add(-time.Hour), true},
		{"expires within the lookahead", now.Add(refreshLookahead - time.Second), true},
		{"expires exactly at the lookahead", now.Add(refreshLookahead), false},
		{"expires just past the lookahead", now.Add(refreshLookahead + time.Second), false},
		{"expires well past the lookahead", now.Add(time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account := &models.EmailAccount{TokenExpiresAt: tc.expiresAt}
			if got := service.needsRefresh(account); got != tc.want {
				t.Errorf("needsRefresh with expiry %v = %v, want %v", tc.expiresAt, got, tc.want)
			}
		})
	}
}

func TestProperty_NeedsRefreshBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	service := &TokenService{now: fixedClock(now)}

	// Tokens expiring at or after the lookahead window are left alone
	properties.Property("tokens_outside_window_are_fresh", prop.ForAll(
		func(extraSeconds uint16) bool {
			expiry := now.Add(refreshLookahead + time.Duration(extraSeconds)*time.Second)
			account := &models.EmailAccount{TokenExpiresAt: expiry}
			return !service.needsRefresh(account)
		},
		gen.UInt16(),
	))

	// Tokens expiring strictly inside the window always refresh
	properties.Property("tokens_inside_window_refresh", prop.ForAll(
		func(offsetSeconds uint16) bool {
			offset := time.Duration(offsetSeconds) * time.Second
			if offset >= refreshLookahead {
				offset = refreshLookahead - time.Second
			}
			account := &models.EmailAccount{TokenExpiresAt: now.Add(offset)}
			return service.needsRefresh(account)
		},
		gen.UInt16(),
	))

	properties.TestingRun(t)
}

func TestRefreshRejectsBasicAuthAccount(t *testing.T) {
	service := &TokenService{now: time.Now}
	account := &models.EmailAccount{AuthType: models.AuthTypeBasic}

	if err := service.Refresh(nil, account); err != ErrNotOAuthAccount {
		t.Errorf("expected ErrNotOAuthAccount, got %v", err)
	}
}

func TestAccessTokenSkipsBasicAuthAccount(t *testing.T) {
	service := &TokenService{now: time.Now}
	account := &models.EmailAccount{AuthType: models.AuthTypeBasic}

	if _, ok := service.AccessToken(nil, account); ok {
		t.Error("basic-auth accounts must not produce access tokens")
	}
}

func TestIsRevokedGrant(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"missing refresh token", oauth.ErrNoRefreshToken, true},
		{"invalid_grant response", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, true},
		{"other oauth error", &oauth2.RetrieveError{ErrorCode: "temporarily_unavailable"}, false},
		{"invalid_grant in message", errors.New(`oauth2: "invalid_grant" token revoked`), true},
		{"network error", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRevokedGrant(tc.err); got != tc.want {
				t.Errorf("isRevokedGrant(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
