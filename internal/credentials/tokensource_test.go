package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type funcTokenSource func() (*oauth2.Token, error)

func (f funcTokenSource) Token() (*oauth2.Token, error) { return f() }

func TestNewTokenSourceReturnsCurrentTokenWithoutRefresh(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")

	creds := &ClientCredentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob"},
	}
	tok := &Token{
		AccessToken:  "live-access-token",
		RefreshToken: "refresh-token",
		ExpiryDate:   time.Now().Add(time.Hour).UnixMilli(),
		Scope:        "gmail.readonly",
		TokenType:    "Bearer",
	}

	ts := NewTokenSource(context.Background(), creds, tok, tokenPath)
	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "live-access-token", got.AccessToken)
}

func TestPersistingTokenSourceWritesChangedTokenOnce(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")

	calls := 0
	pts := &persistingTokenSource{
		base: funcTokenSource(func() (*oauth2.Token, error) {
			calls++
			return &oauth2.Token{AccessToken: "refreshed-token", Expiry: time.Now().Add(time.Hour)}, nil
		}),
		path:      tokenPath,
		scope:     "gmail.readonly",
		tokenType: "Bearer",
	}

	_, err := pts.Token()
	require.NoError(t, err)
	_, err = pts.Token()
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "the underlying source is still called every time")

	raw, err := os.ReadFile(tokenPath)
	require.NoError(t, err)
	var saved Token
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "refreshed-token", saved.AccessToken)
	assert.Equal(t, "gmail.readonly", saved.Scope)
}
