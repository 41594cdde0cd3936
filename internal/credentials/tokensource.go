package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func expiryFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// NewTokenSource builds an oauth2.TokenSource from a loaded client-secret
// file and cached token, the way the teacher's NewGmailClient turns the
// same two pieces into the http.Client gmail.NewService needs
// (internal/email/gmail.go). The returned source persists every refreshed
// token back to tokenPath via SaveToken, so a renewed access token
// survives the next process restart the same way the teacher's token file
// does.
func NewTokenSource(ctx context.Context, creds *ClientCredentials, tok *Token, tokenPath string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  firstOrEmpty(creds.RedirectURIs),
	}

	base := cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiryFromMillis(tok.ExpiryDate),
	})

	return &persistingTokenSource{base: base, path: tokenPath, scope: tok.Scope, tokenType: tok.TokenType}
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// persistingTokenSource wraps an oauth2.TokenSource and writes every
// distinct access token back to the cached token file, so token refreshes
// are not silently lost between polls.
type persistingTokenSource struct {
	base      oauth2.TokenSource
	path      string
	scope     string
	tokenType string

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken

	_ = SaveToken(p.path, &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiryDate:   tok.Expiry.UnixMilli(),
		Scope:        p.scope,
		TokenType:    p.tokenType,
	})

	return tok, nil
}
