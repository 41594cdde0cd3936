package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// Token is the cached OAuth token file contract consumed and refreshed by
// the poller (spec §6 "Token file").
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiryDate   int64  `json:"expiry_date"` // epoch milliseconds
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

const expiryLeadSeconds = 300

// LoadToken reads a cached token file.
func LoadToken(path string) (*Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, capturebridge.New(capturebridge.CodeFilePermission, "read token file", err)
		}
		return nil, capturebridge.New(capturebridge.CodeFilePermission, "read token file", err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, capturebridge.New(capturebridge.CodeFileParseError, "parse token file", err)
	}
	return &tok, nil
}

// SaveToken writes tok atomically (temp file in the same directory, then
// rename) with mode 0600, preserved across every refresh.
func SaveToken(path string, tok *Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return capturebridge.New(capturebridge.CodeFileParseError, "marshal token", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return capturebridge.New(capturebridge.CodeFilePermission, "create token temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return capturebridge.New(capturebridge.CodeFilePermission, "write token temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return capturebridge.New(capturebridge.CodeFilePermission, "sync token temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return capturebridge.New(capturebridge.CodeFilePermission, "close token temp file", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return capturebridge.New(capturebridge.CodeFilePermission, "chmod token file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return capturebridge.New(capturebridge.CodeFilePermission, "rename token file into place", err)
	}
	return nil
}

// IsExpired reports whether tok is expired or within the 300-second
// refresh lead time as of now.
func IsExpired(tok *Token, now time.Time) bool {
	expiry := time.UnixMilli(tok.ExpiryDate)
	return now.Add(expiryLeadSeconds * time.Second).After(expiry) || now.Add(expiryLeadSeconds*time.Second).Equal(expiry)
}

// ValidateRefreshedScope enforces that a refreshed token still carries
// gmail.readonly; otherwise the refresh is treated as an invalid grant.
func ValidateRefreshedScope(tok *Token) error {
	for _, s := range strings.Fields(tok.Scope) {
		if s == "https://www.googleapis.com/auth/gmail.readonly" || s == "gmail.readonly" {
			return nil
		}
	}
	return capturebridge.New(capturebridge.CodeAuthInvalidGrant, "refreshed token missing gmail.readonly scope", nil)
}
