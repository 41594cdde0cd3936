// Package credentials implements the two file contracts the core consumes
// from the (out-of-scope) OAuth authorization flow: the client secret file
// and the cached token file, plus the auth-failure counter that gates
// further refresh attempts. It never drives the browser-based consent
// flow itself — only the token lifecycle the poller needs at runtime.
package credentials

import (
	"encoding/json"
	"os"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// ClientCredentials is the closed shape of a Google OAuth client-secret
// file: {"installed": {...}}, all five nested fields required.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURIs []string
	AuthURI      string
	TokenURI     string
}

type clientSecretFile struct {
	Installed struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURIs []string `json:"redirect_uris"`
		AuthURI      string   `json:"auth_uri"`
		TokenURI     string   `json:"token_uri"`
	} `json:"installed"`
}

// LoadClientCredentials reads and validates a credentials.json file.
func LoadClientCredentials(path string) (*ClientCredentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, capturebridge.New(capturebridge.CodeFilePermission, "read credentials file", err)
		}
		return nil, capturebridge.New(capturebridge.CodeFilePermission, "read credentials file", err)
	}

	var parsed clientSecretFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, capturebridge.New(capturebridge.CodeFileParseError, "parse credentials file", err)
	}

	inst := parsed.Installed
	if inst.ClientID == "" || inst.ClientSecret == "" || len(inst.RedirectURIs) == 0 || inst.AuthURI == "" || inst.TokenURI == "" {
		return nil, capturebridge.New(capturebridge.CodeAuthInvalidClient, "credentials file missing required field", nil)
	}

	return &ClientCredentials{
		ClientID:     inst.ClientID,
		ClientSecret: inst.ClientSecret,
		RedirectURIs: inst.RedirectURIs,
		AuthURI:      inst.AuthURI,
		TokenURI:     inst.TokenURI,
	}, nil
}
