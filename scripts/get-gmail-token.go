// get-gmail-token is a one-shot setup helper: it drives the interactive
// OAuth2 consent flow and writes credentials.json/token.json in the
// shape internal/credentials expects, so the daemon never has to
// perform browser-based authorization itself (spec §6/§7 scope the
// daemon to token refresh only).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nathanvale/capture-bridge/internal/credentials"
)

const gmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run get-gmail-token.go <client-id> <client-secret> <credentials-dir>")
		fmt.Println("\nDrives the Google OAuth2 consent flow and writes")
		fmt.Println("<credentials-dir>/credentials.json and <credentials-dir>/token.json,")
		fmt.Println("the two files capture-bridged reads at startup.")
		os.Exit(1)
	}

	clientID := os.Args[1]
	clientSecret := os.Args[2]
	credentialsDir := os.Args[3]

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8090/callback",
		Scopes:       []string{gmailReadonlyScope},
	}

	authURL := conf.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Println("=== Gmail OAuth2 Setup ===")
	fmt.Println("\n1. Visit this URL in your browser:")
	fmt.Printf("\n%s\n\n", authURL)

	code, err := awaitAuthorizationCode()
	if err != nil {
		log.Fatalf("authorization failed: %v", err)
	}

	ctx := context.Background()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.Fatalf("exchange authorization code: %v", err)
	}

	if err := os.MkdirAll(credentialsDir, 0o700); err != nil {
		log.Fatalf("create credentials directory: %v", err)
	}

	if err := writeClientCredentials(filepath.Join(credentialsDir, "credentials.json"), conf); err != nil {
		log.Fatalf("write credentials.json: %v", err)
	}

	cached := &credentials.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiryDate:   tok.Expiry.UnixMilli(),
		Scope:        gmailReadonlyScope,
		TokenType:    tok.TokenType,
	}
	tokenPath := filepath.Join(credentialsDir, "token.json")
	if err := credentials.SaveToken(tokenPath, cached); err != nil {
		log.Fatalf("write token.json: %v", err)
	}

	fmt.Println("\n=== Done ===")
	fmt.Printf("credentials written to %s\n", credentialsDir)
	fmt.Println("point CAPTURE_BRIDGE_POLLER_CREDENTIALS_PATH at that directory")
}

// awaitAuthorizationCode runs a short-lived local HTTP server to catch the
// OAuth2 redirect and pull the authorization code out of it.
func awaitAuthorizationCode() (string, error) {
	codeCh := make(chan string, 1)
	server := &http.Server{Addr: ":8090"}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			fmt.Fprint(w, "no authorization code received")
			return
		}
		fmt.Fprint(w, "authorization received, you can close this tab")
		codeCh <- code
	})
	server.Handler = mux

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("callback server: %v", err)
		}
	}()

	code := <-codeCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	return code, nil
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

func writeClientCredentials(path string, conf *oauth2.Config) error {
	var out clientSecretFile
	out.Installed.ClientID = conf.ClientID
	out.Installed.ClientSecret = conf.ClientSecret
	out.Installed.RedirectURIs = []string{conf.RedirectURL}
	out.Installed.AuthURI = conf.Endpoint.AuthURL
	out.Installed.TokenURI = conf.Endpoint.TokenURL

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
