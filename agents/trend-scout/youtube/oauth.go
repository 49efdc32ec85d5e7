package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"trend-stack/shared/config"
	"trend-stack/shared/logging"
)

const readonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

func oauthConfig(cfg *config.YouTubeConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{readonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// tokenSaver wraps an oauth2.TokenSource to automatically save refreshed tokens.
// It intercepts token refresh operations and persists the new token to disk,
// ensuring that refreshed tokens survive application restarts.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	mu        sync.Mutex // Protects concurrent token refresh operations
}

// Token implements oauth2.TokenSource interface.
func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Create a token source that can refresh the token
	tokenSource := ts.config.TokenSource(context.Background(), ts.token)

	// Get the token (this will refresh if needed)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}

	// If the token was refreshed, save it
	if newToken.AccessToken != ts.token.AccessToken {
		logging.Info().Msg("Token refreshed, saving to file")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			logging.Warn().Err(err).Msg("Failed to save refreshed token")
		}
	}

	return newToken, nil
}

// getToken retrieves an OAuth2 token from disk or initiates the device flow if
// needed. A stored token with a refresh token is kept even when expired since
// tokenSaver refreshes it on first use.
func getToken(ctx context.Context, config *oauth2.Config, tokenFile string) (*oauth2.Token, error) {
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		if tok.RefreshToken != "" {
			logging.Info().Time("expires", tok.Expiry).Msg("Loaded token from file")
			return tok, nil
		}
		if tok.Valid() {
			return tok, nil
		}
	}

	logging.Info().Msg("Getting new token from web...")
	tok, err = getTokenFromWeb(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := saveToken(tokenFile, tok); err != nil {
		logging.Warn().Err(err).Msg("Failed to save token")
	}
	return tok, nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	tok, err := getTokenWithDeviceFlow(ctx, config)
	if err == nil {
		return tok, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		logging.Error().
			Str("status", retrieveErr.Response.Status).
			Str("body", strings.TrimSpace(string(retrieveErr.Body))).
			Msg("Device authorization response failed")
	} else {
		logging.Error().Err(err).Msg("Device authorization flow failed")
	}

	return nil, fmt.Errorf("device authorization failed: %w. Ensure your OAuth client is created as 'TVs and Limited Input devices' and that the YouTube Data API v3 is enabled", err)
}

func getTokenWithDeviceFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("YOUTUBE DEVICE AUTHORIZATION REQUIRED\n")
	fmt.Printf("%s\n", strings.Repeat("=", 80))
	fmt.Printf("1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Printf("2. Enter this code when prompted: %s\n\n", resp.UserCode)
	if completeURL := strings.TrimSpace(resp.VerificationURIComplete); completeURL != "" {
		fmt.Printf("   Or open directly:\n\n   %s\n\n", completeURL)
	}
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")
	fmt.Printf("%s\n", strings.Repeat("-", 80))

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Printf("\n✅ Authorization successful! Token saved.\n")
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))

	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	// Ensure parent directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	logging.Info().Str("path", path).Msg("Token saved")
	return nil
}
