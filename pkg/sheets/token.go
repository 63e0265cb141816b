package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewTokenSource returns a static token source when staticToken is set,
// otherwise one backed by a service-account credentials file.
func NewTokenSource(ctx context.Context, credentialsFile, staticToken string) (oauth2.TokenSource, error) {
	if token := strings.TrimSpace(staticToken); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, fmt.Errorf("sheets: credentials file or static token is required")
	}
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	return oauth2.ReuseTokenSource(nil, creds.TokenSource), nil
}
