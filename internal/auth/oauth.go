package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthManager drives the Google federated sign-in leg: auth URL, code
// exchange and identity fetch. The resulting email feeds OAuthSignIn, which
// rejects identities without a pre-registered local account.
type OAuthManager struct {
	config      *oauth2.Config
	userInfoURL string
	client      *http.Client
}

func NewOAuthManager(clientID, clientSecret, redirectURL string) *OAuthManager {
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// WithUserInfoURL points identity fetches at a test server.
func (m *OAuthManager) WithUserInfoURL(u string) *OAuthManager {
	m.userInfoURL = u
	return m
}

// StateToken returns a CSRF state nonce for the authorization redirect.
func (m *OAuthManager) StateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL builds the provider authorization URL carrying the state nonce.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange swaps the authorization code for provider tokens.
func (m *OAuthManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.config.Exchange(ctx, code)
}

// FetchEmail resolves the federated identity's verified email address.
func (m *OAuthManager) FetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	token.SetAuthHeader(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth userinfo: status %d", resp.StatusCode)
	}

	var info struct {
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" || !info.VerifiedEmail {
		return "", ErrUnauthorized
	}
	return email, nil
}
