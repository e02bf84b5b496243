package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GoogleIdentity is the subset of a verified Google ID token the auth flow
// needs.
type GoogleIdentity struct {
	Subject   string
	Email     string
	FullName  string
	AvatarURL string
}

// GoogleVerifier validates a Google-issued ID token and extracts the
// identity. The production implementation calls Google's tokeninfo endpoint;
// tests substitute a stub.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// TokenInfoVerifier verifies ID tokens against Google's tokeninfo endpoint
// and checks that the token was minted for our client ID.
type TokenInfoVerifier struct {
	clientID string
	client   *http.Client
	baseURL  string
}

// NewTokenInfoVerifier builds a verifier for the given OAuth client ID.
func NewTokenInfoVerifier(clientID string) *TokenInfoVerifier {
	return &TokenInfoVerifier{
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  googleTokenInfoURL,
	}
}

// Verify implements GoogleVerifier.
func (v *TokenInfoVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	endpoint := fmt.Sprintf("%s?id_token=%s", v.baseURL, url.QueryEscape(idToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tokeninfo request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo rejected token: status %d", resp.StatusCode)
	}

	var payload struct {
		Aud           string `json:"aud"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	if payload.Aud != v.clientID {
		return nil, fmt.Errorf("token audience mismatch")
	}
	if payload.EmailVerified != "true" {
		return nil, fmt.Errorf("google account email is not verified")
	}

	return &GoogleIdentity{
		Subject:   payload.Sub,
		Email:     payload.Email,
		FullName:  payload.Name,
		AvatarURL: payload.Picture,
	}, nil
}
