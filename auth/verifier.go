// Package auth defines the token verification boundary of the gateway.
// The verifier is an external collaborator: it validates a bearer
// credential and returns a user identifier or fails.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/floorlink/floorlink/errors"
)

// TokenVerifier validates a bearer credential and resolves the owning user
type TokenVerifier interface {
	// Verify returns the user id the token belongs to. It returns an
	// authentication-classified error for bad or expired tokens and an
	// internal-classified error when the verifier itself fails.
	Verify(ctx context.Context, token string) (string, error)
}

// HTTPVerifier verifies tokens against an external auth service endpoint
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier creates a verifier calling the given endpoint. The
// endpoint is expected to accept POST {"token": "..."} and respond 200
// with {"user_id": "..."} for valid tokens, 401 otherwise.
func NewHTTPVerifier(endpoint string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID string `json:"user_id"`
}

// Verify implements TokenVerifier
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.WrapAuthentication(errors.ErrMissingCredential, "HTTPVerifier", "Verify", "empty token")
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", errors.WrapInternal(err, "HTTPVerifier", "Verify", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.WrapInternal(err, "HTTPVerifier", "Verify", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", errors.WrapInternal(err, "HTTPVerifier", "Verify", "call auth service")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var out verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", errors.WrapInternal(err, "HTTPVerifier", "Verify", "decode response")
		}
		if out.UserID == "" {
			return "", errors.WrapInternal(
				fmt.Errorf("auth service returned empty user_id"),
				"HTTPVerifier", "Verify", "validate response")
		}
		return out.UserID, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", errors.WrapAuthentication(errors.ErrInvalidCredential, "HTTPVerifier", "Verify", "token rejected")
	default:
		return "", errors.WrapInternal(
			fmt.Errorf("auth service returned status %d", resp.StatusCode),
			"HTTPVerifier", "Verify", "unexpected status")
	}
}

// StaticVerifier verifies tokens against a fixed table. Intended for
// development and tests.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> user id
}

// NewStaticVerifier creates a verifier over a token -> user id table
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	table := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		table[token] = userID
	}
	return &StaticVerifier{tokens: table}
}

// Verify implements TokenVerifier
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.WrapAuthentication(errors.ErrMissingCredential, "StaticVerifier", "Verify", "empty token")
	}

	v.mu.RLock()
	userID, ok := v.tokens[token]
	v.mu.RUnlock()

	if !ok {
		return "", errors.WrapAuthentication(errors.ErrInvalidCredential, "StaticVerifier", "Verify", "unknown token")
	}
	return userID, nil
}

// Add registers a token at runtime
func (v *StaticVerifier) Add(token, userID string) {
	v.mu.Lock()
	v.tokens[token] = userID
	v.mu.Unlock()
}
