// Package auth provides broker API authentication using session tokens.
//
// The broker issues a token from POST /auth/getToken when the X-Username and
// X-Password headers are valid. The token comes back in the X-Auth-Token
// response header and is sent in the same header on every REST and WebSocket
// request until it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HeaderToken is the request and response header that carries the token.
const HeaderToken = "X-Auth-Token"

// DefaultTokenTTL is how long a token is reused before logging in again.
const DefaultTokenTTL = 12 * time.Hour

// ErrUnauthorized is returned when the broker rejects the credentials.
var ErrUnauthorized = errors.New("broker rejected credentials")

// Credentials holds the login used to obtain tokens.
type Credentials struct {
	User     string
	Password string
}

// LoadCredentials validates and returns credentials.
func LoadCredentials(user, password string) (*Credentials, error) {
	if user == "" {
		return nil, fmt.Errorf("api user is required")
	}
	if password == "" {
		return nil, fmt.Errorf("api password is required")
	}
	return &Credentials{User: user, Password: password}, nil
}

// TokenSource logs in lazily and caches the token until it expires or is
// invalidated. Safe for concurrent use.
type TokenSource struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a TokenSource for the given REST base URL.
func NewTokenSource(baseURL string, creds Credentials, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: httpClient,
		ttl:        DefaultTokenTTL,
		now:        time.Now,
	}
}

// Token returns a cached token or logs in to obtain a new one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = s.now().Add(s.ttl)
	return token, nil
}

// Invalidate drops the cached token so the next call logs in again.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Header returns request headers carrying a valid token.
func (s *TokenSource) Header(ctx context.Context) (http.Header, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set(HeaderToken, token)
	return h, nil
}

func (s *TokenSource) login(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/getToken", nil)
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("X-Username", s.creds.User)
	req.Header.Set("X-Password", s.creds.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	token := resp.Header.Get(HeaderToken)
	if token == "" {
		return "", fmt.Errorf("login: response missing %s header", HeaderToken)
	}
	return token, nil
}
