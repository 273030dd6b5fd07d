package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/rofex-data/internal/auth"
	"github.com/rickgao/rofex-data/internal/model"
)

// APIError is a non-2xx reply or a 200 reply whose envelope status is not OK.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match any broker failure with model.ErrTransport.
func (e *APIError) Unwrap() error { return model.ErrTransport }

// IsRetryable reports whether another attempt may succeed. 401 is retried
// because the token is dropped and the next attempt logs in again.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusUnauthorized
}

// envelope is the status wrapper present on every broker response.
type envelope struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (e envelope) err(body []byte) error {
	if e.Status == "" || e.Status == "OK" {
		return nil
	}
	msg := e.Description
	if msg == "" {
		msg = e.Message
	}
	return &APIError{StatusCode: http.StatusOK, Message: msg, Body: body}
}

// roundTrip performs one attempt. Network failures wrap model.ErrTransport.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		req.Header.Set(auth.HeaderToken, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, model.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, model.ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			c.tokens.Invalidate()
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}
	return body, nil
}

// retryable reports whether err from roundTrip is worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, model.ErrTransport)
}

// jitter returns d scaled by a random factor in [0.5, 1.5).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

// call runs roundTrip with jittered exponential backoff.
func (c *Client) call(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	backoff := c.retryBackoff
	attempts := c.maxRetries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var body []byte
		body, err = c.roundTrip(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) || attempt == attempts {
			break
		}

		wait := jitter(backoff)
		c.logger.Debug("retrying request", "path", path, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}

	var apiErr *APIError
	if attempts > 1 && retryable(ctx, err) {
		return nil, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
	}
	if errors.As(err, &apiErr) {
		return nil, apiErr
	}
	return nil, err
}

// get performs a GET with retries, checks the status envelope and decodes
// the payload into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.call(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := env.err(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
