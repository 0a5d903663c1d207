// Package llm defines the chat-completion client used for question
// generation and answer evaluation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client makes a single system+user completion call.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options tune a completion request. Zero values leave the provider default.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Tuned wraps a Client whose provider honours per-call Options.
type Tuned interface {
	CompleteWith(ctx context.Context, system, user string, opts Options) (string, error)
}

// CompleteWith calls c with opts when it supports them, and plain Complete
// otherwise.
func CompleteWith(ctx context.Context, c Client, system, user string, opts Options) (string, error) {
	if t, ok := c.(Tuned); ok {
		return t.CompleteWith(ctx, system, user, opts)
	}
	return c.Complete(ctx, system, user)
}

// StatusError is returned for a non-200 provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error (%d): %s", e.Code, e.Body)
}

// PostJSON sends reqBody as JSON and decodes a 200 response into respBody.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
