// Package openai implements speech.Speaker and speech.Transcriber using the
// OpenAI audio endpoints (TTS and Whisper).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jxucoder/TeleInterview/pkg/llm"
	"github.com/jxucoder/TeleInterview/pkg/speech"
)

// Config configures the OpenAI speech client.
type Config struct {
	APIKey        string
	BaseURL       string // defaults to https://api.openai.com/v1
	TTSModel      string // defaults to tts-1
	Voice         string // defaults to alloy
	STTModel      string // defaults to whisper-1
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Client implements speech.Speaker and speech.Transcriber.
type Client struct {
	cfg       Config
	http      *http.Client
	semaphore chan struct{}
	logger    *slog.Logger
}

var (
	_ speech.Speaker     = (*Client)(nil)
	_ speech.Transcriber = (*Client)(nil)
)

// New creates an OpenAI speech client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.STTModel == "" {
		cfg.STTModel = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		logger:    logger.With("component", "speech-openai"),
	}, nil
}

// Speak synthesizes text with the TTS endpoint and returns MP3 audio.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to speak")
	}
	payload, err := json.Marshal(map[string]string{
		"model": c.cfg.TTSModel,
		"voice": c.cfg.Voice,
		"input": text,
	})
	if err != nil {
		return nil, err
	}
	var out []byte
	err = c.withRetry(ctx, "speak", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		out, err = c.do(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("text to speech: %w", err)
	}
	return out, nil
}

// Transcribe uploads audio to Whisper and returns the trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}
	body, contentType, err := c.multipartBody(data)
	if err != nil {
		return "", err
	}
	var text string
	err = c.withRetry(ctx, "transcribe", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		raw, err := c.do(req)
		if err != nil {
			return err
		}
		var resp struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		text = strings.TrimSpace(resp.Text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("speech to text: %w", err)
	}
	return text, nil
}

func (c *Client) multipartBody(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "answer."+speech.Format(data))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing audio data: %w", err)
	}
	for k, v := range map[string]string{"model": c.cfg.STTModel, "response_format": "json"} {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// withRetry bounds concurrency with the semaphore and retries 429/5xx
// responses with exponential backoff.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			c.logger.Debug("retrying", "op", op, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func retryable(err error) bool {
	var se *llm.StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return false
}
