// Package whisperapi talks to an OpenAI-compatible audio transcription
// endpoint. It is the fallback engine when WhisperX cannot run: the audio
// file is uploaded as multipart form data and the verbose JSON response is
// requested with word-level timestamp granularity.
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipforge/internal/services"
)

const (
	defaultURL     = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel   = "whisper-1"
	defaultTimeout = 10 * time.Minute
)

// Config captures endpoint settings.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client uploads audio for transcription.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a client; blank fields fall back to OpenAI defaults.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Name identifies the engine in diagnostics.
func (c *Client) Name() string { return "whisper_api" }

// Available reports whether an API key is configured.
func (c *Client) Available() error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisper api", "api key not configured", nil)
	}
	return nil
}

// Word is one timestamped word of the verbose JSON response.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Response is the verbose_json transcription body.
type Response struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the audio file and returns the parsed response.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (Response, error) {
	if err := c.Available(); err != nil {
		return Response{}, err
	}
	body, contentType, err := c.buildForm(audioPath, language)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("whisper api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisper api", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Response{}, fmt.Errorf("whisper api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed errorBody
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return Response{}, fmt.Errorf("whisper api: status %d: %s", resp.StatusCode, message)
	}

	var parsed Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, fmt.Errorf("whisper api: decode response: %w", err)
	}
	if len(parsed.Words) == 0 && strings.TrimSpace(parsed.Text) != "" {
		return Response{}, errors.New("whisper api: response carries no word timestamps")
	}
	return parsed, nil
}

func (c *Client) buildForm(audioPath, language string) (io.Reader, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("whisper api: open audio: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", c.cfg.Model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}
	if lang := strings.ToLower(strings.TrimSpace(language)); len(lang) == 2 {
		fields = append(fields, [2]string{"language", lang})
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("whisper api: write field: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("whisper api: create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("whisper api: copy audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper api: close form: %w", err)
	}
	return &buf, form.FormDataContentType(), nil
}
