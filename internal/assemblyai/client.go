package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snarg/scribe-engine/internal/metrics"
)

const DefaultBaseURL = "https://api.assemblyai.com"

// Transcript job states reported by the provider.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrProvider is the root of every failure to get a usable answer from AssemblyAI.
var ErrProvider = errors.New("transcription provider error")

// APIError is returned when AssemblyAI answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assemblyai API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrProvider }

// TranscriptRequest describes a transcription job to submit.
type TranscriptRequest struct {
	AudioURL string
	Language string // "auto" or empty enables language detection
}

// Transcript is the subset of a transcript resource the service inspects.
// The full provider document is passed through to clients untouched.
type Transcript struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Text          string   `json:"text,omitempty"`
	Error         string   `json:"error,omitempty"`
	LanguageCode  string   `json:"language_code,omitempty"`
	AudioDuration *float64 `json:"audio_duration,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (t *Transcript) Terminal() bool {
	return IsTerminal(t.Status)
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Client calls the AssemblyAI v2 REST API.
type Client struct {
	baseURL     string
	apiKey      string
	speechModel string
	client      *http.Client
}

// NewClient creates an AssemblyAI client. An empty baseURL selects the public API.
func NewClient(baseURL, apiKey, speechModel string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if speechModel == "" {
		speechModel = "universal"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		speechModel: speechModel,
		client:      &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return "assemblyai" }

// Model returns the configured speech model.
func (c *Client) Model() string { return c.speechModel }

// Upload streams raw audio to the provider's ingestion endpoint and returns
// the opaque URL to reference it in a transcript request.
func (c *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	start := time.Now()
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	_, err := c.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", audio, &out)
	if err == nil && out.UploadURL == "" {
		err = fmt.Errorf("%w: upload response has no upload_url", ErrProvider)
	}
	metrics.ObserveProvider("assemblyai", "upload", start, err)
	if err != nil {
		return "", err
	}
	return out.UploadURL, nil
}

// Submit creates a transcript job. language_code is only sent for an explicit
// language; otherwise the provider detects it.
func (c *Client) Submit(ctx context.Context, req TranscriptRequest) (*Transcript, error) {
	body := map[string]any{
		"audio_url":    req.AudioURL,
		"speech_model": c.speechModel,
	}
	if req.Language != "" && req.Language != "auto" {
		body["language_code"] = req.Language
	} else {
		body["language_detection"] = true
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	var tr Transcript
	_, err = c.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(data), &tr)
	metrics.ObserveProvider("assemblyai", "submit", start, err)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Get fetches a transcript. The raw provider document is returned alongside
// the parsed fields.
func (c *Client) Get(ctx context.Context, id string) (*Transcript, json.RawMessage, error) {
	start := time.Now()
	var tr Transcript
	raw, err := c.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(id), "", nil, &tr)
	metrics.ObserveProvider("assemblyai", "get", start, err)
	if err != nil {
		return nil, nil, err
	}
	return &tr, raw, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	return data, nil
}
