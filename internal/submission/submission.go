// Package submission delivers completed intakes to the clinic registration
// endpoint as a multipart form.
package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// DefaultTimeout bounds one submission attempt.
const DefaultTimeout = 30 * time.Second

// maxErrorBodyBytes limits how much of an error response is read for the
// failure detail.
const maxErrorBodyBytes = 4 << 10

// SubmitError reports a non-2xx response from the registration endpoint.
type SubmitError struct {
	StatusCode int
	Detail     string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("registration endpoint returned %d: %s", e.StatusCode, e.Detail)
}

// Opts holds configuration options for the HTTP submitter.
type Opts struct {
	EndpointURL string
	APIKey      string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Option configures submitter options.
type Option func(*Opts)

// WithEndpointURL sets the registration endpoint URL.
func WithEndpointURL(url string) Option {
	return func(o *Opts) {
		o.EndpointURL = url
	}
}

// WithAPIKey sets the bearer token sent with each submission.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects a custom HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = client
	}
}

// HTTPSubmitter posts intake payloads to the registration endpoint.
type HTTPSubmitter struct {
	endpointURL string
	apiKey      string
	client      *http.Client
}

// NewHTTPSubmitter creates a submitter for the configured endpoint.
func NewHTTPSubmitter(opts ...Option) (*HTTPSubmitter, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("registration endpoint URL not set")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	slog.Debug("submission.NewHTTPSubmitter: submitter created", "endpoint", cfg.EndpointURL)
	return &HTTPSubmitter{
		endpointURL: cfg.EndpointURL,
		apiKey:      cfg.APIKey,
		client:      client,
	}, nil
}

// Submit posts the payload as a multipart form: one form field per answer plus
// session_id and variant, and one file part per rehydrated upload.
func (s *HTTPSubmitter) Submit(ctx context.Context, payload models.SubmissionPayload) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"session_id": payload.SessionID,
		"variant":    payload.Variant,
	}
	for key, value := range payload.Fields {
		fields[key] = value
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	for i, file := range payload.Files {
		part, err := writer.CreateFormFile(fmt.Sprintf("file_%d", i), file.Name)
		if err != nil {
			return fmt.Errorf("failed to create form file %s: %w", file.Name, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return fmt.Errorf("failed to write form file %s: %w", file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, &body)
	if err != nil {
		return fmt.Errorf("failed to build submission request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	slog.Debug("HTTPSubmitter.Submit: posting intake",
		"sessionID", payload.SessionID, "fields", len(payload.Fields), "files", len(payload.Files))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach registration endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Warn("HTTPSubmitter.Submit: endpoint rejected submission",
			"sessionID", payload.SessionID, "status", resp.StatusCode)
		return &SubmitError{StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	slog.Info("HTTPSubmitter.Submit: intake submitted", "sessionID", payload.SessionID, "status", resp.StatusCode)
	return nil
}
