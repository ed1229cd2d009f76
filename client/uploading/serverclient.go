package uploading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServerClient handles communication with the ingest server.
type ServerClient interface {
	// Upload issues a single multipart POST carrying one image.
	Upload(ctx context.Context, request UploadRequest) (*UploadAck, error)
	// Ping checks whether the server is reachable.
	Ping(ctx context.Context) error
}

// httpServerClient implements ServerClient over HTTP.
type httpServerClient struct {
	serverURL  string
	httpClient *http.Client
}

// NewServerClient creates an HTTP ServerClient. The timeout bounds every
// request so a hung connection cannot block the capture loop indefinitely.
func NewServerClient(serverURL string, timeout time.Duration) ServerClient {
	return &httpServerClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Upload sends one image to POST /upload and parses the acknowledgement.
func (s *httpServerClient) Upload(ctx context.Context, request UploadRequest) (*UploadAck, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if !request.Timestamp.IsZero() {
		if err := writer.WriteField("timestamp", request.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, fmt.Errorf("failed to write timestamp field: %w", err)
		}
	}
	if request.Source != "" {
		if err := writer.WriteField("source", request.Source); err != nil {
			return nil, fmt.Errorf("failed to write source field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("file", request.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(request.Data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, classifySendFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SendError{
			Kind:       SendUnreachable,
			InnerError: fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	}

	var ack UploadAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, &SendError{Kind: SendBadResponse, InnerError: err}
	}
	if ack.Status != "ok" {
		return nil, &SendError{
			Kind:       SendBadResponse,
			InnerError: fmt.Errorf("unexpected ack status %q", ack.Status),
		}
	}

	return &ack, nil
}

// Ping issues a GET /health to check connectivity.
func (s *httpServerClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifySendFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &SendError{
			Kind:       SendUnreachable,
			InnerError: fmt.Errorf("health check returned status %d", resp.StatusCode),
		}
	}
	return nil
}

// classifySendFailure maps a transport error to a SendError kind.
func classifySendFailure(err error) *SendError {
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return &SendError{Kind: SendTimeout, InnerError: err}
	}
	return &SendError{Kind: SendUnreachable, InnerError: err}
}
