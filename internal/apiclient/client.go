// Package apiclient is a Go client for the voice service HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/book-expert/voice-clone-service/internal/voice"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
	maxErrorBody      = 4096
)

// Static errors.
var (
	// ErrAPI is returned for every non-2xx response; the message carries the
	// server's detail.
	ErrAPI = errors.New("voice service request failed")
	// ErrNotAudioFile is returned before any I/O when a sample lacks an audio extension.
	ErrNotAudioFile = errors.New("sample is not an audio file")
)

// quoteEscaper escapes a quoted-string parameter the way mime/multipart does.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Client talks to a running voice service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health returns the service health report. A degraded service yields both the
// report and an error.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var health server.HealthResponse

	resp, err := c.send(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(&health)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", decodeErr)
	}

	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("%w: service is %s", ErrAPI, health.Status)
	}

	return &health, nil
}

// UploadVoice registers the audio file at path as a new voice.
func (c *Client) UploadVoice(ctx context.Context, path, name, description string) (*server.UploadResponse, error) {
	if !fsutil.IsValidAudioFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotAudioFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %s: %w", path, err)
	}

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(path))))
	header.Set(headerContentType, fsutil.AudioContentType(path))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}

	_, err = part.Write(data)
	if err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}

	fields := map[string]string{"name": name, "description": description}
	for field, value := range fields {
		if value == "" {
			continue
		}

		fieldErr := writer.WriteField(field, value)
		if fieldErr != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", field, fieldErr)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var uploaded server.UploadResponse

	err = c.doJSON(ctx, http.MethodPost, "/upload_voice/", &body, writer.FormDataContentType(), &uploaded)
	if err != nil {
		return nil, err
	}

	return &uploaded, nil
}

// ListVoices returns every registered voice.
func (c *Client) ListVoices(ctx context.Context) ([]server.VoiceResponse, error) {
	var voices []server.VoiceResponse

	err := c.doJSON(ctx, http.MethodGet, "/voices/", nil, "", &voices)
	if err != nil {
		return nil, err
	}

	return voices, nil
}

// Accents returns the supported accent codes.
func (c *Client) Accents(ctx context.Context) ([]voice.Accent, error) {
	var accents []voice.Accent

	err := c.doJSON(ctx, http.MethodGet, "/accents/", nil, "", &accents)
	if err != nil {
		return nil, err
	}

	return accents, nil
}

// Synthesize renders text in a registered voice.
func (c *Client) Synthesize(ctx context.Context, req server.SynthesizeRequest) (*server.SynthesizeResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result server.SynthesizeResponse

	err = c.doJSON(ctx, http.MethodPost, "/synthesize/", bytes.NewReader(payload), contentTypeJSON, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// DownloadAudio copies a generated WAV into dst and returns the number of bytes
// written.
func (c *Client) DownloadAudio(ctx context.Context, audioID string, dst io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/audio/"+audioID, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apiError(resp)
	}

	written, err := io.Copy(dst, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to read audio %s: %w", audioID, err)
	}

	return written, nil
}

// History returns the synthesis history, newest first.
func (c *Client) History(ctx context.Context) ([]registry.HistoryEntry, error) {
	var history []registry.HistoryEntry

	err := c.doJSON(ctx, http.MethodGet, "/history/", nil, "", &history)
	if err != nil {
		return nil, err
	}

	return history, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach voice service at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var errorResp server.ErrorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w (%s): %s", ErrAPI, resp.Status, errorResp.Detail)
	}

	return fmt.Errorf("%w (%s): %s", ErrAPI, resp.Status, strings.TrimSpace(string(raw)))
}
