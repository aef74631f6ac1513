// Package model provides the client for the external voice model backend.
//
// The backend hosts the speaker-embedding extractor, the base speaker TTS and the
// tone-color converter. The service treats it as a black box reached over HTTP:
// embeddings travel as opaque blobs and waveforms as WAV bytes.
package model

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
)

// API endpoints and paths.
const (
	apiHealth           = "/health"
	apiLoadConverter    = "/v1/converter/load"
	apiEmbedding        = "/v1/embedding"
	apiBaseSpeakers     = "/v1/base/speakers"
	apiBaseSynthesize   = "/v1/base/synthesize"
	apiConvert          = "/v1/convert"
	queryVAD            = "vad"
	queryVADDisabled    = "false"
	defaultAudioContent = "audio/wav"
)

// HTTP headers.
const (
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	contentTypeJSON    = "application/json"
	contentTypeWAV     = "audio/wav"
	contentTypeOctet   = "application/octet-stream"
	maxErrorBodyLength = 4096
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "model backend error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "model backend returned non-OK status: %s, body: %s"
	errFmtUnexpectedContent    = "%w: expected %s, got %s"
)

// Static errors.
var (
	ErrTextEmpty             = errors.New("text cannot be empty")
	ErrAudioEmpty            = errors.New("audio cannot be empty")
	ErrEmbeddingEmpty        = errors.New("embedding cannot be empty")
	ErrEmptyResponse         = errors.New("model backend returned an empty body")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrBackend               = errors.New("model backend request failed")
)

// Embedding is a serialized speaker embedding. Its layout belongs to the backend.
type Embedding []byte

// CheckpointRequest identifies a checkpoint pair for the backend to load.
type CheckpointRequest struct {
	ConfigPath     string `json:"config_path"`
	CheckpointPath string `json:"checkpoint_path"`
	Device         string `json:"device"`
}

// SynthesisRequest asks the base speaker model to render text.
type SynthesisRequest struct {
	CheckpointRequest

	Text     string  `json:"text"`
	Speaker  string  `json:"speaker"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// ConversionRequest asks the tone-color converter to reshape a waveform from the
// source embedding to the target embedding.
type ConversionRequest struct {
	Audio           []byte    `json:"audio"`
	SourceEmbedding Embedding `json:"source_embedding"`
	TargetEmbedding Embedding `json:"target_embedding"`
	Watermark       string    `json:"watermark"`
}

type speakersResponse struct {
	Speakers []string `json:"speakers"`
}

// ErrorResponse represents a structured error response from the backend.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client talks to the model backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the backend at baseURL (e.g. "http://localhost:9000").
// The timeout applies to every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck verifies that the backend is running.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for backend at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check status %s", ErrBackend, resp.Status)
	}

	return nil
}

// LoadConverter loads the tone-color converter checkpoint on the backend.
func (c *Client) LoadConverter(ctx context.Context, req CheckpointRequest) error {
	resp, err := c.postJSON(ctx, apiLoadConverter, req, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}

// ExtractEmbedding sends a reference sample and returns its speaker embedding.
func (c *Client) ExtractEmbedding(ctx context.Context, audio []byte, contentType string) (Embedding, error) {
	if len(audio) == 0 {
		return nil, ErrAudioEmpty
	}

	if contentType == "" {
		contentType = defaultAudioContent
	}

	endpoint := c.baseURL + apiEmbedding + "?" + url.Values{queryVAD: {queryVADDisabled}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set(headerContentType, contentType)
	req.Header.Set(headerAccept, contentTypeOctet)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp, contentTypeOctet)
	if err != nil {
		return nil, err
	}

	return Embedding(data), nil
}

// Speakers lists the speaker keys the base model at req exposes.
func (c *Client) Speakers(ctx context.Context, req CheckpointRequest) ([]string, error) {
	resp, err := c.postJSON(ctx, apiBaseSpeakers, req, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded speakersResponse

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode speakers response: %w", err)
	}

	return decoded.Speakers, nil
}

// Synthesize renders text with the base speaker model and returns WAV bytes.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	resp, err := c.postJSON(ctx, apiBaseSynthesize, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readBody(resp, contentTypeWAV)
}

// Convert applies tone-color conversion and returns WAV bytes.
func (c *Client) Convert(ctx context.Context, req ConversionRequest) ([]byte, error) {
	if len(req.Audio) == 0 {
		return nil, ErrAudioEmpty
	}

	if len(req.SourceEmbedding) == 0 || len(req.TargetEmbedding) == 0 {
		return nil, ErrEmbeddingEmpty
	}

	resp, err := c.postJSON(ctx, apiConvert, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readBody(resp, contentTypeWAV)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, accept)

	return c.do(req)
}

// do sends req and turns non-200 responses into errors. The caller closes the body of
// a successful response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model backend at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp, nil
}

func readBody(resp *http.Response, expectedType string) ([]byte, error) {
	contentType := resp.Header.Get(headerContentType)
	if contentType != "" && !strings.HasPrefix(contentType, expectedType) {
		return nil, fmt.Errorf(errFmtUnexpectedContent, ErrUnexpectedContentType, expectedType, contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}

	return data, nil
}

// parseErrorResponse decodes a structured JSON error from the backend, falling back to
// the raw body so diagnostic information is preserved.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))

	var errorResp ErrorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w: "+errFmtServiceErrorWithCode, ErrBackend,
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrBackend, resp.Status, string(raw))
}
