package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/book-expert/voice-clone-service/internal/voice"
)

var errBoom = errors.New("boom")

type fakeVoices struct {
	uploadErr     error
	synthesizeErr error
	audioPath     string
	voices        []registry.VoiceModel
	history       []registry.HistoryEntry

	lastUpload  voice.UploadInput
	lastRequest voice.Request
}

func (f *fakeVoices) Upload(_ context.Context, in voice.UploadInput) (*registry.VoiceModel, error) {
	f.lastUpload = in
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}

	return &registry.VoiceModel{ID: "voice-1", Name: in.Name}, nil
}

func (f *fakeVoices) Synthesize(_ context.Context, req voice.Request) (*voice.Result, error) {
	f.lastRequest = req
	if f.synthesizeErr != nil {
		return nil, f.synthesizeErr
	}

	return &voice.Result{
		AudioID:  "audio-1",
		VoiceID:  req.VoiceID,
		Text:     req.Text,
		FilePath: "audio_files/audio-1.wav",
	}, nil
}

func (f *fakeVoices) GetVoice(_ context.Context, id string) (*registry.VoiceModel, error) {
	for i := range f.voices {
		if f.voices[i].ID == id {
			return &f.voices[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", registry.ErrVoiceNotFound, id)
}

func (f *fakeVoices) ListVoices(context.Context) ([]registry.VoiceModel, error) {
	return f.voices, nil
}

func (f *fakeVoices) History(context.Context) ([]registry.HistoryEntry, error) {
	return f.history, nil
}

func (f *fakeVoices) AudioFile(_ context.Context, id string) (string, error) {
	if id != "audio-1" || f.audioPath == "" {
		return "", fmt.Errorf("%w: %s", registry.ErrAudioNotFound, id)
	}

	return f.audioPath, nil
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func (f fakeHealth) Ping(context.Context) error { return f.err }

type fakeCheckpoints map[string][]string

func (f fakeCheckpoints) Status() map[string][]string { return f }

type testServer struct {
	echo   *echo.Echo
	voices *fakeVoices
}

func newTestServer(t *testing.T, backendErr error, checkpoints fakeCheckpoints) *testServer {
	t.Helper()

	log, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	voices := &fakeVoices{}

	return &testServer{
		voices: voices,
		echo: server.New(server.Dependencies{
			Voices:      voices,
			Backend:     fakeHealth{err: backendErr},
			Database:    fakeHealth{},
			Checkpoints: checkpoints,
			RequiredSet: "converter",
			MaxUploadMB: 1,
			Log:         log,
		}),
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	return rec
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	return s.do(req)
}

func uploadRequest(t *testing.T, contentType, name string, withFile bool) *http.Request {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if withFile {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="sample.wav"`)
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		require.NoError(t, err)

		_, err = part.Write([]byte("RIFF-sample"))
		require.NoError(t, err)
	}

	require.NoError(t, writer.WriteField("name", name))
	require.NoError(t, writer.WriteField("description", "deep"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_voice/", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())

	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

func TestRoot(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[server.RootResponse](t, rec)
	assert.Equal(t, "OpenVoice V2 API Server", resp.Message)
	assert.Equal(t, "2.0.0", resp.Version)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		backendErr  error
		checkpoints fakeCheckpoints
		code        int
		status      string
	}{
		{name: "healthy", checkpoints: fakeCheckpoints{"base-v1": {"checkpoints/x"}}, code: http.StatusOK, status: "healthy"},
		{name: "backend down", backendErr: errBoom, checkpoints: fakeCheckpoints{}, code: http.StatusServiceUnavailable, status: "degraded"},
		{
			name:        "converter missing",
			checkpoints: fakeCheckpoints{"converter": {"checkpoints_v2/converter/config.json"}},
			code:        http.StatusServiceUnavailable,
			status:      "degraded",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, testCase.backendErr, testCase.checkpoints)

			rec := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, testCase.code, rec.Code)

			resp := decode[server.HealthResponse](t, rec)
			assert.Equal(t, testCase.status, resp.Status)
			assert.Equal(t, "ok", resp.Database)
		})
	}
}

func TestUploadVoice(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.do(uploadRequest(t, "audio/wav", "Narrator", true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[server.UploadResponse](t, rec)
	assert.Equal(t, "voice-1", resp.VoiceID)
	assert.Equal(t, "Narrator", resp.Name)
	assert.Equal(t, "Voice uploaded and processed successfully", resp.Message)

	assert.Equal(t, "sample.wav", srv.voices.lastUpload.Filename)
	assert.Equal(t, "audio/wav", srv.voices.lastUpload.ContentType)
	assert.Equal(t, []byte("RIFF-sample"), srv.voices.lastUpload.Body)
	assert.Equal(t, "deep", srv.voices.lastUpload.Description)
}

func TestUploadVoice_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		uploadErr error
		withFile  bool
		code      int
		detail    string
	}{
		{name: "missing file", code: http.StatusBadRequest, detail: "File is required"},
		{name: "not audio", uploadErr: voice.ErrNotAudio, withFile: true, code: http.StatusBadRequest, detail: "File must be an audio file"},
		{name: "missing name", uploadErr: voice.ErrNameRequired, withFile: true, code: http.StatusBadRequest, detail: "voice name is required"},
		{
			name:      "processing failure",
			uploadErr: fmt.Errorf("%w: %w", voice.ErrProcessing, errBoom),
			withFile:  true,
			code:      http.StatusInternalServerError,
			detail:    "Voice processing failed: boom",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, nil, fakeCheckpoints{})
			srv.voices.uploadErr = testCase.uploadErr

			rec := srv.do(uploadRequest(t, "text/plain", "Name", testCase.withFile))
			assert.Equal(t, testCase.code, rec.Code)
			assert.Equal(t, testCase.detail, decode[server.ErrorResponse](t, rec).Detail)
		})
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	srv.voices.voices = []registry.VoiceModel{
		{ID: "voice-1", Name: "Alice", FilePath: "voices/voice-1.wav", SEFilePath: "voices/voice-1.pth", CreatedAt: created},
	}

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/voices/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "se_file_path")

	list := decode[[]server.VoiceResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0].Name)
	assert.True(t, created.Equal(list[0].CreatedAt))

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/voices/voice-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "voice-1", decode[server.VoiceResponse](t, rec).ID)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/voices/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Voice model not found", decode[server.ErrorResponse](t, rec).Detail)
}

func TestAccents(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/accents/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	accents := decode[[]voice.Accent](t, rec)
	assert.Len(t, accents, 11)
	assert.Contains(t, accents, voice.Accent{Code: "fr", File: "fr.pth"})
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.postJSON(t, "/synthesize/", map[string]any{
		"text":     "Hello",
		"voice_id": "voice-1",
		"accent":   "en-us",
		"speed":    1.25,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[server.SynthesizeResponse](t, rec)
	assert.Equal(t, "audio-1", resp.AudioID)
	assert.Equal(t, "voice-1", resp.VoiceID)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, "Speech synthesized successfully", resp.Message)

	assert.Equal(t, voice.Request{Text: "Hello", VoiceID: "voice-1", Accent: "en-us", Speed: 1.25}, srv.voices.lastRequest)
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		code   int
		detail string
	}{
		{name: "unknown voice", err: fmt.Errorf("%w: x", voice.ErrVoiceNotFound), code: http.StatusNotFound, detail: "Voice model not found"},
		{name: "speed", err: voice.ErrSpeedOutOfRange, code: http.StatusBadRequest, detail: "speed must be between 0.5 and 2.0"},
		{name: "text", err: voice.ErrTextEmpty, code: http.StatusBadRequest, detail: "text is required"},
		{
			name:   "backend failure",
			err:    fmt.Errorf("%w: %s: %w", voice.ErrSynthesis, "base synthesis", errBoom),
			code:   http.StatusInternalServerError,
			detail: "Speech synthesis failed: base synthesis: boom",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, nil, fakeCheckpoints{})
			srv.voices.synthesizeErr = testCase.err

			rec := srv.postJSON(t, "/synthesize/", map[string]any{"text": "hi", "voice_id": "x"})
			assert.Equal(t, testCase.code, rec.Code)
			assert.Equal(t, testCase.detail, decode[server.ErrorResponse](t, rec).Detail)
		})
	}
}

func TestSynthesize_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	req := httptest.NewRequest(http.MethodPost, "/synthesize/", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := srv.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decode[server.ErrorResponse](t, rec).Detail, "Invalid request body"))
}

func TestAudio(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})
	path := filepath.Join(t.TempDir(), "audio-1.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF-output"), 0o600))
	srv.voices.audioPath = path

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/audio/audio-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "audio-1.wav")
	assert.Equal(t, "RIFF-output", rec.Body.String())

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/audio/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Audio file not found", decode[server.ErrorResponse](t, rec).Detail)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})
	srv.voices.history = []registry.HistoryEntry{
		{AudioID: "audio-2", VoiceID: "voice-1", VoiceName: "Alice", Text: "second", Accent: "fr", Speed: 1},
		{AudioID: "audio-1", VoiceID: "voice-1", VoiceName: "Alice", Text: "first", Accent: "en-us", Speed: 1},
	}

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/history/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decode[[]registry.HistoryEntry](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "audio-2", entries[0].AudioID)
	assert.Equal(t, "Alice", entries[0].VoiceName)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voice_clone_synthesis_duration_seconds")
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, fakeCheckpoints{})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decode[server.ErrorResponse](t, rec).Detail)
}
