package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/voice"
)

// Response details.
const (
	detailFileRequired     = "File is required"
	detailNotAudio         = "File must be an audio file"
	detailVoiceNotFound    = "Voice model not found"
	detailAudioNotFound    = "Audio file not found"
	detailProcessingFailed = "Voice processing failed: "
	detailSynthesisFailed  = "Speech synthesis failed: "
	detailInvalidBody      = "Invalid request body: "
	msgUploaded            = "Voice uploaded and processed successfully"
	msgSynthesized         = "Speech synthesized successfully"
	contentTypeWAV         = "audio/wav"
	statusHealthy          = "healthy"
	statusDegraded         = "degraded"
	statusOK               = "ok"
	healthCheckTimeout     = 5 * time.Second
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RootResponse identifies the service.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// HealthResponse reports the state of each dependency.
type HealthResponse struct {
	Status      string              `json:"status"`
	Backend     string              `json:"model_backend"`
	Database    string              `json:"database"`
	Checkpoints map[string][]string `json:"checkpoints"`
}

// UploadResponse acknowledges a registered voice.
type UploadResponse struct {
	VoiceID     string  `json:"voice_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Message     string  `json:"message"`
}

// VoiceResponse is the public view of a voice model.
type VoiceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// SynthesizeRequest is the body of POST /synthesize/.
type SynthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Accent  string  `json:"accent"`
	Speed   float64 `json:"speed"`
}

// SynthesizeResponse acknowledges a finished synthesis.
type SynthesizeResponse struct {
	AudioID  string `json:"audio_id"`
	VoiceID  string `json:"voice_id"`
	Text     string `json:"text"`
	FilePath string `json:"file_path"`
	Message  string `json:"message"`
}

func (h *handlers) root(c echo.Context) error {
	return c.JSON(http.StatusOK, RootResponse{Message: ServiceName, Version: ServiceVersion})
}

func (h *handlers) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:      statusHealthy,
		Backend:     statusOK,
		Database:    statusOK,
		Checkpoints: h.deps.Checkpoints.Status(),
	}

	backendErr := h.deps.Backend.HealthCheck(ctx)
	if backendErr != nil {
		resp.Status = statusDegraded
		resp.Backend = backendErr.Error()
	}

	dbErr := h.deps.Database.Ping(ctx)
	if dbErr != nil {
		resp.Status = statusDegraded
		resp.Database = dbErr.Error()
	}

	if len(resp.Checkpoints[h.deps.RequiredSet]) > 0 {
		resp.Status = statusDegraded
	}

	code := http.StatusOK
	if resp.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, resp)
}

func (h *handlers) uploadVoice(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, detailFileRequired)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, detailFileRequired)
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, detailInvalidBody+err.Error())
	}

	created, err := h.deps.Voices.Upload(c.Request().Context(), voice.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Body:        body,
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
	})

	switch {
	case errors.Is(err, voice.ErrNotAudio):
		return echo.NewHTTPError(http.StatusBadRequest, detailNotAudio)
	case errors.Is(err, voice.ErrNameRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError,
			detailProcessingFailed+cause(err, voice.ErrProcessing)).SetInternal(err)
	}

	return c.JSON(http.StatusOK, UploadResponse{
		VoiceID:     created.ID,
		Name:        created.Name,
		Description: created.Description,
		Message:     msgUploaded,
	})
}

func (h *handlers) listVoices(c echo.Context) error {
	voices, err := h.deps.Voices.ListVoices(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]VoiceResponse, 0, len(voices))
	for i := range voices {
		resp = append(resp, toVoiceResponse(&voices[i]))
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) getVoice(c echo.Context) error {
	found, err := h.deps.Voices.GetVoice(c.Request().Context(), c.Param("id"))
	if errors.Is(err, registry.ErrVoiceNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, detailVoiceNotFound)
	}

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toVoiceResponse(found))
}

func (h *handlers) accents(c echo.Context) error {
	return c.JSON(http.StatusOK, voice.Accents())
}

func (h *handlers) synthesize(c echo.Context) error {
	var req SynthesizeRequest

	bindErr := c.Bind(&req)
	if bindErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, detailInvalidBody+bindErr.Error())
	}

	result, err := h.deps.Voices.Synthesize(c.Request().Context(), voice.Request{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		Accent:  req.Accent,
		Speed:   req.Speed,
	})

	switch {
	case errors.Is(err, voice.ErrVoiceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, detailVoiceNotFound)
	case errors.Is(err, voice.ErrTextEmpty), errors.Is(err, voice.ErrSpeedOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError,
			detailSynthesisFailed+cause(err, voice.ErrSynthesis)).SetInternal(err)
	}

	return c.JSON(http.StatusOK, SynthesizeResponse{
		AudioID:  result.AudioID,
		VoiceID:  result.VoiceID,
		Text:     result.Text,
		FilePath: result.FilePath,
		Message:  msgSynthesized,
	})
}

func (h *handlers) audio(c echo.Context) error {
	id := c.Param("id")

	path, err := h.deps.Voices.AudioFile(c.Request().Context(), id)
	if errors.Is(err, registry.ErrAudioNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, detailAudioNotFound)
	}

	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, contentTypeWAV)

	return c.Attachment(path, id+".wav")
}

func (h *handlers) history(c echo.Context) error {
	entries, err := h.deps.Voices.History(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

func toVoiceResponse(model *registry.VoiceModel) VoiceResponse {
	return VoiceResponse{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		CreatedAt:   model.CreatedAt,
	}
}

// cause strips the sentinel prefix from err so the detail reads
// "<prefix>: <underlying error>" once.
func cause(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
