// Package server exposes the voice service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/book-expert/voice-clone-service/internal/metrics"
	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/voice"
)

// Service identity reported by the root route.
const (
	ServiceName    = "OpenVoice V2 API Server"
	ServiceVersion = "2.0.0"
)

const logMsgRequest = "%s %s -> %d (%s)"

// VoiceService is the subset of voice.Service the HTTP layer calls.
type VoiceService interface {
	Upload(ctx context.Context, in voice.UploadInput) (*registry.VoiceModel, error)
	Synthesize(ctx context.Context, req voice.Request) (*voice.Result, error)
	GetVoice(ctx context.Context, id string) (*registry.VoiceModel, error)
	ListVoices(ctx context.Context) ([]registry.VoiceModel, error)
	History(ctx context.Context) ([]registry.HistoryEntry, error)
	AudioFile(ctx context.Context, id string) (string, error)
}

// HealthChecker reports whether a dependency can serve requests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckpointStatus reports missing checkpoint artifacts per set.
type CheckpointStatus interface {
	Status() map[string][]string
}

// Dependencies wires the handlers to the rest of the service.
type Dependencies struct {
	Voices      VoiceService
	Backend     HealthChecker
	Database    Pinger
	Checkpoints CheckpointStatus
	// RequiredSet names the checkpoint set whose absence degrades health.
	RequiredSet string
	MaxUploadMB int
	Log         *logger.Logger
}

type handlers struct {
	deps Dependencies
}

// New builds the echo instance serving every route.
func New(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Log)

	if deps.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", deps.MaxUploadMB)))
	}

	e.Use(requestLogger(deps.Log))
	e.Use(middleware.Recover())

	h := &handlers{deps: deps}

	e.GET("/", h.root)
	e.GET("/health", h.health)
	e.POST("/upload_voice/", h.uploadVoice)
	e.GET("/voices/", h.listVoices)
	e.GET("/voices/:id", h.getVoice)
	e.GET("/accents/", h.accents)
	e.POST("/synthesize/", h.synthesize)
	e.GET("/audio/:id", h.audio)
	e.GET("/history/", h.history)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return e
}

// errorHandler renders every error as {"detail": "..."}.
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = fmt.Sprint(he.Message)
		}

		if code >= http.StatusInternalServerError {
			log.Error("%s %s failed: %v", c.Request().Method, c.Request().URL.Path, err)
		}

		writeErr := c.JSON(code, ErrorResponse{Detail: detail})
		if writeErr != nil {
			log.Warn("Failed to write error response: %v", writeErr)
		}
	}
}

func requestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Info(logMsgRequest, c.Request().Method, c.Request().URL.Path,
				c.Response().Status, time.Since(started).Round(time.Millisecond))

			return nil
		}
	}
}
