// Package worker provides a NATS worker that turns text-processed events into cloned
// speech.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/voice"
)

// DefaultJobTimeout bounds a single job when none is configured.
const DefaultJobTimeout = 5 * time.Minute

var (
	// ErrVoiceEmpty indicates that the event names no voice model.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrTextKeyEmpty indicates that the event carries no text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
)

// Synthesizer renders text in a registered voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, req voice.Request) (*voice.Result, error)
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	synthesizer    Synthesizer
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. Text is read from textStore
// and the rendered audio is written to audioStore.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore, audioStore core.ObjectStore,
	synthesizer Synthesizer,
	jobTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		synthesizer:    synthesizer,
		jobTimeout:     jobTimeout,
		log:            log,
	}
}

// Run subscribes to the subject and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis jobs on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Dropping synthesis job: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	w.log.Info("Workflow %s page %d/%d rendered to %s",
		event.Header.WorkflowID, event.PageNumber, event.TotalPages, audioKey)
}

// processJob downloads the page text, speaks it in the requested voice and uploads
// the result.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	result, err := w.synthesizer.Synthesize(ctx, voice.Request{
		Text:    strings.TrimSpace(string(textData)),
		VoiceID: event.Voice,
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize text '%s': %w", event.TextKey, err)
	}

	audioData, err := os.ReadFile(result.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read generated audio %s: %w", result.FilePath, err)
	}

	audioKey := filepath.Base(result.FilePath)

	err = w.audioStore.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

func publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if strings.TrimSpace(event.Voice) == "" {
		return nil, ErrVoiceEmpty
	}

	if strings.TrimSpace(event.TextKey) == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
