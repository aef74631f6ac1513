// Package voice orchestrates voice cloning: registering reference samples as voice
// models and rendering text in a registered voice.
package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/metrics"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/text"
)

// Speed bounds and defaults.
const (
	DefaultSpeed = 1.0
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
)

const (
	audioContentPrefix = "audio/"
	outputExt          = ".wav"
)

// Log messages.
const (
	logMsgVoiceRegistered  = "Registered voice %s (%s) from %s, embedding %s"
	logMsgSynthesisDone    = "Synthesized %s with voice %s (accent %s, speed %.2f, %s) in %s"
	logMsgSpeakersFallback = "Could not list base speakers, using %s: %v"
	logMsgInspectFailed    = "Could not inspect generated audio %s: %v"
	logMsgCleanupFailed    = "Failed to remove %s: %v"
)

// Error formats.
const (
	errFmtProcessing    = "%w: %w"
	errFmtSynthesisStep = "%w: %s: %w"
)

// Static errors.
var (
	ErrNotAudio        = errors.New("file must be an audio file")
	ErrNameRequired    = errors.New("voice name is required")
	ErrProcessing      = errors.New("voice processing failed")
	ErrTextEmpty       = errors.New("text is required")
	ErrSpeedOutOfRange = errors.New("speed must be between 0.5 and 2.0")
	ErrSynthesis       = errors.New("speech synthesis failed")
	ErrVoiceNotFound   = registry.ErrVoiceNotFound
	ErrAudioNotFound   = registry.ErrAudioNotFound
)

// Options holds the settings of a Service.
type Options struct {
	VoicesDir      string
	AudioDir       string
	Device         string
	Language       string
	Watermark      string
	PreprocessText bool
}

// UploadInput is a reference sample submitted for cloning.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        []byte
	Name        string
	Description string
}

// Request asks for text to be spoken in a registered voice. Zero Accent and Speed
// take their defaults.
type Request struct {
	Text    string
	VoiceID string
	Accent  string
	Speed   float64
}

// Result describes a finished synthesis.
type Result struct {
	AudioID  string
	VoiceID  string
	Text     string
	FilePath string
	Accent   string
	Speed    float64
	Info     *audio.Info
}

// Service implements the voice operations on top of the model backend and the
// registry.
type Service struct {
	backend     core.ModelBackend
	checkpoints core.CheckpointResolver
	store       *registry.Store
	normalizer  *text.Normalizer
	opts        Options
	log         *logger.Logger
	now         func() time.Time
}

// NewService creates a Service and makes sure its output directories exist.
func NewService(
	backend core.ModelBackend,
	checkpoints core.CheckpointResolver,
	store *registry.Store,
	opts Options,
	log *logger.Logger,
) (*Service, error) {
	for _, dir := range []string{opts.VoicesDir, opts.AudioDir} {
		err := fsutil.EnsureDir(dir)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		backend:     backend,
		checkpoints: checkpoints,
		store:       store,
		normalizer:  text.NewNormalizer(),
		opts:        opts,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upload registers a reference sample as a new voice model. Nothing is left on disk
// when any step after validation fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*registry.VoiceModel, error) {
	voice, err := s.upload(ctx, in)
	metrics.ObserveUpload(err)

	return voice, err
}

func (s *Service) upload(ctx context.Context, in UploadInput) (*registry.VoiceModel, error) {
	if !strings.HasPrefix(strings.ToLower(in.ContentType), audioContentPrefix) {
		return nil, ErrNotAudio
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	id := uuid.NewString()
	samplePath := filepath.Join(s.opts.VoicesDir, id+fsutil.AudioExtension(in.Filename))
	embeddingPath := filepath.Join(s.opts.VoicesDir, id+embeddingExt)

	voice, err := s.register(ctx, in, id, name, samplePath, embeddingPath)
	if err != nil {
		s.remove(samplePath)
		s.remove(embeddingPath)

		return nil, fmt.Errorf(errFmtProcessing, ErrProcessing, err)
	}

	s.log.Info(logMsgVoiceRegistered, voice.ID, voice.Name,
		fsutil.FormatFileSize(int64(len(in.Body))), embeddingPath)

	return voice, nil
}

func (s *Service) register(
	ctx context.Context,
	in UploadInput,
	id, name, samplePath, embeddingPath string,
) (*registry.VoiceModel, error) {
	err := os.WriteFile(samplePath, in.Body, fsutil.FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to save sample: %w", err)
	}

	embedding, err := s.backend.ExtractEmbedding(ctx, in.Body, in.ContentType)
	if err != nil {
		return nil, err
	}

	err = os.WriteFile(embeddingPath, embedding, fsutil.FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to save embedding: %w", err)
	}

	voice := &registry.VoiceModel{
		ID:         id,
		Name:       name,
		FilePath:   samplePath,
		SEFilePath: embeddingPath,
		CreatedAt:  s.now(),
	}

	description := strings.TrimSpace(in.Description)
	if description != "" {
		voice.Description = &description
	}

	err = s.store.CreateVoice(ctx, voice)
	if err != nil {
		return nil, err
	}

	return voice, nil
}

// Synthesize speaks req.Text in the voice req.VoiceID and records the output.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	if req.Accent == "" {
		req.Accent = DefaultAccent
	}

	if req.Speed == 0 {
		req.Speed = DefaultSpeed
	}

	result, err := s.synthesize(ctx, req)
	metrics.ObserveSynthesis(ResolveAccent(req.Accent), started, err)

	if err == nil {
		s.log.Info(logMsgSynthesisDone, result.AudioID, result.VoiceID, result.Accent,
			result.Speed, describe(result.Info), time.Since(started).Round(time.Millisecond))
	}

	return result, err
}

func (s *Service) synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.Speed < MinSpeed || req.Speed > MaxSpeed {
		return nil, ErrSpeedOutOfRange
	}

	voice, err := s.store.GetVoice(ctx, req.VoiceID)
	if err != nil {
		return nil, err
	}

	wav, err := s.render(ctx, voice, req)
	if err != nil {
		return nil, err
	}

	audioID := uuid.NewString()
	outputPath := filepath.Join(s.opts.AudioDir, audioID+outputExt)

	err = os.WriteFile(outputPath, wav, fsutil.FilePermissions)
	if err != nil {
		s.remove(outputPath)

		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "write output", err)
	}

	result := &Result{
		AudioID:  audioID,
		VoiceID:  voice.ID,
		Text:     req.Text,
		FilePath: outputPath,
		Accent:   req.Accent,
		Speed:    req.Speed,
	}

	info, inspectErr := audio.Inspect(wav)
	if inspectErr != nil {
		s.log.Warn(logMsgInspectFailed, outputPath, inspectErr)
	} else {
		result.Info = &info
	}

	err = s.store.CreateGeneration(ctx, &registry.GeneratedAudio{
		ID:        audioID,
		VoiceID:   voice.ID,
		Text:      req.Text,
		FilePath:  outputPath,
		Accent:    req.Accent,
		Speed:     req.Speed,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.remove(outputPath)

		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "record output", err)
	}

	return result, nil
}

// render runs base synthesis and tone-color conversion and returns the converted WAV.
func (s *Service) render(ctx context.Context, voice *registry.VoiceModel, req Request) ([]byte, error) {
	target, err := os.ReadFile(voice.SEFilePath)
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "load voice embedding", err)
	}

	base, err := s.checkpoints.ResolveBaseSpeaker(ctx)
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "resolve base speaker", err)
	}

	source, err := os.ReadFile(sourceEmbeddingPath(s.checkpoints.SourceEmbeddingDir(), req.Accent))
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "load accent embedding", err)
	}

	baseRequest := model.CheckpointRequest{
		ConfigPath:     base.ConfigPath,
		CheckpointPath: base.CheckpointPath,
		Device:         s.opts.Device,
	}

	baseAudio, err := s.backend.Synthesize(ctx, model.SynthesisRequest{
		CheckpointRequest: baseRequest,
		Text:              s.spokenText(req.Text),
		Speaker:           s.speaker(ctx, baseRequest),
		Language:          s.opts.Language,
		Speed:             req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "base synthesis", err)
	}

	converted, err := s.backend.Convert(ctx, model.ConversionRequest{
		Audio:           baseAudio,
		SourceEmbedding: model.Embedding(source),
		TargetEmbedding: model.Embedding(target),
		Watermark:       s.opts.Watermark,
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesisStep, ErrSynthesis, "tone color conversion", err)
	}

	return converted, nil
}

func (s *Service) speaker(ctx context.Context, req model.CheckpointRequest) string {
	speakers, err := s.backend.Speakers(ctx, req)
	if err != nil {
		s.log.Warn(logMsgSpeakersFallback, preferredSpeaker, err)

		return preferredSpeaker
	}

	return pickSpeaker(speakers)
}

// spokenText is the text handed to the base model. The stored record always keeps
// the text as submitted.
func (s *Service) spokenText(raw string) string {
	if !s.opts.PreprocessText {
		return raw
	}

	normalized := s.normalizer.Normalize(raw)
	if normalized == "" {
		return raw
	}

	return normalized
}

// GetVoice returns a registered voice.
func (s *Service) GetVoice(ctx context.Context, id string) (*registry.VoiceModel, error) {
	return s.store.GetVoice(ctx, id)
}

// ListVoices returns every registered voice.
func (s *Service) ListVoices(ctx context.Context) ([]registry.VoiceModel, error) {
	return s.store.ListVoices(ctx)
}

// History returns the synthesis history, newest first.
func (s *Service) History(ctx context.Context) ([]registry.HistoryEntry, error) {
	return s.store.History(ctx)
}

// AudioFile returns the path of a generated audio file. A record whose file is gone
// reports ErrAudioNotFound.
func (s *Service) AudioFile(ctx context.Context, id string) (string, error) {
	generation, err := s.store.GetGeneration(ctx, id)
	if err != nil {
		return "", err
	}

	if !fsutil.FileExists(generation.FilePath) {
		return "", fmt.Errorf("%w: %s", ErrAudioNotFound, generation.FilePath)
	}

	return generation.FilePath, nil
}

func (s *Service) remove(path string) {
	err := fsutil.RemoveIfExists(path)
	if err != nil {
		s.log.Warn(logMsgCleanupFailed, path, err)
	}
}

func describe(info *audio.Info) string {
	if info == nil {
		return "unknown format"
	}

	return fmt.Sprintf("%s %d Hz, %s", info.Format, info.SampleRate, info.Duration.Round(time.Millisecond))
}
