// Package registry persists voice models and the audio generated from them in a
// single-file SQLite database.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/book-expert/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/book-expert/voice-clone-service/internal/fsutil"
)

// Static errors.
var (
	ErrVoiceNotFound = errors.New("voice model not found")
	ErrAudioNotFound = errors.New("audio file not found")
	ErrInvalidRecord = errors.New("invalid record")
)

const historyQuery = `generated_audio.id AS audio_id, generated_audio.voice_id, ` +
	`voice_models.name AS voice_name, generated_audio.text, generated_audio.accent, ` +
	`generated_audio.speed, generated_audio.created_at`

// Store is the GORM-backed registry.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, log *logger.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		dirErr := fsutil.EnsureDir(dir)
		if dirErr != nil {
			return nil, dirErr
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.AutoMigrate(&VoiceModel{}, &GeneratedAudio{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}

	log.Info("Registry opened at %s", path)

	return &Store{db: db, log: log}, nil
}

// CreateVoice inserts a new voice model.
func (s *Store) CreateVoice(ctx context.Context, voice *VoiceModel) error {
	if voice.ID == "" || voice.Name == "" || voice.SEFilePath == "" {
		return fmt.Errorf("%w: voice needs an id, a name and an embedding path", ErrInvalidRecord)
	}

	err := s.db.WithContext(ctx).Create(voice).Error
	if err != nil {
		return fmt.Errorf("failed to insert voice %s: %w", voice.ID, err)
	}

	return nil
}

// GetVoice returns the voice with the given id.
func (s *Store) GetVoice(ctx context.Context, id string) (*VoiceModel, error) {
	var voice VoiceModel

	err := s.db.WithContext(ctx).Where("id = ?", id).First(&voice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVoiceNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load voice %s: %w", id, err)
	}

	return &voice, nil
}

// ListVoices returns every voice in creation order.
func (s *Store) ListVoices(ctx context.Context) ([]VoiceModel, error) {
	voices := make([]VoiceModel, 0)

	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&voices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	return voices, nil
}

// CreateGeneration inserts a generated audio record. The owning voice is looked up
// first; a missing voice yields ErrVoiceNotFound and nothing is written.
func (s *Store) CreateGeneration(ctx context.Context, audio *GeneratedAudio) error {
	if audio.ID == "" || audio.FilePath == "" {
		return fmt.Errorf("%w: generated audio needs an id and a file path", ErrInvalidRecord)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64

		err := tx.Model(&VoiceModel{}).Where("id = ?", audio.VoiceID).Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to look up voice %s: %w", audio.VoiceID, err)
		}

		if count == 0 {
			return fmt.Errorf("%w: %s", ErrVoiceNotFound, audio.VoiceID)
		}

		err = tx.Create(audio).Error
		if err != nil {
			return fmt.Errorf("failed to insert generated audio %s: %w", audio.ID, err)
		}

		return nil
	})
}

// GetGeneration returns the generated audio record with the given id.
func (s *Store) GetGeneration(ctx context.Context, id string) (*GeneratedAudio, error) {
	var audio GeneratedAudio

	err := s.db.WithContext(ctx).Where("id = ?", id).First(&audio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAudioNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load generated audio %s: %w", id, err)
	}

	return &audio, nil
}

// History returns every generation joined with its voice name, newest first.
func (s *Store) History(ctx context.Context) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0)

	err := s.db.WithContext(ctx).
		Model(&GeneratedAudio{}).
		Select(historyQuery).
		Joins("JOIN voice_models ON generated_audio.voice_id = voice_models.id").
		Order("generated_audio.created_at DESC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return entries, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}

	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}

	return sqlDB.Close()
}
