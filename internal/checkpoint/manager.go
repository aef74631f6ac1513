package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/metrics"
)

const tempExtractPattern = "checkpoints-extract-*"

// Static errors.
var (
	ErrArchiveLayout     = errors.New("downloaded archive does not contain the expected structure")
	ErrArchiveSymlink    = errors.New("archive contains a symlink")
	ErrMissingArtifacts  = errors.New("required checkpoint artifacts are missing")
	ErrChecksumMismatch  = errors.New("checkpoint archive checksum mismatch")
	ErrDownloadFailed    = errors.New("checkpoint download failed")
	ErrDownloadURLAbsent = errors.New("no download URL configured")
)

// Manager owns the on-disk checkpoint trees and fetches missing artifacts.
type Manager struct {
	cfg    config.CheckpointsConfig
	client *http.Client
	log    *logger.Logger

	// fetchMu serializes downloads so concurrent callers merge each archive once.
	fetchMu sync.Mutex
}

// NewManager creates a checkpoint manager. A nil client gets one with the configured
// download timeout.
func NewManager(cfg config.CheckpointsConfig, client *http.Client, log *logger.Logger) *Manager {
	if client == nil {
		client = &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
		}
	}

	return &Manager{
		cfg:    cfg,
		client: client,
		log:    log,
	}
}

// Ensure makes every required artifact of set available under set.Dir, downloading and
// merging the published archive when something is missing.
func (m *Manager) Ensure(ctx context.Context, set Set) error {
	if len(set.Missing()) == 0 {
		return nil
	}

	m.fetchMu.Lock()
	defer m.fetchMu.Unlock()

	// Another caller may have finished the download while this one waited.
	if len(set.Missing()) == 0 {
		return nil
	}

	if set.URL == "" {
		return fmt.Errorf("%w for %s set", ErrDownloadURLAbsent, set.Name)
	}

	err := fsutil.EnsureDir(set.Dir)
	if err != nil {
		return err
	}

	err = m.fetchAndMerge(ctx, set)
	metrics.ObserveCheckpointDownload(set.Name, err)

	if err != nil {
		return fmt.Errorf("failed to fetch %s checkpoints: %w", set.Name, err)
	}

	missing := set.Missing()
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingArtifacts, strings.Join(missing, ", "))
	}

	m.log.Info("Checkpoints for %s are ready in %s", set.Name, set.Dir)

	return nil
}

func (m *Manager) fetchAndMerge(ctx context.Context, set Set) error {
	archivePath, err := m.download(ctx, set.Name, set.URL, set.SHA256)
	if err != nil {
		return err
	}

	defer func() {
		removeErr := fsutil.RemoveIfExists(archivePath)
		if removeErr != nil {
			m.log.Warn("Failed to remove temp archive '%s': %v", archivePath, removeErr)
		}
	}()

	extractDir, err := os.MkdirTemp("", tempExtractPattern)
	if err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(extractDir)
		if removeErr != nil {
			m.log.Warn("Failed to remove extraction directory '%s': %v", extractDir, removeErr)
		}
	}()

	err = extractArchive(archivePath, extractDir)
	if err != nil {
		return err
	}

	candidateRoot, err := findCandidateRoot(extractDir, set.Markers)
	if err != nil {
		return err
	}

	return m.mergeInto(candidateRoot, set.Dir)
}

// EnsureConverter makes the V2 converter checkpoints and accent embeddings available.
func (m *Manager) EnsureConverter(ctx context.Context) error {
	return m.Ensure(ctx, ConverterSet(m.cfg))
}

// Converter returns the tone-color converter artifact paths.
func (m *Manager) Converter() ConverterPaths {
	return ConverterPaths{
		ConfigPath:     filepath.Join(m.cfg.Dir, converterDir, configFile),
		CheckpointPath: filepath.Join(m.cfg.Dir, converterDir, checkpointFile),
	}
}

// SourceEmbeddingDir is the directory holding the accent source embeddings.
func (m *Manager) SourceEmbeddingDir() string {
	return filepath.Join(m.cfg.Dir, sesDir)
}

// ResolveBaseSpeaker picks the base TTS checkpoint. The V2 English speaker wins when
// both of its files exist; otherwise the V1 English speaker is ensured and used.
func (m *Manager) ResolveBaseSpeaker(ctx context.Context) (BaseSpeaker, error) {
	v2Config := filepath.Join(m.cfg.Dir, baseSpeakerV2Dir, configFile)
	v2Checkpoint := filepath.Join(m.cfg.Dir, baseSpeakerV2Dir, checkpointFile)

	if fsutil.AllExist(v2Config, v2Checkpoint) {
		return BaseSpeaker{
			Version:        baseSpeakerVersion2,
			ConfigPath:     v2Config,
			CheckpointPath: v2Checkpoint,
		}, nil
	}

	err := m.Ensure(ctx, BaseSpeakerV1Set(m.cfg))
	if err != nil {
		return BaseSpeaker{}, err
	}

	return BaseSpeaker{
		Version:        baseSpeakerVersion1,
		ConfigPath:     filepath.Join(m.cfg.BaseV1Dir, baseSpeakerV1Dir, configFile),
		CheckpointPath: filepath.Join(m.cfg.BaseV1Dir, baseSpeakerV1Dir, checkpointFile),
	}, nil
}

// Status reports missing artifacts per set without touching the network.
func (m *Manager) Status() map[string][]string {
	return map[string][]string{
		SetConverter:     ConverterSet(m.cfg).Missing(),
		SetBaseSpeakerV1: BaseSpeakerV1Set(m.cfg).Missing(),
	}
}
