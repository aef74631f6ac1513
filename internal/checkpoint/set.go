// Package checkpoint guarantees that the model artifacts the backend loads are present
// on disk, downloading and unpacking the published archives when they are not.
package checkpoint

import (
	"path/filepath"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
)

// Set names.
const (
	SetConverter     = "converter"
	SetBaseSpeakerV1 = "base-v1"
)

// Paths inside the converter (V2) checkpoint tree.
const (
	converterDir        = "converter"
	configFile          = "config.json"
	checkpointFile      = "checkpoint.pth"
	sesDir              = "base_speakers/ses"
	defaultSESFile      = "en-newest.pth"
	baseSpeakerV2Dir    = "base_speakers/EN_V2"
	baseSpeakerV1Dir    = "base_speakers/EN"
	baseSpeakerVersion1 = "v1"
	baseSpeakerVersion2 = "v2"
)

// Set describes a group of artifacts that ship together in one archive. Required and
// Markers are relative to Dir.
type Set struct {
	Name     string
	Dir      string
	URL      string
	SHA256   string
	Required []string
	Markers  []string
}

// RequiredPaths returns the absolute-or-relative paths of every required artifact.
func (s Set) RequiredPaths() []string {
	paths := make([]string, 0, len(s.Required))
	for _, rel := range s.Required {
		paths = append(paths, filepath.Join(s.Dir, rel))
	}

	return paths
}

// Missing lists the required artifacts that do not exist yet.
func (s Set) Missing() []string {
	var missing []string

	for _, path := range s.RequiredPaths() {
		if !fsutil.FileExists(path) {
			missing = append(missing, path)
		}
	}

	return missing
}

// ConverterSet describes the V2 tone-color converter checkpoints together with the
// accent source embeddings.
func ConverterSet(cfg config.CheckpointsConfig) Set {
	return Set{
		Name:   SetConverter,
		Dir:    cfg.Dir,
		URL:    cfg.URL,
		SHA256: cfg.SHA256,
		Required: []string{
			filepath.Join(converterDir, configFile),
			filepath.Join(converterDir, checkpointFile),
			filepath.Join(sesDir, defaultSESFile),
		},
		Markers: []string{
			filepath.Join(converterDir, configFile),
			filepath.Join(converterDir, checkpointFile),
		},
	}
}

// BaseSpeakerV1Set describes the V1 English base speaker checkpoints.
func BaseSpeakerV1Set(cfg config.CheckpointsConfig) Set {
	files := []string{
		filepath.Join(baseSpeakerV1Dir, configFile),
		filepath.Join(baseSpeakerV1Dir, checkpointFile),
	}

	return Set{
		Name:     SetBaseSpeakerV1,
		Dir:      cfg.BaseV1Dir,
		URL:      cfg.BaseV1URL,
		SHA256:   cfg.BaseV1SHA256,
		Required: files,
		Markers:  files,
	}
}

// ConverterPaths points at the tone-color converter artifacts.
type ConverterPaths struct {
	ConfigPath     string
	CheckpointPath string
}

// BaseSpeaker points at the base TTS model used before tone-color conversion.
type BaseSpeaker struct {
	Version        string
	ConfigPath     string
	CheckpointPath string
}
