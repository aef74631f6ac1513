// Package fsutil provides file and path utility functions for the voice service.
//
// It covers the small amount of filesystem bookkeeping the service needs:
// creating directories, probing for artifacts, formatting sizes for logs and
// deriving safe file names from client-supplied uploads.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Directory and file permissions.
const (
	DirPermissions  = 0o750
	FilePermissions = 0o600
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Size formatting constants.
const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// File extension constants.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extWAV  = ".wav"
	extWEBM = ".webm"
)

// DefaultAudioExtension is used when an upload carries no usable extension.
const DefaultAudioExtension = extWAV

const (
	invalidCharReplacement  = "_"
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtStatFailed        = "failed to stat %s: %w"
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if errors.Is(statErr, fs.ErrNotExist) {
		mkdirErr := os.MkdirAll(path, DirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}

		return nil
	}

	if statErr != nil {
		return fmt.Errorf(errFmtStatFailed, path, statErr)
	}

	return nil
}

// FileExists reports whether path exists. Permission and other stat errors count as
// absent.
func FileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// AllExist reports whether every path in paths exists.
func AllExist(paths ...string) bool {
	for _, path := range paths {
		if !FileExists(path) {
			return false
		}
	}

	return true
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// AudioContentType returns the MIME type for an audio file name, falling back to
// audio/wav for unknown extensions.
func AudioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extMP3:
		return "audio/mpeg"
	case extFLAC:
		return "audio/flac"
	case extOGG:
		return "audio/ogg"
	case extM4A:
		return "audio/mp4"
	case extAAC:
		return "audio/aac"
	case extWEBM:
		return "audio/webm"
	default:
		return "audio/wav"
	}
}

// IsValidAudioFile checks if a filename has a common audio file extension.
func IsValidAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC, extWEBM:
		return true
	default:
		return false
	}
}

// AudioExtension returns the extension to store an uploaded sample under. The
// client-supplied suffix is kept when present, otherwise DefaultAudioExtension.
func AudioExtension(filename string) string {
	ext := SanitizeFilename(filepath.Ext(filepath.Base(filename)))
	if ext == "" || ext == "." {
		return DefaultAudioExtension
	}

	return ext
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
		" ", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
