package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archiver/v3"
	"github.com/otiai10/copy"

	"github.com/book-expert/voice-clone-service/internal/fsutil"
)

// extractArchive unpacks a zip archive into dst. Archives carrying symlinks are
// rejected before anything is written.
func extractArchive(archive, dst string) error {
	zipFormat := archiver.NewZip()
	zipFormat.OverwriteExisting = true
	zipFormat.MkdirAll = true
	zipFormat.ImplicitTopLevelFolder = false

	err := zipFormat.Walk(archive, func(f archiver.File) error {
		if f.FileInfo.Mode()&os.ModeSymlink != 0 {
			return ErrArchiveSymlink
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to inspect archive %s: %w", archive, err)
	}

	err = zipFormat.Unarchive(archive, dst)
	if err != nil {
		return fmt.Errorf("failed to extract archive %s: %w", archive, err)
	}

	return nil
}

// findCandidateRoot walks root top-down and returns the first directory containing
// every marker.
func findCandidateRoot(root string, markers []string) (string, error) {
	var candidate string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !entry.IsDir() {
			return nil
		}

		for _, marker := range markers {
			if !fsutil.FileExists(filepath.Join(path, marker)) {
				return nil
			}
		}

		candidate = path

		return filepath.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan extracted archive: %w", err)
	}

	if candidate == "" {
		return "", ErrArchiveLayout
	}

	return candidate, nil
}

// mergeInto moves every top-level entry of src into dst. Directories already present
// in dst are left alone; files always replace their destination.
func (m *Manager) mergeInto(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", src, err)
	}

	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			_, statErr := os.Stat(to)
			if statErr == nil {
				m.log.Warn("Keeping existing directory %s, archive copy not merged", to)

				continue
			}

			if !errors.Is(statErr, fs.ErrNotExist) {
				return fmt.Errorf("failed to stat %s: %w", to, statErr)
			}
		}

		moveErr := move(from, to)
		if moveErr != nil {
			return moveErr
		}
	}

	return nil
}

// move renames from to to, falling back to copy-and-delete across filesystems.
func move(from, to string) error {
	renameErr := os.Rename(from, to)
	if renameErr == nil {
		return nil
	}

	copyErr := copy.Copy(from, to)
	if copyErr != nil {
		return fmt.Errorf("failed to move %s to %s: %w", from, to, errors.Join(renameErr, copyErr))
	}

	removeErr := os.RemoveAll(from)
	if removeErr != nil {
		return fmt.Errorf("failed to remove %s after copy: %w", from, removeErr)
	}

	return nil
}
