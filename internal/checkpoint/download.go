package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
)

const (
	progressStepPercent = 25
	percentScale        = 100
	tempArchivePattern  = "checkpoints-*.zip"
)

// progressWriter hashes everything written through it and logs coarse progress.
type progressWriter struct {
	ctx      context.Context
	log      *logger.Logger
	name     string
	total    int64
	written  int64
	nextStep int64
	hash     hash.Hash
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	select {
	case <-pw.ctx.Done():
		return 0, pw.ctx.Err()
	default:
	}

	n, err := pw.hash.Write(p)
	if err != nil {
		return n, err
	}

	pw.written += int64(n)

	if pw.total > 0 {
		percentage := pw.written * percentScale / pw.total
		if percentage >= pw.nextStep {
			pw.log.Info("Downloading %s: %s/%s (%d%%)", pw.name,
				fsutil.FormatFileSize(pw.written), fsutil.FormatFileSize(pw.total), percentage)

			pw.nextStep = (percentage/progressStepPercent + 1) * progressStepPercent
		}
	}

	return n, nil
}

// download fetches url into a new temporary file and returns its path. The caller
// owns the file. When expectedSHA is set the content digest must match it.
func (m *Manager) download(ctx context.Context, name, url, expectedSHA string) (string, error) {
	tmpFile, err := os.CreateTemp("", tempArchivePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive file: %w", err)
	}

	tmpPath := tmpFile.Name()

	copyErr := m.fetchInto(ctx, name, url, expectedSHA, tmpFile)

	closeErr := tmpFile.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close temp archive file: %w", closeErr)
	}

	if copyErr != nil {
		removeErr := fsutil.RemoveIfExists(tmpPath)
		if removeErr != nil {
			m.log.Warn("Failed to remove partial archive '%s': %v", tmpPath, removeErr)
		}

		return "", copyErr
	}

	return tmpPath, nil
}

func (m *Manager) fetchInto(ctx context.Context, name, url, expectedSHA string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	m.log.Info("Downloading %s checkpoints from %s", name, url)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrDownloadFailed, url, resp.Status)
	}

	progress := &progressWriter{
		ctx:   ctx,
		log:   m.log,
		name:  name,
		total: resp.ContentLength,
		hash:  sha256.New(),
	}

	written, err := io.Copy(io.MultiWriter(dst, progress), resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write archive for %s: %w", name, err)
	}

	if expectedSHA != "" {
		calculated := hex.EncodeToString(progress.hash.Sum(nil))
		if !strings.EqualFold(calculated, expectedSHA) {
			return fmt.Errorf("%w: calculated %s, expected %s", ErrChecksumMismatch, calculated, expectedSHA)
		}
	}

	m.log.Info("Downloaded %s checkpoints (%s)", name, fsutil.FormatFileSize(written))

	return nil
}
