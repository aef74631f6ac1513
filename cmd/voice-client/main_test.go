package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
		check   func(t *testing.T, flags appFlags)
	}{
		{
			name: "synthesis flags",
			args: []string{"--text", "Hello, world!", "--voice", "v1", "--accent", "fr", "--speed", "1.5"},
			check: func(t *testing.T, flags appFlags) {
				t.Helper()

				assert.Equal(t, "Hello, world!", flags.text)
				assert.Equal(t, "v1", flags.voice)
				assert.Equal(t, "fr", flags.accent)
				assert.InDelta(t, 1.5, flags.speed, 0.0001)
				assert.Equal(t, defaultOutputFile, flags.output)
				assert.Equal(t, defaultServerURL, flags.server)
				assert.Equal(t, defaultRequestTimeout, flags.timeout)
			},
		},
		{
			name: "upload flags",
			args: []string{"--upload", "me.wav", "--name", "Me", "--timeout", "30s"},
			check: func(t *testing.T, flags appFlags) {
				t.Helper()

				assert.Equal(t, "me.wav", flags.upload)
				assert.Equal(t, "Me", flags.name)
				assert.Equal(t, 30*time.Second, flags.timeout)
			},
		},
		{name: "no action", args: []string{}, wantErr: errNoActionGiven},
		{name: "upload without name", args: []string{"--upload", "me.wav"}, wantErr: errMissingName},
		{name: "text without voice", args: []string{"--text", "hi"}, wantErr: errMissingVoiceFlag},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
			testCase.check(t, flags)
		})
	}
}

var errStreamCut = errors.New("stream cut")

type fakeDownloader struct {
	payload string
	err     error
}

func (f fakeDownloader) DownloadAudio(_ context.Context, _ string, dst io.Writer) (int64, error) {
	written, err := io.WriteString(dst, f.payload)
	if err != nil {
		return 0, err
	}

	return int64(written), f.err
}

func TestDownloadTo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")

	written, err := downloadTo(context.Background(), fakeDownloader{payload: "RIFF-data"}, "a1", path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("RIFF-data")), written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", string(data))
}

func TestDownloadTo_FailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")

	_, err := downloadTo(context.Background(), fakeDownloader{payload: "RIF", err: errStreamCut}, "a1", path)
	require.ErrorIs(t, err, errStreamCut)
	assert.NoFileExists(t, path)
}

func TestDownloadTo_CreateFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing-dir", "out.wav")

	_, err := downloadTo(context.Background(), fakeDownloader{payload: "x"}, "a1", path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}
