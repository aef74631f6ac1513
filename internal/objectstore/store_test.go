package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/objectstore"
)

// startJetStream starts an in-memory NATS server with JetStream enabled.
func startJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	return js
}

func TestStore_UploadDownload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := objectstore.New(ctx, startJetStream(t), "AUDIO_FILES")
	require.NoError(t, err)

	payload := []byte("RIFF....WAVEfmt ")
	require.NoError(t, store.Upload(ctx, "clip.wav", payload))

	downloaded, err := store.Download(ctx, "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, payload, downloaded)

	require.NoError(t, store.Upload(ctx, "clip.wav", []byte("replaced")))

	downloaded, err = store.Download(ctx, "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), downloaded)
}

func TestStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	js := startJetStream(t)

	first, err := objectstore.New(ctx, js, "TEXT_FILES")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "page-1.txt", []byte("chapter one")))

	second, err := objectstore.New(ctx, js, "TEXT_FILES")
	require.NoError(t, err)

	downloaded, err := second.Download(ctx, "page-1.txt")
	require.NoError(t, err)
	assert.Equal(t, "chapter one", string(downloaded))
}

func TestStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := objectstore.New(ctx, startJetStream(t), "TEXT_FILES")
	require.NoError(t, err)

	_, err = store.Download(ctx, "nope")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}
