// Package core defines the contracts shared between the voice service components.
package core

import (
	"context"

	"github.com/book-expert/voice-clone-service/internal/checkpoint"
	"github.com/book-expert/voice-clone-service/internal/model"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// ModelBackend is the voice model contract: embedding extraction, base speaker
// synthesis and tone-color conversion.
type ModelBackend interface {
	ExtractEmbedding(ctx context.Context, audio []byte, contentType string) (model.Embedding, error)
	Speakers(ctx context.Context, req model.CheckpointRequest) ([]string, error)
	Synthesize(ctx context.Context, req model.SynthesisRequest) ([]byte, error)
	Convert(ctx context.Context, req model.ConversionRequest) ([]byte, error)
}

// CheckpointResolver locates the model artifacts a synthesis needs.
type CheckpointResolver interface {
	ResolveBaseSpeaker(ctx context.Context) (checkpoint.BaseSpeaker, error)
	SourceEmbeddingDir() string
}
