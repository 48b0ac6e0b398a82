// Package embedder defines the external embedding-vector producer
// contract: given (text, sector) it returns a fixed-dimension vector.
// This generalizes the teacher's pkg/embedder.Provider (Embed, EmbedBatch,
// Dimensions, Close) to the five-sector shape the engine's data model
// requires, keeping the same method names and error-handling style.
package embedder

import (
	"context"

	"github.com/cogmem/engine/pkg/model"
)

// Provider is implemented by every embedding backend (OpenAI, ...).
type Provider interface {
	// Embed converts text into a single sector's vector embedding.
	Embed(ctx context.Context, text string, sector model.Sector) ([]float64, error)

	// EmbedAllSectors produces all five per-sector vectors for one piece
	// of content in a single logical call, used by the repository on
	// memory create/update.
	EmbedAllSectors(ctx context.Context, text string) (map[model.Sector][]float64, error)

	// Dimensions returns D, the fixed dimension shared across all sectors.
	Dimensions() int

	// Close releases provider resources (HTTP clients, connection pools).
	Close() error
}

// WithRetry wraps a Provider so that a failing Embed call is attempted up
// to MaxAttempts times in total (at least once), returning the last error
// once the attempts are used up. A cancelled context stops the attempts
// early and returns ctx.Err().
type WithRetry struct {
	Provider
	MaxAttempts int
}

// Embed retries the wrapped provider's Embed call.
func (r WithRetry) Embed(ctx context.Context, text string, sector model.Sector) ([]float64, error) {
	var lastErr error
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		vec, err := r.Provider.Embed(ctx, text, sector)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	return nil, lastErr
}

// EmbedAllSectors retries the wrapped provider's EmbedAllSectors call.
func (r WithRetry) EmbedAllSectors(ctx context.Context, text string) (map[model.Sector][]float64, error) {
	var lastErr error
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		vecs, err := r.Provider.EmbedAllSectors(ctx, text)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	return nil, lastErr
}
