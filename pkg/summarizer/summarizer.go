// Package summarizer defines the external text-summarisation service
// contract used by the consolidation engine (C8): given a system
// instruction, the ordered contents of a memory cluster, and an extracted
// topic, it returns a single summary string. This generalizes the shape
// of the teacher's pkg/llm.Provider (Generate/GenerateWithMessages/Close)
// to the one call consolidation actually needs, rather than a general
// chat interface.
package summarizer

import "context"

// Provider is implemented by every summarisation backend.
type Provider interface {
	// Summarize produces a single summary string from the ordered
	// contents of a consolidation cluster and its extracted topic.
	//
	// Per spec.md §6, errors from Summarize are non-retryable within a
	// consolidation run — the caller skips the whole cluster and
	// proceeds with the next one.
	Summarize(ctx context.Context, instruction string, contents []string, topic string) (string, error)

	// Close releases provider resources.
	Close() error
}

// DefaultInstruction is the system instruction used when the caller does
// not supply one explicitly.
const DefaultInstruction = "Produce a concise semantic summary that captures the shared meaning of the following related memories. Do not enumerate them; synthesize one coherent statement."
