// Package storelog provides structured operation logging for the
// cognitive memory engine: operation name, user id, elapsed time, and
// outcome. Only Engine.Create, Engine.Search and Engine.Consolidate record
// events here; the other repository, batch and graph operations emit none.
// The teacher repo carries no logging library for this
// ambient concern, so this adopts zerolog from the wider example pack
// (see intelligencedev-manifold's go.mod) rather than hand-rolling one.
package storelog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the engine's fixed event shape.
type Logger struct {
	z zerolog.Logger
}

// New creates a Logger writing to w (os.Stdout if w is nil).
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards all events, used as a safe default
// and in tests.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// Op records the outcome of one repository/engine operation.
type Op struct {
	Name    string
	UserID  string
	Elapsed time.Duration
	Err     error

	// Search-only fields, zero-valued when not applicable.
	Strategies  []string
	CacheHit    bool
	ResultCount int
}

// Record emits one structured log line for op.
func (l *Logger) Record(op Op) {
	ev := l.z.Info()
	if op.Err != nil {
		ev = l.z.Error().Err(op.Err)
	}
	ev = ev.Str("op", op.Name).
		Str("user_id", op.UserID).
		Dur("elapsed", op.Elapsed)

	if len(op.Strategies) > 0 {
		ev = ev.Strs("strategies", op.Strategies)
	}
	if op.CacheHit {
		ev = ev.Bool("cache_hit", op.CacheHit)
	}
	if op.ResultCount > 0 {
		ev = ev.Int("result_count", op.ResultCount)
	}
	ev.Msg("memengine operation")
}

// Warn emits a performance or fallback warning (e.g. full-text search
// falling back to a table scan, or consolidation falling back to the
// unindexed schema).
func (l *Logger) Warn(op, msg string, fields map[string]interface{}) {
	ev := l.z.Warn().Str("op", op)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
