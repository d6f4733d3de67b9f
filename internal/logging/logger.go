// Package logging provides leveled logging and draw tracing for drawloop.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger for structured JSONL draw decisions (.drawloop/decisions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for per-item detail.
// At this level, full weight vectors are included with every step.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Components use it when
// no logger has been configured.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Decision events.
const (
	EventConfigure = "configure"
	EventDraw      = "draw"
)

// Decision is one line of decisions.jsonl. Configure events carry the run
// shape; draw events carry the pick and the pool's total weight after it.
type Decision struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	PoolSize   int       `json:"pool_size,omitempty"`
	TotalSteps int       `json:"total_steps,omitempty"`
	Step       int       `json:"step,omitempty"`
	Picked     *int      `json:"picked,omitempty"`
	Weight     float64   `json:"weight,omitempty"`
	Sum        float64   `json:"sum,omitempty"`
}

// DecisionLogger appends Decision records to dir/decisions.jsonl.
// It is safe for concurrent use, and every method is a no-op on a nil
// receiver so callers never need to check whether decision logging is on.
type DecisionLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewDecisionLogger opens dir/decisions.jsonl for append when level is
// debug or trace. At info and above, or if the file cannot be opened, it
// returns nil.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "decisions.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &DecisionLogger{file: f, enc: json.NewEncoder(f), now: time.Now}
}

// Configure records the start of a run.
func (dl *DecisionLogger) Configure(poolSize, totalSteps int) {
	dl.Record(Decision{Event: EventConfigure, PoolSize: poolSize, TotalSteps: totalSteps})
}

// Draw records one pick. weight is the picked item's weight before the
// draw; sum is the pool's total weight after it.
func (dl *DecisionLogger) Draw(step, picked int, weight, sum float64) {
	dl.Record(Decision{Event: EventDraw, Step: step, Picked: &picked, Weight: weight, Sum: sum})
}

// Record writes d as one line, stamping Time when it is zero.
func (dl *DecisionLogger) Record(d Decision) {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file == nil {
		return
	}
	if d.Time.IsZero() {
		d.Time = dl.now().UTC()
	}
	_ = dl.enc.Encode(d)
}

// Close closes the underlying file. Later calls do nothing.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}
