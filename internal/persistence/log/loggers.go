// Package log writes the engine's tick, intent, and outcome streams as
// hourly-rotated zstd-compressed JSONL. Each stream lives in its own
// subdirectory under the run directory; lines are protocol records so
// replay and external consumers never import the engine.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/protocol"
	"warband.ai/internal/sim/bots"
	"warband.ai/internal/sim/orders"
)

const hourLayout = "2006-01-02-15"

// LoggerOptions tunes segment rotation. RotateLayout overrides the
// hourly time layout; a finer layout seals segments sooner, which
// matters when an artifact mirror uploads sealed files. OnClose fires
// with the path of every sealed segment, the final one included.
type LoggerOptions struct {
	RotateLayout string
	OnClose      func(path string)
}

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	layout  string
	onClose func(string)
	now     func() time.Time

	mu       sync.Mutex
	curStamp string
	curPath  string
	f        *os.File
	enc      *zstd.Encoder
	w        *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return NewJSONLZstdWriterWithOptions(baseDir, prefix, LoggerOptions{})
}

func NewJSONLZstdWriterWithOptions(baseDir, prefix string, opts LoggerOptions) *JSONLZstdWriter {
	layout := opts.RotateLayout
	if layout == "" {
		layout = hourLayout
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		layout:  layout,
		onClose: opts.OnClose,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp := w.now().UTC().Format(w.layout)
	if stamp != w.curStamp {
		if err := w.rotateLocked(stamp); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(stamp string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.segmentPath(stamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curStamp = stamp
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	if w.curPath != "" && w.onClose != nil {
		w.onClose(w.curPath)
	}
	w.curPath = ""
	return err1
}

func (w *JSONLZstdWriter) segmentPath(stamp string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, stamp))
}

// TickLogger writes one boundary summary per tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir string) *TickLogger {
	return NewTickLoggerWithOptions(runDir, LoggerOptions{})
}

func NewTickLoggerWithOptions(runDir string, opts LoggerOptions) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(runDir, "ticks"), "ticks", opts)}
}

func (l *TickLogger) WriteTick(v bots.TickLogEntry) error {
	return l.w.Write(protocol.TickRecord{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            v.Tick,
		AtMS:            v.AtMS,
		Delivered:       v.Delivered,
		Duplicates:      v.Duplicates,
		Bands:           v.Bands,
		Acks:            v.Acks,
		Outcomes:        v.Outcomes,
		Agents:          v.Agents,
		Skipped:         v.Skipped,
	})
}
func (l *TickLogger) Close() error { return l.w.Close() }

// IntentLogger writes every drained intent with its verdict (compressed).
type IntentLogger struct{ w *JSONLZstdWriter }

func NewIntentLogger(runDir string) *IntentLogger {
	return NewIntentLoggerWithOptions(runDir, LoggerOptions{})
}

func NewIntentLoggerWithOptions(runDir string, opts LoggerOptions) *IntentLogger {
	return &IntentLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(runDir, "intents"), "intents", opts)}
}

func (l *IntentLogger) WriteIntent(tick uint64, atMS int64, it hostbridge.ActionIntent, ack hostbridge.Ack) error {
	return l.w.Write(protocol.NewIntentRecord(tick, atMS, it, ack))
}
func (l *IntentLogger) Close() error { return l.w.Close() }

// OutcomeLogger writes settled coordinator assignments (compressed).
type OutcomeLogger struct{ w *JSONLZstdWriter }

func NewOutcomeLogger(runDir string) *OutcomeLogger {
	return NewOutcomeLoggerWithOptions(runDir, LoggerOptions{})
}

func NewOutcomeLoggerWithOptions(runDir string, opts LoggerOptions) *OutcomeLogger {
	return &OutcomeLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(runDir, "outcomes"), "outcomes", opts)}
}

func (l *OutcomeLogger) WriteOutcome(o orders.Outcome) error {
	return l.w.Write(protocol.NewOutcomeRecord(o))
}
func (l *OutcomeLogger) Close() error { return l.w.Close() }
