// Package logging provides the log sink injected into every agent component
// and the console and remote transports behind it.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink receives leveled log lines. Components take a Sink at construction
// time and never look one up globally.
type Sink interface {
	Emit(level zapcore.Level, message string)
}

// ZapSink adapts a *zap.Logger to Sink.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger. A nil logger yields a no-op sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// Emit writes message at level if the logger's level enables it.
func (s *ZapSink) Emit(level zapcore.Level, message string) {
	if ce := s.logger.Check(level, message); ce != nil {
		ce.Write()
	}
}

// Logger exposes the underlying zap logger for callers that want fields.
func (s *ZapSink) Logger() *zap.Logger {
	return s.logger
}

// Sync flushes buffered entries.
func (s *ZapSink) Sync() error {
	return s.logger.Sync()
}

type nopSink struct{}

func (nopSink) Emit(zapcore.Level, string) {}

// Nop discards everything.
var Nop Sink = nopSink{}

// Entry is one line captured by a Recorder.
type Entry struct {
	Level   zapcore.Level
	Message string
}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Emit records the line.
func (r *Recorder) Emit(level zapcore.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
}

// Entries returns a copy of every recorded line.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Contains reports whether any recorded message contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, e := range r.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Helpers for the common levels.

func Debug(s Sink, msg string) { s.Emit(zapcore.DebugLevel, msg) }
func Info(s Sink, msg string)  { s.Emit(zapcore.InfoLevel, msg) }
func Warn(s Sink, msg string)  { s.Emit(zapcore.WarnLevel, msg) }
func Error(s Sink, msg string) { s.Emit(zapcore.ErrorLevel, msg) }
