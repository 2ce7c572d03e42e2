package collectlog

import (
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Level is the severity of a collection log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 1000

const recentErrorLimit = 5

// Entry is one recorded collection event.
type Entry struct {
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Stats summarizes the buffered entries.
type Stats struct {
	Total        int     `json:"total"`
	Errors       int     `json:"errors"`
	Warnings     int     `json:"warnings"`
	RecentErrors []Entry `json:"recent_errors"`
}

// Log is a bounded ring buffer of collection events. Once full, the oldest
// entry is overwritten. Entries are optionally mirrored to Sink.
type Log struct {
	Sink  *logging.Logger
	Clock func() time.Time

	mu       sync.Mutex
	capacity int
	entries  []Entry
	next     int
	full     bool
}

// New creates a Log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]Entry, capacity),
	}
}

// Debug records a debug entry.
func (l *Log) Debug(message string, context map[string]any) {
	l.record(LevelDebug, message, context)
}

// Info records an info entry.
func (l *Log) Info(message string, context map[string]any) {
	l.record(LevelInfo, message, context)
}

// Warn records a warning entry.
func (l *Log) Warn(message string, context map[string]any) {
	l.record(LevelWarn, message, context)
}

// Error records an error entry.
func (l *Log) Error(message string, context map[string]any) {
	l.record(LevelError, message, context)
}

func (l *Log) record(level Level, message string, context map[string]any) {
	if l == nil {
		return
	}

	entry := Entry{
		Level:     level,
		Message:   message,
		Timestamp: l.now(),
		Context:   copyContext(context),
	}

	l.mu.Lock()
	if len(l.entries) == 0 {
		if l.capacity <= 0 {
			l.capacity = DefaultCapacity
		}
		l.entries = make([]Entry, l.capacity)
	}
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	l.mirror(entry)
}

// Entries returns buffered entries oldest first. An empty level returns all.
func (l *Log) Entries(level Level) []Entry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ordered := l.orderedLocked()
	if level == "" {
		return ordered
	}

	filtered := make([]Entry, 0, len(ordered))
	for _, entry := range ordered {
		if entry.Level == level {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Stats returns counts across the buffer and the most recent errors, newest first.
func (l *Log) Stats() Stats {
	stats := Stats{RecentErrors: []Entry{}}
	if l == nil {
		return stats
	}

	l.mu.Lock()
	ordered := l.orderedLocked()
	l.mu.Unlock()

	stats.Total = len(ordered)
	for i := len(ordered) - 1; i >= 0; i-- {
		switch ordered[i].Level {
		case LevelError:
			stats.Errors++
			if len(stats.RecentErrors) < recentErrorLimit {
				stats.RecentErrors = append(stats.RecentErrors, ordered[i])
			}
		case LevelWarn:
			stats.Warnings++
		}
	}
	return stats
}

// Clear drops every buffered entry.
func (l *Log) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, l.capacity)
	l.next = 0
	l.full = false
}

func (l *Log) orderedLocked() []Entry {
	if len(l.entries) == 0 {
		return []Entry{}
	}
	if !l.full {
		out := make([]Entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Entry, 0, l.capacity)
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

func (l *Log) mirror(entry Entry) {
	if l.Sink == nil {
		return
	}

	fields := contextFields(entry.Context)
	switch entry.Level {
	case LevelDebug:
		l.Sink.Debug(entry.Message, fields...)
	case LevelWarn:
		l.Sink.Warn(entry.Message, fields...)
	case LevelError:
		l.Sink.Error(entry.Message, fields...)
	default:
		l.Sink.Info(entry.Message, fields...)
	}
}

func (l *Log) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func contextFields(context map[string]any) []zap.Field {
	if len(context) == 0 {
		return nil
	}
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, zap.Any(key, context[key]))
	}
	return fields
}

func copyContext(context map[string]any) map[string]any {
	if len(context) == 0 {
		return nil
	}
	out := make(map[string]any, len(context))
	for key, value := range context {
		out[key] = value
	}
	return out
}
