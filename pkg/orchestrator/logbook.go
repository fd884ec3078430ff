package orchestrator

import (
	"slices"
	"sync"
	"time"

	"github.com/paullozen/autofx/pkg/events"
)

// LogEntry is one classified line in the dashboard activity feed.
type LogEntry struct {
	Message   string                `json:"message"`
	Class     events.Classification `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
}

// LogBook collects entries in arrival order across all stages. Entries from
// different stages interleave freely; the order is the channel's global
// delivery order, never segregated per stage.
type LogBook struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func NewLogBook() *LogBook {
	return &LogBook{}
}

// Append records one entry with the current timestamp.
func (b *LogBook) Append(message string, class events.Classification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, LogEntry{
		Message:   message,
		Class:     class,
		Timestamp: time.Now().UTC(),
	})
}

// All returns the entries in insertion order.
func (b *LogBook) All() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Clone(b.entries)
}

// Len reports the number of entries.
func (b *LogBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries)
}

// Clear empties the sequence.
func (b *LogBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = nil
}
