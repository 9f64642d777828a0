package model

import (
	"iter"
	"slices"
	"sync"
	"time"
)

// Progress stages, in the order a full run emits them.
const (
	StageCredential = "credential_validated"
	StageRender     = "render_attempt"
	StageClassify   = "classified"
	StageExtract    = "extracted"
	StageReconcile  = "reconciled"
)

// EventLog is an ordered, append-only record of progress events. A nil
// *EventLog discards events.
type EventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
	now    func() time.Time
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// Emit appends an event.
func (l *EventLog) Emit(stage string, processed, total int, item string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ProgressEvent{
		Seq:       len(l.events) + 1,
		Stage:     stage,
		Processed: processed,
		Total:     total,
		Item:      item,
		At:        l.now().UTC(),
	})
}

// Events returns a copy of the events emitted so far.
func (l *EventLog) Events() []ProgressEvent {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// All replays the events emitted so far.
func (l *EventLog) All() iter.Seq[ProgressEvent] {
	return slices.Values(l.Events())
}
