// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const (
	EventTypeNormal  = "Normal"
	EventTypeWarning = "Warning"
)

// EventRecorder defines an interface for recording events
type EventRecorder interface {
	Eventf(source, eventType, reason, messageFormat string, args ...any)
}

// EventStore defines an interface for listing events
type EventStore interface {
	ListEvents() []*Event
}

type Event struct {
	Source    string
	Type      string
	Reason    string
	Message   string
	EventTime time.Time
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s %s: %s", e.Source, e.Type, e.Reason, e.Message)
}

// EventStoreOptions defines options to initialize the event store. Events
// stay until they are overwritten.
type EventStoreOptions struct {
	MaxEvents int
}

func (o *EventStoreOptions) Defaults() {
	if o.MaxEvents <= 0 {
		o.MaxEvents = 256
	}
}

// Store implements the EventRecorder and EventStore interface
// and represents a fixed size in-memory journal.
type Store struct {
	maxEvents int        // Maximum number of events in the store
	events    []*Event   // Ring of events
	mutex     sync.Mutex // Mutex for thread safety
	head      int        // Index of the oldest event
	count     int        // Current number of events in the store
	now       func() time.Time
	log       logr.Logger
}

// NewEventStore creates a new Store holding at most opts.MaxEvents events.
func NewEventStore(log logr.Logger, opts EventStoreOptions) *Store {
	opts.Defaults()
	return &Store{
		maxEvents: opts.MaxEvents,
		events:    make([]*Event, opts.MaxEvents),
		now:       time.Now,
		log:       log,
	}
}

// Eventf logs and records an event with formatted message.
func (es *Store) Eventf(source, eventType, reason, messageFormat string, args ...any) {
	message := fmt.Sprintf(messageFormat, args...)
	es.log.V(2).Info("Recording event", "source", source, "type", eventType, "reason", reason, "message", message)
	es.recordEvent(source, eventType, reason, message)
}

func (es *Store) recordEvent(source, eventType, reason, message string) {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	index := (es.head + es.count) % es.maxEvents

	// If the store is full, overwrite the oldest event and move the head
	if es.count == es.maxEvents {
		es.log.V(1).Info("Overriding event", "event", es.events[es.head].String())
		es.head = (es.head + 1) % es.maxEvents
	} else {
		es.count++
	}

	es.events[index] = &Event{
		Source:    source,
		Type:      eventType,
		Reason:    reason,
		Message:   message,
		EventTime: es.now(),
	}
}

// ListEvents returns a copy of all events currently in the store, oldest first.
func (es *Store) ListEvents() []*Event {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	result := make([]*Event, 0, es.count)
	for i := 0; i < es.count; i++ {
		event := *es.events[(es.head+i)%es.maxEvents]
		result = append(result, &event)
	}

	return result
}

// Discard is an EventRecorder that drops every event.
var Discard EventRecorder = discard{}

type discard struct{}

func (discard) Eventf(string, string, string, string, ...any) {}
