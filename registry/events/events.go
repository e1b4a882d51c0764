// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package events defines the append-only event stream that records every
// mutation applied through the registry.
package events

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

// Error is the default events error class.
var Error = errs.Class("events")

// StreamName is the name of the registry event stream.
const StreamName = "events"

// Type describes the kind of mutation an event records.
type Type string

// Event types.
const (
	TypeCreate Type = "CREATE"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
	TypeInit   Type = "init"
)

// Event is an immutable record of a single entity mutation.
type Event struct {
	EntityID         int64                  `json:"entity_id"`
	EntityName       string                 `json:"entity_name"`
	EventType        Type                   `json:"event_type"`
	AttributesBefore map[string]interface{} `json:"attributes_before,omitempty"`
	AttributesAfter  map[string]interface{} `json:"attributes_after,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// Stream is an ordered, replayable event log. Appends are all-or-nothing
// with respect to the initiating transaction; there is no compaction.
type Stream interface {
	// Append adds a single event to the stream.
	Append(ctx context.Context, event Event) error
	// AppendBatch adds events in order; either all are appended or none.
	AppendBatch(ctx context.Context, events []Event) error
	// Backward reads up to limit events from the head of the stream,
	// newest first. A non-positive limit reads the whole stream.
	Backward(ctx context.Context, limit int) ([]Event, error)
	// Len reports the number of events in the stream.
	Len(ctx context.Context) (int, error)
	// Close releases the underlying store.
	Close() error
}
