// Package feed delivers persisted-change events: a durable, at-least-once
// stream of database mutations that subscribers treat as the authoritative
// source of truth.
package feed

import (
	"encoding/json"
	"time"
)

// Op is a database mutation kind.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	OpAll    Op = "*"
)

// Event is one change-feed entry.
type Event struct {
	Table      string          `json:"table"`
	Op         Op              `json:"op"`
	Record     json.RawMessage `json:"record"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Filter narrows a subscription to matching events. A nil Filter matches
// every event on the subscribed (table, op).
type Filter func(Event) bool

// ChangeFunc handles one event. It is invoked from the feed's dispatch
// goroutine; handlers must not block for long.
type ChangeFunc func(Event)

// Feed is the subscription side of the change stream.
type Feed interface {
	// Subscribe registers fn for events on table matching op.
	// The returned function removes the subscription; it is idempotent.
	Subscribe(table string, op Op, filter Filter, fn ChangeFunc) (unsubscribe func())
}
