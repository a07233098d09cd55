// Package events provides the in-process event bus that connects the sync
// controller, the quote refresher and the device event stream.
package events

import "time"

// EventType identifies an event.
type EventType string

const (
	// StateChanged fires after every applied portfolio mutation, local or remote.
	StateChanged EventType = "STATE_CHANGED"
	// SyncStatusChanged fires when the sync controller changes state.
	SyncStatusChanged EventType = "SYNC_STATUS_CHANGED"
	// RemoteSnapshotApplied fires when a pushed remote document replaced local state.
	RemoteSnapshotApplied EventType = "REMOTE_SNAPSHOT_APPLIED"
	// RemoteSnapshotRejected fires when a pushed remote document was ignored.
	RemoteSnapshotRejected EventType = "REMOTE_SNAPSHOT_REJECTED"
	// QuotesUpdated fires after a quote refresh changed price or index.
	QuotesUpdated EventType = "QUOTES_UPDATED"
	// DailyRecordUpdated fires when today's high-water mark moved.
	DailyRecordUpdated EventType = "DAILY_RECORD_UPDATED"
	// ErrorOccurred reports a background failure.
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in a stable order.
var AllTypes = []EventType{
	StateChanged,
	SyncStatusChanged,
	RemoteSnapshotApplied,
	RemoteSnapshotRejected,
	QuotesUpdated,
	DailyRecordUpdated,
	ErrorOccurred,
}

// Event is what subscribers receive.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
