package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventData is implemented by every typed event payload.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// StateChangedData contains data for StateChanged events
type StateChangedData struct {
	Source   string `json:"source"` // "local" or "remote"
	Revision uint64 `json:"revision"`
}

// EventType returns the event type for StateChangedData
func (d *StateChangedData) EventType() EventType {
	return StateChanged
}

// SyncStatusChangedData contains data for SyncStatusChanged events
type SyncStatusChangedData struct {
	State        string     `json:"state"`
	Revision     uint64     `json:"revision"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Conflicts    int        `json:"conflicts"`
}

// EventType returns the event type for SyncStatusChangedData
func (d *SyncStatusChangedData) EventType() EventType {
	return SyncStatusChanged
}

// RemoteSnapshotData contains data for RemoteSnapshotApplied and
// RemoteSnapshotRejected events. Reason is empty for applied snapshots.
type RemoteSnapshotData struct {
	Revision uint64 `json:"revision"`
	Origin   string `json:"origin"`
	Reason   string `json:"reason,omitempty"`
}

// EventType returns RemoteSnapshotRejected when a reason is set
func (d *RemoteSnapshotData) EventType() EventType {
	if d.Reason != "" {
		return RemoteSnapshotRejected
	}
	return RemoteSnapshotApplied
}

// QuotesUpdatedData contains data for QuotesUpdated events
type QuotesUpdatedData struct {
	Symbol      string           `json:"symbol"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	MarketIndex *decimal.Decimal `json:"market_index,omitempty"`
	Stale       bool             `json:"stale,omitempty"`
}

// EventType returns the event type for QuotesUpdatedData
func (d *QuotesUpdatedData) EventType() EventType {
	return QuotesUpdated
}

// DailyRecordUpdatedData contains data for DailyRecordUpdated events
type DailyRecordUpdatedData struct {
	Date      string          `json:"date"`
	MaxPL     decimal.Decimal `json:"max_pl"`
	MaxReturn decimal.Decimal `json:"max_return"`
}

// EventType returns the event type for DailyRecordUpdatedData
func (d *DailyRecordUpdatedData) EventType() EventType {
	return DailyRecordUpdated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// UnmarshalJSON decodes an event, picking the payload type from Type.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case StateChanged:
		eventData = &StateChangedData{}
	case SyncStatusChanged:
		eventData = &SyncStatusChangedData{}
	case RemoteSnapshotApplied, RemoteSnapshotRejected:
		eventData = &RemoteSnapshotData{}
	case QuotesUpdated:
		eventData = &QuotesUpdatedData{}
	case DailyRecordUpdated:
		eventData = &DailyRecordUpdatedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		var raw map[string]interface{}
		if err := json.Unmarshal(aux.Data, &raw); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: raw}
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}
