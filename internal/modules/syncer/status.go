package syncer

import "time"

// State is the sync controller's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Status is a point-in-time view of the controller.
type Status struct {
	State        State      `json:"state"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Revision     uint64     `json:"revision"`
	Conflicts    int        `json:"conflicts"`
	Pending      bool       `json:"pending"`
	DeviceID     string     `json:"deviceId"`
}

// Rejection reasons for pushed remote snapshots.
const (
	RejectWriteInFlight = "write_in_flight"
	RejectStale         = "stale_revision"
	RejectGracePeriod   = "grace_period"
)
