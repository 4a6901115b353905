// Package store defines the storage port for the sync core: record types,
// the transactional Store interface, and the error kinds a backend must use.
// The reconciler and sync strategies depend only on this port, never on a
// concrete engine.
package store

import "time"

// SyncStatus tracks how a local event relates to the remote store.
type SyncStatus int

const (
	StatusSynced SyncStatus = iota
	StatusPendingCreate
	StatusPendingUpdate
	StatusPendingDelete
)

// String provides a human-readable representation of the SyncStatus.
func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusPendingCreate:
		return "pending_create"
	case StatusPendingUpdate:
		return "pending_update"
	case StatusPendingDelete:
		return "pending_delete"
	default:
		return "unknown"
	}
}

// Event is a calendar item: a master (optionally recurring) or an exception
// overriding one instance of a master. An exception always carries its
// master's UID and never carries its own recurrence rule.
type Event struct {
	ID         int64
	CalendarID int64

	// UID is shared verbatim between a master and every one of its
	// exceptions. This is an invariant, not a convenience.
	UID string

	Title       string
	Description string
	Location    string

	// Instants are integer milliseconds since epoch.
	StartMillis int64
	EndMillis   int64

	// RRule is the raw recurrence rule text; empty means single-instance.
	// ExDates and RDates hold the EXDATE/RDATE textual value lists.
	RRule   string
	ExDates string
	RDates  string

	// TimezoneID is empty for UTC-floating and all-day events.
	TimezoneID string
	AllDay     bool

	// MasterID and OriginalStartMillis are set on exceptions only:
	// the master's row id and the pre-override instant being replaced.
	MasterID            int64
	OriginalStartMillis int64

	// Cancelled marks an exception that suppresses its instance without a
	// replacement.
	Cancelled bool

	SyncStatus SyncStatus

	// RemoteHref and Etag are empty until the event has reached the server.
	RemoteHref string
	Etag       string

	// Sequence is the monotonic per-UID edit counter; the higher sequence
	// wins among duplicate overrides of the same original instant.
	Sequence int
}

// IsException reports whether the event overrides an instance of a master.
func (e *Event) IsException() bool { return e.MasterID != 0 }

// Recurs reports whether the event carries a recurrence rule.
func (e *Event) Recurs() bool { return e.RRule != "" }

// Occurrence is a materialized instance of an event. Rows are created and
// replaced wholesale by the occurrence reconciler and never mutated by any
// other component. Backends enforce uniqueness on (EventID, StartMillis).
type Occurrence struct {
	ID      int64
	EventID int64

	StartMillis int64
	EndMillis   int64

	// StartDay and EndDay are denormalized YYYYMMDD keys for day-bucket
	// queries.
	StartDay int
	EndDay   int

	// ExceptionEventID is set once an exception has been linked onto this
	// instant; zero otherwise.
	ExceptionEventID int64

	// Cancelled marks an instant suppressed without a replacement.
	Cancelled bool
}

// OpKind is the kind of a pending outbox operation.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

// OpStatus is the lifecycle state of a pending operation.
type OpStatus int

const (
	OpPending OpStatus = iota
	OpInProgress
)

// PendingOperation is a durable outbox entry. CalendarID, TargetHref and
// TargetEtag are captured at enqueue time and never re-derived from the
// event row, whose remote fields may have been cleared or reassigned (or
// the row itself deleted) by execution time.
type PendingOperation struct {
	ID         int64
	EventID    int64
	CalendarID int64
	Kind       OpKind

	TargetHref string
	TargetEtag string

	Status OpStatus

	// RetryCount drives the push backoff policy.
	RetryCount int

	EnqueuedMillis int64
}

// Calendar is the sync-scoped container: the remote collection and the two
// persisted cursors compared across pulls.
type Calendar struct {
	ID    int64
	Name  string
	Color string
	Href  string

	// CTag changes whenever anything in the remote collection changes.
	// SyncToken is the opaque cursor for diff-based sync; empty means the
	// next pull is a full sync.
	CTag      string
	SyncToken string

	SupportedComponents []string
}

// DayKey returns the integer YYYYMMDD key for t.
func DayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
