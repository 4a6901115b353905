package store

import "context"

// Tx is the transactional CRUD surface the core requires from a backend.
// Please use the error kinds in this package; the core classifies failures
// with IsNotFound / IsConflict.
type Tx interface {
	// CreateEvent inserts ev and assigns its ID.
	CreateEvent(ev *Event) error
	UpdateEvent(ev *Event) error
	DeleteEvent(id int64) error
	GetEvent(id int64) (*Event, error)
	// EventByHref finds the master event bound to a remote resource href
	// within a calendar, or ErrNotFound. Exceptions share their master's
	// href and are never returned here.
	EventByHref(calendarID int64, href string) (*Event, error)
	// EventsByCalendar returns all events in a calendar, masters and
	// exceptions alike.
	EventsByCalendar(calendarID int64) ([]*Event, error)
	// ExceptionsOf returns the exception events referencing masterID.
	ExceptionsOf(masterID int64) ([]*Event, error)

	// CreateOccurrence inserts o and assigns its ID. Backends enforce
	// uniqueness on (EventID, StartMillis) and return an ErrConflict error
	// on violation.
	CreateOccurrence(o *Occurrence) error
	UpdateOccurrence(o *Occurrence) error
	DeleteOccurrence(id int64) error
	// OccurrencesOf returns all occurrences owned by eventID.
	OccurrencesOf(eventID int64) ([]*Occurrence, error)
	// OccurrencesInWindow returns occurrences overlapping
	// [fromMillis, toMillis], across all events.
	OccurrencesInWindow(fromMillis, toMillis int64) ([]*Occurrence, error)

	// EnqueueOperation inserts op and assigns its ID.
	EnqueueOperation(op *PendingOperation) error
	UpdateOperation(op *PendingOperation) error
	DeleteOperation(id int64) error
	// PendingOperations returns undrained operations in enqueue order.
	PendingOperations() ([]*PendingOperation, error)

	CreateCalendar(cal *Calendar) error
	UpdateCalendar(cal *Calendar) error
	GetCalendar(id int64) (*Calendar, error)
	Calendars() ([]*Calendar, error)
}

// Store is the storage port. Direct Tx calls run as single atomic
// operations; WithTx groups several into one transaction. Occurrence
// materialization must run inside one WithTx so no concurrent edit can
// interleave between reading current occurrences and writing the diff.
type Store interface {
	Tx

	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
