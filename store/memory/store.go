// Package memory is a map-based Store implementation for tests and
// examples. It enforces the same constraints a database backend must:
// (EventID, StartMillis) uniqueness on occurrences and rollback of a failed
// WithTx block.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kalyxo/calsync/store"
)

// Store implements store.Store using in-memory maps.
type Store struct {
	mu sync.Mutex
	d  *data
}

// data holds the record maps. Values are stored by value so callers can
// never alias internal state.
type data struct {
	nextID      int64
	events      map[int64]store.Event
	occurrences map[int64]store.Occurrence
	operations  map[int64]store.PendingOperation
	calendars   map[int64]store.Calendar
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{d: newData()}
}

func newData() *data {
	return &data{
		nextID:      1,
		events:      make(map[int64]store.Event),
		occurrences: make(map[int64]store.Occurrence),
		operations:  make(map[int64]store.PendingOperation),
		calendars:   make(map[int64]store.Calendar),
	}
}

func (d *data) clone() *data {
	c := newData()
	c.nextID = d.nextID
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.occurrences {
		c.occurrences[k] = v
	}
	for k, v := range d.operations {
		c.operations[k] = v
	}
	for k, v := range d.calendars {
		v.SupportedComponents = append([]string(nil), v.SupportedComponents...)
		c.calendars[k] = v
	}
	return c
}

// WithTx runs fn against a snapshot and keeps the result only if fn
// succeeds, so a failed block leaves the store untouched.
func (s *Store) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.d = work
	return nil
}

func (s *Store) locked(fn func(d *data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

// Event operations

func (s *Store) CreateEvent(ev *store.Event) error {
	return s.locked(func(d *data) error { return d.CreateEvent(ev) })
}

func (d *data) CreateEvent(ev *store.Event) error {
	ev.ID = d.nextID
	d.nextID++
	d.events[ev.ID] = *ev
	return nil
}

func (s *Store) UpdateEvent(ev *store.Event) error {
	return s.locked(func(d *data) error { return d.UpdateEvent(ev) })
}

func (d *data) UpdateEvent(ev *store.Event) error {
	if _, ok := d.events[ev.ID]; !ok {
		return store.NotFound("event not found")
	}
	d.events[ev.ID] = *ev
	return nil
}

func (s *Store) DeleteEvent(id int64) error {
	return s.locked(func(d *data) error { return d.DeleteEvent(id) })
}

func (d *data) DeleteEvent(id int64) error {
	if _, ok := d.events[id]; !ok {
		return store.NotFound("event not found")
	}
	delete(d.events, id)
	return nil
}

func (s *Store) GetEvent(id int64) (*store.Event, error) {
	var out *store.Event
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.GetEvent(id)
		return err
	})
	return out, err
}

func (d *data) GetEvent(id int64) (*store.Event, error) {
	ev, ok := d.events[id]
	if !ok {
		return nil, store.NotFound("event not found")
	}
	return &ev, nil
}

func (s *Store) EventByHref(calendarID int64, href string) (*store.Event, error) {
	var out *store.Event
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.EventByHref(calendarID, href)
		return err
	})
	return out, err
}

func (d *data) EventByHref(calendarID int64, href string) (*store.Event, error) {
	for _, ev := range d.events {
		if ev.CalendarID == calendarID && ev.RemoteHref == href && ev.MasterID == 0 {
			out := ev
			return &out, nil
		}
	}
	return nil, store.NotFound("no event for href")
}

func (s *Store) EventsByCalendar(calendarID int64) ([]*store.Event, error) {
	var out []*store.Event
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.EventsByCalendar(calendarID)
		return err
	})
	return out, err
}

func (d *data) EventsByCalendar(calendarID int64) ([]*store.Event, error) {
	var out []*store.Event
	for _, ev := range d.events {
		if ev.CalendarID == calendarID {
			e := ev
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ExceptionsOf(masterID int64) ([]*store.Event, error) {
	var out []*store.Event
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.ExceptionsOf(masterID)
		return err
	})
	return out, err
}

func (d *data) ExceptionsOf(masterID int64) ([]*store.Event, error) {
	var out []*store.Event
	for _, ev := range d.events {
		if ev.MasterID == masterID {
			e := ev
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Occurrence operations

func (s *Store) CreateOccurrence(o *store.Occurrence) error {
	return s.locked(func(d *data) error { return d.CreateOccurrence(o) })
}

func (d *data) CreateOccurrence(o *store.Occurrence) error {
	for _, existing := range d.occurrences {
		if existing.EventID == o.EventID && existing.StartMillis == o.StartMillis {
			return store.Conflict("occurrence exists at instant")
		}
	}
	o.ID = d.nextID
	d.nextID++
	d.occurrences[o.ID] = *o
	return nil
}

func (s *Store) UpdateOccurrence(o *store.Occurrence) error {
	return s.locked(func(d *data) error { return d.UpdateOccurrence(o) })
}

func (d *data) UpdateOccurrence(o *store.Occurrence) error {
	if _, ok := d.occurrences[o.ID]; !ok {
		return store.NotFound("occurrence not found")
	}
	for id, existing := range d.occurrences {
		if id != o.ID && existing.EventID == o.EventID && existing.StartMillis == o.StartMillis {
			return store.Conflict("occurrence exists at instant")
		}
	}
	d.occurrences[o.ID] = *o
	return nil
}

func (s *Store) DeleteOccurrence(id int64) error {
	return s.locked(func(d *data) error { return d.DeleteOccurrence(id) })
}

func (d *data) DeleteOccurrence(id int64) error {
	if _, ok := d.occurrences[id]; !ok {
		return store.NotFound("occurrence not found")
	}
	delete(d.occurrences, id)
	return nil
}

func (s *Store) OccurrencesOf(eventID int64) ([]*store.Occurrence, error) {
	var out []*store.Occurrence
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.OccurrencesOf(eventID)
		return err
	})
	return out, err
}

func (d *data) OccurrencesOf(eventID int64) ([]*store.Occurrence, error) {
	var out []*store.Occurrence
	for _, o := range d.occurrences {
		if o.EventID == eventID {
			occ := o
			out = append(out, &occ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMillis < out[j].StartMillis })
	return out, nil
}

func (s *Store) OccurrencesInWindow(fromMillis, toMillis int64) ([]*store.Occurrence, error) {
	var out []*store.Occurrence
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.OccurrencesInWindow(fromMillis, toMillis)
		return err
	})
	return out, err
}

func (d *data) OccurrencesInWindow(fromMillis, toMillis int64) ([]*store.Occurrence, error) {
	var out []*store.Occurrence
	for _, o := range d.occurrences {
		if o.StartMillis <= toMillis && o.EndMillis >= fromMillis {
			occ := o
			out = append(out, &occ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMillis < out[j].StartMillis })
	return out, nil
}

// Pending operation queue

func (s *Store) EnqueueOperation(op *store.PendingOperation) error {
	return s.locked(func(d *data) error { return d.EnqueueOperation(op) })
}

func (d *data) EnqueueOperation(op *store.PendingOperation) error {
	op.ID = d.nextID
	d.nextID++
	d.operations[op.ID] = *op
	return nil
}

func (s *Store) UpdateOperation(op *store.PendingOperation) error {
	return s.locked(func(d *data) error { return d.UpdateOperation(op) })
}

func (d *data) UpdateOperation(op *store.PendingOperation) error {
	if _, ok := d.operations[op.ID]; !ok {
		return store.NotFound("operation not found")
	}
	d.operations[op.ID] = *op
	return nil
}

func (s *Store) DeleteOperation(id int64) error {
	return s.locked(func(d *data) error { return d.DeleteOperation(id) })
}

func (d *data) DeleteOperation(id int64) error {
	if _, ok := d.operations[id]; !ok {
		return store.NotFound("operation not found")
	}
	delete(d.operations, id)
	return nil
}

func (s *Store) PendingOperations() ([]*store.PendingOperation, error) {
	var out []*store.PendingOperation
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.PendingOperations()
		return err
	})
	return out, err
}

func (d *data) PendingOperations() ([]*store.PendingOperation, error) {
	var out []*store.PendingOperation
	for _, op := range d.operations {
		o := op
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Calendar operations

func (s *Store) CreateCalendar(cal *store.Calendar) error {
	return s.locked(func(d *data) error { return d.CreateCalendar(cal) })
}

func (d *data) CreateCalendar(cal *store.Calendar) error {
	cal.ID = d.nextID
	d.nextID++
	d.calendars[cal.ID] = *cal
	return nil
}

func (s *Store) UpdateCalendar(cal *store.Calendar) error {
	return s.locked(func(d *data) error { return d.UpdateCalendar(cal) })
}

func (d *data) UpdateCalendar(cal *store.Calendar) error {
	if _, ok := d.calendars[cal.ID]; !ok {
		return store.NotFound("calendar not found")
	}
	d.calendars[cal.ID] = *cal
	return nil
}

func (s *Store) GetCalendar(id int64) (*store.Calendar, error) {
	var out *store.Calendar
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.GetCalendar(id)
		return err
	})
	return out, err
}

func (d *data) GetCalendar(id int64) (*store.Calendar, error) {
	cal, ok := d.calendars[id]
	if !ok {
		return nil, store.NotFound("calendar not found")
	}
	return &cal, nil
}

func (s *Store) Calendars() ([]*store.Calendar, error) {
	var out []*store.Calendar
	err := s.locked(func(d *data) error {
		var err error
		out, err = d.Calendars()
		return err
	})
	return out, err
}

func (d *data) Calendars() ([]*store.Calendar, error) {
	var out []*store.Calendar
	for _, cal := range d.calendars {
		c := cal
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
