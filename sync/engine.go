package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/kalyxo/calsync/davclient"
	"github.com/kalyxo/calsync/occurrence"
	"github.com/kalyxo/calsync/store"
)

// ClientFactory yields the remote client for one calendar collection.
type ClientFactory func(cal *store.Calendar) davclient.Client

// Engine runs sync passes. Passes for one calendar are serialized: no two
// pulls, or a pull and a push, ever run concurrently against the same
// calendar. Independent calendars sync concurrently.
type Engine struct {
	store   store.Store
	clients ClientFactory
	rec     *occurrence.Reconciler
	backoff Backoff
	logger  *slog.Logger

	mu    stdsync.Mutex
	locks map[int64]*stdsync.Mutex
}

func NewEngine(s store.Store, clients ClientFactory, rec *occurrence.Reconciler, backoff Backoff, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		clients: clients,
		rec:     rec,
		backoff: backoff,
		logger:  logger.With("component", "sync"),
		locks:   make(map[int64]*stdsync.Mutex),
	}
}

func (e *Engine) lockFor(calendarID int64) *stdsync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[calendarID]
	if !ok {
		l = &stdsync.Mutex{}
		e.locks[calendarID] = l
	}
	return l
}

// SyncCalendar runs one full pass for a calendar: drain the outbox first so
// pending local state reaches the server, then pull. A pass either completes
// or fails and is retried on the next trigger; events already written stay
// written.
func (e *Engine) SyncCalendar(ctx context.Context, calendarID int64) error {
	l := e.lockFor(calendarID)
	l.Lock()
	defer l.Unlock()

	cal, err := e.store.GetCalendar(calendarID)
	if err != nil {
		return fmt.Errorf("load calendar %d: %w", calendarID, err)
	}
	client := e.clients(cal)

	out := NewOutboxer(e.store, client, e.backoff, e.logger)
	if err := out.Drain(ctx, calendarID); err != nil {
		return fmt.Errorf("drain outbox for calendar %d: %w", calendarID, err)
	}

	pull := NewPuller(e.store, client, e.rec, e.logger)
	if err := pull.Pull(ctx, calendarID); err != nil {
		return fmt.Errorf("pull calendar %d: %w", calendarID, err)
	}
	return nil
}

// SyncAll runs a pass for every known calendar, concurrently across
// calendars. The combined error reports every failed calendar.
func (e *Engine) SyncAll(ctx context.Context) error {
	cals, err := e.store.Calendars()
	if err != nil {
		return fmt.Errorf("list calendars: %w", err)
	}

	errs := make([]error, len(cals))
	var wg stdsync.WaitGroup
	for i, cal := range cals {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			errs[i] = e.SyncCalendar(ctx, id)
		}(i, cal.ID)
	}
	wg.Wait()
	return errors.Join(errs...)
}
