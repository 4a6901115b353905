// Package occurrence persists expander output as occurrence records and
// maintains the master/exception linkage across regenerations.
package occurrence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kalyxo/calsync/recurrence"
	"github.com/kalyxo/calsync/store"
)

// Window bounds a materialization request, both ends inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Config controls the window Regenerate uses.
type Config struct {
	// Past and Future bound the full configured window around Now.
	Past   time.Duration
	Future time.Duration
	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig materializes one year back and two years ahead.
func DefaultConfig() Config {
	return Config{
		Past:   365 * 24 * time.Hour,
		Future: 2 * 365 * 24 * time.Hour,
	}
}

// Reconciler recomputes an event's occurrences and reconciles them against
// the store. Every operation runs inside one store transaction: read the
// current rows, compute the new set, write the diff.
type Reconciler struct {
	store    store.Store
	expander *recurrence.Expander
	cfg      Config
	logger   *slog.Logger
}

// New creates a reconciler. A nil logger falls back to slog.Default.
func New(s store.Store, expander *recurrence.Expander, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{store: s, expander: expander, cfg: cfg, logger: logger}
}

// Materialize (re)computes the event's occurrences inside w. Instants
// already stored stay in place, new ones are inserted, and stored
// occurrences absent from the new result are deleted. A rule that expands
// to nothing is a valid zero-length result, not an error.
func (r *Reconciler) Materialize(ctx context.Context, ev *store.Event, w Window) error {
	return r.store.WithTx(ctx, func(tx store.Tx) error {
		return r.materializeTx(tx, ev, w)
	})
}

// Relink binds an exception event onto the master occurrence at
// originalMillis, moving the row to the exception's start/end so range
// queries find the moved instance. A collision with another materialized
// occurrence is resolved by superseding the regular one; it never surfaces
// as a storage error.
func (r *Reconciler) Relink(ctx context.Context, masterID, originalMillis int64, exception *store.Event) error {
	return r.store.WithTx(ctx, func(tx store.Tx) error {
		return r.relinkTx(tx, masterID, originalMillis, exception)
	})
}

// Regenerate materializes the event over the full configured window and
// re-applies every existing exception link by its recorded original
// instant, so edits made before a rule change survive the regeneration.
func (r *Reconciler) Regenerate(ctx context.Context, ev *store.Event) error {
	now := r.cfg.Now()
	w := Window{From: now.Add(-r.cfg.Past), To: now.Add(r.cfg.Future)}

	return r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := r.materializeTx(tx, ev, w); err != nil {
			return err
		}

		exceptions, err := tx.ExceptionsOf(ev.ID)
		if err != nil {
			return fmt.Errorf("load exceptions of event %d: %w", ev.ID, err)
		}
		// Lower sequence first, so a stray duplicate override loses to the
		// latest edit.
		sort.Slice(exceptions, func(i, j int) bool {
			return exceptions[i].Sequence < exceptions[j].Sequence
		})
		for _, exc := range exceptions {
			if err := r.relinkTx(tx, ev.ID, exc.OriginalStartMillis, exc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Reconciler) materializeTx(tx store.Tx, ev *store.Event, w Window) error {
	loc := eventLocation(ev)
	instants := r.expander.Expand(recurrence.Input{
		Start:    time.UnixMilli(ev.StartMillis).In(loc),
		RRule:    ev.RRule,
		ExDates:  recurrence.ParseDateList(ev.ExDates, loc),
		RDates:   recurrence.ParseDateList(ev.RDates, loc),
		From:     w.From,
		To:       w.To,
		AllDay:   ev.AllDay,
		Location: loc,
	})

	duration := ev.EndMillis - ev.StartMillis
	want := make(map[int64]time.Time, len(instants))
	for _, t := range instants {
		want[t.UnixMilli()] = t
	}

	existing, err := tx.OccurrencesOf(ev.ID)
	if err != nil {
		return fmt.Errorf("load occurrences of event %d: %w", ev.ID, err)
	}
	for _, occ := range existing {
		if _, ok := want[occ.StartMillis]; ok {
			delete(want, occ.StartMillis)
			continue
		}
		// Cancellation by omission: an EXDATE hit and a narrowed rule look
		// identical here, the instant simply no longer appears.
		if err := tx.DeleteOccurrence(occ.ID); err != nil {
			return fmt.Errorf("delete stale occurrence %d: %w", occ.ID, err)
		}
	}

	for millis, t := range want {
		end := millis + duration
		occ := &store.Occurrence{
			EventID:     ev.ID,
			StartMillis: millis,
			EndMillis:   end,
			StartDay:    store.DayKey(t),
			EndDay:      store.DayKey(time.UnixMilli(end).In(t.Location())),
		}
		if err := tx.CreateOccurrence(occ); err != nil {
			return fmt.Errorf("insert occurrence of event %d: %w", ev.ID, err)
		}
	}

	r.logger.Debug("materialized occurrences",
		"event_id", ev.ID,
		"instants", len(instants),
		"inserted", len(want))
	return nil
}

func (r *Reconciler) relinkTx(tx store.Tx, masterID, originalMillis int64, exc *store.Event) error {
	occs, err := tx.OccurrencesOf(masterID)
	if err != nil {
		return fmt.Errorf("load occurrences of master %d: %w", masterID, err)
	}

	var target, collision *store.Occurrence
	for _, occ := range occs {
		switch {
		case occ.ExceptionEventID == exc.ID && exc.ID != 0:
			// Already linked by an earlier pass; relinking is idempotent.
			target = occ
		case occ.StartMillis == originalMillis && target == nil:
			target = occ
		case occ.StartMillis == exc.StartMillis:
			collision = occ
		}
	}
	if target != nil && collision != nil && collision.ID == target.ID {
		collision = nil
	}

	// The exception's new time landing on another materialized instant
	// would violate (event, start) uniqueness; the regular occurrence is
	// superseded instead.
	if collision != nil {
		if err := tx.DeleteOccurrence(collision.ID); err != nil {
			return fmt.Errorf("remove superseded occurrence %d: %w", collision.ID, err)
		}
	}

	loc := eventLocation(exc)
	start := time.UnixMilli(exc.StartMillis).In(loc)
	end := time.UnixMilli(exc.EndMillis).In(loc)

	if target == nil {
		// The original instant was never materialized (outside the window,
		// or already consumed by an earlier relink). Record the override as
		// its own linked row so the edit stays queryable.
		occ := &store.Occurrence{
			EventID:          masterID,
			StartMillis:      exc.StartMillis,
			EndMillis:        exc.EndMillis,
			StartDay:         store.DayKey(start),
			EndDay:           store.DayKey(end),
			ExceptionEventID: exc.ID,
			Cancelled:        exc.Cancelled,
		}
		return tx.CreateOccurrence(occ)
	}

	target.ExceptionEventID = exc.ID
	target.StartMillis = exc.StartMillis
	target.EndMillis = exc.EndMillis
	target.StartDay = store.DayKey(start)
	target.EndDay = store.DayKey(end)
	target.Cancelled = exc.Cancelled
	if err := tx.UpdateOccurrence(target); err != nil {
		return fmt.Errorf("relink occurrence %d: %w", target.ID, err)
	}
	return nil
}

// eventLocation resolves the event's timezone. All-day events and events
// without a timezone id evaluate in UTC; an unloadable id degrades to UTC
// rather than failing the record.
func eventLocation(ev *store.Event) *time.Location {
	if ev.AllDay || ev.TimezoneID == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(ev.TimezoneID)
	if err != nil {
		return time.UTC
	}
	return loc
}
