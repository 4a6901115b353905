// Package sync drives reconciliation between the local store and a remote
// CalDAV collection: pull (full and incremental), push via a durable outbox,
// and the per-calendar serialization both require.
//
// The conflict policy is local-first: an event whose sync status is anything
// other than synced is never overwritten or deleted by incoming server data.
// Pending local state reaches the server through the outbox before server
// state is trusted for that row again.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalyxo/calsync/davclient"
	"github.com/kalyxo/calsync/ical"
	"github.com/kalyxo/calsync/occurrence"
	"github.com/kalyxo/calsync/store"
)

// Puller reconciles one calendar with its remote collection.
type Puller struct {
	store  store.Store
	client davclient.Client
	rec    *occurrence.Reconciler
	logger *slog.Logger
}

func NewPuller(s store.Store, c davclient.Client, rec *occurrence.Reconciler, logger *slog.Logger) *Puller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Puller{store: s, client: c, rec: rec, logger: logger.With("component", "pull")}
}

// Pull runs one pull pass. Without a stored sync token it performs a full
// listing diff; with one it submits the token to the server's diff endpoint
// and touches only the reported changes. Partial progress is retained on
// failure; the next pass picks up from the persisted cursors.
func (p *Puller) Pull(ctx context.Context, calendarID int64) error {
	cal, err := p.store.GetCalendar(calendarID)
	if err != nil {
		return fmt.Errorf("load calendar %d: %w", calendarID, err)
	}

	remoteCTag, err := p.client.GetCTag(ctx)
	if err == nil && remoteCTag != "" && remoteCTag == cal.CTag && cal.SyncToken != "" {
		p.logger.Debug("collection unchanged, skipping pull", "calendar", cal.ID, "ctag", remoteCTag)
		return nil
	}

	if cal.SyncToken == "" {
		err = p.fullSync(ctx, cal)
	} else {
		err = p.incrementalSync(ctx, cal)
	}
	if err != nil {
		return err
	}

	if remoteCTag != "" {
		cal.CTag = remoteCTag
	}
	if err := p.store.UpdateCalendar(cal); err != nil {
		return fmt.Errorf("persist sync cursors: %w", err)
	}
	return nil
}

func (p *Puller) fullSync(ctx context.Context, cal *store.Calendar) error {
	versions, err := p.client.ListObjectVersions(ctx)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	remote := make(map[string]string, len(versions))
	var changed []string
	for _, v := range versions {
		remote[v.Href] = v.Etag
		local, err := p.store.EventByHref(cal.ID, v.Href)
		switch {
		case store.IsNotFound(err):
			changed = append(changed, v.Href)
		case err != nil:
			return err
		case local.Etag != v.Etag:
			changed = append(changed, v.Href)
		}
	}

	if err := p.fetchAndApply(ctx, cal, changed); err != nil {
		return err
	}

	// Anything bound to a href the server no longer lists is gone remotely.
	events, err := p.store.EventsByCalendar(cal.ID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.IsException() || ev.RemoteHref == "" {
			continue
		}
		if _, ok := remote[ev.RemoteHref]; !ok {
			if err := p.applyRemoteDeletion(ctx, cal, ev.RemoteHref); err != nil {
				return err
			}
		}
	}

	// Seed the incremental cursor. A server without diff support leaves the
	// token empty and every pull stays a full one.
	diff, err := p.client.SyncCollection(ctx, "")
	if err != nil {
		p.logger.Debug("sync token unavailable, staying on full sync", "calendar", cal.ID, "error", err)
		return nil
	}
	cal.SyncToken = diff.Token
	return nil
}

func (p *Puller) incrementalSync(ctx context.Context, cal *store.Calendar) error {
	diff, err := p.client.SyncCollection(ctx, cal.SyncToken)
	if err != nil {
		return fmt.Errorf("sync collection: %w", err)
	}

	for _, href := range diff.Deleted {
		if err := p.applyRemoteDeletion(ctx, cal, href); err != nil {
			return err
		}
	}

	hrefs := make([]string, 0, len(diff.Changed))
	for _, v := range diff.Changed {
		hrefs = append(hrefs, v.Href)
	}
	if err := p.fetchAndApply(ctx, cal, hrefs); err != nil {
		return err
	}

	if diff.Token != "" {
		cal.SyncToken = diff.Token
	}
	return nil
}

func (p *Puller) fetchAndApply(ctx context.Context, cal *store.Calendar, hrefs []string) error {
	if len(hrefs) == 0 {
		return nil
	}
	objects, err := p.client.MultiGet(ctx, hrefs)
	if err != nil {
		return fmt.Errorf("fetch calendar data: %w", err)
	}
	for _, obj := range objects {
		if err := p.applyObject(ctx, cal, obj); err != nil {
			return err
		}
	}
	return nil
}

// applyObject merges one fetched resource into the store. A malformed
// payload is logged and skipped, never fatal.
func (p *Puller) applyObject(ctx context.Context, cal *store.Calendar, obj davclient.ObjectData) error {
	decoded, err := ical.Decode(obj.CalendarData)
	if err != nil {
		p.logger.Warn("skipping unparseable resource", "calendar", cal.ID, "href", obj.Href, "error", err)
		return nil
	}

	var masterID int64
	err = p.store.WithTx(ctx, func(tx store.Tx) error {
		master, err := tx.EventByHref(cal.ID, obj.Href)
		switch {
		case store.IsNotFound(err):
			master = decoded.Master
			master.CalendarID = cal.ID
			master.RemoteHref = obj.Href
			master.Etag = obj.Etag
			master.SyncStatus = store.StatusSynced
			if err := tx.CreateEvent(master); err != nil {
				return err
			}
		case err != nil:
			return err
		case master.SyncStatus != store.StatusSynced:
			// Local edits pending; server data for this row is not trusted
			// until the outbox has drained them.
			p.logger.Debug("local-first: keeping pending event", "href", obj.Href, "status", master.SyncStatus.String())
			masterID = master.ID
			return nil
		default:
			id, calID := master.ID, master.CalendarID
			*master = *decoded.Master
			master.ID = id
			master.CalendarID = calID
			master.RemoteHref = obj.Href
			master.Etag = obj.Etag
			master.SyncStatus = store.StatusSynced
			if err := tx.UpdateEvent(master); err != nil {
				return err
			}
		}
		masterID = master.ID
		return p.applyExceptions(tx, cal, master, obj, decoded.Exceptions)
	})
	if err != nil {
		return err
	}

	master, err := p.store.GetEvent(masterID)
	if err != nil {
		return err
	}
	return p.rec.Regenerate(ctx, master)
}

// applyExceptions reconciles the decoded exception set against the stored
// one, keyed by original instant. The local-first rule applies per row.
func (p *Puller) applyExceptions(tx store.Tx, cal *store.Calendar, master *store.Event, obj davclient.ObjectData, incoming []*store.Event) error {
	existing, err := tx.ExceptionsOf(master.ID)
	if err != nil {
		return err
	}
	byOriginal := make(map[int64]*store.Event, len(existing))
	for _, exc := range existing {
		byOriginal[exc.OriginalStartMillis] = exc
	}

	seen := make(map[int64]bool, len(incoming))
	for _, in := range incoming {
		seen[in.OriginalStartMillis] = true
		local, ok := byOriginal[in.OriginalStartMillis]
		if ok && local.SyncStatus != store.StatusSynced {
			continue
		}
		in.CalendarID = cal.ID
		in.MasterID = master.ID
		in.UID = master.UID
		in.RemoteHref = obj.Href
		in.Etag = obj.Etag
		in.SyncStatus = store.StatusSynced
		if ok {
			in.ID = local.ID
			if err := tx.UpdateEvent(in); err != nil {
				return err
			}
			continue
		}
		if err := tx.CreateEvent(in); err != nil {
			return err
		}
	}

	for _, exc := range existing {
		if seen[exc.OriginalStartMillis] || exc.SyncStatus != store.StatusSynced {
			continue
		}
		if err := tx.DeleteEvent(exc.ID); err != nil {
			return err
		}
	}
	return nil
}

// applyRemoteDeletion handles a server-side deletion notice for href. Rows
// with pending local state survive: a pending delete means both sides agree
// and the notice is absorbed, any other pending status must reach the
// server first.
func (p *Puller) applyRemoteDeletion(ctx context.Context, cal *store.Calendar, href string) error {
	return p.store.WithTx(ctx, func(tx store.Tx) error {
		master, err := tx.EventByHref(cal.ID, href)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if master.SyncStatus != store.StatusSynced {
			p.logger.Debug("local-first: keeping pending event despite remote deletion",
				"href", href, "status", master.SyncStatus.String())
			return nil
		}
		return deleteEventTree(tx, master.ID)
	})
}

// deleteEventTree removes a master with its synced exceptions and all
// materialized occurrences. Exceptions with pending local state are kept;
// the outbox owns their fate.
func deleteEventTree(tx store.Tx, masterID int64) error {
	exceptions, err := tx.ExceptionsOf(masterID)
	if err != nil {
		return err
	}
	for _, exc := range exceptions {
		if exc.SyncStatus != store.StatusSynced {
			continue
		}
		if err := tx.DeleteEvent(exc.ID); err != nil {
			return err
		}
	}
	occs, err := tx.OccurrencesOf(masterID)
	if err != nil {
		return err
	}
	for _, o := range occs {
		if err := tx.DeleteOccurrence(o.ID); err != nil {
			return err
		}
	}
	return tx.DeleteEvent(masterID)
}
