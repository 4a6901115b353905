package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalyxo/calsync/davclient"
	"github.com/kalyxo/calsync/ical"
	"github.com/kalyxo/calsync/store"
)

// Backoff computes the retry delay for a failed outbox operation: the base
// delay doubled per retry, capped at Max. A negative or corrupt retry
// counter falls back to the base delay.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 30 * time.Second, Max: 30 * time.Minute}
}

func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	d := b.Base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	return d
}

// Outboxer drains the durable pending-operation queue against the remote
// collection, in enqueue order.
type Outboxer struct {
	store   store.Store
	client  davclient.Client
	backoff Backoff
	now     func() time.Time
	logger  *slog.Logger
}

func NewOutboxer(s store.Store, c davclient.Client, backoff Backoff, logger *slog.Logger) *Outboxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outboxer{
		store:   s,
		client:  c,
		backoff: backoff,
		now:     time.Now,
		logger:  logger.With("component", "push"),
	}
}

// Enqueue marks ev with the pending status matching kind and records an
// outbox entry. The target href and etag are captured now; the event row's
// remote fields may be cleared or reassigned before the operation runs.
func Enqueue(s store.Store, ev *store.Event, kind store.OpKind, now time.Time) error {
	switch kind {
	case store.OpCreate:
		ev.SyncStatus = store.StatusPendingCreate
	case store.OpUpdate:
		ev.SyncStatus = store.StatusPendingUpdate
	case store.OpDelete:
		ev.SyncStatus = store.StatusPendingDelete
	}
	if err := s.UpdateEvent(ev); err != nil {
		return err
	}
	return s.EnqueueOperation(&store.PendingOperation{
		EventID:        ev.ID,
		CalendarID:     ev.CalendarID,
		Kind:           kind,
		TargetHref:     ev.RemoteHref,
		TargetEtag:     ev.Etag,
		Status:         store.OpPending,
		EnqueuedMillis: now.UnixMilli(),
	})
}

// Drain executes every due operation belonging to calendarID. A failed
// operation stays queued with an incremented retry counter; its next
// attempt waits out the backoff delay. Drain itself only fails on storage
// errors.
func (o *Outboxer) Drain(ctx context.Context, calendarID int64) error {
	ops, err := o.store.PendingOperations()
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}

	now := o.now()
	for _, op := range ops {
		// Scoping uses the captured calendar id: for a delete whose event
		// row is already gone there is no row left to consult, and running
		// it against another calendar's client would be wrong.
		if op.CalendarID != calendarID {
			continue
		}
		if _, err := o.store.GetEvent(op.EventID); store.IsNotFound(err) {
			// The row disappeared underneath a create/update; nothing left
			// to push. Deletes are keyed by the captured href instead.
			if op.Kind != store.OpDelete {
				if err := o.store.DeleteOperation(op.ID); err != nil {
					return err
				}
				continue
			}
		} else if err != nil {
			return err
		}
		if !o.due(op, now) {
			continue
		}

		if err := o.execute(ctx, op); err != nil {
			o.logger.Warn("outbox operation failed",
				"op", op.ID, "kind", op.Kind, "retries", op.RetryCount, "error", err)
			op.RetryCount++
			op.Status = store.OpPending
			op.EnqueuedMillis = now.UnixMilli()
			if err := o.store.UpdateOperation(op); err != nil {
				return err
			}
			continue
		}
		if err := o.store.DeleteOperation(op.ID); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outboxer) due(op *store.PendingOperation, now time.Time) bool {
	if op.RetryCount <= 0 {
		return true
	}
	next := time.UnixMilli(op.EnqueuedMillis).Add(o.backoff.Delay(op.RetryCount))
	return !now.Before(next)
}

func (o *Outboxer) execute(ctx context.Context, op *store.PendingOperation) error {
	op.Status = store.OpInProgress
	if err := o.store.UpdateOperation(op); err != nil {
		return err
	}

	switch op.Kind {
	case store.OpDelete:
		return o.executeDelete(ctx, op)
	default:
		return o.executeUpsert(ctx, op)
	}
}

func (o *Outboxer) executeDelete(ctx context.Context, op *store.PendingOperation) error {
	// The wrapper absorbs a 404: a resource already gone means both sides
	// agree on the outcome.
	if err := o.client.DeleteObject(ctx, op.TargetHref, op.TargetEtag); err != nil {
		return err
	}
	ev, err := o.store.GetEvent(op.EventID)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.store.WithTx(ctx, func(tx store.Tx) error {
		return deleteEventTree(tx, ev.ID)
	})
}

// snapshot is the payload state captured atomically at serialization time.
// Server-assigned tags are applied back to exactly these rows and no other.
type snapshot struct {
	masterID  int64
	sequence  int
	exception []excRef
	payload   []byte
}

// excRef pins one exception row at its serialized edit counter.
type excRef struct {
	id       int64
	sequence int
}

func (o *Outboxer) executeUpsert(ctx context.Context, op *store.PendingOperation) error {
	snap, err := o.capture(ctx, op.EventID)
	if err != nil {
		return err
	}

	var href, etag string
	if op.Kind == store.OpCreate || op.TargetHref == "" {
		href, etag, err = o.client.CreateObject(ctx, snap.payload)
	} else {
		href = op.TargetHref
		etag, err = o.client.UpdateObject(ctx, op.TargetHref, op.TargetEtag, snap.payload)
	}
	if err != nil {
		return err
	}

	return o.applyResult(ctx, snap, href, etag)
}

// capture serializes the master together with its current exceptions in one
// transaction, so no concurrent edit can slip between the reads.
func (o *Outboxer) capture(ctx context.Context, eventID int64) (*snapshot, error) {
	snap := &snapshot{}
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		master, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		exceptions, err := tx.ExceptionsOf(master.ID)
		if err != nil {
			return err
		}
		payload, err := ical.Encode(master, exceptions)
		if err != nil {
			return err
		}
		snap.masterID = master.ID
		snap.sequence = master.Sequence
		for _, exc := range exceptions {
			snap.exception = append(snap.exception, excRef{id: exc.ID, sequence: exc.Sequence})
		}
		snap.payload = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// applyResult writes the server-assigned href and etag back to the snapshot
// members only. An exception created during the in-flight request was not
// part of the payload that produced this etag and must not receive it.
func (o *Outboxer) applyResult(ctx context.Context, snap *snapshot, href, etag string) error {
	return o.store.WithTx(ctx, func(tx store.Tx) error {
		master, err := tx.GetEvent(snap.masterID)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		master.RemoteHref = href
		master.Etag = etag
		if master.Sequence == snap.sequence {
			master.SyncStatus = store.StatusSynced
		}
		if err := tx.UpdateEvent(master); err != nil {
			return err
		}

		for _, ref := range snap.exception {
			exc, err := tx.GetEvent(ref.id)
			if store.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			exc.RemoteHref = href
			exc.Etag = etag
			if exc.Sequence == ref.sequence {
				exc.SyncStatus = store.StatusSynced
			}
			if err := tx.UpdateEvent(exc); err != nil {
				return err
			}
		}
		return nil
	})
}
