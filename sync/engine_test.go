package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kalyxo/calsync/davclient"
	"github.com/kalyxo/calsync/store"
	"github.com/kalyxo/calsync/store/memory"
)

func TestSyncCalendarPushesBeforePull(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)

	ev := &store.Event{
		CalendarID: cal.ID,
		UID:        "order-uid",
		RemoteHref: "/calendars/alice/personal/order.ics",
		SyncStatus: store.StatusSynced,
	}
	require.NoError(t, s.CreateEvent(ev))
	require.NoError(t, Enqueue(s, ev, store.OpDelete, testNow))

	var order []string
	client := &davclient.MockClient{}
	client.On("DeleteObject", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "push") }).Return(nil)
	client.On("GetCTag", mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "pull") }).Return("ctag-1", nil)
	client.On("ListObjectVersions", mock.Anything).Return([]davclient.ObjectVersion{}, nil)
	client.On("SyncCollection", mock.Anything, "").Return(davclient.SyncDiff{Token: "tok-1"}, nil)

	e := NewEngine(s, func(*store.Calendar) davclient.Client { return client },
		newTestReconciler(s), DefaultBackoff(), slog.Default())
	require.NoError(t, e.SyncCalendar(context.Background(), cal.ID))

	require.GreaterOrEqual(t, len(order), 2)
	assert.Equal(t, "push", order[0])
	assert.Equal(t, "pull", order[1])
}

func TestSyncAllCoversEveryCalendar(t *testing.T) {
	s := memory.New()
	a := newTestCalendar(t, s)
	b := &store.Calendar{Name: "Work", Href: "/calendars/alice/work/"}
	require.NoError(t, s.CreateCalendar(b))

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-1", nil)
	client.On("ListObjectVersions", mock.Anything).Return([]davclient.ObjectVersion{}, nil)
	client.On("SyncCollection", mock.Anything, "").Return(davclient.SyncDiff{Token: "tok-1"}, nil)

	e := NewEngine(s, func(*store.Calendar) davclient.Client { return client },
		newTestReconciler(s), DefaultBackoff(), slog.Default())
	require.NoError(t, e.SyncAll(context.Background()))

	for _, id := range []int64{a.ID, b.ID} {
		cal, err := s.GetCalendar(id)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", cal.SyncToken)
	}
}

func TestNewSchedulerRejectsBadExpression(t *testing.T) {
	s := memory.New()
	e := NewEngine(s, func(*store.Calendar) davclient.Client { return &davclient.MockClient{} },
		newTestReconciler(s), DefaultBackoff(), slog.Default())

	_, err := NewScheduler(e, "not a cron line", slog.Default())
	assert.Error(t, err)

	sched, err := NewScheduler(e, "*/15 * * * *", slog.Default())
	require.NoError(t, err)
	sched.Start()
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
