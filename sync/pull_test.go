package sync

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kalyxo/calsync/davclient"
	"github.com/kalyxo/calsync/occurrence"
	"github.com/kalyxo/calsync/recurrence"
	"github.com/kalyxo/calsync/store"
	"github.com/kalyxo/calsync/store/memory"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestReconciler(s store.Store) *occurrence.Reconciler {
	cfg := occurrence.DefaultConfig()
	cfg.Now = func() time.Time { return testNow }
	return occurrence.New(s, recurrence.NewExpander(recurrence.DefaultConfig()), cfg, slog.Default())
}

func newTestCalendar(t *testing.T, s store.Store) *store.Calendar {
	t.Helper()
	cal := &store.Calendar{Name: "Personal", Href: "/calendars/alice/personal/"}
	require.NoError(t, s.CreateCalendar(cal))
	return cal
}

func ics(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func recurringICS(uid, title string) string {
	return ics(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:"+uid,
		"SUMMARY:"+title,
		"DTSTART:20250106T100000Z",
		"DTEND:20250106T103000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:"+uid,
		"SUMMARY:"+title+" (moved)",
		"DTSTART:20250108T140000Z",
		"DTEND:20250108T143000Z",
		"RECURRENCE-ID:20250108T100000Z",
		"SEQUENCE:1",
		"END:VEVENT",
		"END:VCALENDAR",
	)
}

func TestPullFullSync(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-1", nil)
	client.On("ListObjectVersions", mock.Anything).Return([]davclient.ObjectVersion{
		{Href: "/calendars/alice/personal/e1.ics", Etag: "abc"},
	}, nil)
	client.On("MultiGet", mock.Anything, mock.Anything).Return([]davclient.ObjectData{
		{
			Href:         "/calendars/alice/personal/e1.ics",
			Etag:         "abc",
			CalendarData: recurringICS("e1-uid", "Standup"),
		},
	}, nil)
	client.On("SyncCollection", mock.Anything, "").Return(davclient.SyncDiff{Token: "tok-1"}, nil)

	p := NewPuller(s, client, newTestReconciler(s), slog.Default())
	require.NoError(t, p.Pull(context.Background(), cal.ID))

	master, err := s.EventByHref(cal.ID, "/calendars/alice/personal/e1.ics")
	require.NoError(t, err)
	assert.Equal(t, "Standup", master.Title)
	assert.Equal(t, "abc", master.Etag)
	assert.Equal(t, store.StatusSynced, master.SyncStatus)

	exceptions, err := s.ExceptionsOf(master.ID)
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "e1-uid", exceptions[0].UID)

	occs, err := s.OccurrencesOf(master.ID)
	require.NoError(t, err)
	assert.Len(t, occs, 5)

	linked := 0
	for _, o := range occs {
		if o.ExceptionEventID == exceptions[0].ID {
			linked++
			assert.Equal(t, time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC).UnixMilli(), o.StartMillis)
		}
	}
	assert.Equal(t, 1, linked)

	got, err := s.GetCalendar(cal.ID)
	require.NoError(t, err)
	assert.Equal(t, "ctag-1", got.CTag)
	assert.Equal(t, "tok-1", got.SyncToken)
}

func TestPullKeepsPendingUpdate(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)
	cal.SyncToken = "tok-0"
	require.NoError(t, s.UpdateCalendar(cal))

	local := &store.Event{
		CalendarID:  cal.ID,
		UID:         "e1-uid",
		Title:       "Local title",
		StartMillis: time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC).UnixMilli(),
		EndMillis:   time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC).UnixMilli(),
		SyncStatus:  store.StatusPendingUpdate,
		RemoteHref:  "/calendars/alice/personal/e1.ics",
		Etag:        "old",
	}
	require.NoError(t, s.CreateEvent(local))

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-2", nil)
	client.On("SyncCollection", mock.Anything, "tok-0").Return(davclient.SyncDiff{
		Token:   "tok-1",
		Changed: []davclient.ObjectVersion{{Href: local.RemoteHref, Etag: "new"}},
	}, nil)
	client.On("MultiGet", mock.Anything, mock.Anything).Return([]davclient.ObjectData{
		{Href: local.RemoteHref, Etag: "new", CalendarData: recurringICS("e1-uid", "Server title")},
	}, nil)

	p := NewPuller(s, client, newTestReconciler(s), slog.Default())
	require.NoError(t, p.Pull(context.Background(), cal.ID))

	got, err := s.GetEvent(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Local title", got.Title)
	assert.Equal(t, store.StatusPendingUpdate, got.SyncStatus)

	updated, err := s.GetCalendar(cal.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", updated.SyncToken)
}

func TestPullRemoteDeletion(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)
	cal.SyncToken = "tok-0"
	require.NoError(t, s.UpdateCalendar(cal))

	synced := &store.Event{
		CalendarID: cal.ID,
		UID:        "gone-uid",
		Title:      "Synced",
		SyncStatus: store.StatusSynced,
		RemoteHref: "/calendars/alice/personal/gone.ics",
	}
	require.NoError(t, s.CreateEvent(synced))
	require.NoError(t, s.CreateOccurrence(&store.Occurrence{
		EventID:     synced.ID,
		StartMillis: testNow.UnixMilli(),
		EndMillis:   testNow.UnixMilli(),
	}))

	pendingDelete := &store.Event{
		CalendarID: cal.ID,
		UID:        "pd-uid",
		Title:      "Pending delete",
		SyncStatus: store.StatusPendingDelete,
		RemoteHref: "/calendars/alice/personal/pd.ics",
	}
	require.NoError(t, s.CreateEvent(pendingDelete))

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-2", nil)
	client.On("SyncCollection", mock.Anything, "tok-0").Return(davclient.SyncDiff{
		Token:   "tok-1",
		Deleted: []string{synced.RemoteHref, pendingDelete.RemoteHref},
	}, nil)

	p := NewPuller(s, client, newTestReconciler(s), slog.Default())
	require.NoError(t, p.Pull(context.Background(), cal.ID))

	_, err := s.GetEvent(synced.ID)
	assert.True(t, store.IsNotFound(err))
	occs, err := s.OccurrencesOf(synced.ID)
	require.NoError(t, err)
	assert.Empty(t, occs)

	// Both sides agree on the pending delete; the notice is absorbed and
	// the outbox still owns the row.
	got, err := s.GetEvent(pendingDelete.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPendingDelete, got.SyncStatus)
}

func TestPullSkipsWhenCTagUnchanged(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)
	cal.CTag = "ctag-1"
	cal.SyncToken = "tok-0"
	require.NoError(t, s.UpdateCalendar(cal))

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-1", nil)

	p := NewPuller(s, client, newTestReconciler(s), slog.Default())
	require.NoError(t, p.Pull(context.Background(), cal.ID))

	client.AssertNotCalled(t, "SyncCollection", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "ListObjectVersions", mock.Anything)
}

func TestPullSkipsUnparseableResource(t *testing.T) {
	s := memory.New()
	cal := newTestCalendar(t, s)

	client := &davclient.MockClient{}
	client.On("GetCTag", mock.Anything).Return("ctag-1", nil)
	client.On("ListObjectVersions", mock.Anything).Return([]davclient.ObjectVersion{
		{Href: "/calendars/alice/personal/bad.ics", Etag: "x"},
	}, nil)
	client.On("MultiGet", mock.Anything, mock.Anything).Return([]davclient.ObjectData{
		{Href: "/calendars/alice/personal/bad.ics", Etag: "x", CalendarData: "garbage"},
	}, nil)
	client.On("SyncCollection", mock.Anything, "").Return(davclient.SyncDiff{Token: "tok-1"}, nil)

	p := NewPuller(s, client, newTestReconciler(s), slog.Default())
	require.NoError(t, p.Pull(context.Background(), cal.ID))

	events, err := s.EventsByCalendar(cal.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}
