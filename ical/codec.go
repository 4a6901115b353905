// Package ical maps between store events and iCalendar payloads: one
// VCALENDAR carries a master VEVENT plus a VEVENT per exception, tied
// together by a shared UID and per-exception RECURRENCE-ID.
package ical

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/kalyxo/calsync/store"
)

const prodID = "-//kalyxo/calsync//NONSGML v1.0//EN"

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

const (
	propRecurrenceID = "RECURRENCE-ID"
	propSequence     = "SEQUENCE"
	paramTZID        = "TZID"
	paramValue       = "VALUE"
)

// Object is one decoded calendar resource: a master event and its
// exception overrides. Exceptions carry the master's UID and their
// OriginalStartMillis; MasterID is bound by the caller once the master row
// id is known.
type Object struct {
	Master     *store.Event
	Exceptions []*store.Event
}

// Decode parses a calendar-data payload. The first VEVENT without a
// RECURRENCE-ID is the master; every other VEVENT is an exception. When two
// records target the same original instant, the higher SEQUENCE wins and
// the other is discarded here, at ingestion.
func Decode(data string) (*Object, error) {
	cal, err := goical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("parse calendar data: %w", err)
	}

	obj := &Object{}
	byOriginal := make(map[int64]*store.Event)

	for _, event := range cal.Events() {
		ev, originalMillis, isException, err := decodeEvent(event)
		if err != nil {
			return nil, err
		}
		if !isException {
			if obj.Master == nil {
				obj.Master = ev
			}
			continue
		}
		ev.OriginalStartMillis = originalMillis
		if prev, ok := byOriginal[originalMillis]; ok && prev.Sequence >= ev.Sequence {
			continue
		}
		byOriginal[originalMillis] = ev
	}

	if obj.Master == nil {
		return nil, fmt.Errorf("calendar data has no master event")
	}
	for _, exc := range byOriginal {
		exc.UID = obj.Master.UID
		obj.Exceptions = append(obj.Exceptions, exc)
	}
	return obj, nil
}

func decodeEvent(event goical.Event) (*store.Event, int64, bool, error) {
	ev := &store.Event{}

	if prop := event.Props.Get(goical.PropUID); prop != nil {
		ev.UID = prop.Value
	}
	if prop := event.Props.Get(goical.PropSummary); prop != nil {
		ev.Title = prop.Value
	}
	if prop := event.Props.Get(goical.PropDescription); prop != nil {
		ev.Description = prop.Value
	}
	if prop := event.Props.Get(goical.PropLocation); prop != nil {
		ev.Location = prop.Value
	}

	startProp := event.Props.Get(goical.PropDateTimeStart)
	if startProp == nil {
		return nil, 0, false, fmt.Errorf("event %q has no DTSTART", ev.UID)
	}
	start, tzID, allDay, err := decodeInstant(startProp)
	if err != nil {
		return nil, 0, false, err
	}
	ev.AllDay = allDay
	ev.TimezoneID = tzID
	ev.StartMillis = start.UnixMilli()

	if endProp := event.Props.Get(goical.PropDateTimeEnd); endProp != nil {
		end, _, _, err := decodeInstant(endProp)
		if err != nil {
			return nil, 0, false, err
		}
		ev.EndMillis = end.UnixMilli()
	} else if allDay {
		ev.EndMillis = start.Add(24 * time.Hour).UnixMilli()
	} else {
		ev.EndMillis = ev.StartMillis
	}

	if prop := event.Props.Get(goical.PropRecurrenceRule); prop != nil {
		ev.RRule = prop.Value
	}
	if prop := event.Props.Get(goical.PropExceptionDates); prop != nil {
		ev.ExDates = prop.Value
	}
	if prop := event.Props.Get(goical.PropRecurrenceDates); prop != nil {
		ev.RDates = prop.Value
	}
	if prop := event.Props.Get(propSequence); prop != nil {
		if n, err := strconv.Atoi(prop.Value); err == nil {
			ev.Sequence = n
		}
	}
	if prop := event.Props.Get(goical.PropStatus); prop != nil && strings.EqualFold(prop.Value, "CANCELLED") {
		ev.Cancelled = true
	}

	ridProp := event.Props.Get(propRecurrenceID)
	if ridProp == nil {
		return ev, 0, false, nil
	}

	// An exception never carries its own recurrence rule.
	ev.RRule = ""
	ev.ExDates = ""
	ev.RDates = ""
	original, _, _, err := decodeInstant(ridProp)
	if err != nil {
		return nil, 0, false, err
	}
	return ev, original.UnixMilli(), true, nil
}

// decodeInstant parses a date or date-time property, resolving a TZID
// parameter when present. All-day (DATE) values resolve to UTC midnight and
// are never shifted by timezone conversion.
func decodeInstant(prop *goical.Prop) (time.Time, string, bool, error) {
	value := strings.TrimSpace(prop.Value)
	tzID := prop.Params.Get(paramTZID)

	if len(value) == len(layoutDate) {
		t, err := time.Parse(layoutDate, value)
		if err != nil {
			return time.Time{}, "", false, fmt.Errorf("invalid date %q: %w", value, err)
		}
		return t, "", true, nil
	}

	if t, err := time.Parse(layoutUTC, value); err == nil {
		return t, tzID, false, nil
	}

	loc := time.UTC
	if tzID != "" {
		if l, err := time.LoadLocation(tzID); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(layoutLocal, value, loc)
	if err != nil {
		return time.Time{}, "", false, fmt.Errorf("invalid date-time %q: %w", value, err)
	}
	return t, tzID, false, nil
}

// Encode serializes a master event with a snapshot of its exceptions into
// one VCALENDAR payload.
func Encode(master *store.Event, exceptions []*store.Event) ([]byte, error) {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropProductID, prodID)
	cal.Props.SetText(goical.PropVersion, "2.0")

	cal.Children = append(cal.Children, encodeEvent(master, master).Component)
	for _, exc := range exceptions {
		cal.Children = append(cal.Children, encodeEvent(exc, master).Component)
	}

	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeEvent(ev, master *store.Event) *goical.Event {
	out := goical.NewEvent()
	out.Props.SetText(goical.PropUID, master.UID)
	out.Props.SetDateTime(goical.PropDateTimeStamp, time.Now().UTC())
	if ev.Title != "" {
		out.Props.SetText(goical.PropSummary, ev.Title)
	}
	if ev.Description != "" {
		out.Props.SetText(goical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		out.Props.SetText(goical.PropLocation, ev.Location)
	}

	setInstant(out, goical.PropDateTimeStart, ev.StartMillis, ev)
	setInstant(out, goical.PropDateTimeEnd, ev.EndMillis, ev)

	// RRULE, EXDATE, RDATE and SEQUENCE are not TEXT-typed properties;
	// SetText would attach VALUE=TEXT and backslash-escape the semicolons,
	// corrupting the rule. They go out as raw values.
	if ev.RRule != "" {
		setRaw(out, goical.PropRecurrenceRule, ev.RRule)
	}
	if ev.ExDates != "" {
		setRaw(out, goical.PropExceptionDates, ev.ExDates)
	}
	if ev.RDates != "" {
		setRaw(out, goical.PropRecurrenceDates, ev.RDates)
	}
	if ev.Sequence > 0 {
		setRaw(out, propSequence, strconv.Itoa(ev.Sequence))
	}
	if ev.Cancelled {
		out.Props.SetText(goical.PropStatus, "CANCELLED")
	}
	if ev != master {
		setInstant(out, propRecurrenceID, ev.OriginalStartMillis, ev)
	}
	return out
}

func setRaw(event *goical.Event, name, value string) {
	prop := goical.NewProp(name)
	prop.Value = value
	event.Props.Set(prop)
}

func setInstant(event *goical.Event, name string, millis int64, ev *store.Event) {
	prop := goical.NewProp(name)
	t := time.UnixMilli(millis)

	switch {
	case ev.AllDay:
		prop.Params.Set(paramValue, "DATE")
		prop.Value = t.UTC().Format(layoutDate)
	case ev.TimezoneID != "":
		loc, err := time.LoadLocation(ev.TimezoneID)
		if err != nil {
			prop.Value = t.UTC().Format(layoutUTC)
			break
		}
		prop.Params.Set(paramTZID, ev.TimezoneID)
		prop.Value = t.In(loc).Format(layoutLocal)
	default:
		prop.Value = t.UTC().Format(layoutUTC)
	}
	event.Props.Set(prop)
}
