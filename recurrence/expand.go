package recurrence

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Input describes one expansion request. The expander is a pure function of
// this input plus the configured instance cap.
type Input struct {
	// Start is the event's DTSTART. It is always a candidate instant,
	// whether or not it satisfies the rule's by-* filters.
	Start time.Time
	// RRule is the raw recurrence rule text. Empty means the event does not
	// recur (exactly one occurrence, the start itself); an unparseable rule
	// yields zero occurrences.
	RRule string
	// ExDates removes instants from the result, matched at whole-second
	// granularity. RDates merges additional instants in.
	ExDates []time.Time
	RDates  []time.Time
	// From and To bound the query window, both inclusive.
	From time.Time
	To   time.Time
	// AllDay forces every instant to UTC midnight of its date.
	AllDay bool
	// Location is the event's timezone. Nil means UTC. Ignored for all-day
	// events, which are never shifted by timezone conversion.
	Location *time.Location
}

// Expander turns a recurrence rule plus exclusion/addition sets into the
// ordered, deduplicated instants inside a query window. It is stateless and
// safe for concurrent use.
type Expander struct {
	maxInstances int
}

// NewExpander creates an expander with the given config.
func NewExpander(cfg Config) *Expander {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = DefaultMaxInstances
	}
	return &Expander{maxInstances: cfg.MaxInstances}
}

// Expand produces the occurrence instants for in, sorted ascending. A
// zero-length result is valid output, not an error; no input makes this
// function panic.
func (e *Expander) Expand(in Input) []time.Time {
	start := e.normalize(in.Start, in)
	from := in.From.Truncate(time.Second)
	to := in.To.Truncate(time.Second)

	rule, err := ParseRule(in.RRule)
	if err != nil {
		// Structurally invalid rule: the record degrades to nothing.
		return nil
	}

	var raw []time.Time
	if rule == nil {
		raw = []time.Time{start}
	} else {
		raw = e.expandRule(rule, start, to)
		if raw == nil {
			return nil
		}
	}

	// Union with RDATE, minus EXDATE, keyed by unix second. The surrounding
	// records store milliseconds; this is the single conversion boundary.
	set := make(map[int64]time.Time, len(raw))
	for _, t := range raw {
		if !t.Before(from) && !t.After(to) {
			set[t.Unix()] = t
		}
	}
	for _, t := range in.RDates {
		t = e.normalize(t, in)
		if t.Before(from) || t.After(to) {
			continue
		}
		if _, ok := set[t.Unix()]; !ok {
			set[t.Unix()] = t
		}
	}
	for _, t := range in.ExDates {
		delete(set, e.normalize(t, in).Unix())
	}

	out := make([]time.Time, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// expandRule steps the rule from start, stopping at the window end, the
// rule's own end condition, or the instance cap, whichever comes first.
// A nil result means the rule produces nothing at all (UNTIL before start).
func (e *Expander) expandRule(rule *Rule, start, windowEnd time.Time) []time.Time {
	opt := rrule.ROption{
		Freq:       freqToRRule(rule.Freq),
		Dtstart:    start,
		Interval:   rule.Interval,
		Bysetpos:   rule.BySetPos,
		Bymonth:    rule.ByMonth,
		Bymonthday: rule.ByMonthDay,
		Byyearday:  rule.ByYearDay,
		Byweekno:   rule.ByWeekNo,
	}
	if opt.Interval < 1 {
		opt.Interval = 1
	}
	switch rule.End.Kind {
	case EndCount:
		// COUNT=0 (or negative) is treated as unlimited; the cap still
		// bounds the expansion.
		if rule.End.Count > 0 {
			opt.Count = rule.End.Count
		}
	case EndUntil:
		until := rule.End.Until.Truncate(time.Second)
		if until.Before(start) {
			return nil
		}
		opt.Until = until
	}
	for _, d := range rule.ByDay {
		wd := weekdayToRRule(d.Day)
		if d.Ordinal != 0 {
			wd = wd.Nth(d.Ordinal)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}
	if rule.WeekStart != nil {
		opt.Wkst = weekdayToRRule(*rule.WeekStart)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return []time.Time{}
	}

	// DTSTART is always part of the candidate set (RFC 5545 semantics);
	// it does not consume COUNT when the filters reject it. When the
	// filters admit it, the iterator yields it again; that duplicate must
	// not spend cap budget, so the budget counts distinct instants only.
	out := []time.Time{start}
	seen := map[int64]struct{}{start.Unix(): {}}
	next := r.Iterator()
	for generated := 1; generated < e.maxInstances; {
		t, ok := next()
		if !ok {
			break
		}
		t = t.Truncate(time.Second)
		if t.After(windowEnd) {
			break
		}
		if _, dup := seen[t.Unix()]; dup {
			continue
		}
		seen[t.Unix()] = struct{}{}
		out = append(out, t)
		generated++
	}
	return out
}

// normalize truncates to whole seconds and pins all-day instants to UTC
// midnight of their date, independent of the evaluating timezone.
func (e *Expander) normalize(t time.Time, in Input) time.Time {
	if in.AllDay {
		d := t.UTC()
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	if in.Location != nil {
		t = t.In(in.Location)
	}
	return t.Truncate(time.Second)
}

func freqToRRule(f Frequency) rrule.Frequency {
	switch f {
	case Weekly:
		return rrule.WEEKLY
	case Monthly:
		return rrule.MONTHLY
	case Yearly:
		return rrule.YEARLY
	default:
		return rrule.DAILY
	}
}

func weekdayToRRule(d Weekday) rrule.Weekday {
	switch d {
	case Tuesday:
		return rrule.TU
	case Wednesday:
		return rrule.WE
	case Thursday:
		return rrule.TH
	case Friday:
		return rrule.FR
	case Saturday:
		return rrule.SA
	case Sunday:
		return rrule.SU
	default:
		return rrule.MO
	}
}
