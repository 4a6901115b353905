// Package recurrence implements parsing of RFC 5545 recurrence rules and
// expansion of rules into concrete occurrence instants.
package recurrence

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned when a rule string has a missing or
// unrecognized frequency token. Callers treat it as "no occurrences",
// never as a fault.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Frequency is the stepping unit of a recurrence rule.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Yearly
)

// String returns the RFC 5545 token for the frequency.
func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "UNKNOWN"
	}
}

// Weekday numbering follows RFC 5545 (Monday first), not time.Weekday.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayTokens = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// String returns the two-letter RFC 5545 token.
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "??"
	}
	return weekdayTokens[d]
}

// ByDay is one BYDAY entry: a weekday with an optional signed ordinal
// (e.g. -1FR is the last Friday of the period).
type ByDay struct {
	Ordinal int // 0 = every matching weekday
	Day     Weekday
}

func (b ByDay) String() string {
	if b.Ordinal == 0 {
		return b.Day.String()
	}
	return strconv.Itoa(b.Ordinal) + b.Day.String()
}

// EndKind tags the rule's end-condition variant.
type EndKind int

const (
	// EndNone means the rule has no COUNT and no UNTIL.
	EndNone EndKind = iota
	// EndCount limits the rule to a fixed number of instants.
	EndCount
	// EndUntil limits the rule to instants not after a fixed instant.
	EndUntil
)

// End is the rule's end condition as a tagged variant.
type End struct {
	Kind  EndKind
	Count int       // meaningful when Kind == EndCount
	Until time.Time // meaningful when Kind == EndUntil
}

// Rule is a parsed recurrence rule. Values are stored as parsed; range
// validation is the expander's concern.
type Rule struct {
	Freq       Frequency
	Interval   int // 0 = not specified
	End        End
	ByDay      []ByDay
	ByMonthDay []int // negative = count from end of month
	ByMonth    []int
	ByYearDay  []int // negative = count from end of year
	ByWeekNo   []int
	BySetPos   []int // negative = count from end of period candidate list
	WeekStart  *Weekday
}

// String renders the rule back to its RFC 5545 textual form. Parsing the
// result reproduces the original rule for every supported field.
func (r *Rule) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(r.Freq.String())
	if r.Interval != 0 {
		b.WriteString(";INTERVAL=")
		b.WriteString(strconv.Itoa(r.Interval))
	}
	switch r.End.Kind {
	case EndCount:
		b.WriteString(";COUNT=")
		b.WriteString(strconv.Itoa(r.End.Count))
	case EndUntil:
		b.WriteString(";UNTIL=")
		b.WriteString(r.End.Until.UTC().Format(untilLayoutUTC))
	}
	writeIntList := func(key string, vals []int) {
		if len(vals) == 0 {
			return
		}
		b.WriteString(";")
		b.WriteString(key)
		b.WriteString("=")
		for i, v := range vals {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Itoa(v))
		}
	}
	if len(r.ByDay) > 0 {
		b.WriteString(";BYDAY=")
		for i, d := range r.ByDay {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(d.String())
		}
	}
	writeIntList("BYMONTHDAY", r.ByMonthDay)
	writeIntList("BYMONTH", r.ByMonth)
	writeIntList("BYYEARDAY", r.ByYearDay)
	writeIntList("BYWEEKNO", r.ByWeekNo)
	writeIntList("BYSETPOS", r.BySetPos)
	if r.WeekStart != nil {
		b.WriteString(";WKST=")
		b.WriteString(r.WeekStart.String())
	}
	return b.String()
}
