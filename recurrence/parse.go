package recurrence

import (
	"strconv"
	"strings"
	"time"
)

const (
	untilLayoutUTC   = "20060102T150405Z"
	untilLayoutLocal = "20060102T150405"
	untilLayoutDate  = "20060102"
)

// ParseRule parses a semicolon-delimited KEY=VALUE recurrence rule string.
//
// An empty string parses to (nil, nil): the event simply does not recur.
// A string without a recognizable FREQ token returns ErrInvalidRule.
// Anything else degrades token by token: unknown keys are ignored,
// non-numeric values are dropped, an unparseable UNTIL means "no end
// condition". No input makes this function panic.
func ParseRule(s string) (*Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	rule := &Rule{Freq: -1}
	for _, segment := range strings.Split(s, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			switch strings.ToUpper(value) {
			case "DAILY":
				rule.Freq = Daily
			case "WEEKLY":
				rule.Freq = Weekly
			case "MONTHLY":
				rule.Freq = Monthly
			case "YEARLY":
				rule.Freq = Yearly
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil {
				rule.Interval = n
			}
		case "COUNT":
			if n, err := strconv.Atoi(value); err == nil {
				rule.End = End{Kind: EndCount, Count: n}
			}
		case "UNTIL":
			if t, ok := parseUntil(value); ok {
				rule.End = End{Kind: EndUntil, Until: t}
			}
		case "BYDAY":
			rule.ByDay = parseByDayList(value)
		case "BYMONTHDAY":
			rule.ByMonthDay = parseIntList(value)
		case "BYMONTH":
			rule.ByMonth = parseIntList(value)
		case "BYYEARDAY":
			rule.ByYearDay = parseIntList(value)
		case "BYWEEKNO":
			rule.ByWeekNo = parseIntList(value)
		case "BYSETPOS":
			rule.BySetPos = parseIntList(value)
		case "WKST":
			if d, ok := parseWeekday(value); ok {
				wd := d
				rule.WeekStart = &wd
			}
		}
	}

	if rule.Freq < Daily || rule.Freq > Yearly {
		return nil, ErrInvalidRule
	}
	return rule, nil
}

func parseUntil(value string) (time.Time, bool) {
	for _, layout := range []string{untilLayoutUTC, untilLayoutLocal, untilLayoutDate} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseIntList(value string) []int {
	var out []int
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func parseByDayList(value string) []ByDay {
	var out []ByDay
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(strings.ToUpper(tok))
		if len(tok) < 2 {
			continue
		}
		day, ok := parseWeekday(tok[len(tok)-2:])
		if !ok {
			continue
		}
		entry := ByDay{Day: day}
		if prefix := tok[:len(tok)-2]; prefix != "" {
			n, err := strconv.Atoi(prefix)
			if err != nil {
				continue
			}
			entry.Ordinal = n
		}
		out = append(out, entry)
	}
	return out
}

func parseWeekday(tok string) (Weekday, bool) {
	for i, t := range weekdayTokens {
		if t == strings.ToUpper(strings.TrimSpace(tok)) {
			return Weekday(i), true
		}
	}
	return 0, false
}

// ParseDateList parses a comma-separated EXDATE/RDATE value list. Tokens may
// be date-only or date-time, with or without a Z suffix; blank and
// unparseable entries are skipped. Date-only tokens resolve to midnight in
// loc (UTC when loc is nil).
func ParseDateList(value string, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	var out []time.Time
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if t, err := time.Parse(untilLayoutUTC, tok); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation(untilLayoutLocal, tok, loc); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation(untilLayoutDate, tok, loc); err == nil {
			out = append(out, t)
		}
	}
	return out
}
