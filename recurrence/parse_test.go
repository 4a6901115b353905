package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\t"} {
		rule, err := ParseRule(input)
		assert.NoError(t, err)
		assert.Nil(t, rule)
	}
}

func TestParseRuleInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"garbage", "not a rule at all"},
		{"unknown frequency", "FREQ=FORTNIGHTLY"},
		{"missing frequency", "INTERVAL=2;COUNT=10"},
		{"empty frequency", "FREQ=;COUNT=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := ParseRule(tt.input)
			assert.ErrorIs(t, err, ErrInvalidRule)
			assert.Nil(t, rule)
		})
	}
}

func TestParseRuleFields(t *testing.T) {
	rule, err := ParseRule("FREQ=MONTHLY;INTERVAL=2;COUNT=10;BYDAY=-1FR,2MO;BYMONTHDAY=-1,15;BYMONTH=1,7;BYSETPOS=-2;WKST=SU")
	require.NoError(t, err)
	require.NotNil(t, rule)

	assert.Equal(t, Monthly, rule.Freq)
	assert.Equal(t, 2, rule.Interval)
	assert.Equal(t, End{Kind: EndCount, Count: 10}, rule.End)
	assert.Equal(t, []ByDay{{Ordinal: -1, Day: Friday}, {Ordinal: 2, Day: Monday}}, rule.ByDay)
	assert.Equal(t, []int{-1, 15}, rule.ByMonthDay)
	assert.Equal(t, []int{1, 7}, rule.ByMonth)
	assert.Equal(t, []int{-2}, rule.BySetPos)
	require.NotNil(t, rule.WeekStart)
	assert.Equal(t, Sunday, *rule.WeekStart)
}

func TestParseRuleUntil(t *testing.T) {
	rule, err := ParseRule("FREQ=DAILY;UNTIL=20250110T100000Z")
	require.NoError(t, err)
	assert.Equal(t, EndUntil, rule.End.Kind)
	assert.Equal(t, time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC), rule.End.Until)

	// An unparseable UNTIL means no end condition, not a failure.
	rule, err = ParseRule("FREQ=DAILY;UNTIL=garbage")
	require.NoError(t, err)
	assert.Equal(t, EndNone, rule.End.Kind)
}

func TestParseRuleZeroCountPreserved(t *testing.T) {
	rule, err := ParseRule("FREQ=DAILY;COUNT=0")
	require.NoError(t, err)
	assert.Equal(t, End{Kind: EndCount, Count: 0}, rule.End)
}

func TestParseRuleToleratesNoise(t *testing.T) {
	rule, err := ParseRule("FREQ=WEEKLY;;INTERVAL=x;UNKNOWN=1;BYDAY=XX,MO; ")
	require.NoError(t, err)
	assert.Equal(t, Weekly, rule.Freq)
	assert.Equal(t, 0, rule.Interval)
	assert.Equal(t, []ByDay{{Day: Monday}}, rule.ByDay)
}

func TestRuleStringRoundTrip(t *testing.T) {
	sunday := Sunday
	tests := []struct {
		name string
		rule Rule
	}{
		{"plain daily", Rule{Freq: Daily}},
		{"count", Rule{Freq: Weekly, Interval: 2, End: End{Kind: EndCount, Count: 7}}},
		{"until", Rule{Freq: Monthly, End: End{Kind: EndUntil, Until: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}}},
		{"byday ordinals", Rule{Freq: Monthly, ByDay: []ByDay{{Ordinal: -1, Day: Friday}, {Ordinal: 1, Day: Monday}}}},
		{"signed month days", Rule{Freq: Monthly, ByMonthDay: []int{-1, 1, 15}}},
		{"yearly combo", Rule{
			Freq:      Yearly,
			ByMonth:   []int{2, 11},
			ByYearDay: []int{-5, 100},
			ByWeekNo:  []int{20},
			BySetPos:  []int{1, -1},
			WeekStart: &sunday,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseRule(tt.rule.String())
			require.NoError(t, err)
			require.NotNil(t, parsed)
			assert.Equal(t, &tt.rule, parsed)
		})
	}
}

func TestParseDateList(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	dates := ParseDateList("20250103T100000Z,20250104T100000, ,garbage,20250105", loc)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2025, 1, 4, 10, 0, 0, 0, loc), dates[1])
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, loc), dates[2])

	assert.Empty(t, ParseDateList("", nil))
}
