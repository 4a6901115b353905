package recurrence

// DefaultMaxInstances bounds a single expansion. An unterminated rule (no
// COUNT, no UNTIL) is otherwise unbounded; when the cap triggers the
// expander returns what it has instead of erroring.
const DefaultMaxInstances = 1000

// Config controls expansion behavior.
type Config struct {
	// MaxInstances is the hard cap on generated instants per expansion.
	// Zero or negative falls back to DefaultMaxInstances.
	MaxInstances int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{MaxInstances: DefaultMaxInstances}
}
