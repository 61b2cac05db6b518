// Package scenario defines the closed enum that tags every conversation,
// job, and analysis record as the system carries them through the pipeline.
package scenario

// Scenario is a closed enum — no other values are admitted anywhere a
// Scenario is stored or propagated (spec §3).
type Scenario string

const (
	AdultBlackmail Scenario = "adult_blackmail"
	TeenagerSOS    Scenario = "teenager_sos"
	General        Scenario = "general"
)

// Valid reports whether s is one of the three admitted values.
func (s Scenario) Valid() bool {
	switch s {
	case AdultBlackmail, TeenagerSOS, General:
		return true
	default:
		return false
	}
}

// Coerce maps legacy/empty values to General. Legacy data may contain an
// empty or "none" scenario; new writes must never produce one (spec §9).
func Coerce(s Scenario) Scenario {
	if s.Valid() {
		return s
	}
	return General
}
