// Package clock provides DST-aware mapping between a bar's UTC close
// timestamp and the London-New York trading session, using the IANA
// timezone database rather than fixed UTC offsets.
package clock

import (
	"fmt"
	"time"
)

// Clock is the collaborator capability the core consumes for session
// bounds and tradeability. It is pure and holds no per-call state.
type Clock interface {
	SessionBoundsUTC(date time.Time) (open, close time.Time, err error)
	IsTradeable(closeTS time.Time) bool
}

// SessionClock implements Clock against the real IANA database. London
// open is 08:00 Europe/London; New York close is 17:00 America/New_York,
// both converted back to UTC for the given calendar date.
type SessionClock struct {
	london   *time.Location
	newYork  *time.Location
	openHour int
	closeHour int
}

// New loads the London and New York locations from the system tzdata.
func New() (*SessionClock, error) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		return nil, fmt.Errorf("clock: load Europe/London: %w", err)
	}
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("clock: load America/New_York: %w", err)
	}
	return &SessionClock{
		london:    london,
		newYork:   newYork,
		openHour:  8,
		closeHour: 17,
	}, nil
}

// SessionBoundsUTC returns the UTC instants corresponding to 08:00 London
// time and 17:00 New York time on the civil date implied by date (the
// date's own location is ignored; only the calendar Y/M/D matter).
//
// Ambiguous or non-existent local times (DST fall-back and spring-forward
// gaps) resolve to the earliest representable instant: Go's time.Date
// already returns the earliest UTC equivalent for an ambiguous wall clock
// and normalizes a non-existent one forward, which is what this policy
// wants — it never needs to special-case the transition itself.
func (c *SessionClock) SessionBoundsUTC(date time.Time) (time.Time, time.Time, error) {
	y, m, d := date.Date()

	open := time.Date(y, m, d, c.openHour, 0, 0, 0, c.london).UTC()
	closeLocal := time.Date(y, m, d, c.closeHour, 0, 0, 0, c.newYork)
	closeUTC := closeLocal.UTC()

	if !closeUTC.After(open) {
		return time.Time{}, time.Time{}, fmt.Errorf("clock: session close %s not after open %s", closeUTC, open)
	}
	return open, closeUTC, nil
}

// IsTradeable rejects weekend bars and bars outside the London-open to
// New-York-close window for their calendar date.
func (c *SessionClock) IsTradeable(closeTS time.Time) bool {
	londonDate := closeTS.In(c.london)
	if wd := londonDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	open, close, err := c.SessionBoundsUTC(closeTS)
	if err != nil {
		return false
	}
	return !closeTS.Before(open) && !closeTS.After(close)
}
