package ingest

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DateLayout is the date format of window bounds and CLI flags.
const DateLayout = "2006-01-02"

// DefaultLookbackDays is the window length used when no start date is given.
const DefaultLookbackDays = 7

// DefaultLocation is the FEC's time zone, used to decide what "today" is.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the start formatted as YYYY-MM-DD.
func (w Window) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate returns the end formatted as YYYY-MM-DD.
func (w Window) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w Window) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

// ResolveWindow fills in missing bounds: end defaults to today in loc and
// start to lookbackDays before today.
func ResolveWindow(start, end *time.Time, now time.Time, loc *time.Location, lookbackDays int) (Window, error) {
	if loc == nil {
		loc = DefaultLocation()
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	today := dateOf(now.In(loc))

	w := Window{
		Start: today.AddDate(0, 0, -lookbackDays),
		End:   today,
	}
	if start != nil {
		w.Start = dateOf(*start)
	}
	if end != nil {
		w.End = dateOf(*end)
	}

	if w.Start.After(w.End) {
		return Window{}, fmt.Errorf("start date %s is after end date %s", w.StartDate(), w.EndDate())
	}
	return w, nil
}

// ParseDate parses a YYYY-MM-DD flag value. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
