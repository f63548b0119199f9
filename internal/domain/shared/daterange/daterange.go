package daterange

import (
	"errors"
	"time"
)

var (
	ErrInvalidRange = errors.New("daterange: from must not be after to")
	ErrMissingDate  = errors.New("daterange: from and to are required")
)

var (
	// MinDate and MaxDate bound an open-ended range.
	MinDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// DateRange is an inclusive span of calendar days [From, To].
type DateRange struct {
	From time.Time
	To   time.Time
}

// New truncates both ends to UTC days and validates From <= To. MinDate is
// the zero time.Time and is a valid lower bound.
func New(from, to time.Time) (DateRange, error) {
	dr := DateRange{From: Day(from), To: Day(to)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Must is New that panics; fixtures and tests only.
func Must(from, to time.Time) DateRange {
	dr, err := New(from, to)
	if err != nil {
		panic(err)
	}
	return dr
}

// Unbounded covers every representable day.
func Unbounded() DateRange {
	return DateRange{From: MinDate, To: MaxDate}
}

// Day drops the clock part of t, keeping its calendar date in UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (dr DateRange) Validate() error {
	if dr.From.After(dr.To) {
		return ErrInvalidRange
	}
	return nil
}

// Conflicts reports whether the ranges share at least one day.
func (dr DateRange) Conflicts(other DateRange) bool {
	return !dr.From.After(other.To) && !other.From.After(dr.To)
}

func (dr DateRange) String() string {
	return dr.From.Format(time.DateOnly) + ".." + dr.To.Format(time.DateOnly)
}
