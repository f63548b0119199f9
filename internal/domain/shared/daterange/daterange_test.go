package daterange

import (
	"errors"
	"testing"
	"time"
)

var d0 = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func days(from, to int) DateRange {
	return Must(d0.AddDate(0, 0, from), d0.AddDate(0, 0, to))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		from    time.Time
		to      time.Time
		wantErr error
	}{
		{name: "single day", from: d0, to: d0},
		{name: "ordered", from: d0, to: d0.AddDate(0, 0, 3)},
		{name: "clock part is dropped", from: d0.Add(23 * time.Hour), to: d0.Add(time.Hour)},
		{name: "reversed", from: d0.AddDate(0, 0, 1), to: d0, wantErr: ErrInvalidRange},
		{name: "min date lower bound", from: MinDate, to: d0},
		{name: "fully unbounded", from: MinDate, to: MaxDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := New(tt.from, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if dr.From.Hour() != 0 || dr.To.Hour() != 0 {
				t.Errorf("New() = %v, want midnight-aligned days", dr)
			}
		})
	}
}

func TestConflicts(t *testing.T) {
	tests := []struct {
		name string
		a    DateRange
		b    DateRange
		want bool
	}{
		{name: "identical", a: days(0, 5), b: days(0, 5), want: true},
		{name: "touching upper bound", a: days(0, 5), b: days(5, 10), want: true},
		{name: "touching lower bound", a: days(0, 5), b: days(-4, 0), want: true},
		{name: "one day gap after", a: days(0, 5), b: days(6, 7), want: false},
		{name: "strictly before", a: days(-10, -1), b: days(0, 5), want: false},
		{name: "contained", a: days(0, 10), b: days(3, 4), want: true},
		{name: "single day inside", a: days(0, 5), b: days(2, 2), want: true},
		{name: "single days apart", a: days(1, 1), b: days(2, 2), want: false},
		{name: "unbounded vs anything", a: Unbounded(), b: days(100, 100), want: true},
		{name: "unbounded vs itself", a: Unbounded(), b: Unbounded(), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Conflicts(tt.b); got != tt.want {
				t.Errorf("%v.Conflicts(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Conflicts(tt.a); got != tt.want {
				t.Errorf("symmetry: %v.Conflicts(%v) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestConflictsReflexive(t *testing.T) {
	for i := -3; i < 3; i++ {
		r := days(i, i+i*i)
		if !r.Conflicts(r) {
			t.Errorf("%v does not conflict with itself", r)
		}
	}
}

func TestSet(t *testing.T) {
	var s Set
	if s.Overlaps(days(0, 0)) {
		t.Fatal("empty set overlaps")
	}
	s.Add(days(0, 5))
	s.Add(days(6, 7))

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (adjacent ranges are not merged)", s.Len())
	}
	if !s.Overlaps(days(5, 5)) {
		t.Error("expected overlap on shared boundary day")
	}
	if !s.Overlaps(days(7, 20)) {
		t.Error("expected overlap with second range")
	}
	if s.Overlaps(days(8, 20)) {
		t.Error("unexpected overlap after last range")
	}
	if !s.Overlaps(Unbounded()) {
		t.Error("unbounded range must overlap a non-empty set")
	}

	ranges := s.Ranges()
	ranges[0] = days(100, 100)
	if s.Ranges()[0] != days(0, 5) {
		t.Error("Ranges() must return a copy")
	}
}
