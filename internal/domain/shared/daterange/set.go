package daterange

// Set is an append-only collection of ranges. Callers keep the stored
// ranges pairwise non-conflicting; Set itself never merges or reorders.
type Set struct {
	ranges []DateRange
}

func NewSet(ranges ...DateRange) Set {
	return Set{ranges: append([]DateRange(nil), ranges...)}
}

// Overlaps reports whether any stored range conflicts with candidate.
func (s Set) Overlaps(candidate DateRange) bool {
	for _, r := range s.ranges {
		if r.Conflicts(candidate) {
			return true
		}
	}
	return false
}

// Add appends r without checking for conflicts.
func (s *Set) Add(r DateRange) {
	s.ranges = append(s.ranges, r)
}

func (s Set) Len() int {
	return len(s.ranges)
}

func (s Set) Ranges() []DateRange {
	out := make([]DateRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}
