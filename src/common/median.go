package common

import "sort"

// Median returns the median of a set of timestamps. The input is not modified.
// An even number of values yields the mean of the two middle values, and an
// empty input yields 0.
func Median(values []int64) int64 {
	l := len(values)
	if l == 0 {
		return 0
	}

	s := make([]int64, l)
	copy(s, values)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	if l%2 == 1 {
		return s[l/2]
	}

	lo, hi := s[l/2-1], s[l/2]
	return lo + (hi-lo)/2
}
