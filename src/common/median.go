package common

import (
	"sort"
)

// Integer is the set of numeric types Median accepts.
type Integer interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64
}

// Median returns the median of a slice of numbers without modifying it. With an
// even count it returns the lower of the two middle values rather than their
// mean, so the result is always one of the inputs. An empty slice yields zero.
func Median[T Integer](input []T) T {
	var zero T
	if len(input) == 0 {
		return zero
	}

	s := make([]T, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	return s[(len(s)-1)/2]
}
