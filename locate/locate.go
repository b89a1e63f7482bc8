// Package locate finds the interval of a sorted sequence that contains a
// query value using bisection.
package locate

import (
	"cmp"
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when the search space is too short to hold an
// interval.
var ErrInvalidInput = errors.New("locate: search space must hold at least two values")

// Locate returns the left endpoint index of the interval of space that
// contains value, plus offset.
//
// space must be weakly ascending and hold at least two values. A two-value
// window is always the answer for itself, even when value lies outside it,
// so out-of-range values resolve to the first or last interval. When exactly
// three values remain and value equals the middle one, the left interval
// wins.
func Locate[T cmp.Ordered](space []T, value T, offset int) (int, error) {
	if len(space) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidInput, len(space))
	}

	idx, _ := bisect(space, value)

	return offset + idx, nil
}

// LocateAll locates every value in values, in order.
func LocateAll[T cmp.Ordered](space []T, values []T) ([]int, error) {
	if len(space) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInput, len(space))
	}

	out := make([]int, len(values))
	for i, v := range values {
		out[i], _ = bisect(space, v)
	}

	return out, nil
}

// Depth returns how many times the window is halved before value is
// located.
func Depth[T cmp.Ordered](space []T, value T) (int, error) {
	if len(space) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidInput, len(space))
	}

	_, steps := bisect(space, value)

	return steps, nil
}

// bisect narrows the window space[lo:lo+n] instead of re-slicing. The two
// halves share the split element, so n shrinks by at least one per step.
func bisect[T cmp.Ordered](space []T, value T) (lo, steps int) {
	n := len(space)

	for n > 2 {
		split := (n - 1) / 2
		mid := space[lo+split]

		if n == 3 && value == mid {
			break
		}

		if value <= mid {
			n = split + 1
		} else {
			lo += split
			n -= split
		}

		steps++
	}

	return lo, steps
}
