package math

import (
	"errors"
	"math"
)

var ErrOverflowInt64 = errors.New("int64 overflow")

// SafeAddInt64 adds two int64 integers.
func SafeAddInt64(a, b int64) (int64, error) {
	if b > 0 && (a > math.MaxInt64-b) {
		return 0, ErrOverflowInt64
	} else if b < 0 && (a < math.MinInt64-b) {
		return 0, ErrOverflowInt64
	}
	return a + b, nil
}

// SafeSubInt64 subtracts two int64 integers.
func SafeSubInt64(a, b int64) (int64, error) {
	if b > 0 && (a < math.MinInt64+b) {
		return 0, ErrOverflowInt64
	} else if b < 0 && (a > math.MaxInt64+b) {
		return 0, ErrOverflowInt64
	}
	return a - b, nil
}

// SafeMulInt64 multiplies two int64 integers, reporting whether the product
// overflowed.
func SafeMulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	absOfB := b
	if b < 0 {
		absOfB = -b
	}
	absOfA := a
	if a < 0 {
		absOfA = -a
	}

	if absOfA > math.MaxInt64/absOfB {
		return 0, true
	}

	return a * b, false
}
