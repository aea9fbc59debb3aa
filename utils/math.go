package utils

import "golang.org/x/exp/constraints"

// AbsInt returns the absolute value of n.
func AbsInt[T constraints.Signed](n T) T {
	if n < 0 {
		return -1 * n
	}
	return n
}

// MaxInt returns the larger of a and b.
func MaxInt[T constraints.Integer](a, b T) T {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the smaller of a and b.
func MinInt[T constraints.Integer](a, b T) T {
	if a > b {
		return b
	}
	return a
}

// ClampInt restricts n to [lo, hi].
func ClampInt[T constraints.Integer](n, lo, hi T) T {
	return MaxInt(lo, MinInt(n, hi))
}
