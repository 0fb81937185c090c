package util

import (
	"sort"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := maps.Keys(m)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

func Max[A constraints.Integer | constraints.Float](num1 A, num2 A) A {
	if num1 < num2 {
		return num2
	}
	return num1
}

func Min[A constraints.Integer | constraints.Float](num1 A, num2 A) A {
	if num1 > num2 {
		return num2
	}
	return num1
}

func Clamp[A constraints.Integer | constraints.Float](num, lo, hi A) A {
	return Max(lo, Min(num, hi))
}

// Remove returns s without the first occurrence of v.
func Remove[A comparable](s []A, v A) []A {
	for i := range s {
		if s[i] == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Truncate returns at most n leading bytes of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
