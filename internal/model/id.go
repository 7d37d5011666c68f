package model

import "strings"

// CompareID compares two platform tweet ids as unbounded decimal
// integers. Ids can exceed the 53-bit float-safe range, so they are
// never parsed into numeric types: after stripping leading zeros a
// longer digit string is the larger number, equal lengths compare
// lexicographically. An empty id sorts before everything.
func CompareID(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the larger of two tweet ids under CompareID ordering.
func MaxID(a, b string) string {
	if CompareID(a, b) >= 0 {
		return a
	}
	return b
}
