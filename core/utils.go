package core

import (
	"sort"
	"strings"
)

// Years are the study years students and documents are filed under.
var Years = []string{"1st Year", "2nd Year", "3rd Year", "4th Year"}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// StringInSlice reports whether s is an element of list.
func StringInSlice(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Ordering is a single sort key as requested by clients: `field` or `-field`.
type Ordering struct {
	Field     string
	Ascending bool
}

func (ord Ordering) String() string {
	if ord.Ascending {
		return ord.Field
	}
	return "-" + ord.Field
}

// SortBy stable-sorts items by the given orderings. cmp must return -1, 0 or 1 comparing a and b on field;
// unknown fields should compare as equal.
func SortBy[T any](items []T, orderings []Ordering, cmp func(field string, a, b T) int) {
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range orderings {
			c := cmp(ord.Field, items[i], items[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

// CompareStrings compares a and b case-insensitively.
func CompareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
