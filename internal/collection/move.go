package collection

import (
	"fmt"
	"slices"
)

// Move returns a copy of s with the element at from relocated to index to.
// s itself is left untouched.
func Move[T any](s []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) {
		return nil, fmt.Errorf("collection: move %d -> %d out of range for %d items", from, to, len(s))
	}
	out := slices.Clone(s)
	if from == to {
		return out, nil
	}
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item), nil
}
