package core

import (
	"fmt"
	"maps"

	"github.com/mohae/deepcopy"
)

// CloneMap creates a shallow copy of any map type with comparable keys.
// This is useful for copying configuration maps, metadata, and other map structures
// where you need to modify the copy without affecting the original.
// Returns an empty initialized map when src is nil to prevent nil map panics.
func CloneMap[K comparable, V any](src map[K]V) map[K]V {
	if src == nil {
		return make(map[K]V)
	}
	return maps.Clone(src)
}

// DeepCopy creates a deep copy of the supplied value using github.com/mohae/deepcopy,
// preserving the concrete type T.
//
// Used to isolate a resolution context or manifest snapshot from the caller's value
// before a mutation pass, so a failed apply never leaves a partially mutated value
// visible to the caller.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	copied := deepcopy.Copy(v)
	result, ok := copied.(T)
	if !ok {
		return zero, fmt.Errorf("failed to cast copied value to type %T", zero)
	}
	return result, nil
}
