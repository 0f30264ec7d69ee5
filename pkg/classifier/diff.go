package classifier

import (
	"errors"
	"fmt"

	"github.com/cuemby/beacon/pkg/types"
)

// Cache is the local profile cache as seen by attribute diffing
type Cache interface {
	Get(field string) (any, bool)
	SetAll(values map[string]any)
}

// ComputeAttributeChanges resolves every field of a profile patch against the
// cached values and returns the scalar fields whose value changed.
//
// Every resolved field, arrays included, is written back to the cache in a
// single SetAll call. Fields that fail to resolve are skipped and reported in
// the returned error; the remaining fields are still applied.
func ComputeAttributeChanges(patch *types.Payload, cache Cache) (map[string]types.AttributeChange, error) {
	changes := make(map[string]types.AttributeChange)
	resolved := make(map[string]any, patch.Len())
	var errs []error

	patch.Range(func(field string, value any) bool {
		oldValue, _ := cache.Get(field)

		newValue, err := resolve(value, oldValue)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", field, err))
			return true
		}
		resolved[field] = newValue

		if oldValue == nil && newValue == nil {
			return true
		}
		if isArray(oldValue) || isArray(newValue) {
			return true
		}
		if valuesEqual(oldValue, newValue) {
			return true
		}
		changes[field] = types.AttributeChange{
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
		}
		return true
	})

	cache.SetAll(resolved)

	return changes, errors.Join(errs...)
}

// resolve computes the new value of one field
func resolve(value, oldValue any) (any, error) {
	cmd, isCommand, err := DecodeCommand(value)
	if err != nil {
		return nil, err
	}
	if !isCommand {
		if nested, ok := value.(*types.Payload); ok {
			return nested.Map(), nil
		}
		return parseDate(value), nil
	}

	switch cmd.Op {
	case types.CommandIncrement:
		return addNumbers(oldValue, cmd.Value, 1)
	case types.CommandDecrement:
		return addNumbers(oldValue, cmd.Value, -1)
	case types.CommandSet, types.CommandAdd, types.CommandRemove:
		return resolveMultiValue(cmd, oldValue), nil
	case types.CommandDelete:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported profile command %s", cmd.Op)
}

// resolveMultiValue merges or removes elements against the cached value
func resolveMultiValue(cmd types.ProfileCommand, oldValue any) any {
	switch cmd.Op {
	case types.CommandSet:
		if cmd.Values == nil {
			return cmd.Value
		}
		return appendUnique(nil, cmd.Values)

	case types.CommandAdd:
		return appendUnique(existingValues(oldValue), cmd.Values)

	case types.CommandRemove:
		if oldValue == nil {
			return nil
		}
		var kept []any
		for _, v := range existingValues(oldValue) {
			if !contains(cmd.Values, v) {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		return kept
	}
	return oldValue
}

// existingValues views a cached value as a list. Scalars become one-element lists.
func existingValues(value any) []any {
	if value == nil {
		return nil
	}
	if values, ok := toSlice(value); ok {
		return append([]any(nil), values...)
	}
	return []any{value}
}

func appendUnique(dst, values []any) []any {
	if dst == nil {
		dst = []any{}
	}
	for _, v := range values {
		if !contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func contains(values []any, v any) bool {
	for _, existing := range values {
		if valuesEqual(existing, v) {
			return true
		}
	}
	return false
}

func isArray(value any) bool {
	_, ok := toSlice(value)
	return ok
}
