package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuemby/beacon/pkg/classifier"
	"github.com/cuemby/beacon/pkg/types"
)

const (
	MaxEventNameLength = 512
	MaxKeyLength       = 120
	MaxValueLength     = 512
	MaxMultiValues     = 100
)

// Error codes attached to events as wzrk_error.c
const (
	CodeEmptyEventName      = 510
	CodeEventNameTruncated  = 511
	CodeInvalidKey          = 512
	CodeRestrictedEventName = 513
	CodeDiscardedEventName  = 514
	CodeKeyTruncated        = 520
	CodeValueTruncated      = 521
	CodeInvalidValue        = 522
	CodeTooManyValues       = 523
)

// reservedChars are stripped from event names and property keys
var reservedChars = strings.NewReplacer(".", "", ":", "", "$", "", "'", "", "\"", "", "\\", "")

// Validator cleans user supplied names, keys and values
type Validator struct {
	discarded map[string]struct{}
}

// NewValidator creates a validator that rejects the given event names
func NewValidator(discarded []string) *Validator {
	v := &Validator{discarded: make(map[string]struct{}, len(discarded))}
	for _, name := range discarded {
		v.discarded[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return v
}

// IsRestrictedEventName reports whether name is reserved for events raised by the SDK itself
func IsRestrictedEventName(name string) bool {
	return name == types.EventAppLaunched ||
		classifier.IsSystemEvent(name) ||
		strings.HasPrefix(strings.ToLower(name), "wzrk_")
}

// IsDiscarded reports whether name was configured to be discarded
func (v *Validator) IsDiscarded(name string) bool {
	_, ok := v.discarded[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// CleanEventName strips reserved characters and truncates the name. The returned
// name is empty when the event must not be recorded.
func (v *Validator) CleanEventName(name string) (string, []types.ValidationError) {
	var errs []types.ValidationError

	cleaned := strings.TrimSpace(reservedChars.Replace(name))
	if cleaned == "" {
		return "", append(errs, types.ValidationError{
			Code:        CodeEmptyEventName,
			Description: "event name is empty",
		})
	}

	if truncated, ok := truncate(cleaned, MaxEventNameLength); ok {
		errs = append(errs, types.ValidationError{
			Code:        CodeEventNameTruncated,
			Description: truncatedDescription(truncated, MaxEventNameLength),
		})
		cleaned = truncated
	}

	if IsRestrictedEventName(cleaned) {
		return "", append(errs, types.ValidationError{
			Code:        CodeRestrictedEventName,
			Description: fmt.Sprintf("%s is a restricted event name", cleaned),
		})
	}

	if v.IsDiscarded(cleaned) {
		return "", append(errs, types.ValidationError{
			Code:        CodeDiscardedEventName,
			Description: fmt.Sprintf("%s is a discarded event name", cleaned),
		})
	}

	return cleaned, errs
}

// CleanKey strips reserved characters and truncates a property key
func (v *Validator) CleanKey(key string) (string, []types.ValidationError) {
	cleaned := strings.TrimSpace(reservedChars.Replace(key))
	if cleaned == "" {
		return "", []types.ValidationError{{
			Code:        CodeInvalidKey,
			Description: fmt.Sprintf("invalid property key %q", key),
		}}
	}
	if truncated, ok := truncate(cleaned, MaxKeyLength); ok {
		return truncated, []types.ValidationError{{
			Code:        CodeKeyTruncated,
			Description: truncatedDescription(truncated, MaxKeyLength),
		}}
	}
	return cleaned, nil
}

// CleanValue normalizes a property value. ok is false when the value cannot be sent.
func (v *Validator) CleanValue(value any) (cleaned any, ok bool, errs []types.ValidationError) {
	switch val := value.(type) {
	case nil:
		return nil, false, nil
	case string:
		s := strings.TrimSpace(val)
		if truncated, cut := truncate(s, MaxValueLength); cut {
			errs = append(errs, types.ValidationError{
				Code:        CodeValueTruncated,
				Description: truncatedDescription(truncated, MaxValueLength),
			})
			s = truncated
		}
		return s, true, errs
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val, true, nil
	case time.Time:
		return fmt.Sprintf("%s%d", classifier.DatePrefix, val.Unix()), true, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return v.CleanValue(out)
	case []any:
		if len(val) > MaxMultiValues {
			errs = append(errs, types.ValidationError{
				Code:        CodeTooManyValues,
				Description: fmt.Sprintf("multi-value property exceeds %d values, trimmed", MaxMultiValues),
			})
			val = val[:MaxMultiValues]
		}
		out := make([]any, 0, len(val))
		for _, item := range val {
			c, ok, itemErrs := v.CleanValue(item)
			errs = append(errs, itemErrs...)
			if ok {
				out = append(out, c)
			}
		}
		return out, true, errs
	case map[string]any, *types.Payload:
		// command objects are passed through for profile patches
		return val, true, nil
	}
	return nil, false, []types.ValidationError{{
		Code:        CodeInvalidValue,
		Description: fmt.Sprintf("unsupported property value of type %T", value),
	}}
}

// CleanProperties cleans every key and value of props, keeping insertion order
func (v *Validator) CleanProperties(props *types.Payload) (*types.Payload, []types.ValidationError) {
	out := types.NewPayload()
	var errs []types.ValidationError

	props.Range(func(key string, value any) bool {
		k, keyErrs := v.CleanKey(key)
		errs = append(errs, keyErrs...)
		if k == "" {
			return true
		}
		c, ok, valueErrs := v.CleanValue(value)
		errs = append(errs, valueErrs...)
		if ok {
			out.Set(k, c)
		}
		return true
	})
	return out, errs
}

// truncatedDescription names a trimmed value by its first ten characters
func truncatedDescription(truncated string, max int) string {
	head, _ := truncate(truncated, 10)
	return fmt.Sprintf("%s... exceeds the limit of %d characters, trimmed", head, max)
}

// truncate cuts s to max runes. The second result reports whether it was cut.
func truncate(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]), true
}
