package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cuemby/beacon/pkg/types"
)

// DatePrefix tags string values that carry an epoch timestamp, e.g. "$D_1700000000"
const DatePrefix = "$D_"

// DecodeCommand decodes a "{"$op": operand}" object. ok is false when value is
// not a command object at all; err is set when it is one but is malformed.
func DecodeCommand(value any) (cmd types.ProfileCommand, ok bool, err error) {
	op, operand, ok := commandObject(value)
	if !ok {
		return types.ProfileCommand{}, false, nil
	}

	cmd.Op = types.CommandOp(op)
	switch cmd.Op {
	case types.CommandSet:
		if values, isArray := toSlice(operand); isArray {
			cmd.Values = values
		} else {
			cmd.Value = parseDate(operand)
		}
	case types.CommandIncrement, types.CommandDecrement:
		if _, _, numeric := toNumber(operand); !numeric {
			return cmd, true, fmt.Errorf("%s requires a numeric operand, got %T", op, operand)
		}
		cmd.Value = operand
	case types.CommandAdd, types.CommandRemove:
		if values, isArray := toSlice(operand); isArray {
			cmd.Values = values
		} else if operand != nil {
			cmd.Values = []any{operand}
		}
	case types.CommandDelete:
	default:
		return cmd, true, fmt.Errorf("unknown profile command %s", op)
	}
	return cmd, true, nil
}

// commandObject returns the single "$..." key of a map-like value
func commandObject(value any) (string, any, bool) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) != 1 {
			return "", nil, false
		}
		for k, operand := range v {
			if strings.HasPrefix(k, "$") {
				return k, operand, true
			}
		}
	case *types.Payload:
		if v.Len() != 1 {
			return "", nil, false
		}
		k := v.Keys()[0]
		if strings.HasPrefix(k, "$") {
			operand, _ := v.Get(k)
			return k, operand, true
		}
	}
	return "", nil, false
}

// parseDate converts "$D_<epoch>" strings to int64 epochs and leaves other values alone
func parseDate(value any) any {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, DatePrefix) {
		return value
	}
	epoch, err := strconv.ParseInt(strings.TrimPrefix(s, DatePrefix), 10, 64)
	if err != nil {
		return value
	}
	return epoch
}

// toNumber reports the numeric value and whether it came from an integer type
func toNumber(value any) (float64, bool, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true, true
	case int8:
		return float64(n), true, true
	case int16:
		return float64(n), true, true
	case int32:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	case uint:
		return float64(n), true, true
	case uint8:
		return float64(n), true, true
	case uint16:
		return float64(n), true, true
	case uint32:
		return float64(n), true, true
	case uint64:
		return float64(n), true, true
	case float32:
		return float64(n), false, true
	case float64:
		return n, false, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return float64(i), true, true
		}
		f, err := n.Float64()
		return f, false, err == nil
	}
	return 0, false, false
}

// toSlice normalizes array values to []any
func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// valuesEqual compares two profile values, treating numbers by value
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x == y
		}
	}
	if x, _, ok := toNumber(a); ok {
		y, _, ok := toNumber(b)
		return ok && x == y
	}
	if xs, ok := toSlice(a); ok {
		ys, ok := toSlice(b)
		if !ok || len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !valuesEqual(xs[i], ys[i]) {
				return false
			}
		}
		return true
	}
	if _, ok := toSlice(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// toInt64 returns value as an int64 when it is an integer that fits
func toInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// addNumbers returns old+sign*delta. Integer operands are added as int64;
// anything else is added as float64.
func addNumbers(old, delta any, sign int64) (any, error) {
	if old != nil {
		if _, _, ok := toNumber(old); !ok {
			return nil, fmt.Errorf("cannot apply arithmetic to %T value", old)
		}
	}

	x, xInt := int64(0), true
	if old != nil {
		x, xInt = toInt64(old)
	}
	if y, yInt := toInt64(delta); xInt && yInt {
		return x + sign*y, nil
	}

	fx := 0.0
	if old != nil {
		fx, _, _ = toNumber(old)
	}
	fy, _, _ := toNumber(delta)
	return fx + float64(sign)*fy, nil
}
