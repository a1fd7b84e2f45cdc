package tool

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

var (
	errWrongType = errors.New("has the wrong type")
	errNotWhole  = errors.New("must be a whole number")
	errNotInEnum = errors.New("is not one of the allowed values")
)

// validateArgs checks args against the declared params and names the first
// offending parameter in the returned error.
func validateArgs(def Definition, args map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(args)) {
		if _, ok := def.param(name); !ok {
			return fmt.Errorf("%w: unknown parameter %q for tool %s", contractx.ErrInvalidArguments, name, def.Name)
		}
	}

	for _, p := range def.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("%w: missing required parameter %q for tool %s", contractx.ErrInvalidArguments, p.Name, def.Name)
			}
			continue
		}
		if err := checkType(p.Type, v); err != nil {
			return fmt.Errorf("%w: parameter %q %w (want %s, got %T)", contractx.ErrInvalidArguments, p.Name, err, p.Type, v)
		}
		if len(p.Enum) > 0 {
			if s, _ := v.(string); !slices.Contains(p.Enum, s) {
				return fmt.Errorf("%w: parameter %q %w (allowed: %s)", contractx.ErrInvalidArguments, p.Name, errNotInEnum, strings.Join(p.Enum, ", "))
			}
		}
	}
	return nil
}

func checkType(want schema.DataType, v any) error {
	switch want {
	case schema.String:
		if _, ok := v.(string); ok {
			return nil
		}
	case schema.Boolean:
		if _, ok := v.(bool); ok {
			return nil
		}
	case schema.Number:
		if _, ok := asFloat(v); ok {
			return nil
		}
	case schema.Integer:
		f, ok := asFloat(v)
		if !ok {
			break
		}
		if f != math.Trunc(f) {
			return errNotWhole
		}
		return nil
	case schema.Object:
		if _, ok := v.(map[string]any); ok {
			return nil
		}
	case schema.Array:
		if _, ok := v.([]any); ok {
			return nil
		}
	}
	return errWrongType
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
