package model_selection

import (
	"encoding/json"
	"slices"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ParameterGrid maps a parameter name to the values to try.
type ParameterGrid map[string][]interface{}

// Keys returns the parameter names in ascending order.
func (g ParameterGrid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Size returns the number of combinations.
func (g ParameterGrid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// Combinations expands the grid into the cartesian product of its values.
// Keys are taken in ascending order and the last key varies fastest.
func (g ParameterGrid) Combinations() ([]map[string]interface{}, error) {
	keys := g.Keys()
	for _, k := range keys {
		if len(g[k]) == 0 {
			return nil, errors.NewValidationError(k, "parameter grid values must be non-empty", nil)
		}
	}
	total := g.Size()
	out := make([]map[string]interface{}, 0, total)
	counters := make([]int, len(keys))
	for n := 0; n < total; n++ {
		combo := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			combo[k] = g[k][counters[i]]
		}
		out = append(out, combo)

		for i := len(keys) - 1; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(g[keys[i]]) {
				break
			}
			counters[i] = 0
		}
	}
	return out, nil
}

// FormatParams renders a parameter set as JSON with sorted keys and null for
// unset limits.
func FormatParams(params map[string]interface{}) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}
