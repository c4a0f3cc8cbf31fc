package model

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ParamFloat coerces a hyperparameter value to float64. Integers are
// accepted so grids can be written with literal 1 or 1.0.
func ParamFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(name, "expected a number", v)
}

// ParamInt coerces a hyperparameter value to int. Floats must be integral.
func ParamInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), nil
		}
	}
	return 0, errors.NewValidationError(name, "expected an integer", v)
}

// ParamOptionalInt is ParamInt where nil means "no limit" and maps to 0.
func ParamOptionalInt(name string, v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	return ParamInt(name, v)
}

// ParamString coerces a hyperparameter value to string.
func ParamString(name string, v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError(name, "expected a string", v)
}

// ParamBool coerces a hyperparameter value to bool.
func ParamBool(name string, v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NewValidationError(name, "expected a bool", v)
}

// OptionalInt is the inverse of ParamOptionalInt for GetParams output.
func OptionalInt(v int) interface{} {
	if v <= 0 {
		return nil
	}
	return v
}

// UnknownParam is returned by SetParams for keys the estimator does not own.
func UnknownParam(estimator, key string) error {
	return errors.NewValidationError(key, fmt.Sprintf("unknown parameter for %s", estimator), nil)
}
