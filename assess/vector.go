package assess

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"caserisk/ml"
)

// FeatureVector holds one case's indicator values keyed by feature code.
type FeatureVector map[string]float64

// Coerce converts loosely typed values, as decoded from JSON, into a
// FeatureVector. Numbers, numeric strings and booleans are accepted; anything
// else is reported in a SchemaMismatchError. Key membership is checked later by
// Service.Predict.
func Coerce(raw map[string]any) (FeatureVector, error) {
	vector := make(FeatureVector, len(raw))
	mismatch := &SchemaMismatchError{}
	for code, value := range raw {
		v, err := coerceValue(value)
		if err != nil {
			mismatch.invalid(code, err.Error())
			continue
		}
		vector[code] = v
	}
	if !mismatch.empty() {
		return nil, mismatch
	}
	return vector, nil
}

// FromForm builds a vector from form style string values, visiting codes in
// schema order. An empty value is the input's unedited default, zero.
func FromForm(schema ml.FeatureSchema, value func(code string) string) (FeatureVector, error) {
	vector := make(FeatureVector, schema.Len())
	mismatch := &SchemaMismatchError{}
	for _, code := range schema.Codes() {
		raw := strings.TrimSpace(value(code))
		if raw == "" {
			vector[code] = 0
			continue
		}
		v, err := parseNumber(raw)
		if err != nil {
			mismatch.invalid(code, err.Error())
			continue
		}
		vector[code] = v
	}
	if !mismatch.empty() {
		return nil, mismatch
	}
	return vector, nil
}

// Zero returns a vector with every schema code set to 0.
func Zero(schema ml.FeatureSchema) FeatureVector {
	vector := make(FeatureVector, schema.Len())
	for _, code := range schema.Codes() {
		vector[code] = 0
	}
	return vector
}

func coerceValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return parseNumber(v.String())
	case string:
		return parseNumber(strings.TrimSpace(v))
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, fmt.Errorf("no value")
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return finite(v)
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%v is not a finite number", v)
	}
	return v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
