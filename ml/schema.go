package ml

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
)

// FeatureSchema is the ordered list of feature codes a trained artifact expects.
// It is immutable once constructed.
type FeatureSchema struct {
	codes []string
	index map[string]int
}

// NewFeatureSchema validates codes and builds a schema. Codes must be non-empty
// and unique, and at least one code is required.
func NewFeatureSchema(codes []string) (FeatureSchema, error) {
	if len(codes) == 0 {
		return FeatureSchema{}, errors.New("feature schema is empty")
	}
	index := make(map[string]int, len(codes))
	owned := make([]string, len(codes))
	for i, code := range codes {
		if code == "" {
			return FeatureSchema{}, fmt.Errorf("feature %d has an empty code", i)
		}
		if prev, ok := index[code]; ok {
			return FeatureSchema{}, fmt.Errorf("feature code %q repeated at positions %d and %d", code, prev, i)
		}
		index[code] = i
		owned[i] = code
	}
	return FeatureSchema{codes: owned, index: index}, nil
}

// Codes returns a copy of the ordered feature codes.
func (s FeatureSchema) Codes() []string {
	return append([]string(nil), s.codes...)
}

func (s FeatureSchema) Len() int {
	return len(s.codes)
}

// Code returns the code at position i.
func (s FeatureSchema) Code(i int) string {
	return s.codes[i]
}

// Index reports the position of code in the schema.
func (s FeatureSchema) Index(code string) (int, bool) {
	i, ok := s.index[code]
	return i, ok
}

// Equal reports whether both schemas list the same codes in the same order.
func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if len(s.codes) != len(other.codes) {
		return false
	}
	for i := range s.codes {
		if s.codes[i] != other.codes[i] {
			return false
		}
	}
	return true
}

// ParseFeatureList decodes a feature-name list. The format follows the file
// extension: pickle for .pkl/.pickle, a JSON string array for .json and
// newline separated text otherwise.
func ParseFeatureList(name string, payload []byte) (FeatureSchema, error) {
	var (
		codes []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pkl", ".pickle", ".joblib":
		codes, err = parsePickledList(payload)
	case ".json":
		err = json.Unmarshal(payload, &codes)
	default:
		codes, err = parseTextList(payload)
	}
	if err != nil {
		return FeatureSchema{}, err
	}
	return NewFeatureSchema(codes)
}

type pickledSequence interface {
	Len() int
	Get(i int) interface{}
}

func parsePickledList(payload []byte) ([]string, error) {
	u := pickle.NewUnpickler(bytes.NewReader(payload))
	value, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("unpickle feature list: %w", err)
	}
	seq, ok := value.(pickledSequence)
	if !ok {
		return nil, fmt.Errorf("unsupported pickled feature list type %T", value)
	}
	codes := make([]string, seq.Len())
	for i := range codes {
		code, ok := seq.Get(i).(string)
		if !ok {
			return nil, fmt.Errorf("feature %d is %T, not a string", i, seq.Get(i))
		}
		codes[i] = code
	}
	return codes, nil
}

func parseTextList(payload []byte) ([]string, error) {
	var codes []string
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, line)
	}
	return codes, scanner.Err()
}
