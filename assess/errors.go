package assess

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch marks a feature vector that does not match the artifact's
// schema. It is an integration error and is never replaced by a default
// prediction.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaMismatchError lists every problem found in one vector.
type SchemaMismatchError struct {
	Missing []string
	Unknown []string
	// Invalid maps a code to the reason its value was rejected.
	Invalid map[string]string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown "+strings.Join(e.Unknown, ", "))
	}
	for _, code := range sortedKeys(e.Invalid) {
		parts = append(parts, fmt.Sprintf("invalid %s (%s)", code, e.Invalid[code]))
	}
	return ErrSchemaMismatch.Error() + ": " + strings.Join(parts, "; ")
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func (e *SchemaMismatchError) empty() bool {
	return len(e.Missing) == 0 && len(e.Unknown) == 0 && len(e.Invalid) == 0
}

func (e *SchemaMismatchError) invalid(code, reason string) {
	if e.Invalid == nil {
		e.Invalid = make(map[string]string)
	}
	e.Invalid[code] = reason
}
