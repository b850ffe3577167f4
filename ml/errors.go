package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactMissing is returned when the model or feature-list file does not exist.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrArtifactCorrupt is returned when an artifact exists but cannot be used.
	ErrArtifactCorrupt = errors.New("artifact corrupt")
)

// ArtifactError ties a load failure to the resolved path that caused it.
type ArtifactError struct {
	Kind error
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func missing(path string, err error) error {
	return &ArtifactError{Kind: ErrArtifactMissing, Path: path, Err: err}
}

func corrupt(path string, err error) error {
	return &ArtifactError{Kind: ErrArtifactCorrupt, Path: path, Err: err}
}
