package ml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	KindXGBoost      = "xgboost"
	KindDecisionTree = "decision_tree"
)

// LoadOptions locates the two files that make up an artifact.
type LoadOptions struct {
	// Dir is the deployment directory relative file names resolve against.
	Dir          string
	ModelFile    string
	FeaturesFile string
	// Kind selects the model format; empty means KindXGBoost.
	Kind string
	// Classes, when positive, is the class count the deployment is built for.
	Classes int
}

// Artifact is a loaded classifier together with the schema it was trained on.
// It is immutable and safe for concurrent use.
type Artifact struct {
	model        Classifier
	schema       FeatureSchema
	kind         string
	modelPath    string
	featuresPath string
}

// NewArtifact pairs an already constructed classifier with its schema.
func NewArtifact(model Classifier, schema FeatureSchema, kind string) (*Artifact, error) {
	if model == nil {
		return nil, errors.New("nil classifier")
	}
	if schema.Len() == 0 {
		return nil, errors.New("empty feature schema")
	}
	if n := model.NumFeatures(); n > 0 && n != schema.Len() {
		return nil, fmt.Errorf("model expects %d features, schema lists %d", n, schema.Len())
	}
	return &Artifact{model: model, schema: schema, kind: kind}, nil
}

// LoadArtifact reads the model and feature list from disk. A missing file
// yields ErrArtifactMissing, anything else ErrArtifactCorrupt; both carry the
// resolved path.
func LoadArtifact(opts LoadOptions) (*Artifact, error) {
	kind := opts.Kind
	if kind == "" {
		kind = KindXGBoost
	}
	modelPath := resolve(opts.Dir, opts.ModelFile)
	featuresPath := resolve(opts.Dir, opts.FeaturesFile)

	modelPayload, err := readArtifactFile(modelPath)
	if err != nil {
		return nil, err
	}
	featuresPayload, err := readArtifactFile(featuresPath)
	if err != nil {
		return nil, err
	}

	schema, err := ParseFeatureList(featuresPath, featuresPayload)
	if err != nil {
		return nil, corrupt(featuresPath, err)
	}
	model, err := parseModel(kind, modelPayload)
	if err != nil {
		return nil, corrupt(modelPath, err)
	}
	if named, ok := model.(interface{ FeatureNames() []string }); ok {
		if err := checkFeatureNames(named.FeatureNames(), schema); err != nil {
			return nil, corrupt(featuresPath, err)
		}
	}
	if opts.Classes > 0 && model.NumClasses() != opts.Classes {
		return nil, corrupt(modelPath, fmt.Errorf("model has %d classes, deployment expects %d", model.NumClasses(), opts.Classes))
	}

	artifact, err := NewArtifact(model, schema, kind)
	if err != nil {
		return nil, corrupt(modelPath, err)
	}
	artifact.modelPath = modelPath
	artifact.featuresPath = featuresPath
	return artifact, nil
}

func (a *Artifact) Schema() FeatureSchema { return a.schema }
func (a *Artifact) Classes() int          { return a.model.NumClasses() }
func (a *Artifact) Kind() string          { return a.kind }
func (a *Artifact) ModelPath() string     { return a.modelPath }
func (a *Artifact) FeaturesPath() string  { return a.featuresPath }

// Predict evaluates one row laid out in schema order.
func (a *Artifact) Predict(row []float64) (int, []float64, error) {
	if len(row) != a.schema.Len() {
		return 0, nil, fmt.Errorf("row has %d values, schema has %d", len(row), a.schema.Len())
	}
	return Predict(a.model, row)
}

func parseModel(kind string, payload []byte) (Classifier, error) {
	switch kind {
	case KindXGBoost:
		return ParseXGBoost(payload)
	case KindDecisionTree:
		return ParseDecisionTree(payload)
	default:
		return nil, fmt.Errorf("unsupported model type %q", kind)
	}
}

func checkFeatureNames(names []string, schema FeatureSchema) error {
	if len(names) == 0 {
		return nil
	}
	embedded, err := NewFeatureSchema(names)
	if err != nil {
		return fmt.Errorf("model feature names: %w", err)
	}
	if !embedded.Equal(schema) {
		return fmt.Errorf("feature list %v disagrees with model feature names %v", schema.Codes(), names)
	}
	return nil
}

func readArtifactFile(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, missing(path, nil)
	case err != nil:
		return nil, corrupt(path, err)
	}
	return payload, nil
}

// resolve joins name onto dir and makes the result absolute so error messages
// show the path that was actually tried.
func resolve(dir, name string) string {
	path := name
	if !filepath.IsAbs(name) && dir != "" {
		path = filepath.Join(dir, name)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
