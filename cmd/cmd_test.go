package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserisk/assess"
	"caserisk/labels"
	"caserisk/ml"
)

var testdata = filepath.Join("..", "ml", "testdata")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"C1.2=5", " S1.9 = 1 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"C1.2": "5", "S1.9": "1"}, values)

	for _, bad := range [][]string{{"C1.2"}, {"=3"}, {"C1.2=1", "C1.2=2"}} {
		_, err := parseAssignments(bad)
		assert.Error(t, err, bad)
	}
}

func TestScoreScenarios(t *testing.T) {
	out, err := run(t, "score", "--model-dir", testdata)
	require.NoError(t, err)
	assert.Contains(t, out, "53.4%")
	assert.Contains(t, out, "低風險")

	out, err = run(t, "score", "--model-dir", testdata, "--set", "C1.2=5", "--lang", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "57.6%")
	assert.Contains(t, out, ": 3 (")
	for tier := 1; tier <= assess.DeploymentClasses; tier++ {
		assert.Contains(t, out, labels.LevelLabel(tier))
	}
}

func TestScoreRejectsUnknownCode(t *testing.T) {
	_, err := run(t, "score", "--model-dir", testdata, "--set", "C99=1")
	assert.ErrorIs(t, err, assess.ErrSchemaMismatch)

	_, err = run(t, "score", "--model-dir", testdata, "--set", "C1.2=lots")
	assert.ErrorIs(t, err, assess.ErrSchemaMismatch)
}

func TestSchemaListsCodesInOrder(t *testing.T) {
	out, err := run(t, "schema", "--model-dir", testdata)
	require.NoError(t, err)

	artifact, err := ml.LoadArtifact(ml.LoadOptions{
		Dir:          testdata,
		ModelFile:    "social_work_model.json",
		FeaturesFile: "feature_names.pkl",
	})
	require.NoError(t, err)
	last := -1
	for _, code := range artifact.Schema().Codes() {
		idx := strings.Index(out, " "+code+" ")
		require.Greater(t, idx, last, code)
		last = idx
	}
}

func TestServeFailsWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "serve", "--model-dir", dir, "--log-level", "fatal")
	require.ErrorIs(t, err, ml.ErrArtifactMissing)
	assert.Contains(t, err.Error(), filepath.Join(dir, "social_work_model.json"))
}

func TestConfigFlagErrors(t *testing.T) {
	_, err := run(t, "score", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "load config")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}
