package assess

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserisk/ml"
)

func loadService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	artifact, err := ml.LoadArtifact(ml.LoadOptions{
		Dir:          filepath.Join("..", "ml", "testdata"),
		ModelFile:    "social_work_model.json",
		FeaturesFile: "feature_names.pkl",
		Classes:      DeploymentClasses,
	})
	require.NoError(t, err)
	svc, err := NewService(artifact, opts...)
	require.NoError(t, err)
	return svc
}

func TestSchemaFidelity(t *testing.T) {
	svc := loadService(t)
	schema := svc.Schema()
	require.Equal(t, 20, schema.Len())
	for _, code := range schema.Codes() {
		assert.NotEmpty(t, code)
	}

	tests := []struct {
		name    string
		mutate  func(FeatureVector)
		missing []string
		unknown []string
	}{
		{name: "missing code", mutate: func(v FeatureVector) { delete(v, "C1.2") }, missing: []string{"C1.2"}},
		{name: "extra code", mutate: func(v FeatureVector) { v["C99"] = 1 }, unknown: []string{"C99"}},
		{name: "label used as key", mutate: func(v FeatureVector) {
			delete(v, "S1.9")
			v["13.疾病-高血壓(S1.9, importance: 0.040)"] = 1
		}, missing: []string{"S1.9"}, unknown: []string{"13.疾病-高血壓(S1.9, importance: 0.040)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vector := Zero(schema)
			tt.mutate(vector)

			_, err := svc.Predict(vector)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaMismatch))

			var mismatch *SchemaMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tt.missing, mismatch.Missing)
			assert.Equal(t, tt.unknown, mismatch.Unknown)
		})
	}

	_, err := svc.Predict(FeatureVector{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, err = svc.Predict(nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestPredictRejectsNonFiniteValues(t *testing.T) {
	svc := loadService(t)
	vector := Zero(svc.Schema())
	vector["C4.1"] = math.Inf(1)

	_, err := svc.Predict(vector)
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, mismatch.Invalid, "C4.1")
}

func TestScenarioAGolden(t *testing.T) {
	svc := loadService(t)

	got, err := svc.Predict(Zero(svc.Schema()))
	require.NoError(t, err)
	assert.Equal(t, 0, got.ClassIndex)
	assert.Equal(t, 1, got.Tier)
	assert.InDeltaSlice(t, []float64{0.534192737124035, 0.2788730596909141, 0.18693420318505094}, got.Probabilities, 1e-9)
	assert.Equal(t, 53.4, got.Confidence)
}

func TestScenarioBGolden(t *testing.T) {
	svc := loadService(t)
	baseline, err := svc.Predict(Zero(svc.Schema()))
	require.NoError(t, err)

	vector := Zero(svc.Schema())
	vector["C1.2"] = 5
	got, err := svc.Predict(vector)
	require.NoError(t, err)

	assert.Equal(t, 2, got.ClassIndex)
	assert.Equal(t, 3, got.Tier)
	assert.InDeltaSlice(t, []float64{0.16505312881431727, 0.25885483683714805, 0.5760920343485346}, got.Probabilities, 1e-9)
	assert.Equal(t, 57.6, got.Confidence)
	assert.NotEqual(t, baseline.Tier, got.Tier)
}

func TestPredictIgnoresCallerOrder(t *testing.T) {
	svc := loadService(t)
	codes := svc.Schema().Codes()

	// two maps built in opposite insertion orders
	forward := make(FeatureVector)
	backward := make(FeatureVector)
	for i, code := range codes {
		forward[code] = float64(i % 3)
	}
	for i := len(codes) - 1; i >= 0; i-- {
		backward[codes[i]] = float64(i % 3)
	}

	a, err := svc.Predict(forward)
	require.NoError(t, err)
	b, err := svc.Predict(backward)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredictionProperties(t *testing.T) {
	svc := loadService(t)
	require.Equal(t, DeploymentClasses, svc.Classes())
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		vector := Zero(svc.Schema())
		for _, code := range svc.Schema().Codes() {
			vector[code] = float64(rnd.Intn(6))
		}

		first, err := svc.Predict(vector)
		require.NoError(t, err)
		second, err := svc.Predict(vector)
		require.NoError(t, err)
		assert.Equal(t, first, second, "prediction must be deterministic")

		require.Len(t, first.Probabilities, DeploymentClasses)
		var sum float64
		for _, p := range first.Probabilities {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)

		assert.Equal(t, first.ClassIndex+1, first.Tier)
		assert.GreaterOrEqual(t, first.Tier, 1)
		assert.LessOrEqual(t, first.Tier, DeploymentClasses)
		for _, p := range first.Probabilities {
			assert.LessOrEqual(t, p, first.Probabilities[first.ClassIndex])
		}

		assert.GreaterOrEqual(t, first.Confidence, 0.0)
		assert.LessOrEqual(t, first.Confidence, 100.0)
		assert.Equal(t, math.Round(first.Probabilities[first.ClassIndex]*1000)/10, first.Confidence)
	}
}

func TestConfidencePercent(t *testing.T) {
	assert.Equal(t, 53.4, ConfidencePercent(0.534192737124035))
	assert.Equal(t, 100.0, ConfidencePercent(1))
	assert.Equal(t, 0.0, ConfidencePercent(0))
	assert.Equal(t, 33.3, ConfidencePercent(1.0/3))
	assert.Equal(t, 3, TierFor(2))
}

type countingModel struct {
	mu    sync.Mutex
	calls int
	proba []float64
}

func (m *countingModel) NumClasses() int  { return 3 }
func (m *countingModel) NumFeatures() int { return 2 }
func (m *countingModel) PredictProba([]float64) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return append([]float64(nil), m.proba...), nil
}

func fakeService(t *testing.T, model ml.Classifier, opts ...Option) *Service {
	t.Helper()
	schema, err := ml.NewFeatureSchema([]string{"a", "b"})
	require.NoError(t, err)
	artifact, err := ml.NewArtifact(model, schema, "fake")
	require.NoError(t, err)
	svc, err := NewService(artifact, opts...)
	require.NoError(t, err)
	return svc
}

func TestMemoServesRepeatedVectors(t *testing.T) {
	model := &countingModel{proba: []float64{0.2, 0.3, 0.5}}
	svc := fakeService(t, model, WithMemo(8))

	first, err := svc.Predict(FeatureVector{"a": 1, "b": 2})
	require.NoError(t, err)
	first.Probabilities[0] = 42

	second, err := svc.Predict(FeatureVector{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, []float64{0.2, 0.3, 0.5}, second.Probabilities)

	_, err = svc.Predict(FeatureVector{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
}

func TestPredictsFreshWithoutMemo(t *testing.T) {
	for _, opts := range [][]Option{nil, {WithMemo(0)}} {
		model := &countingModel{proba: []float64{0.2, 0.3, 0.5}}
		svc := fakeService(t, model, opts...)
		for i := 0; i < 3; i++ {
			_, err := svc.Predict(FeatureVector{"a": 1, "b": 2})
			require.NoError(t, err)
		}
		assert.Equal(t, 3, model.calls)
		assert.Nil(t, svc.memo)
	}
}

func TestConcurrentPredict(t *testing.T) {
	svc := loadService(t, WithMemo(4))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vector := Zero(svc.Schema())
			vector["C1.2"] = float64(i % 6)
			_, err := svc.Predict(vector)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

type shortModel struct{}

func (shortModel) NumClasses() int                           { return 3 }
func (shortModel) NumFeatures() int                          { return 2 }
func (shortModel) PredictProba([]float64) ([]float64, error) { return []float64{1, 0}, nil }

func TestPredictChecksClassCount(t *testing.T) {
	svc := fakeService(t, shortModel{})
	_, err := svc.Predict(FeatureVector{"a": 0, "b": 0})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSchemaMismatch))
}

func TestNewServiceRequiresArtifact(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}
