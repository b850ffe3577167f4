// Package assess is the inference boundary: it turns a keyed feature vector
// into a risk tier and confidence using a loaded artifact.
package assess

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"caserisk/ml"
)

// DeploymentClasses is the class count the shipped artifact and the tier
// wording are built for. Retraining with a different count means changing
// this, the configured class count and the label catalogs together.
const DeploymentClasses = 3

// Prediction is the outcome of one assessment. It is computed per request and
// not retained unless the service was built WithMemo.
type Prediction struct {
	// ClassIndex is the model's 0-based argmax class.
	ClassIndex int `json:"class_index"`
	// Tier is ClassIndex+1.
	Tier          int       `json:"tier"`
	Probabilities []float64 `json:"probabilities"`
	// Confidence is Probabilities[ClassIndex] as a percentage rounded to one decimal.
	Confidence float64 `json:"confidence"`
}

// TierFor maps a 0-based class index to its 1-based risk tier.
func TierFor(class int) int {
	return class + 1
}

// ConfidencePercent expresses a probability as a percentage with one decimal.
func ConfidencePercent(p float64) float64 {
	return math.Round(p*1000) / 10
}

type Option func(*Service) error

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMemo keeps up to size recent rows and their predictions in memory. It is
// off unless size is positive. Predictions are deterministic for a fixed
// artifact, so a hit is indistinguishable from a fresh run.
func WithMemo(size int) Option {
	return func(s *Service) error {
		if size <= 0 {
			s.memo = nil
			return nil
		}
		memo, err := lru.New[string, Prediction](size)
		if err != nil {
			return fmt.Errorf("create prediction memo: %w", err)
		}
		s.memo = memo
		return nil
	}
}

// Service evaluates feature vectors against one artifact. It holds no mutable
// state apart from the internally synchronised memo and is safe for
// concurrent use.
type Service struct {
	artifact *ml.Artifact
	logger   *zap.Logger
	memo     *lru.Cache[string, Prediction]
}

func NewService(artifact *ml.Artifact, opts ...Option) (*Service, error) {
	if artifact == nil {
		return nil, errors.New("nil artifact")
	}
	s := &Service{artifact: artifact, logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Schema is the ordered feature list callers must supply.
func (s *Service) Schema() ml.FeatureSchema { return s.artifact.Schema() }

func (s *Service) Classes() int { return s.artifact.Classes() }

func (s *Service) Artifact() *ml.Artifact { return s.artifact }

// Predict checks that vector's keys equal the schema, lays the values out in
// schema order itself and runs the classifier. The caller's key order is never
// relied on.
func (s *Service) Predict(vector FeatureVector) (Prediction, error) {
	row, err := s.row(vector)
	if err != nil {
		return Prediction{}, err
	}

	key := memoKey(row)
	if s.memo != nil {
		if cached, ok := s.memo.Get(key); ok {
			return cached.clone(), nil
		}
	}

	class, proba, err := s.artifact.Predict(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(proba) != s.artifact.Classes() {
		return Prediction{}, fmt.Errorf("model returned %d probabilities for %d classes", len(proba), s.artifact.Classes())
	}
	p := Prediction{
		ClassIndex:    class,
		Tier:          TierFor(class),
		Probabilities: proba,
		Confidence:    ConfidencePercent(proba[class]),
	}
	if s.memo != nil {
		s.memo.Add(key, p.clone())
	}
	s.logger.Debug("assessment scored",
		zap.Int("tier", p.Tier),
		zap.Float64("confidence", p.Confidence))
	return p, nil
}

func (s *Service) row(vector FeatureVector) ([]float64, error) {
	schema := s.artifact.Schema()
	mismatch := &SchemaMismatchError{}
	row := make([]float64, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		code := schema.Code(i)
		v, ok := vector[code]
		if !ok {
			mismatch.Missing = append(mismatch.Missing, code)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			mismatch.invalid(code, fmt.Sprintf("%v is not a finite number", v))
			continue
		}
		row[i] = v
	}
	for _, code := range sortedKeys(vector) {
		if _, ok := schema.Index(code); !ok {
			mismatch.Unknown = append(mismatch.Unknown, code)
		}
	}
	if !mismatch.empty() {
		return nil, mismatch
	}
	return row, nil
}

func (p Prediction) clone() Prediction {
	p.Probabilities = append([]float64(nil), p.Probabilities...)
	return p
}

func memoKey(row []float64) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
