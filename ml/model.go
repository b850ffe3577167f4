package ml

import "errors"

// Classifier is a trained multi-class model evaluated over a single row whose
// columns follow the artifact's FeatureSchema.
type Classifier interface {
	// NumClasses is the length of every probability vector returned.
	NumClasses() int
	// NumFeatures is the row width the model was trained on.
	NumFeatures() int
	PredictProba(row []float64) ([]float64, error)
}

// Predict returns the argmax class and the full probability vector. Ties go to
// the lowest class index.
func Predict(model Classifier, row []float64) (int, []float64, error) {
	proba, err := model.PredictProba(row)
	if err != nil {
		return 0, nil, err
	}
	if len(proba) == 0 {
		return 0, nil, errors.New("model returned no class probabilities")
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return best, proba, nil
}
