package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionTreePredict(t *testing.T) {
	payload, err := os.ReadFile(filepath.Join("testdata", "decision_tree.json"))
	require.NoError(t, err)
	model, err := ParseDecisionTree(payload)
	require.NoError(t, err)

	label, proba, err := Predict(model, rowWith(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Equal(t, []float64{0.7, 0.2, 0.1}, proba)

	label, proba, err = Predict(model, rowWith(map[string]float64{"C1.2": 3}))
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Equal(t, []float64{0.2, 0.5, 0.3}, proba)

	label, proba, err = Predict(model, rowWith(map[string]float64{"C1.2": 3, "C2.4": 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, label)
	assert.Equal(t, []float64{0, 0, 1}, proba)
}

func TestParseDecisionTreeValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "no nodes", payload: `{"num_classes": 3, "nodes": []}`},
		{name: "single class", payload: `{"num_classes": 1, "nodes": [{"is_leaf": true}]}`},
		{name: "label out of range", payload: `{"num_classes": 2, "nodes": [{"is_leaf": true, "class_label": 4}]}`},
		{name: "probabilities do not sum", payload: `{"num_classes": 2, "nodes": [{"is_leaf": true, "class_probs": [0.5, 0.4]}]}`},
		{name: "self loop", payload: `{"num_classes": 2, "nodes": [{"feature_idx": 0, "left_child": 0, "right_child": 1}, {"is_leaf": true}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecisionTree([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}
