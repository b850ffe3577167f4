package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// DecisionTree is a single CART tree stored as a flat JSON node array. Leaves
// carry either a full class distribution or just a class label.
type DecisionTree struct {
	nodes       []TreeNode
	numClasses  int
	numFeatures int
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	ClassProbs []float64 `json:"class_probs,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
}

type treeDocument struct {
	NumClasses  int        `json:"num_classes"`
	NumFeatures int        `json:"num_features"`
	Nodes       []TreeNode `json:"nodes"`
}

// ParseDecisionTree decodes and validates a tree document.
func ParseDecisionTree(payload []byte) (*DecisionTree, error) {
	var doc treeDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode decision tree: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, errors.New("decision tree has no nodes")
	}
	if doc.NumClasses < 2 {
		return nil, fmt.Errorf("decision tree needs num_classes >= 2, got %d", doc.NumClasses)
	}
	dt := &DecisionTree{nodes: doc.Nodes, numClasses: doc.NumClasses, numFeatures: doc.NumFeatures}
	for i, node := range dt.nodes {
		if err := dt.validate(i, node); err != nil {
			return nil, err
		}
	}
	return dt, nil
}

func (dt *DecisionTree) validate(i int, node TreeNode) error {
	if node.IsLeaf {
		if node.ClassProbs == nil {
			if node.ClassLabel < 0 || node.ClassLabel >= dt.numClasses {
				return fmt.Errorf("leaf %d has class %d of %d", i, node.ClassLabel, dt.numClasses)
			}
			return nil
		}
		if len(node.ClassProbs) != dt.numClasses {
			return fmt.Errorf("leaf %d has %d class probabilities, want %d", i, len(node.ClassProbs), dt.numClasses)
		}
		var sum float64
		for _, p := range node.ClassProbs {
			if p < 0 || math.IsNaN(p) {
				return fmt.Errorf("leaf %d has invalid probability %v", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("leaf %d probabilities sum to %v", i, sum)
		}
		return nil
	}
	if node.FeatureIdx < 0 || (dt.numFeatures > 0 && node.FeatureIdx >= dt.numFeatures) {
		return fmt.Errorf("node %d splits on feature %d of %d", i, node.FeatureIdx, dt.numFeatures)
	}
	n := len(dt.nodes)
	if node.LeftChild <= i || node.LeftChild >= n || node.RightChild <= i || node.RightChild >= n {
		return fmt.Errorf("node %d has children %d/%d outside (%d, %d)", i, node.LeftChild, node.RightChild, i, n)
	}
	return nil
}

func (dt *DecisionTree) NumClasses() int  { return dt.numClasses }
func (dt *DecisionTree) NumFeatures() int { return dt.numFeatures }

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if dt.numFeatures > 0 && len(features) != dt.numFeatures {
		return nil, fmt.Errorf("row has %d features, model expects %d", len(features), dt.numFeatures)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return leafDistribution(node, dt.numClasses), nil
		}
		if node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func leafDistribution(node TreeNode, classes int) []float64 {
	if node.ClassProbs != nil {
		return append([]float64(nil), node.ClassProbs...)
	}
	out := make([]float64, classes)
	out[node.ClassLabel] = 1
	return out
}
