package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	objectiveSoftprob = "multi:softprob"
	objectiveSoftmax  = "multi:softmax"
	objectiveLogistic = "binary:logistic"
)

// XGBoost evaluates a gradient-boosted tree ensemble saved with
// Booster.save_model / XGBClassifier.save_model in the JSON format.
type XGBoost struct {
	objective    string
	numClasses   int
	numFeatures  int
	baseMargin   []float64
	trees        []boostedTree
	treeClass    []int
	featureNames []string
}

type boostedTree struct {
	left        []int
	right       []int
	feature     []int
	threshold   []float32
	defaultLeft []bool
}

type xgbDocument struct {
	Learner struct {
		Attributes      map[string]string `json:"attributes"`
		FeatureNames    []string          `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Param struct {
					NumTrees        string `json:"num_trees"`
					NumParallelTree string `json:"num_parallel_tree"`
				} `json:"gbtree_model_param"`
				IterationIndptr []int     `json:"iteration_indptr"`
				TreeInfo        []int     `json:"tree_info"`
				Trees           []xgbTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		ModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
	Version []int `json:"version"`
}

type xgbTree struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flexBools `json:"default_left"`
	SplitType       []int     `json:"split_type"`
}

// flexBools accepts both the boolean and the 0/1 integer encodings XGBoost
// releases have used for default_left.
type flexBools []bool

func (b *flexBools) UnmarshalJSON(data []byte) error {
	var bools []bool
	if err := json.Unmarshal(data, &bools); err == nil {
		*b = bools
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("default_left: %w", err)
	}
	out := make([]bool, len(ints))
	for i, v := range ints {
		out[i] = v != 0
	}
	*b = out
	return nil
}

// ParseXGBoost decodes and validates an XGBoost JSON model.
func ParseXGBoost(payload []byte) (*XGBoost, error) {
	var doc xgbDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode xgboost model: %w", err)
	}
	learner := doc.Learner
	if name := learner.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}

	m := &XGBoost{
		objective:    learner.Objective.Name,
		featureNames: learner.FeatureNames,
	}
	numClass, err := atoiDefault(learner.ModelParam.NumClass, 0)
	if err != nil {
		return nil, fmt.Errorf("num_class: %w", err)
	}
	m.numFeatures, err = atoiDefault(learner.ModelParam.NumFeature, 0)
	if err != nil {
		return nil, fmt.Errorf("num_feature: %w", err)
	}
	bases, err := parseBaseScore(learner.ModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	switch m.objective {
	case objectiveSoftprob, objectiveSoftmax:
		if numClass < 2 {
			return nil, fmt.Errorf("objective %s needs num_class >= 2, got %d", m.objective, numClass)
		}
		m.numClasses = numClass
		m.baseMargin, err = broadcastBase(bases, numClass)
		if err != nil {
			return nil, err
		}
	case objectiveLogistic:
		m.numClasses = 2
		if len(bases) != 1 || bases[0] <= 0 || bases[0] >= 1 {
			return nil, fmt.Errorf("binary:logistic base_score must be one probability, got %v", bases)
		}
		m.baseMargin = []float64{math.Log(bases[0] / (1 - bases[0]))}
	default:
		return nil, fmt.Errorf("unsupported objective %q", m.objective)
	}

	model := learner.GradientBooster.Model
	if len(model.TreeInfo) != len(model.Trees) {
		return nil, fmt.Errorf("tree_info has %d entries for %d trees", len(model.TreeInfo), len(model.Trees))
	}
	limit := len(model.Trees)
	if best, ok := learner.Attributes["best_iteration"]; ok {
		parallel, err := atoiDefault(model.Param.NumParallelTree, 1)
		if err != nil {
			return nil, fmt.Errorf("num_parallel_tree: %w", err)
		}
		limit, err = bestIterationLimit(best, model.IterationIndptr, len(m.baseMargin)*parallel, limit)
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < limit; i++ {
		class := model.TreeInfo[i]
		if class < 0 || class >= len(m.baseMargin) {
			return nil, fmt.Errorf("tree %d targets class %d", i, class)
		}
		tree, err := buildTree(model.Trees[i], m.numFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees = append(m.trees, tree)
		m.treeClass = append(m.treeClass, class)
	}
	return m, nil
}

func (m *XGBoost) NumClasses() int  { return m.numClasses }
func (m *XGBoost) NumFeatures() int { return m.numFeatures }

// FeatureNames returns the column names recorded at training time, if any.
func (m *XGBoost) FeatureNames() []string {
	return append([]string(nil), m.featureNames...)
}

// PredictProba sums the leaf values reached in every tree per class and maps
// the margins through the objective's link function.
func (m *XGBoost) PredictProba(row []float64) ([]float64, error) {
	if m.numFeatures > 0 && len(row) != m.numFeatures {
		return nil, fmt.Errorf("row has %d features, model expects %d", len(row), m.numFeatures)
	}
	margins := append([]float64(nil), m.baseMargin...)
	for i, tree := range m.trees {
		leaf, err := tree.evaluate(row)
		if err != nil {
			return nil, err
		}
		margins[m.treeClass[i]] += leaf
	}
	if m.objective == objectiveLogistic {
		p := 1 / (1 + math.Exp(-margins[0]))
		return []float64{1 - p, p}, nil
	}
	return softmax(margins), nil
}

func (t boostedTree) evaluate(row []float64) (float64, error) {
	node := 0
	for t.left[node] >= 0 {
		idx := t.feature[node]
		if idx >= len(row) {
			return 0, fmt.Errorf("split on feature %d outside a row of %d", idx, len(row))
		}
		x := row[idx]
		switch {
		case math.IsNaN(x):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(x) < t.threshold[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return float64(t.threshold[node]), nil
}

func buildTree(raw xgbTree, numFeatures int) (boostedTree, error) {
	n := len(raw.LeftChildren)
	if n == 0 {
		return boostedTree{}, errors.New("tree has no nodes")
	}
	if len(raw.RightChildren) != n || len(raw.SplitIndices) != n || len(raw.SplitConditions) != n {
		return boostedTree{}, errors.New("node arrays differ in length")
	}
	defaultLeft := []bool(raw.DefaultLeft)
	if len(defaultLeft) == 0 {
		defaultLeft = make([]bool, n)
	}
	if len(defaultLeft) != n {
		return boostedTree{}, errors.New("default_left length differs from node count")
	}
	tree := boostedTree{
		left:        raw.LeftChildren,
		right:       raw.RightChildren,
		feature:     raw.SplitIndices,
		threshold:   make([]float32, n),
		defaultLeft: defaultLeft,
	}
	for i := 0; i < n; i++ {
		tree.threshold[i] = float32(raw.SplitConditions[i])
		if tree.left[i] < 0 {
			continue
		}
		if i < len(raw.SplitType) && raw.SplitType[i] != 0 {
			return boostedTree{}, fmt.Errorf("node %d uses a categorical split", i)
		}
		// children always carry larger ids than their parent, which also rules out cycles
		if tree.left[i] <= i || tree.left[i] >= n || tree.right[i] <= i || tree.right[i] >= n {
			return boostedTree{}, fmt.Errorf("node %d has children %d/%d outside (%d, %d)", i, tree.left[i], tree.right[i], i, n)
		}
		if tree.feature[i] < 0 || (numFeatures > 0 && tree.feature[i] >= numFeatures) {
			return boostedTree{}, fmt.Errorf("node %d splits on feature %d of %d", i, tree.feature[i], numFeatures)
		}
	}
	return tree, nil
}

func bestIterationLimit(raw string, indptr []int, perIteration, total int) (int, error) {
	best, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || best < 0 {
		return 0, fmt.Errorf("best_iteration %q is not a non-negative integer", raw)
	}
	limit := (best + 1) * perIteration
	if best+1 < len(indptr) {
		limit = indptr[best+1]
	}
	if limit > total {
		limit = total
	}
	return limit, nil
}

// parseBaseScore accepts "5E-1" as well as the bracketed per-target vector
// written by newer releases, e.g. "[5E-1,5E-1,5E-1]".
func parseBaseScore(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []float64{0.5}, nil
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("base_score: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func broadcastBase(bases []float64, classes int) ([]float64, error) {
	switch len(bases) {
	case 1:
		out := make([]float64, classes)
		for i := range out {
			out[i] = bases[0]
		}
		return out, nil
	case classes:
		return bases, nil
	default:
		return nil, fmt.Errorf("base_score has %d values for %d classes", len(bases), classes)
	}
}

func softmax(margins []float64) []float64 {
	peak := margins[0]
	for _, m := range margins[1:] {
		peak = math.Max(peak, m)
	}
	out := make([]float64, len(margins))
	var sum float64
	for i, m := range margins {
		out[i] = math.Exp(m - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func atoiDefault(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
