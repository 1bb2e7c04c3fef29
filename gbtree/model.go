// Package gbtree evaluates gradient-boosted tree ensembles saved in the XGBoost JSON
// model format. Only the gbtree booster with numerical splits and single-output
// objectives is supported.
package gbtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/giygas/drug-predictor-api/sparse"
)

// ErrFeatureCount is returned when a row does not have the width the model was trained on
var ErrFeatureCount = errors.New("feature count mismatch")

// tree is one regression tree in flat array form. Node 0 is the root; a node is a leaf
// when its left child is -1, and then splitCond holds the leaf value.
type tree struct {
	left        []int32
	right       []int32
	splitIndex  []int32
	splitCond   []float32
	defaultLeft []bool
}

// Model is a loaded, immutable tree ensemble. It is safe for concurrent use.
type Model struct {
	objective  Objective
	baseScore  float32
	baseMargin float32
	numFeature int
	trees      []tree
	treeLimit  int
	version    []int
}

// LoadFile reads a model from an XGBoost JSON file
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes and validates an XGBoost JSON model
func Load(r io.Reader) (*Model, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var doc modelDocument
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	return fromDocument(&doc)
}

func fromDocument(doc *modelDocument) (*Model, error) {
	learner := &doc.Learner

	booster := learner.GradientBooster.Name
	if booster != "" && booster != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q, only gbtree models can be loaded", booster)
	}

	objective := Objective(learner.Objective.Name)
	if !objective.Supported() {
		return nil, fmt.Errorf("unsupported objective %q", objective)
	}

	numClass, err := parseIntParam("num_class", learner.ModelParam.NumClass, 0)
	if err != nil {
		return nil, err
	}
	if numClass > 1 {
		return nil, fmt.Errorf("multi-class models (num_class=%d) are not supported", numClass)
	}

	numTarget, err := parseIntParam("num_target", learner.ModelParam.NumTarget, 1)
	if err != nil {
		return nil, err
	}
	if numTarget != 1 {
		return nil, fmt.Errorf("multi-target models (num_target=%d) are not supported", numTarget)
	}

	numFeature, err := parseIntParam("num_feature", learner.ModelParam.NumFeature, 0)
	if err != nil {
		return nil, err
	}
	if numFeature <= 0 {
		return nil, fmt.Errorf("num_feature must be positive, got %d", numFeature)
	}

	baseScore, err := parseBaseScore(learner.ModelParam.BaseScore)
	if err != nil {
		return nil, err
	}
	baseMargin, err := objective.baseMargin(baseScore)
	if err != nil {
		return nil, err
	}

	m := &Model{
		objective:  objective,
		baseScore:  baseScore,
		baseMargin: baseMargin,
		numFeature: numFeature,
		version:    doc.Version,
	}

	gb := &learner.GradientBooster.Model
	for i, info := range gb.TreeInfo {
		if info != 0 {
			return nil, fmt.Errorf("tree %d belongs to output group %d, only single-output models are supported", i, info)
		}
	}

	m.trees = make([]tree, len(gb.Trees))
	for i := range gb.Trees {
		t, err := buildTree(&gb.Trees[i], numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees[i] = t
	}

	m.treeLimit, err = treeLimit(learner.Attributes, gb.IterationIndptr, gb.Param.NumParallelTree, len(m.trees))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func buildTree(tj *treeJSON, numFeature int) (tree, error) {
	n := len(tj.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("tree has no nodes")
	}
	if len(tj.RightChildren) != n || len(tj.SplitIndices) != n ||
		len(tj.SplitConditions) != n || len(tj.DefaultLeft) != n {
		return tree{}, fmt.Errorf("node arrays have inconsistent lengths")
	}

	for _, st := range tj.SplitType {
		if st != 0 {
			return tree{}, fmt.Errorf("categorical splits are not supported")
		}
	}

	// walk from the root so that every reachable node is checked and a corrupt file
	// cannot make prediction loop
	visited := make([]bool, n)
	stack := []int32{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[i] {
			return tree{}, fmt.Errorf("node %d is reachable twice", i)
		}
		visited[i] = true

		l, r := tj.LeftChildren[i], tj.RightChildren[i]
		if l == -1 {
			continue
		}
		if l < 0 || int(l) >= n || r < 0 || int(r) >= n {
			return tree{}, fmt.Errorf("node %d has children (%d, %d) outside the tree", i, l, r)
		}
		if tj.SplitIndices[i] < 0 || int(tj.SplitIndices[i]) >= numFeature {
			return tree{}, fmt.Errorf("node %d splits on feature %d, model has %d features", i, tj.SplitIndices[i], numFeature)
		}
		stack = append(stack, l, r)
	}

	return tree{
		left:        tj.LeftChildren,
		right:       tj.RightChildren,
		splitIndex:  tj.SplitIndices,
		splitCond:   tj.SplitConditions,
		defaultLeft: tj.DefaultLeft,
	}, nil
}

// treeLimit resolves how many trees take part in prediction. Models trained with early
// stopping predict with iteration_range=(0, best_iteration+1).
func treeLimit(attrs map[string]string, indptr []int, numParallel string, numTrees int) (int, error) {
	best, ok := attrs["best_iteration"]
	if !ok {
		return numTrees, nil
	}

	iteration, err := strconv.Atoi(best)
	if err != nil || iteration < 0 {
		return 0, fmt.Errorf("invalid best_iteration %q", best)
	}

	limit := numTrees
	if len(indptr) > iteration+1 {
		limit = indptr[iteration+1]
	} else {
		perIteration, err := parseIntParam("num_parallel_tree", numParallel, 1)
		if err != nil {
			return 0, err
		}
		limit = (iteration + 1) * max(perIteration, 1)
	}

	return min(limit, numTrees), nil
}

// leaf walks one tree for the row and returns the leaf value
func (t *tree) leaf(row sparse.Vector) float32 {
	node := int32(0)
	for t.left[node] != -1 {
		x, present := row.At(int(t.splitIndex[node]))
		switch {
		case !present || math.IsNaN(x):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(x) < t.splitCond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return t.splitCond[node]
}

// Margin returns the untransformed score for the row. Columns not stored in the sparse
// row are treated as missing values.
func (m *Model) Margin(row sparse.Vector) (float64, error) {
	if row.Dim != m.numFeature {
		return 0, fmt.Errorf("%w: row has %d columns, model expects %d", ErrFeatureCount, row.Dim, m.numFeature)
	}

	sum := m.baseMargin
	for i := 0; i < m.treeLimit; i++ {
		sum += m.trees[i].leaf(row)
	}
	return float64(sum), nil
}

// Predict returns the objective-transformed prediction for the row
func (m *Model) Predict(row sparse.Vector) (float64, error) {
	margin, err := m.Margin(row)
	if err != nil {
		return 0, err
	}
	return float64(m.objective.transform(float32(margin))), nil
}

// PredictLabel returns the class label for binary objectives: 1 when the prediction is
// above 0.5, otherwise 0
func (m *Model) PredictLabel(row sparse.Vector) (int, error) {
	if !m.objective.Binary() {
		return 0, fmt.Errorf("objective %s does not produce class labels", m.objective)
	}

	p, err := m.Predict(row)
	if err != nil {
		return 0, err
	}
	if p > 0.5 {
		return 1, nil
	}
	return 0, nil
}

// NumFeature returns the row width the model was trained on
func (m *Model) NumFeature() int {
	return m.numFeature
}

// Objective returns the learning objective
func (m *Model) Objective() Objective {
	return m.objective
}

// NumTrees returns the number of trees used for prediction
func (m *Model) NumTrees() int {
	return m.treeLimit
}

// BaseScore returns the base score as stored in the model
func (m *Model) BaseScore() float64 {
	return float64(m.baseScore)
}

// Version returns the XGBoost version that saved the model, e.g. "2.0.3"
func (m *Model) Version() string {
	if len(m.version) == 0 {
		return "unknown"
	}

	s := strconv.Itoa(m.version[0])
	for _, v := range m.version[1:] {
		s += "." + strconv.Itoa(v)
	}
	return s
}
