package gbtree

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// modelDocument mirrors the parts of the XGBoost JSON model schema needed for inference
type modelDocument struct {
	Learner struct {
		Attributes      map[string]string `json:"attributes"`
		FeatureNames    []string          `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Param struct {
					NumParallelTree string `json:"num_parallel_tree"`
					NumTrees        string `json:"num_trees"`
				} `json:"gbtree_model_param"`
				IterationIndptr []int      `json:"iteration_indptr"`
				TreeInfo        []int      `json:"tree_info"`
				Trees           []treeJSON `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		ModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
	Version []int `json:"version"`
}

type treeJSON struct {
	ID              int        `json:"id"`
	LeftChildren    []int32    `json:"left_children"`
	RightChildren   []int32    `json:"right_children"`
	SplitIndices    []int32    `json:"split_indices"`
	SplitConditions []float32  `json:"split_conditions"`
	DefaultLeft     boolVector `json:"default_left"`
	SplitType       []int      `json:"split_type"`
}

// boolVector accepts both [true, false] and [1, 0]; the encoding changed between
// XGBoost releases
type boolVector []bool

func (b *boolVector) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(boolVector, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case bool:
			out[i] = x
		case float64:
			out[i] = x != 0
		default:
			return fmt.Errorf("default_left[%d]: unexpected %T", i, v)
		}
	}

	*b = out
	return nil
}

// parseBaseScore handles "5E-1" as well as the bracketed vector form "[5E-1]"
func parseBaseScore(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0.5, nil
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.Contains(s, ",") {
		return 0, fmt.Errorf("multi-target base_score %q is not supported", s)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return float32(v), nil
}

func parseIntParam(name, s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
