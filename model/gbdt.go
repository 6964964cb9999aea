package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rushteam/creditiq/core"
)

// GBDTModel 是 XGBoost 梯度提升树的纯 Go 推理实现，直接读取 Booster.save_model 导出的 JSON。
//
// 预测原理：
//  1. 每棵树从根节点开始：x[split] < cond 走左子树，否则走右子树；缺失值 (NaN) 按 default_left 走
//  2. margin = logit(base_score) + sum(leaf)
//  3. P = sigmoid(margin)
//
// 只支持二分类的 binary:logistic / reg:logistic 目标，不支持类别特征分裂。
type GBDTModel struct {
	name         string
	numFeature   int
	baseMargin   float64
	trees        []tree
	treeWeights  []float64 // dart 的 weight_drop，gbtree 时为 nil
	featureNames []string
}

type tree struct {
	left        []int32
	right       []int32
	index       []int32
	cond        []float32
	defaultLeft []bool
}

// xgbModel 对应 XGBoost JSON 模型的必要字段
type xgbModel struct {
	Learner struct {
		FeatureNames      []string   `json:"feature_names"`
		GradientBooster   xgbBooster `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbBooster struct {
	Name   string     `json:"name"`
	Model  *xgbGBTree `json:"model"`
	GBTree *struct {
		Model *xgbGBTree `json:"model"`
	} `json:"gbtree"`
	WeightDrop []float64 `json:"weight_drop"`
}

type xgbGBTree struct {
	Trees    []xgbTree `json:"trees"`
	TreeInfo []int     `json:"tree_info"`
}

type xgbTree struct {
	LeftChildren    []int32    `json:"left_children"`
	RightChildren   []int32    `json:"right_children"`
	SplitIndices    []int32    `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
	CategoriesNodes []int      `json:"categories_nodes"`
	TreeParam       struct {
		NumNodes string `json:"num_nodes"`
	} `json:"tree_param"`
}

// flexBool 兼容 default_left 的 0/1 与 true/false 两种写法
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*b = true
	case "0", "false":
		*b = false
	default:
		return fmt.Errorf("invalid default_left value %s", data)
	}
	return nil
}

// LoadGBDTModel 解析 XGBoost JSON 模型。
// 解析失败或结构不合法时返回 ARTIFACT_LOAD_ERROR。
func LoadGBDTModel(name string, data []byte) (*GBDTModel, error) {
	var raw xgbModel
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, loadError("decode xgboost json", err)
	}
	l := raw.Learner

	switch l.Objective.Name {
	case "binary:logistic", "reg:logistic":
	default:
		return nil, loadError(fmt.Sprintf("unsupported objective %q", l.Objective.Name), nil)
	}
	if nc, _ := parseXGBNumber(l.LearnerModelParam.NumClass); nc > 1 {
		return nil, loadError(fmt.Sprintf("multi-class model (num_class=%v) is not supported", nc), nil)
	}

	numFeature, err := parseXGBNumber(l.LearnerModelParam.NumFeature)
	if err != nil || numFeature <= 0 {
		return nil, loadError(fmt.Sprintf("invalid num_feature %q", l.LearnerModelParam.NumFeature), err)
	}
	baseScore, err := parseXGBNumber(l.LearnerModelParam.BaseScore)
	if err != nil || baseScore <= 0 || baseScore >= 1 {
		return nil, loadError(fmt.Sprintf("invalid base_score %q", l.LearnerModelParam.BaseScore), err)
	}

	booster := l.GradientBooster
	gb := booster.Model
	var weights []float64
	switch booster.Name {
	case "gbtree", "":
	case "dart":
		if booster.GBTree != nil {
			gb = booster.GBTree.Model
		}
		weights = booster.WeightDrop
	default:
		return nil, loadError(fmt.Sprintf("unsupported booster %q", booster.Name), nil)
	}
	if gb == nil || len(gb.Trees) == 0 {
		return nil, loadError("model has no trees", nil)
	}
	if weights != nil && len(weights) != len(gb.Trees) {
		return nil, loadError(fmt.Sprintf("weight_drop length %d != trees %d", len(weights), len(gb.Trees)), nil)
	}

	m := &GBDTModel{
		name:         name,
		numFeature:   int(numFeature),
		baseMargin:   math.Log(baseScore / (1 - baseScore)),
		trees:        make([]tree, 0, len(gb.Trees)),
		treeWeights:  weights,
		featureNames: l.FeatureNames,
	}
	for i, t := range gb.Trees {
		parsed, err := buildTree(t, m.numFeature)
		if err != nil {
			return nil, loadError(fmt.Sprintf("tree %d", i), err)
		}
		m.trees = append(m.trees, parsed)
	}
	return m, nil
}

func buildTree(t xgbTree, numFeature int) (tree, error) {
	if len(t.CategoriesNodes) > 0 {
		return tree{}, fmt.Errorf("categorical splits are not supported")
	}
	n := len(t.LeftChildren)
	if nn, err := parseXGBNumber(t.TreeParam.NumNodes); err == nil && int(nn) != n {
		return tree{}, fmt.Errorf("num_nodes %v != %d", nn, n)
	}
	if n == 0 || len(t.RightChildren) != n || len(t.SplitIndices) != n ||
		len(t.SplitConditions) != n || len(t.DefaultLeft) != n {
		return tree{}, fmt.Errorf("inconsistent node arrays")
	}

	out := tree{
		left:        t.LeftChildren,
		right:       t.RightChildren,
		index:       t.SplitIndices,
		cond:        make([]float32, n),
		defaultLeft: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		out.cond[i] = float32(t.SplitConditions[i])
		out.defaultLeft[i] = bool(t.DefaultLeft[i])
		if out.left[i] == -1 {
			continue
		}
		if l, r := int(out.left[i]), int(out.right[i]); l <= i || r <= i || l >= n || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children (%d, %d)", i, l, r)
		}
		if idx := int(out.index[i]); idx < 0 || idx >= numFeature {
			return tree{}, fmt.Errorf("node %d splits on feature %d out of range", i, idx)
		}
	}
	return out, nil
}

// leaf 沿树走到叶子节点并返回叶子值
func (t *tree) leaf(x core.FeatureVector) float64 {
	node := int32(0)
	for t.left[node] != -1 {
		v := x[t.index[node]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(v) < t.cond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return float64(t.cond[node])
}

func (m *GBDTModel) Name() string { return m.name }

// NumFeatures 返回模型训练时的特征数
func (m *GBDTModel) NumFeatures() int { return m.numFeature }

// FeatureNames 返回模型内嵌的特征名（可能为空）
func (m *GBDTModel) FeatureNames() []string { return m.featureNames }

// Margin 返回 sigmoid 之前的原始分
func (m *GBDTModel) Margin(x core.FeatureVector) float64 {
	margin := m.baseMargin
	for i := range m.trees {
		leaf := m.trees[i].leaf(x)
		if m.treeWeights != nil {
			leaf *= m.treeWeights[i]
		}
		margin += leaf
	}
	return margin
}

func (m *GBDTModel) Predict(_ context.Context, x core.FeatureVector) (float64, error) {
	if len(x) != m.numFeature {
		return 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeInference,
			fmt.Sprintf("feature vector length %d != model features %d", len(x), m.numFeature))
	}
	return Sigmoid(m.Margin(x)), nil
}

// parseXGBNumber 解析 XGBoost 以字符串保存的参数，兼容 "5E-1" 与 "[5E-1]"
func parseXGBNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func loadError(msg string, err error) error {
	if err == nil {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeArtifactLoad, msg)
	}
	return core.WrapDomainError(core.ModuleModel, core.ErrorCodeArtifactLoad, msg, err)
}
