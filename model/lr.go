package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rushteam/creditiq/core"
)

// LRModel 实现了逻辑回归 (Logistic Regression) 模型，常用作 GBDT 之外的基线评分卡。
//
// 预测原理：
// 1. 线性加权求和: z = Bias + sum(Weight_i * Feature_i)
// 2. Sigmoid 变换: P = 1 / (1 + exp(-z))
//
// 权重在加载时按 schema 展开成与特征向量同序的切片。
type LRModel struct {
	name    string
	Bias    float64
	Weights []float64
}

// LoadLRModel 解析 LR 模型 JSON：
//
//	{"bias": -1.2, "weights": {"P_2_last": -2.1, "D_39_last": 0.03}}
//
// schema 中没有权重的特征权重为 0；权重引用 schema 外的特征视为加载错误。
func LoadLRModel(name string, data []byte, schema []string) (*LRModel, error) {
	var raw struct {
		Bias    float64            `json:"bias"`
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, loadError("decode lr json", err)
	}
	index := make(map[string]int, len(schema))
	for i, f := range schema {
		index[f] = i
	}
	weights := make([]float64, len(schema))
	for f, w := range raw.Weights {
		i, ok := index[f]
		if !ok {
			return nil, loadError(fmt.Sprintf("lr weight for unknown feature %q", f), nil)
		}
		weights[i] = w
	}
	return &LRModel{name: name, Bias: raw.Bias, Weights: weights}, nil
}

func (m *LRModel) Name() string { return m.name }

func (m *LRModel) NumFeatures() int { return len(m.Weights) }

func (m *LRModel) Predict(_ context.Context, x core.FeatureVector) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeInference,
			fmt.Sprintf("feature vector length %d != model features %d", len(x), len(m.Weights)))
	}
	score := m.Bias
	for i, v := range x {
		score += m.Weights[i] * v
	}
	return Sigmoid(score), nil
}
