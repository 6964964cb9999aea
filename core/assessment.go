package core

import "github.com/rushteam/creditiq/pkg/utils"

// RiskBand 是离散风险等级及其展示颜色
type RiskBand struct {
	Level string `json:"risk_level"`
	Color string `json:"risk_color"`
}

// Assessment 是评分链路中的统一承载结构：输入、向量、概率、风险等级、标签。
// 请求级对象，单次请求内创建和丢弃。
type Assessment struct {
	CustomerID  string
	Input       ClientFeatureMap
	Schema      FeatureSchema
	Vector      FeatureVector
	Probability float64
	Band        RiskBand
	Labels      map[string]utils.Label
}

func NewAssessment(input ClientFeatureMap) *Assessment {
	if input == nil {
		input = ClientFeatureMap{}
	}
	return &Assessment{
		Input:  input,
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (a *Assessment) PutLabel(key string, lbl utils.Label) {
	if a.Labels == nil {
		a.Labels = make(map[string]utils.Label)
	}
	if old, ok := a.Labels[key]; ok {
		a.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	a.Labels[key] = lbl
}

// NamedFeatures 按 schema 把向量还原为 name -> value，向量未生成时返回空 map。
func (a *Assessment) NamedFeatures() map[string]float64 {
	out := make(map[string]float64, len(a.Vector))
	for i, v := range a.Vector {
		if i >= a.Schema.Len() {
			break
		}
		out[a.Schema.At(i)] = v
	}
	return out
}
