// Package explain 基于全局特征重要性生成解释摘要。
//
// 这里的 "SHAP" 并不是逐样本 SHAP 值：impact 只根据全局 importance
// 是否超过阈值给出 increase/decrease，与请求输入无关，是一个近似的展示口径。
package explain

import (
	"strings"

	"github.com/rushteam/creditiq/core"
)

// 默认展示条数
const (
	TopImportance = 15
	TopShap       = 10
	TopInput      = 20
)

// ImpactThreshold importance 大于该值视为推高风险
const ImpactThreshold = 0.01

// Impact 取值
const (
	ImpactIncrease = "increase"
	ImpactDecrease = "decrease"
)

// Category 是特征前缀到类别名的映射，顺序即匹配顺序。
type Category struct {
	Name   string
	Prefix string
}

// Categories 特征类别，按前缀归类
var Categories = []Category{
	{Name: "Delinquency", Prefix: "D_"},
	{Name: "Spend", Prefix: "S_"},
	{Name: "Payment", Prefix: "P_"},
	{Name: "Balance", Prefix: "B_"},
	{Name: "Risk", Prefix: "R_"},
}

// Contribution 是单个特征的近似贡献
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Impact  string  `json:"impact"`
}

// Summarize 返回前 topN 个特征的近似贡献，条数为 min(topN, len(table))。
func Summarize(table core.ImportanceTable, topN int) []Contribution {
	top := table.Top(topN)
	out := make([]Contribution, 0, len(top))
	for _, e := range top {
		impact := ImpactDecrease
		if e.Importance > ImpactThreshold {
			impact = ImpactIncrease
		}
		out = append(out, Contribution{Feature: e.Feature, Value: e.Importance, Impact: impact})
	}
	return out
}

// ImportanceReport 是 feature-importance 接口的输出
type ImportanceReport struct {
	TopFeatures   []core.ImportanceEntry            `json:"top_features"`
	Categories    map[string][]core.ImportanceEntry `json:"categories"`
	TotalFeatures int                               `json:"total_features"`
}

// Report 返回前 topN 条重要特征、它们的类别划分和表的总行数。
func Report(table core.ImportanceTable, topN int) ImportanceReport {
	top := table.Top(topN)
	return ImportanceReport{
		TopFeatures:   top,
		Categories:    Categorize(top),
		TotalFeatures: len(table),
	}
}

// Categorize 按前缀划分特征，保持输入顺序；不匹配任何前缀的特征被丢弃。
// 所有类别 key 始终存在，可能为空列表。
func Categorize(entries []core.ImportanceEntry) map[string][]core.ImportanceEntry {
	out := make(map[string][]core.ImportanceEntry, len(Categories))
	for _, c := range Categories {
		out[c.Name] = []core.ImportanceEntry{}
	}
	for _, e := range entries {
		for _, c := range Categories {
			if strings.HasPrefix(e.Feature, c.Prefix) {
				out[c.Name] = append(out[c.Name], e)
				break
			}
		}
	}
	return out
}
