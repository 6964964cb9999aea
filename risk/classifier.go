// Package risk 把违约概率映射为风险等级和展示颜色。
package risk

import (
	"math"

	"github.com/rushteam/creditiq/core"
)

// 风险等级
const (
	LevelLow    = "Low Risk"
	LevelMedium = "Medium Risk"
	LevelHigh   = "High Risk"
)

// 展示颜色
const (
	ColorGreen = "#10b981"
	ColorAmber = "#f59e0b"
	ColorRed   = "#ef4444"
)

// 分级阈值，区间左闭右开：[0, 0.3) Low，[0.3, 0.6) Medium，[0.6, 1] High。
const (
	MediumThreshold = 0.3
	HighThreshold   = 0.6
)

var (
	Low    = core.RiskBand{Level: LevelLow, Color: ColorGreen}
	Medium = core.RiskBand{Level: LevelMedium, Color: ColorAmber}
	High   = core.RiskBand{Level: LevelHigh, Color: ColorRed}
)

// Classify 按固定阈值分级。
// 超出 [0, 1] 的有限值先截断；NaN 视为 High，调用方应在推理阶段拦截。
func Classify(p float64) core.RiskBand {
	if math.IsNaN(p) {
		return High
	}
	p = Clamp(p)
	switch {
	case p < MediumThreshold:
		return Low
	case p < HighThreshold:
		return Medium
	default:
		return High
	}
}

// Clamp 把概率截断到 [0, 1]
func Clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

// Classifier 风险分级接口
type Classifier interface {
	Classify(a *core.Assessment) (core.RiskBand, error)
}

// ThresholdClassifier 是 Classify 的 Classifier 实现
type ThresholdClassifier struct{}

// Classify 实现 Classifier
func (ThresholdClassifier) Classify(a *core.Assessment) (core.RiskBand, error) {
	return Classify(a.Probability), nil
}
