package risk

import (
	"fmt"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/pkg/dsl"
	"github.com/rushteam/creditiq/pkg/utils"
)

// Rule 是一条按表达式命中的分级规则
type Rule struct {
	Name  string `yaml:"name" koanf:"name"`
	Expr  string `yaml:"expr" koanf:"expr"`
	Level string `yaml:"level" koanf:"level"`
	Color string `yaml:"color" koanf:"color"`
}

type compiledRule struct {
	Rule
	prg *dsl.Rule
}

// RuleClassifier 先按顺序匹配规则，首条命中即返回；均未命中时回退到阈值分级。
//
// 规则表达式可使用 probability 与 features 变量，例如：
//
//	probability >= 0.5 && features["D_39_last"] > 30.0
type RuleClassifier struct {
	rules []compiledRule
}

// NewRuleClassifier 编译全部规则，任何一条失败即返回错误
func NewRuleClassifier(rules []Rule) (*RuleClassifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Level == "" {
			return nil, core.NewDomainError(core.ModuleRisk, core.ErrorCodeInvalidInput,
				fmt.Sprintf("rule %d (%s): level is required", i, r.Name))
		}
		prg, err := dsl.Compile(r.Expr)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleRisk, core.ErrorCodeInvalidInput,
				fmt.Sprintf("rule %d (%s)", i, r.Name), err)
		}
		if r.Color == "" {
			r.Color = colorFor(r.Level)
		}
		compiled = append(compiled, compiledRule{Rule: r, prg: prg})
	}
	return &RuleClassifier{rules: compiled}, nil
}

// Classify 实现 Classifier。
// 规则求值出错（例如访问不存在的特征）视为未命中。
func (c *RuleClassifier) Classify(a *core.Assessment) (core.RiskBand, error) {
	in := dsl.Input{Probability: Clamp(a.Probability), Features: a.NamedFeatures()}
	for _, r := range c.rules {
		hit, err := r.prg.Evaluate(in)
		if err != nil || !hit {
			continue
		}
		a.PutLabel("risk_rule", utils.Label{Value: r.Name, Source: "classify"})
		return core.RiskBand{Level: r.Level, Color: r.Color}, nil
	}
	return Classify(a.Probability), nil
}

func colorFor(level string) string {
	switch level {
	case LevelLow:
		return ColorGreen
	case LevelMedium:
		return ColorAmber
	case LevelHigh:
		return ColorRed
	default:
		return ColorAmber
	}
}

var (
	_ Classifier = ThresholdClassifier{}
	_ Classifier = (*RuleClassifier)(nil)
)
