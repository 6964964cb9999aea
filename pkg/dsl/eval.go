// Package dsl 是基于 CEL 的规则表达式，用于风险分级的自定义规则。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
	)
}

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Input 是表达式的求值输入
type Input struct {
	Probability float64
	Features    map[string]float64
}

// Rule 是编译后的布尔表达式，可并发求值。
//
// 表达式语法（CEL 标准语法）：
//   - probability >= 0.8
//   - probability > 0.5 && features["D_39_last"] > 10.0
//   - "P_2_last" in features && features["P_2_last"] < 0.2
type Rule struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，结果必须为 bool。
func Compile(expr string) (*Rule, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env error: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (r *Rule) String() string { return r.expr }

// Evaluate 求值。访问不存在的 features key 会返回错误，应先用 in 判断。
func (r *Rule) Evaluate(in Input) (bool, error) {
	features := in.Features
	if features == nil {
		features = map[string]float64{}
	}
	out, _, err := r.prg.Eval(map[string]any{
		"probability": in.Probability,
		"features":    features,
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
