package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rushteam/creditiq/core"
)

// Engine 包装 core.Model：校验向量长度，限制推理耗时，拒绝非有限输出。
// 有限但越界的概率会被截断到 [0, 1]。
type Engine struct {
	model   core.Model
	timeout time.Duration
}

// NewEngine 创建推理引擎，timeout <= 0 时使用 DefaultTimeout。
func NewEngine(m core.Model, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{model: m, timeout: timeout}
}

// Model 返回底层模型
func (e *Engine) Model() core.Model { return e.model }

// Infer 对单个特征向量推理，返回违约概率。
func (e *Engine) Infer(ctx context.Context, x core.FeatureVector) (float64, error) {
	if e == nil || e.model == nil {
		return 0, core.ErrModelUnavailable
	}
	if n := e.model.NumFeatures(); n > 0 && len(x) != n {
		return 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeInference,
			fmt.Sprintf("feature vector length %d != model features %d", len(x), n))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	p, err := e.model.Predict(ctx, x)
	if err != nil {
		if core.IsDomainError(err) {
			return 0, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInference,
				fmt.Sprintf("model %s timed out after %s", e.model.Name(), e.timeout), err)
		}
		return 0, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInference,
			fmt.Sprintf("model %s predict failed", e.model.Name()), err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeInference,
			fmt.Sprintf("model %s returned non-finite probability %v", e.model.Name(), p))
	}
	return math.Max(0, math.Min(1, p)), nil
}

// Ready 对支持就绪检查的远程模型做健康检查，本地模型总是就绪。
func (e *Engine) Ready(ctx context.Context) error {
	if e == nil || e.model == nil {
		return core.ErrModelUnavailable
	}
	if r, ok := e.model.(interface{ Ready(context.Context) error }); ok {
		return r.Ready(ctx)
	}
	return nil
}
