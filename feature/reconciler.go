package feature

import (
	"context"
	"fmt"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/pkg/conv"
)

// Reconcile 把调用方提交的部分特征对齐到模型 schema，生成有序向量。
//
// 规则：
//   - 按 schema 顺序遍历；input 中存在的特征解析为 float64
//   - 不存在的特征填充 DefaultValue
//   - 无法解析的值返回 INVALID_FEATURE_VALUE，不返回部分向量
//   - 不在 schema 中的 key 被忽略
//
// 不做标准化、缩放或插补。
func Reconcile(schema core.FeatureSchema, input core.ClientFeatureMap) (core.FeatureVector, error) {
	vector, _, err := reconcile(schema, input, ConstantFallback(DefaultValue))
	return vector, err
}

// ReconcileStats 单次对齐的统计信息
type ReconcileStats struct {
	Used    int      // 由调用方提供的 schema 特征数
	Missing []string // 使用默认值填充的特征
	Unknown []string // 不在 schema 中、被忽略的 key
}

// Monitor 接收对齐统计，用于观测特征缺失率。
type Monitor interface {
	RecordReconcile(ctx context.Context, stats ReconcileStats)
}

type nopMonitor struct{}

func (nopMonitor) RecordReconcile(context.Context, ReconcileStats) {}

// Reconciler 是带降级策略和监控的 Reconcile。
type Reconciler struct {
	Fallback FallbackStrategy
	Monitor  Monitor
}

// ReconcilerOption 配置 Reconciler
type ReconcilerOption func(*Reconciler)

// WithFallback 设置缺失特征降级策略
func WithFallback(f FallbackStrategy) ReconcilerOption {
	return func(r *Reconciler) {
		if f != nil {
			r.Fallback = f
		}
	}
}

// WithMonitor 设置对齐监控
func WithMonitor(m Monitor) ReconcilerOption {
	return func(r *Reconciler) {
		if m != nil {
			r.Monitor = m
		}
	}
}

// NewReconciler 创建 Reconciler，默认使用 DefaultValue 填充缺失特征。
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		Fallback: ConstantFallback(DefaultValue),
		Monitor:  nopMonitor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile 对齐特征并上报统计；失败时不上报。
func (r *Reconciler) Reconcile(ctx context.Context, schema core.FeatureSchema, input core.ClientFeatureMap) (core.FeatureVector, error) {
	vector, stats, err := reconcile(schema, input, r.Fallback)
	if err != nil {
		return nil, err
	}
	r.Monitor.RecordReconcile(ctx, stats)
	return vector, nil
}

func reconcile(schema core.FeatureSchema, input core.ClientFeatureMap, fallback FallbackStrategy) (core.FeatureVector, ReconcileStats, error) {
	var stats ReconcileStats
	vector := make(core.FeatureVector, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		name := schema.At(i)
		raw, ok := input[name]
		if !ok {
			vector[i] = fallback.DefaultFor(name)
			stats.Missing = append(stats.Missing, name)
			continue
		}
		v, ok := conv.ToFloat64(raw)
		if !ok {
			return nil, ReconcileStats{}, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidFeatureValue,
				fmt.Sprintf("feature %q: could not convert %s to float", name, describe(raw)))
		}
		vector[i] = v
		stats.Used++
	}
	for k := range input {
		if !schema.Contains(k) {
			stats.Unknown = append(stats.Unknown, k)
		}
	}
	return vector, stats, nil
}

func describe(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
