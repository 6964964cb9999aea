package pipeline

import (
	"context"

	"github.com/rushteam/creditiq/core"
)

// Kind 用于标记 Node 类型，方便观测（例如按阶段打点）。
type Kind string

const (
	KindReconcile Kind = "reconcile" // 特征对齐：客户端特征 -> 有序向量
	KindInference Kind = "inference" // 模型推理：向量 -> 违约概率
	KindClassify  Kind = "classify"  // 风险分级：概率 -> 风险等级
)

// Node 是评分 Pipeline 的最小可扩展单元，读写同一个 Assessment。
type Node interface {
	Name() string
	Kind() Kind
	Process(ctx context.Context, a *core.Assessment) error
}
