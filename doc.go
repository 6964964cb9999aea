// Package creditiq 是一个信用违约风险评分服务。
//
// 一次评分请求经过 Pipeline 的三个节点：
//   - reconcile: 把客户端特征按训练 schema 对齐为定长向量，缺失特征按降级策略填充
//   - inference: 调用已加载的模型得到违约概率，可选按向量缓存
//   - classify: 把概率映射为 Low / Medium / High 风险等级，可由 CEL 规则覆盖
//
// 模型与元数据（schema、特征重要性、离线指标）在进程内只加载一次，之后只读共享。
package creditiq

import "github.com/rushteam/creditiq/pipeline"

// 轻量 facade：便于直接 import "creditiq" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindReconcile = pipeline.KindReconcile
	KindInference = pipeline.KindInference
	KindClassify  = pipeline.KindClassify
)
