package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/pkg/tracing"
)

// Hook 在每个 Node 执行后调用，用于日志与打点
type Hook func(ctx context.Context, node Node, elapsed time.Duration, err error)

// Pipeline 把一次评分拆成可组合的 Node 链：reconcile -> inference -> classify。
// 任一 Node 失败即中止，Assessment 中已写入的字段不应被调用方使用。
type Pipeline struct {
	Nodes []Node
	Hooks []Hook

	// Tracer 为空时使用全局 TracerProvider
	Tracer trace.Tracer
}

// New 创建 Pipeline
func New(nodes ...Node) *Pipeline {
	return &Pipeline{Nodes: nodes}
}

// WithHook 追加 Hook 并返回自身
func (p *Pipeline) WithHook(h Hook) *Pipeline {
	p.Hooks = append(p.Hooks, h)
	return p
}

// Run 依次执行全部 Node，每个 Node 一个 span
func (p *Pipeline) Run(ctx context.Context, a *core.Assessment) error {
	tracer := p.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		nctx, span := tracer.Start(ctx, node.Name(), trace.WithAttributes(
			attribute.String("creditiq.node.kind", string(node.Kind())),
		))
		start := time.Now()
		err := node.Process(nctx, a)
		tracing.RecordError(span, err)
		span.End()
		for _, h := range p.Hooks {
			h(ctx, node, time.Since(start), err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
