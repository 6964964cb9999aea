package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/feature"
	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/pkg/utils"
	"github.com/rushteam/creditiq/risk"
)

// ReconcileNode 按 Assessment.Schema 对齐客户端特征
type ReconcileNode struct {
	Reconciler *feature.Reconciler
}

func (n *ReconcileNode) Name() string { return "reconcile.schema" }
func (n *ReconcileNode) Kind() Kind   { return KindReconcile }

func (n *ReconcileNode) Process(ctx context.Context, a *core.Assessment) error {
	r := n.Reconciler
	if r == nil {
		r = feature.NewReconciler()
	}
	vector, err := r.Reconcile(ctx, a.Schema, a.Input)
	if err != nil {
		return err
	}
	a.Vector = vector

	used := 0
	for k := range a.Input {
		if a.Schema.Contains(k) {
			used++
		}
	}
	a.PutLabel("vector", utils.Label{Value: fmt.Sprintf("%d/%d", used, a.Schema.Len()), Source: string(KindReconcile)})
	return nil
}

// InferenceObserver 接收推理与缓存打点
type InferenceObserver interface {
	ObserveInference(model string, d time.Duration, err error)
	ObserveCache(hit bool)
	ObserveCacheWrite(err error)
}

// InferenceNode 调用模型推理。
// 配置 Cache 时按向量哈希缓存概率：推理是确定性的，相同向量的结果可以复用。
type InferenceNode struct {
	Engine   *model.Engine
	Cache    core.Store
	CacheTTL time.Duration
	Observer InferenceObserver
	Logger   *zap.Logger
}

func (n *InferenceNode) Name() string { return "inference.model" }
func (n *InferenceNode) Kind() Kind   { return KindInference }

func (n *InferenceNode) Process(ctx context.Context, a *core.Assessment) error {
	if n.Engine == nil || n.Engine.Model() == nil {
		return core.ErrModelUnavailable
	}
	modelName := n.Engine.Model().Name()

	var key string
	if n.Cache != nil {
		key = VectorKey(modelName, a.Vector)
		if p, ok := n.lookup(ctx, key); ok {
			a.Probability = p
			a.PutLabel("model", utils.Label{Value: modelName, Source: "cache"})
			return nil
		}
	}

	start := time.Now()
	p, err := n.Engine.Infer(ctx, a.Vector)
	if n.Observer != nil {
		n.Observer.ObserveInference(modelName, time.Since(start), err)
	}
	if err != nil {
		return err
	}
	a.Probability = p
	a.PutLabel("model", utils.Label{Value: modelName, Source: string(KindInference)})

	if n.Cache != nil {
		n.store(ctx, key, p)
	}
	return nil
}

// store 写入缓存；失败只记录，不影响结果
func (n *InferenceNode) store(ctx context.Context, key string, p float64) {
	err := n.Cache.Set(ctx, key, []byte(strconv.FormatFloat(p, 'g', -1, 64)), n.CacheTTL)
	if n.Observer != nil {
		n.Observer.ObserveCacheWrite(err)
	}
	if err != nil && n.Logger != nil {
		n.Logger.Debug("prediction cache write failed",
			zap.String("cache", n.Cache.Name()),
			zap.String("key", key),
			zap.Error(err))
	}
}

func (n *InferenceNode) lookup(ctx context.Context, key string) (float64, bool) {
	raw, err := n.Cache.Get(ctx, key)
	hit := err == nil
	var p float64
	if hit {
		p, err = strconv.ParseFloat(string(raw), 64)
		hit = err == nil && !math.IsNaN(p) && p >= 0 && p <= 1
	}
	if n.Observer != nil {
		n.Observer.ObserveCache(hit)
	}
	return p, hit
}

// VectorKey 返回缓存 key：模型名 + 向量的 FNV-64a 哈希
func VectorKey(modelName string, v core.FeatureVector) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, x := range v {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		_, _ = h.Write(buf[:])
	}
	return "pred:" + modelName + ":" + hex.EncodeToString(h.Sum(nil))
}

// ClassifyNode 把概率映射为风险等级
type ClassifyNode struct {
	Classifier risk.Classifier
}

func (n *ClassifyNode) Name() string { return "classify.risk" }
func (n *ClassifyNode) Kind() Kind   { return KindClassify }

func (n *ClassifyNode) Process(_ context.Context, a *core.Assessment) error {
	c := n.Classifier
	if c == nil {
		c = risk.ThresholdClassifier{}
	}
	band, err := c.Classify(a)
	if err != nil {
		return err
	}
	a.Band = band
	a.PutLabel("risk_level", utils.Label{Value: band.Level, Source: string(KindClassify)})
	return nil
}

var (
	_ Node = (*ReconcileNode)(nil)
	_ Node = (*InferenceNode)(nil)
	_ Node = (*ClassifyNode)(nil)
)
