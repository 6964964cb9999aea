package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/feature"
	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/risk"
	"github.com/rushteam/creditiq/store"
)

type fixedModel struct {
	p     float64
	calls int
	seen  core.FeatureVector
}

func (m *fixedModel) Name() string     { return "fixed" }
func (m *fixedModel) NumFeatures() int { return 2 }
func (m *fixedModel) Predict(_ context.Context, x core.FeatureVector) (float64, error) {
	m.calls++
	m.seen = x
	return m.p, nil
}

type countingObserver struct {
	inferences, hits, misses, writeErrs int
}

func (o *countingObserver) ObserveCacheWrite(err error) {
	if err != nil {
		o.writeErrs++
	}
}

func (o *countingObserver) ObserveInference(string, time.Duration, error) { o.inferences++ }
func (o *countingObserver) ObserveCache(hit bool) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func newAssessment(input core.ClientFeatureMap) *core.Assessment {
	a := core.NewAssessment(input)
	a.Schema = core.MustFeatureSchema("D_1", "S_1")
	return a
}

func TestPipeline_Run(t *testing.T) {
	m := &fixedModel{p: 0.42}
	p := New(
		&ReconcileNode{Reconciler: feature.NewReconciler()},
		&InferenceNode{Engine: model.NewEngine(m, time.Second)},
		&ClassifyNode{Classifier: risk.ThresholdClassifier{}},
	)

	var visited []Kind
	p.WithHook(func(_ context.Context, n Node, _ time.Duration, _ error) {
		visited = append(visited, n.Kind())
	})

	a := newAssessment(core.ClientFeatureMap{"D_1": 0.5, "unknown": 1})
	require.NoError(t, p.Run(context.Background(), a))

	assert.Equal(t, core.FeatureVector{0.5, 0}, m.seen)
	assert.Equal(t, 0.42, a.Probability)
	assert.Equal(t, core.RiskBand{Level: "Medium Risk", Color: "#f59e0b"}, a.Band)
	assert.Equal(t, []Kind{KindReconcile, KindInference, KindClassify}, visited)
	assert.Equal(t, "1/2", a.Labels["vector"].Value)
	assert.Equal(t, "fixed", a.Labels["model"].Value)
	assert.Equal(t, "Medium Risk", a.Labels["risk_level"].Value)
}

func TestPipeline_StopsOnError(t *testing.T) {
	m := &fixedModel{p: 0.42}
	p := New(
		&ReconcileNode{},
		&InferenceNode{Engine: model.NewEngine(m, time.Second)},
		&ClassifyNode{},
	)

	a := newAssessment(core.ClientFeatureMap{"D_1": "abc"})
	err := p.Run(context.Background(), a)
	assert.True(t, core.IsInvalidFeatureValue(err))
	assert.Equal(t, 0, m.calls)
}

func TestPipeline_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	p := New(
		&ReconcileNode{},
		&InferenceNode{Engine: model.NewEngine(&fixedModel{p: 0.1}, time.Second)},
	)
	p.Tracer = tp.Tracer("test")

	require.NoError(t, p.Run(context.Background(), newAssessment(core.ClientFeatureMap{"D_1": 1})))
	require.Error(t, p.Run(context.Background(), newAssessment(core.ClientFeatureMap{"D_1": "x"})))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "reconcile.schema", spans[0].Name())
	assert.Equal(t, "inference.model", spans[1].Name())
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestPipeline_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(&ReconcileNode{}).Run(ctx, newAssessment(nil))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInferenceNode_NoModel(t *testing.T) {
	err := (&InferenceNode{}).Process(context.Background(), newAssessment(nil))
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
}

func TestInferenceNode_Cache(t *testing.T) {
	cache := store.NewMemoryStore()
	defer cache.Close()
	m := &fixedModel{p: 0.73}
	obs := &countingObserver{}
	node := &InferenceNode{Engine: model.NewEngine(m, time.Second), Cache: cache, CacheTTL: time.Minute, Observer: obs}

	for i := 0; i < 3; i++ {
		a := newAssessment(nil)
		a.Vector = core.FeatureVector{1, 2}
		require.NoError(t, node.Process(context.Background(), a))
		assert.Equal(t, 0.73, a.Probability)
	}
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 1, obs.inferences)
	assert.Equal(t, 2, obs.hits)
	assert.Equal(t, 1, obs.misses)

	a := newAssessment(nil)
	a.Vector = core.FeatureVector{1, 3}
	require.NoError(t, node.Process(context.Background(), a))
	assert.Equal(t, 2, m.calls)
}

// failingCache 读取走内存，写入总是失败
type failingCache struct {
	*store.MemoryStore
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache unavailable")
}

func TestInferenceNode_CacheWriteError(t *testing.T) {
	cache := failingCache{store.NewMemoryStore()}
	defer cache.Close()
	zcore, logs := observer.New(zapcore.DebugLevel)
	obs := &countingObserver{}
	node := &InferenceNode{
		Engine:   model.NewEngine(&fixedModel{p: 0.31}, time.Second),
		Cache:    cache,
		CacheTTL: time.Minute,
		Observer: obs,
		Logger:   zap.New(zcore),
	}

	a := newAssessment(nil)
	a.Vector = core.FeatureVector{1, 2}
	require.NoError(t, node.Process(context.Background(), a))
	assert.Equal(t, 0.31, a.Probability)
	assert.Equal(t, 1, obs.writeErrs)

	entries := logs.FilterMessage("prediction cache write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "cache unavailable", entries[0].ContextMap()["error"])
}

func TestVectorKey(t *testing.T) {
	k1 := VectorKey("gbdt", core.FeatureVector{0.5, 0})
	assert.Equal(t, k1, VectorKey("gbdt", core.FeatureVector{0.5, 0}))
	assert.NotEqual(t, k1, VectorKey("gbdt", core.FeatureVector{0, 0.5}))
	assert.NotEqual(t, k1, VectorKey("lr", core.FeatureVector{0.5, 0}))
	assert.NotEqual(t, VectorKey("gbdt", core.FeatureVector{math.NaN()}), VectorKey("gbdt", core.FeatureVector{0}))
}
