package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/creditiq/artifact"
	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/decision"
	"github.com/rushteam/creditiq/explain"
	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/risk"
	"github.com/rushteam/creditiq/store"
)

type fakeModel struct {
	p     float64
	calls int
	seen  core.FeatureVector
}

func (m *fakeModel) Name() string     { return "fake" }
func (m *fakeModel) NumFeatures() int { return 3 }
func (m *fakeModel) Predict(_ context.Context, x core.FeatureVector) (float64, error) {
	m.calls++
	m.seen = append(core.FeatureVector(nil), x...)
	return m.p, nil
}

type fakeProvider struct {
	values map[string]float64
	err    error
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Lookup(context.Context, string, []string) (map[string]float64, error) {
	return p.values, p.err
}

type fakeObserver struct {
	levels []string
}

func (o *fakeObserver) ObserveInference(string, time.Duration, error) {}
func (o *fakeObserver) ObserveCache(bool)                             {}
func (o *fakeObserver) ObserveCacheWrite(error)                       {}
func (o *fakeObserver) ObservePrediction(level string)                { o.levels = append(o.levels, level) }

type fakeRecorder struct {
	events []*decision.Event
}

func (r *fakeRecorder) Record(_ context.Context, e *decision.Event) error {
	r.events = append(r.events, e)
	return nil
}
func (r *fakeRecorder) Close() error { return nil }

func testArtifacts(m core.Model) *artifact.Artifacts {
	return &artifact.Artifacts{
		Schema: core.MustFeatureSchema("D_1", "S_1", "P_2"),
		Importance: core.NewImportanceTable([]core.ImportanceEntry{
			{Feature: "P_2", Importance: 0.5},
			{Feature: "D_1", Importance: 0.3},
			{Feature: "S_1", Importance: 0.005},
		}),
		Metrics: core.DefaultModelMetrics(),
		Model:   m,
	}
}

func TestRiskService_Predict(t *testing.T) {
	m := &fakeModel{p: 0.42}
	obs := &fakeObserver{}
	svc := New(artifact.NewLoadedStore(testArtifacts(m)), Options{Observer: obs})

	res, err := svc.Predict(context.Background(), PredictRequest{Features: core.ClientFeatureMap{"D_1": 0.5, "S_1": "2"}})
	require.NoError(t, err)
	assert.Equal(t, 0.42, res.Probability)
	assert.Equal(t, risk.LevelMedium, res.RiskLevel)
	assert.Equal(t, risk.ColorAmber, res.RiskColor)
	assert.Equal(t, 3, res.FeaturesUsed)
	assert.Equal(t, core.FeatureVector{0.5, 2, 0}, m.seen)
	assert.Equal(t, "2/3", res.Trace["vector"])
	assert.Equal(t, []string{risk.LevelMedium}, obs.levels)
}

func TestRiskService_PredictInvalidValue(t *testing.T) {
	m := &fakeModel{p: 0.42}
	svc := New(artifact.NewLoadedStore(testArtifacts(m)), Options{})

	res, err := svc.Predict(context.Background(), PredictRequest{Features: core.ClientFeatureMap{"D_1": "abc"}})
	assert.Nil(t, res)
	assert.True(t, core.IsInvalidFeatureValue(err))
	assert.Equal(t, 0, m.calls)
}

func TestRiskService_Unloaded(t *testing.T) {
	loader := artifact.NewLoader(artifact.NewFileSource(t.TempDir()), artifact.DefaultFiles(), model.Spec{})
	svc := New(artifact.NewStore(loader), Options{})

	_, err := svc.Predict(context.Background(), PredictRequest{})
	assert.True(t, core.IsInference(err))

	_, err = svc.FeatureImportance(context.Background())
	assert.True(t, core.IsArtifactLoad(err))

	_, err = svc.ShapValues(context.Background())
	assert.Error(t, err)

	metrics, err := svc.ModelMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultModelMetrics(), metrics)

	assert.Error(t, svc.Ready(context.Background()))
}

func TestRiskService_Explanations(t *testing.T) {
	svc := New(artifact.NewLoadedStore(testArtifacts(&fakeModel{})), Options{})
	ctx := context.Background()

	report, err := svc.FeatureImportance(ctx)
	require.NoError(t, err)
	assert.Len(t, report.TopFeatures, 3)
	assert.Equal(t, 3, report.TotalFeatures)
	assert.Equal(t, "P_2", report.Categories["Payment"][0].Feature)

	shap, err := svc.ShapValues(ctx)
	require.NoError(t, err)
	require.Len(t, shap, 3)
	assert.Equal(t, explain.ImpactIncrease, shap[0].Impact)
	assert.Equal(t, explain.ImpactDecrease, shap[2].Impact)

	features, err := svc.InputFeatures(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"P_2", "D_1", "S_1"}, features)

	features, err = svc.InputFeatures(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"P_2"}, features)

	assert.NoError(t, svc.Ready(ctx))
}

func TestRiskService_ProviderMerge(t *testing.T) {
	m := &fakeModel{p: 0.1}
	provider := &fakeProvider{values: map[string]float64{"D_1": 9, "P_2": 7}}
	svc := New(artifact.NewLoadedStore(testArtifacts(m)), Options{Provider: provider})

	res, err := svc.Predict(context.Background(), PredictRequest{
		CustomerID: "c-1",
		Features:   core.ClientFeatureMap{"D_1": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, risk.LevelLow, res.RiskLevel)
	assert.Equal(t, core.FeatureVector{1, 0, 7}, m.seen)

	// 查询失败时退回请求特征
	provider.err = errors.New("unavailable")
	_, err = svc.Predict(context.Background(), PredictRequest{CustomerID: "c-1", Features: core.ClientFeatureMap{"S_1": 3}})
	require.NoError(t, err)
	assert.Equal(t, core.FeatureVector{0, 3, 0}, m.seen)
}

func TestRiskService_Cache(t *testing.T) {
	cache := store.NewMemoryStore()
	defer cache.Close()
	m := &fakeModel{p: 0.8}
	svc := New(artifact.NewLoadedStore(testArtifacts(m)), Options{Cache: cache, CacheTTL: time.Minute})

	req := PredictRequest{Features: core.ClientFeatureMap{"D_1": 0.5}}
	first, err := svc.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, m.calls)
	assert.Equal(t, first.Probability, second.Probability)
	assert.Equal(t, first.RiskLevel, second.RiskLevel)
	assert.Equal(t, risk.LevelHigh, second.RiskLevel)
}

func TestRiskService_Decisions(t *testing.T) {
	rec := &fakeRecorder{}
	svc := New(artifact.NewLoadedStore(testArtifacts(&fakeModel{p: 0.1})), Options{Decisions: rec})

	_, err := svc.Predict(context.Background(), PredictRequest{CustomerID: "c-9", Features: core.ClientFeatureMap{"D_1": 1}})
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), PredictRequest{Features: core.ClientFeatureMap{"D_1": "bad"}})
	require.Error(t, err)

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "c-9", ev.CustomerID)
	assert.Equal(t, "fake", ev.Model)
	assert.Equal(t, risk.LevelLow, ev.RiskLevel)
	assert.Equal(t, 3, ev.FeaturesUsed)
	assert.Equal(t, "1/3", ev.Labels["vector"])
}

func TestRiskService_ReadyPingsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	defer cache.Close()
	svc := New(artifact.NewLoadedStore(testArtifacts(&fakeModel{p: 0.1})), Options{Cache: cache})

	require.NoError(t, svc.Ready(context.Background()))

	mr.Close()
	err := svc.Ready(context.Background())
	require.Error(t, err)
	var de *core.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, core.ErrorCodeUnavailable, de.Code)

	// 内存缓存无需探测
	mem := store.NewMemoryStore()
	defer mem.Close()
	assert.NoError(t, New(artifact.NewLoadedStore(testArtifacts(&fakeModel{p: 0.1})), Options{Cache: mem}).Ready(context.Background()))
}
