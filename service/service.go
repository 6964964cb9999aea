// Package service 编排制品、评分 Pipeline 与解释摘要，对外提供评分服务的全部操作。
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/creditiq/artifact"
	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/decision"
	"github.com/rushteam/creditiq/explain"
	"github.com/rushteam/creditiq/feature"
	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/pipeline"
	"github.com/rushteam/creditiq/pkg/utils"
	"github.com/rushteam/creditiq/risk"
)

// Observer 接收评分链路打点，由 metrics.Collector 实现
type Observer interface {
	pipeline.InferenceObserver
	ObservePrediction(riskLevel string)
}

// Options RiskService 配置
type Options struct {
	Reconciler       *feature.Reconciler
	Classifier       risk.Classifier
	Provider         feature.Provider // 可选：按 customer_id 补齐特征
	ProviderTimeout  time.Duration
	Cache            core.Store // 可选：预测结果缓存
	CacheTTL         time.Duration
	InferenceTimeout time.Duration
	Observer         Observer
	Decisions        decision.Recorder // 可选：决策事件投递
	Logger           *zap.Logger
}

// PredictRequest 单次预测请求
type PredictRequest struct {
	Features   core.ClientFeatureMap
	CustomerID string
}

// PredictionResult 单次预测结果
type PredictionResult struct {
	Probability  float64           `json:"probability"`
	RiskLevel    string            `json:"risk_level"`
	RiskColor    string            `json:"risk_color"`
	FeaturesUsed int               `json:"features_used"`
	Trace        map[string]string `json:"-"`
}

// RiskService 是评分服务的应用层。
// 除制品加载状态外无共享可变状态，可被任意多个请求并发调用。
type RiskService struct {
	artifacts *artifact.Store
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	scoredBy *artifact.Artifacts
	pipe     *pipeline.Pipeline
	engine   *model.Engine
}

// New 创建 RiskService
func New(artifacts *artifact.Store, opts Options) *RiskService {
	if opts.Reconciler == nil {
		opts.Reconciler = feature.NewReconciler()
	}
	if opts.Classifier == nil {
		opts.Classifier = risk.ThresholdClassifier{}
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskService{artifacts: artifacts, opts: opts, logger: logger}
}

// Predict 对齐特征、推理并分级。
// 制品未加载时先尝试加载，仍失败则返回 INFERENCE_ERROR。
func (s *RiskService) Predict(ctx context.Context, req PredictRequest) (*PredictionResult, error) {
	a, err := s.artifacts.Get(ctx)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeInference, "model not loaded", err)
	}
	pipe, _ := s.scoring(a)

	input := req.Features
	if req.CustomerID != "" && s.opts.Provider != nil {
		input = s.enrich(ctx, req.CustomerID, a.Schema, input)
	}

	assessment := core.NewAssessment(input)
	assessment.CustomerID = req.CustomerID
	assessment.Schema = a.Schema
	if err := pipe.Run(ctx, assessment); err != nil {
		return nil, err
	}

	if s.opts.Observer != nil {
		s.opts.Observer.ObservePrediction(assessment.Band.Level)
	}
	res := &PredictionResult{
		Probability:  assessment.Probability,
		RiskLevel:    assessment.Band.Level,
		RiskColor:    assessment.Band.Color,
		FeaturesUsed: len(assessment.Vector),
		Trace:        utils.Flatten(assessment.Labels),
	}
	s.recordDecision(ctx, a.Model.Name(), req.CustomerID, res)
	return res, nil
}

func (s *RiskService) recordDecision(ctx context.Context, modelName, customerID string, res *PredictionResult) {
	if s.opts.Decisions == nil {
		return
	}
	ev := decision.NewEvent(customerID, modelName, res.Probability, res.RiskLevel, res.FeaturesUsed)
	ev.Labels = res.Trace
	if err := s.opts.Decisions.Record(ctx, ev); err != nil {
		s.logger.Warn("record decision", zap.String("id", ev.ID), zap.Error(err))
	}
}

// enrich 用在线特征补齐请求，查询失败时只记录日志，继续使用请求特征。
func (s *RiskService) enrich(ctx context.Context, customerID string, schema core.FeatureSchema, input core.ClientFeatureMap) core.ClientFeatureMap {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	stored, err := s.opts.Provider.Lookup(ctx, customerID, schema.Names())
	if err != nil {
		s.logger.Warn("feature lookup failed",
			zap.String("provider", s.opts.Provider.Name()),
			zap.String("customer_id", customerID),
			zap.Error(err))
		return input
	}
	return feature.Merge(stored, input)
}

// scoring 返回与快照绑定的 Pipeline；快照只会加载一次，这里按需构建一次。
func (s *RiskService) scoring(a *artifact.Artifacts) (*pipeline.Pipeline, *model.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scoredBy == a && s.pipe != nil {
		return s.pipe, s.engine
	}

	engine := model.NewEngine(a.Model, s.opts.InferenceTimeout)
	inference := &pipeline.InferenceNode{Engine: engine, Cache: s.opts.Cache, CacheTTL: s.opts.CacheTTL, Logger: s.logger}
	if s.opts.Observer != nil {
		inference.Observer = s.opts.Observer
	}
	pipe := pipeline.New(
		&pipeline.ReconcileNode{Reconciler: s.opts.Reconciler},
		inference,
		&pipeline.ClassifyNode{Classifier: s.opts.Classifier},
	).WithHook(func(ctx context.Context, n pipeline.Node, elapsed time.Duration, err error) {
		if err != nil {
			s.logger.Debug("pipeline node failed",
				zap.String("node", n.Name()),
				zap.String("kind", string(n.Kind())),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
	})

	s.scoredBy, s.pipe, s.engine = a, pipe, engine
	return pipe, engine
}

// FeatureImportance 返回前 15 个重要特征及其类别划分
func (s *RiskService) FeatureImportance(ctx context.Context) (*explain.ImportanceReport, error) {
	a, err := s.artifacts.Get(ctx)
	if err != nil {
		return nil, err
	}
	r := explain.Report(a.Importance, explain.TopImportance)
	return &r, nil
}

// ModelMetrics 返回离线评估指标。制品未加载时返回默认指标。
func (s *RiskService) ModelMetrics(_ context.Context) (core.ModelMetrics, error) {
	if a := s.artifacts.Snapshot(); a != nil && a.Metrics != nil {
		return a.Metrics.Clone(), nil
	}
	return core.DefaultModelMetrics(), nil
}

// ShapValues 返回前 10 个特征的近似贡献
func (s *RiskService) ShapValues(ctx context.Context) ([]explain.Contribution, error) {
	a, err := s.artifacts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return explain.Summarize(a.Importance, explain.TopShap), nil
}

// InputFeatures 返回前 n 个重要特征名，供前端生成简化输入表单。n <= 0 时使用默认 20。
func (s *RiskService) InputFeatures(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = explain.TopInput
	}
	a, err := s.artifacts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return a.Importance.Features(n), nil
}

// pinger 由可探测连通性的缓存后端实现（如 RedisStore）
type pinger interface {
	Ping(ctx context.Context) error
}

// Ready 制品已加载、远程模型（如有）可用且缓存可连通时返回 nil
func (s *RiskService) Ready(ctx context.Context) error {
	a := s.artifacts.Snapshot()
	if a == nil {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable, "artifacts not loaded")
	}
	_, engine := s.scoring(a)
	if err := engine.Ready(ctx); err != nil {
		return err
	}
	if p, ok := s.opts.Cache.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "cache unreachable", err)
		}
	}
	return nil
}
