// Package api 是评分服务的 HTTP JSON 接口。
package api

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/explain"
	"github.com/rushteam/creditiq/service"
)

// Scorer 是 Handler 依赖的应用服务，由 service.RiskService 实现
type Scorer interface {
	Predict(ctx context.Context, req service.PredictRequest) (*service.PredictionResult, error)
	FeatureImportance(ctx context.Context) (*explain.ImportanceReport, error)
	ModelMetrics(ctx context.Context) (core.ModelMetrics, error)
	ShapValues(ctx context.Context) ([]explain.Contribution, error)
	InputFeatures(ctx context.Context, n int) ([]string, error)
	Ready(ctx context.Context) error
}

// Handler 处理 /api/* 请求
type Handler struct {
	scorer       Scorer
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewHandler 创建 Handler
func NewHandler(scorer Scorer, logger *zap.Logger, maxBodyBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{scorer: scorer, logger: logger, maxBodyBytes: maxBodyBytes}
}

type predictResponse struct {
	Success bool `json:"success"`
	*service.PredictionResult
}

type importanceResponse struct {
	Success bool `json:"success"`
	*explain.ImportanceReport
}

type metricsResponse struct {
	Success bool              `json:"success"`
	Metrics core.ModelMetrics `json:"metrics"`
}

type shapResponse struct {
	Success    bool                   `json:"success"`
	ShapValues []explain.Contribution `json:"shap_values"`
}

type featuresResponse struct {
	Success  bool     `json:"success"`
	Features []string `json:"features"`
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	req, err := decodePredictRequest(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.scorer.Predict(r.Context(), service.PredictRequest{
		Features:   req.Features,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Debug("prediction",
		zap.String("request_id", RequestID(r.Context())),
		zap.Float64("probability", res.Probability),
		zap.String("risk_level", res.RiskLevel),
		zap.Any("trace", res.Trace))
	writeJSON(w, http.StatusOK, predictResponse{Success: true, PredictionResult: res})
}

func (h *Handler) featureImportance(w http.ResponseWriter, r *http.Request) {
	report, err := h.scorer.FeatureImportance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importanceResponse{Success: true, ImportanceReport: report})
}

func (h *Handler) modelMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.scorer.ModelMetrics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{Success: true, Metrics: metrics})
}

func (h *Handler) shapValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.scorer.ShapValues(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shapResponse{Success: true, ShapValues: values})
}

func (h *Handler) features(w http.ResponseWriter, r *http.Request) {
	n := explain.TopInput
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.fail(w, r, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "n must be a positive integer"))
			return
		}
		n = v
	}
	names, err := h.scorer.InputFeatures(r.Context(), n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, featuresResponse{Success: true, Features: names})
}

// fail 把错误转换为 {"success": false, "error": msg}，统一返回 400。
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := "UNKNOWN"
	if de := core.GetDomainError(err); de != nil {
		code = de.Code
	}
	h.logger.Info("request failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.Error(err))
	writeError(w, http.StatusBadRequest, err.Error())
}
