package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rushteam/creditiq/core"
)

// RPCModel 是通过 HTTP 调用外部模型服务的 core.Model 实现，
// 适用于把 XGBoost/LightGBM 部署在独立推理服务中的场景。
type RPCModel struct {
	name        string
	numFeatures int
	Endpoint    string // 例如 "http://localhost:8080/predict"
	Token       string
	Client      *http.Client
}

func NewRPCModel(name, endpoint string, numFeatures int, timeout time.Duration) *RPCModel {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &RPCModel{
		name:        name,
		numFeatures: numFeatures,
		Endpoint:    endpoint,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (m *RPCModel) Name() string { return m.name }

func (m *RPCModel) NumFeatures() int { return m.numFeatures }

// Predict 调用远程模型服务。
// 请求格式（JSON，缺失值为 null）：
//
//	{"instances": [[0.5, 0.0, null, ...]]}
//
// 响应格式（JSON）：
//
//	{"scores": [0.42]}
func (m *RPCModel) Predict(ctx context.Context, x core.FeatureVector) (float64, error) {
	jsonData, err := json.Marshal(map[string]any{
		"instances": [][]*float64{nullable(x)},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Scores) != 1 {
		return 0, fmt.Errorf("response scores count mismatch: expected 1, got %d", len(result.Scores))
	}
	return result.Scores[0], nil
}

// nullable 把非有限值编码为 null，JSON 不支持 NaN/Inf
func nullable(x core.FeatureVector) []*float64 {
	out := make([]*float64, len(x))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
			continue
		}
		v := x[i]
		out[i] = &v
	}
	return out
}
