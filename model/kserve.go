package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/creditiq/core"
)

// KServeModel 通过 KServe V2（Open Inference Protocol）调用远程模型。
//
//   - Infer: POST /v2/models/{model_name}[/versions/{version}]/infer
//   - 请求：{"inputs": [{"name": "input0", "shape": [1, dim], "datatype": "FP64", "data": [...]}]}
//   - 响应：{"outputs": [{"name": "...", "data": [...]}]}
//   - Model Ready: GET /v2/models/{model_name}/ready
//
// 输出张量取 OutputName 匹配项，未指定时取第一个；多列输出（如 [p0, p1]）取最后一列作为正类概率。
type KServeModel struct {
	name        string
	numFeatures int
	Endpoint    string
	ModelName   string
	Version     string
	InputName   string
	OutputName  string
	Token       string
	httpClient  *http.Client
}

// KServeOption 配置 KServeModel
type KServeOption func(*KServeModel)

func WithKServeVersion(version string) KServeOption {
	return func(m *KServeModel) { m.Version = version }
}

func WithKServeInputName(name string) KServeOption {
	return func(m *KServeModel) {
		if name != "" {
			m.InputName = name
		}
	}
}

func WithKServeOutputName(name string) KServeOption {
	return func(m *KServeModel) { m.OutputName = name }
}

func WithKServeToken(token string) KServeOption {
	return func(m *KServeModel) { m.Token = token }
}

func WithKServeHTTPClient(client *http.Client) KServeOption {
	return func(m *KServeModel) { m.httpClient = client }
}

// NewKServeModel 创建 KServe V2 模型。endpoint 为根地址（如 http://localhost:8000）。
func NewKServeModel(name, endpoint, modelName string, numFeatures int, timeout time.Duration, opts ...KServeOption) *KServeModel {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	m := &KServeModel{
		name:        name,
		numFeatures: numFeatures,
		Endpoint:    endpoint,
		ModelName:   modelName,
		InputName:   "input0",
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: timeout}
	}
	return m
}

func (m *KServeModel) Name() string { return m.name }

func (m *KServeModel) NumFeatures() int { return m.numFeatures }

func (m *KServeModel) modelPath() string {
	path := fmt.Sprintf("%s/v2/models/%s", m.Endpoint, m.ModelName)
	if m.Version != "" {
		path = fmt.Sprintf("%s/versions/%s", path, m.Version)
	}
	return path
}

// v2InferResponse 对应 V2 推理响应
type v2InferResponse struct {
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version"`
	Outputs      []v2OutputTensor `json:"outputs"`
}

type v2OutputTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

func (m *KServeModel) Predict(ctx context.Context, x core.FeatureVector) (float64, error) {
	body, err := json.Marshal(map[string]any{
		"inputs": []map[string]any{{
			"name":     m.InputName,
			"shape":    []int{1, len(x)},
			"datatype": "FP64",
			"data":     nullable(x),
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("kserve v2 marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.modelPath()+"/infer", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("kserve v2 create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.addAuth(req)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("kserve v2 request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("kserve v2 error: status=%d, body=%s", resp.StatusCode, string(b))
	}

	var out v2InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("kserve v2 parse response: %w", err)
	}
	return m.pickScore(out)
}

func (m *KServeModel) pickScore(out v2InferResponse) (float64, error) {
	if len(out.Outputs) == 0 {
		return 0, fmt.Errorf("kserve v2 empty outputs")
	}
	tensor := &out.Outputs[0]
	if m.OutputName != "" {
		for i := range out.Outputs {
			if out.Outputs[i].Name == m.OutputName {
				tensor = &out.Outputs[i]
				break
			}
		}
	}
	if len(tensor.Data) == 0 {
		return 0, fmt.Errorf("kserve v2 output %q has no data", tensor.Name)
	}
	return tensor.Data[len(tensor.Data)-1], nil
}

// Ready 检查远程模型是否就绪
func (m *KServeModel) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.modelPath()+"/ready", nil)
	if err != nil {
		return err
	}
	m.addAuth(req)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kserve ready check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kserve model %s not ready: status=%d", m.ModelName, resp.StatusCode)
	}
	return nil
}

func (m *KServeModel) addAuth(req *http.Request) {
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}
}
