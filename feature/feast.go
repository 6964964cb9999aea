package feature

import (
	"context"
	"fmt"
	"math"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/creditiq/core"
)

// Provider 按客户 ID 获取已存储的特征值，用于补齐请求中未提供的特征。
type Provider interface {
	Name() string
	Lookup(ctx context.Context, customerID string, features []string) (map[string]float64, error)
}

// FeastConfig Feast 在线特征服务配置
type FeastConfig struct {
	Host         string
	Port         int
	Project      string
	FeatureTable string // 特征引用前缀，引用格式为 "<FeatureTable>:<feature>"
	EntityKey    string // 实体列名，例如 customer_id
}

// FeastProvider 基于官方 Feast Go SDK 的 gRPC 在线特征查询。
//
// 只读取 float/double 类型的特征；Feast 中不存在的值不会出现在结果里，
// 由 Reconciler 的降级策略补位。
type FeastProvider struct {
	client  *feastsdk.GrpcClient
	project string
	table   string
	entity  string
}

// NewFeastProvider 创建 Feast 特征查询
func NewFeastProvider(cfg FeastConfig) (*FeastProvider, error) {
	if cfg.Port == 0 {
		cfg.Port = 6565
	}
	if cfg.EntityKey == "" {
		cfg.EntityKey = "customer_id"
	}
	client, err := feastsdk.NewGrpcClient(cfg.Host, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("创建 Feast gRPC 客户端失败: %w", err)
	}
	return &FeastProvider{
		client:  client,
		project: cfg.Project,
		table:   cfg.FeatureTable,
		entity:  cfg.EntityKey,
	}, nil
}

func (p *FeastProvider) Name() string { return "feast" }

// Lookup 查询单个客户的在线特征
func (p *FeastProvider) Lookup(ctx context.Context, customerID string, features []string) (map[string]float64, error) {
	if customerID == "" || len(features) == 0 {
		return map[string]float64{}, nil
	}

	refs := make([]string, len(features))
	fillNa := make([]float64, len(features))
	for i, f := range features {
		refs[i] = p.ref(f)
		fillNa[i] = math.NaN()
	}

	resp, err := p.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: refs,
		Entities: []feastsdk.Row{{p.entity: feastsdk.StrVal(customerID)}},
		Project:  p.project,
	})
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeUnavailable, "feast get online features failed", err)
	}

	arrays, err := resp.Float64Arrays(refs, fillNa)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeUnavailable, "feast response decode failed", err)
	}
	if len(arrays) != 1 {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeUnavailable,
			fmt.Sprintf("response row count mismatch: expected 1, got %d", len(arrays)))
	}
	return collect(features, arrays[0]), nil
}

func (p *FeastProvider) ref(feature string) string {
	if p.table == "" {
		return feature
	}
	return p.table + ":" + feature
}

// collect 丢弃 NaN（即 Feast 中缺失的值）
func collect(features []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(features))
	for i, f := range features {
		if i >= len(values) || math.IsNaN(values[i]) {
			continue
		}
		out[f] = values[i]
	}
	return out
}

// Merge 把存储的特征合并到请求特征中，请求中已有的 key 优先。
// 不修改 input，返回新的 map。
func Merge(stored map[string]float64, input core.ClientFeatureMap) core.ClientFeatureMap {
	out := make(core.ClientFeatureMap, len(input)+len(stored))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range input {
		out[k] = v
	}
	return out
}

var _ Provider = (*FeastProvider)(nil)
