package model

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rushteam/creditiq/core"
)

// Builder 根据 Spec 构建模型
type Builder func(spec Spec) (core.Model, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

func init() {
	Register(KindGBDT, buildGBDT)
	Register(KindLR, buildLR)
	Register(KindRPC, buildRPC)
	Register(KindKServe, buildKServe)
}

// Register 注册一种模型类型的构建逻辑，可覆盖内置类型。
func Register(kind string, builder Builder) {
	if kind == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[kind] = builder
}

// SupportedKinds 返回已注册的模型类型（排序），用于错误提示与配置校验。
func SupportedKinds() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build 按 Spec.Kind 构建模型，并校验模型特征数与 schema 一致。
func Build(spec Spec) (core.Model, error) {
	buildersMu.RLock()
	builder, ok := builders[spec.Kind]
	buildersMu.RUnlock()
	if !ok {
		return nil, loadError(fmt.Sprintf("unsupported model kind %q (supported: %v)", spec.Kind, SupportedKinds()), nil)
	}
	if spec.Name == "" {
		spec.Name = spec.Kind
	}
	m, err := builder(spec)
	if err != nil {
		return nil, err
	}
	if n := m.NumFeatures(); n > 0 && len(spec.FeatureNames) > 0 && n != len(spec.FeatureNames) {
		return nil, loadError(fmt.Sprintf("model expects %d features, schema has %d", n, len(spec.FeatureNames)), nil)
	}
	return m, nil
}

func buildGBDT(spec Spec) (core.Model, error) {
	m, err := LoadGBDTModel(spec.Name, spec.Artifact)
	if err != nil {
		return nil, err
	}
	if names := m.FeatureNames(); len(names) > 0 && len(spec.FeatureNames) > 0 && !slices.Equal(names, spec.FeatureNames) {
		return nil, loadError("model feature_names do not match feature schema order", nil)
	}
	return m, nil
}

func buildLR(spec Spec) (core.Model, error) {
	return LoadLRModel(spec.Name, spec.Artifact, spec.FeatureNames)
}

func buildRPC(spec Spec) (core.Model, error) {
	if spec.Endpoint == "" {
		return nil, loadError("rpc model requires endpoint", nil)
	}
	m := NewRPCModel(spec.Name, spec.Endpoint, len(spec.FeatureNames), spec.Timeout)
	m.Token = spec.Token
	return m, nil
}

func buildKServe(spec Spec) (core.Model, error) {
	if spec.Endpoint == "" || spec.RemoteModel == "" {
		return nil, loadError("kserve model requires endpoint and model name", nil)
	}
	return NewKServeModel(spec.Name, spec.Endpoint, spec.RemoteModel, len(spec.FeatureNames), spec.Timeout,
		WithKServeVersion(spec.Version),
		WithKServeInputName(spec.InputName),
		WithKServeOutputName(spec.OutputName),
		WithKServeToken(spec.Token),
	), nil
}
