package core

import (
	"fmt"
	"strings"
)

// FeatureSchema 是模型训练时的有序特征列表，决定特征向量的列顺序。
// 加载后不可变：内部切片不对外暴露，Names 返回副本。
type FeatureSchema struct {
	names []string
	index map[string]int
}

// NewFeatureSchema 根据有序特征名创建 schema。
// 空名称或重复名称会返回 ARTIFACT_LOAD_ERROR。
func NewFeatureSchema(names []string) (FeatureSchema, error) {
	s := FeatureSchema{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return FeatureSchema{}, NewDomainError(ModuleArtifact, ErrorCodeArtifactLoad,
				fmt.Sprintf("feature schema: empty feature name at position %d", i))
		}
		if _, dup := s.index[n]; dup {
			return FeatureSchema{}, NewDomainError(ModuleArtifact, ErrorCodeArtifactLoad,
				fmt.Sprintf("feature schema: duplicate feature %q", n))
		}
		s.index[n] = len(s.names)
		s.names = append(s.names, n)
	}
	return s, nil
}

// MustFeatureSchema 同 NewFeatureSchema，出错时 panic，仅用于测试和静态定义。
func MustFeatureSchema(names ...string) FeatureSchema {
	s, err := NewFeatureSchema(names)
	if err != nil {
		panic(err)
	}
	return s
}

// Len 返回特征数量
func (s FeatureSchema) Len() int { return len(s.names) }

// At 返回第 i 个特征名
func (s FeatureSchema) At(i int) string { return s.names[i] }

// Names 返回特征名副本
func (s FeatureSchema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// IndexOf 返回特征在 schema 中的位置
func (s FeatureSchema) IndexOf(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Contains 判断特征是否属于 schema
func (s FeatureSchema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// FeatureVector 与 FeatureSchema 一一对齐的数值向量，每个请求构造一次。
type FeatureVector []float64

// ClientFeatureMap 是调用方提交的部分特征，值可以是数值、数值字符串或布尔。
type ClientFeatureMap map[string]any
