package feature

// DefaultValue 是缺失特征的默认填充值。
// 训练数据未做缺失值插补，这里保持与原始服务一致：缺失即 0.0。
const DefaultValue = 0.0

// FallbackStrategy 是缺失特征的降级策略：调用方未提供某个特征时，用什么值补位。
type FallbackStrategy interface {
	// DefaultFor 返回特征 name 的默认值
	DefaultFor(name string) float64
}

// ConstantFallback 对所有缺失特征使用同一个默认值
type ConstantFallback float64

// DefaultFor 实现 FallbackStrategy
func (c ConstantFallback) DefaultFor(string) float64 { return float64(c) }

// MapFallback 按特征名覆盖默认值，未覆盖的特征使用 Default。
type MapFallback struct {
	Default   float64
	Overrides map[string]float64
}

// NewMapFallback 创建按特征覆盖的降级策略
func NewMapFallback(defaultValue float64, overrides map[string]float64) *MapFallback {
	return &MapFallback{Default: defaultValue, Overrides: overrides}
}

// DefaultFor 实现 FallbackStrategy
func (m *MapFallback) DefaultFor(name string) float64 {
	if v, ok := m.Overrides[name]; ok {
		return v
	}
	return m.Default
}
