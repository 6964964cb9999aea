// Package utils 提供评分链路的追踪标签。
package utils

// Label 是评分链路中的可追踪标记：记录向量来源、模型、分级规则等。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // reconcile / inference / classify / cache ...
}

// MergeLabel 合并同名 Label，两边都保留：Value 以 '|' 连接，Source 以 ',' 连接。
// 任一侧为空时取另一侧。
func MergeLabel(existing, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	return Label{
		Value:  join(existing.Value, incoming.Value, "|"),
		Source: join(existing.Source, incoming.Source, ","),
	}
}

func join(a, b, sep string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + sep + b
}

// Flatten 将 labels 转为 key -> value 的扁平 map，便于日志输出
func Flatten(labels map[string]Label) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v.Value
	}
	return out
}
