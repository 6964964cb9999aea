// Package conv 提供类型转换工具，用于把 JSON 解码后的动态值统一为 float64。
package conv

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、各类整数、json.Number、数值字符串；bool 视为 1.0/0.0。
// nil、切片、map 等返回 (0, false)。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	case string:
		return ParseFloat(val)
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ParseFloat 解析数值字符串，允许首尾空白，接受 "NaN"、"Inf" 等 strconv 认可的写法。
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
