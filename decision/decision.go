// Package decision 把每次评分结果作为决策事件异步投递到下游（审计、贷后分析）。
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event 一次评分决策。只记录结果与追踪标签，不包含原始特征值。
type Event struct {
	ID           string            `json:"id"`
	CustomerID   string            `json:"customer_id,omitempty"`
	Model        string            `json:"model"`
	Probability  float64           `json:"probability"`
	RiskLevel    string            `json:"risk_level"`
	FeaturesUsed int               `json:"features_used"`
	Labels       map[string]string `json:"labels,omitempty"`
	Timestamp    int64             `json:"timestamp"` // Unix 毫秒
}

// NewEvent 创建带唯一 ID 和当前时间戳的事件
func NewEvent(customerID, model string, probability float64, riskLevel string, featuresUsed int) *Event {
	return &Event{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		Model:        model,
		Probability:  probability,
		RiskLevel:    riskLevel,
		FeaturesUsed: featuresUsed,
		Timestamp:    time.Now().UnixMilli(),
	}
}

// Recorder 决策事件记录器（异步非阻塞）
type Recorder interface {
	// Record 记录事件，不等待下游确认
	Record(ctx context.Context, e *Event) error

	// Close 发送缓冲中的事件并释放资源
	Close() error
}

// NopRecorder 丢弃所有事件
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Event) error { return nil }
func (NopRecorder) Close() error                          { return nil }
