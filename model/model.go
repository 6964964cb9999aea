// Package model 提供违约概率模型：本地 XGBoost/LR 推理与远程 RPC/KServe 推理。
//
// 所有模型实现 core.Model，由 Engine 统一做输入校验、超时控制与输出检查。
package model

import (
	"math"
	"time"
)

// 模型类型
const (
	KindGBDT   = "gbdt"
	KindLR     = "lr"
	KindRPC    = "rpc"
	KindKServe = "kserve"
)

// DefaultTimeout 单次推理默认超时
const DefaultTimeout = 5 * time.Second

// Spec 描述如何构建一个模型，本地模型使用 Artifact，远程模型使用 Endpoint。
type Spec struct {
	Kind         string
	Name         string
	Artifact     []byte   // 本地模型文件内容
	FeatureNames []string // 特征 schema，按列顺序
	Endpoint     string
	RemoteModel  string // KServe 模型名
	Version      string
	InputName    string
	OutputName   string
	Token        string // Bearer token，可选
	Timeout      time.Duration
}

// Sigmoid 把 margin 转为概率
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
