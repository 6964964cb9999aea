package core

import "context"

// Model 是推理引擎的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由 model 包实现
//   - 输入为已对齐的 FeatureVector，输出为 [0,1] 概率
//   - 相同向量与相同模型状态必须得到相同结果（推理阶段无随机性）
//
// 实现：
//   - model.GBDTModel：本地 XGBoost JSON 模型
//   - model.LRModel：本地逻辑回归
//   - model.RPCModel / model.KServeModel：远程模型服务
type Model interface {
	// Name 返回模型名称（用于日志/监控）
	Name() string

	// NumFeatures 返回模型声明的输入维度，0 表示未知
	NumFeatures() int

	// Predict 对单行向量推理，返回概率
	Predict(ctx context.Context, vector FeatureVector) (float64, error)
}
