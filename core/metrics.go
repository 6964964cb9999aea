package core

// ModelMetric 单个模型的离线评估指标
type ModelMetric struct {
	AUCScore         float64 `json:"auc_score" yaml:"auc_score"`
	Algorithm        string  `json:"algorithm" yaml:"algorithm"`
	Features         int     `json:"features" yaml:"features"`
	TrainingApproach string  `json:"training_approach" yaml:"training_approach"`
}

// ModelMetrics 模型名 -> 指标，进程生命周期内不变。
type ModelMetrics map[string]ModelMetric

// DefaultModelMetrics 返回离线训练报告中的默认指标。
// 制品目录中存在 model_metrics.yaml 时以文件为准。
func DefaultModelMetrics() ModelMetrics {
	return ModelMetrics{
		"xgboost": {
			AUCScore:         0.945,
			Algorithm:        "XGBoost",
			Features:         700,
			TrainingApproach: "12-month temporal aggregation",
		},
		"neural_network": {
			AUCScore:         0.892,
			Algorithm:        "Neural Network",
			Features:         700,
			TrainingApproach: "Deep learning with dropout",
		},
	}
}

// Clone 返回副本，避免调用方修改共享表
func (m ModelMetrics) Clone() ModelMetrics {
	out := make(ModelMetrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
