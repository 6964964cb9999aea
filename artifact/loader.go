package artifact

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/creditiq/core"
	"github.com/rushteam/creditiq/feature"
	"github.com/rushteam/creditiq/model"
)

// 默认制品文件名
const (
	DefaultModelFile      = "final_xgb_model.json"
	DefaultImportanceFile = "feature_importance_model1.csv"
	DefaultSchemaFile     = "selected_features.csv"
	DefaultMetricsFile    = "model_metrics.yaml"
)

// Files 制品文件名
type Files struct {
	Model      string
	Importance string
	Schema     string
	Metrics    string // 可选，不存在时使用 core.DefaultModelMetrics
}

// DefaultFiles 返回默认文件名
func DefaultFiles() Files {
	return Files{
		Model:      DefaultModelFile,
		Importance: DefaultImportanceFile,
		Schema:     DefaultSchemaFile,
		Metrics:    DefaultMetricsFile,
	}
}

// Artifacts 是一次成功加载的制品快照，加载后只读。
type Artifacts struct {
	Schema     core.FeatureSchema
	Importance core.ImportanceTable
	Metrics    core.ModelMetrics
	Model      core.Model
	Source     string
	LoadedAt   time.Time
}

// Loader 从 Source 读取并解析全部制品。
type Loader struct {
	Source Source
	Files  Files
	// ModelSpec 是模型构建模板，Artifact 与 FeatureNames 由 Loader 填充
	ModelSpec model.Spec
}

// NewLoader 创建 Loader，默认构建本地 gbdt 模型
func NewLoader(src Source, files Files, spec model.Spec) *Loader {
	if spec.Kind == "" {
		spec.Kind = model.KindGBDT
	}
	return &Loader{Source: src, Files: files, ModelSpec: spec}
}

// localModel 判断模型是否需要读取本地模型文件
func (l *Loader) localModel() bool {
	return l.ModelSpec.Kind == model.KindGBDT || l.ModelSpec.Kind == model.KindLR
}

// Load 并发读取必需制品，任一失败返回 ARTIFACT_LOAD_ERROR。
func (l *Loader) Load(ctx context.Context) (*Artifacts, error) {
	var (
		schemaRaw, importanceRaw, modelRaw, metricsRaw []byte
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		schemaRaw, err = l.read(gctx, l.Files.Schema)
		return err
	})
	g.Go(func() (err error) {
		importanceRaw, err = l.read(gctx, l.Files.Importance)
		return err
	})
	if l.localModel() {
		g.Go(func() (err error) {
			modelRaw, err = l.read(gctx, l.Files.Model)
			return err
		})
	}
	if l.Files.Metrics != "" {
		g.Go(func() error {
			data, err := l.Source.Read(gctx, l.Files.Metrics)
			if IsNotExist(err) {
				return nil
			}
			if err != nil {
				return loadErr(fmt.Sprintf("read %s", l.Files.Metrics), err)
			}
			metricsRaw = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	schema, err := feature.ReadSchemaCSV(bytes.NewReader(schemaRaw))
	if err != nil {
		return nil, loadErr(l.Files.Schema, err)
	}
	if schema.Len() == 0 {
		return nil, loadErr(fmt.Sprintf("%s contains no features", l.Files.Schema), nil)
	}
	importance, err := feature.ReadImportanceCSV(bytes.NewReader(importanceRaw))
	if err != nil {
		return nil, loadErr(l.Files.Importance, err)
	}
	metrics, err := parseMetrics(metricsRaw)
	if err != nil {
		return nil, loadErr(l.Files.Metrics, err)
	}

	spec := l.ModelSpec
	spec.Artifact = modelRaw
	spec.FeatureNames = schema.Names()
	m, err := model.Build(spec)
	if err != nil {
		return nil, loadErr(fmt.Sprintf("build %s model", spec.Kind), err)
	}

	return &Artifacts{
		Schema:     schema,
		Importance: importance,
		Metrics:    metrics,
		Model:      m,
		Source:     l.Source.Name(),
		LoadedAt:   time.Now(),
	}, nil
}

func (l *Loader) read(ctx context.Context, name string) ([]byte, error) {
	data, err := l.Source.Read(ctx, name)
	if err != nil {
		return nil, loadErr(fmt.Sprintf("read %s", name), err)
	}
	return data, nil
}

// parseMetrics 解析 model_metrics.yaml；为空时返回默认指标。
//
//	xgboost:
//	  auc_score: 0.945
//	  algorithm: XGBoost
//	  features: 700
//	  training_approach: 12-month temporal aggregation
func parseMetrics(data []byte) (core.ModelMetrics, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.DefaultModelMetrics(), nil
	}
	var metrics core.ModelMetrics
	if err := yaml.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("解析模型指标失败: %w", err)
	}
	if len(metrics) == 0 {
		return core.DefaultModelMetrics(), nil
	}
	return metrics, nil
}

func loadErr(msg string, err error) error {
	if err == nil {
		return core.NewDomainError(core.ModuleArtifact, core.ErrorCodeArtifactLoad, msg)
	}
	return core.WrapDomainError(core.ModuleArtifact, core.ErrorCodeArtifactLoad, msg, err)
}
