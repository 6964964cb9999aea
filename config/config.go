// Package config 加载服务配置：结构体默认值 -> YAML 文件 -> CREDITIQ_ 环境变量，后者覆盖前者。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/risk"
)

// EnvPrefix 环境变量前缀，例如 CREDITIQ_SERVER_PORT=9000
const EnvPrefix = "CREDITIQ_"

// DefaultPath 未指定配置文件时尝试读取的路径
const DefaultPath = "configs/creditiq.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	Model     ModelConfig     `koanf:"model"`
	Features  FeaturesConfig  `koanf:"features"`
	Risk      RiskConfig      `koanf:"risk"`
	Cache     CacheConfig     `koanf:"cache"`
	Feast     FeastConfig     `koanf:"feast"`
	Decisions DecisionsConfig `koanf:"decisions"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       float64       `koanf:"rate_limit" validate:"gte=0"` // 每个客户端 IP 每秒请求数，0 表示不限流
	RateBurst       int           `koanf:"rate_burst" validate:"gte=0"`
	TrustedProxies  []string      `koanf:"trusted_proxies" validate:"dive,cidr|ip"` // 受信反向代理，仅对其采纳 X-Forwarded-For
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type ArtifactsConfig struct {
	Dir            string        `koanf:"dir"`
	BaseURL        string        `koanf:"base_url" validate:"omitempty,url"` // 非空时从 HTTP 加载，忽略 Dir
	ModelFile      string        `koanf:"model_file" validate:"required"`
	ImportanceFile string        `koanf:"importance_file" validate:"required"`
	SchemaFile     string        `koanf:"schema_file" validate:"required"`
	MetricsFile    string        `koanf:"metrics_file"`
	LoadTimeout    time.Duration `koanf:"load_timeout" validate:"gt=0"`
}

type ModelConfig struct {
	Kind        string        `koanf:"kind" validate:"required"`
	Name        string        `koanf:"name"`
	Endpoint    string        `koanf:"endpoint" validate:"omitempty,url"`
	RemoteModel string        `koanf:"remote_model"`
	Version     string        `koanf:"version"`
	InputName   string        `koanf:"input_name"`
	OutputName  string        `koanf:"output_name"`
	Token       string        `koanf:"token"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

type FeaturesConfig struct {
	DefaultValue float64            `koanf:"default_value"`
	Overrides    map[string]float64 `koanf:"overrides"`
}

type RiskConfig struct {
	Rules []risk.Rule `koanf:"rules" validate:"dive"`
}

type CacheConfig struct {
	Backend   string        `koanf:"backend" validate:"oneof=none memory redis"`
	TTL       time.Duration `koanf:"ttl" validate:"gte=0"`
	Addr      string        `koanf:"addr" validate:"required_if=Backend redis"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db" validate:"gte=0"`
	KeyPrefix string        `koanf:"key_prefix"`
}

type FeastConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Host         string        `koanf:"host" validate:"required_if=Enabled true"`
	Port         int           `koanf:"port" validate:"gte=0,lte=65535"`
	Project      string        `koanf:"project"`
	FeatureTable string        `koanf:"feature_table"`
	EntityKey    string        `koanf:"entity_key"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DecisionsConfig 决策事件投递（Kafka）
type DecisionsConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Brokers       []string      `koanf:"brokers" validate:"required_if=Enabled true"`
	Topic         string        `koanf:"topic" validate:"required_if=Enabled true"`
	ClientID      string        `koanf:"client_id"`
	BatchSize     int           `koanf:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gte=0"`
	RequiredAcks  int16         `koanf:"required_acks" validate:"oneof=-1 0 1"`
	Compression   string        `koanf:"compression" validate:"omitempty,oneof=gzip snappy lz4 zstd"`
	MaxPending    int           `koanf:"max_pending" validate:"gte=0"`
	CloseTimeout  time.Duration `koanf:"close_timeout" validate:"gte=0"`
}

// TracingConfig OpenTelemetry 链路追踪
type TracingConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint" validate:"required_if=Enabled true"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"gte=0,lte=1"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
			RateLimit:       50,
			RateBurst:       100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Artifacts: ArtifactsConfig{
			Dir:            ".",
			ModelFile:      "final_xgb_model.json",
			ImportanceFile: "feature_importance_model1.csv",
			SchemaFile:     "selected_features.csv",
			MetricsFile:    "model_metrics.yaml",
			LoadTimeout:    30 * time.Second,
		},
		Model: ModelConfig{
			Kind:    model.KindGBDT,
			Name:    "xgboost",
			Timeout: model.DefaultTimeout,
		},
		Cache: CacheConfig{
			Backend:   "none",
			TTL:       10 * time.Minute,
			KeyPrefix: "creditiq:",
		},
		Feast: FeastConfig{
			Port:      6565,
			EntityKey: "customer_id",
			Timeout:   time.Second,
		},
		Decisions: DecisionsConfig{
			Topic:         "creditiq.decisions",
			ClientID:      "creditiq-decisions",
			BatchSize:     100,
			FlushInterval: time.Second,
			RequiredAcks:  1,
			CloseTimeout:  5 * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint:     "localhost:4317",
			Insecure:     true,
			SamplingRate: 1,
		},
	}
}

// Load 加载配置。path 为空时尝试 DefaultPath，文件不存在则只使用默认值与环境变量；
// 显式指定的 path 必须存在。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey 把 CREDITIQ_SERVER_READ_TIMEOUT 映射为 server.read_timeout：
// 第一个下划线分隔配置段，其余下划线保留在字段名中。
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

var validate = validator.New()

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !slices.Contains(model.SupportedKinds(), c.Model.Kind) {
		return fmt.Errorf("invalid config: model.kind %q (supported: %v)", c.Model.Kind, model.SupportedKinds())
	}
	switch c.Model.Kind {
	case model.KindRPC, model.KindKServe:
		if c.Model.Endpoint == "" {
			return fmt.Errorf("invalid config: model.endpoint is required for kind %q", c.Model.Kind)
		}
	}
	if c.Model.Kind == model.KindKServe && c.Model.RemoteModel == "" {
		return errors.New("invalid config: model.remote_model is required for kind \"kserve\"")
	}
	if c.Artifacts.BaseURL == "" {
		if st, err := os.Stat(c.Artifacts.Dir); err != nil || !st.IsDir() {
			return fmt.Errorf("invalid config: artifacts.dir %q is not a directory", c.Artifacts.Dir)
		}
	}
	return nil
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
