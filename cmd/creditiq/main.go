// Command creditiq 启动信用风险评分 HTTP 服务。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rushteam/creditiq/api"
	"github.com/rushteam/creditiq/artifact"
	"github.com/rushteam/creditiq/config"
	"github.com/rushteam/creditiq/decision"
	"github.com/rushteam/creditiq/feature"
	"github.com/rushteam/creditiq/metrics"
	"github.com/rushteam/creditiq/model"
	"github.com/rushteam/creditiq/pkg/logging"
	"github.com/rushteam/creditiq/pkg/tracing"
	"github.com/rushteam/creditiq/risk"
	"github.com/rushteam/creditiq/service"
	"github.com/rushteam/creditiq/store"
)

// version 由构建时 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认 "+config.DefaultPath)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("creditiq exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "creditiq",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	collector := metrics.New(nil)

	artifacts := artifact.NewStore(
		artifact.NewLoader(artifactSource(cfg.Artifacts), artifact.Files{
			Model:      cfg.Artifacts.ModelFile,
			Importance: cfg.Artifacts.ImportanceFile,
			Schema:     cfg.Artifacts.SchemaFile,
			Metrics:    cfg.Artifacts.MetricsFile,
		}, modelSpec(cfg.Model)),
		artifact.WithLogger(logger),
		artifact.WithObserver(collector),
		artifact.WithLoadTimeout(cfg.Artifacts.LoadTimeout),
	)

	// 启动时预加载；失败不退出，保持 Unloaded，首个请求会重试。
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Artifacts.LoadTimeout)
	if _, err := artifacts.Load(loadCtx); err != nil {
		logger.Warn("artifacts not loaded at startup", zap.Error(err))
	}
	cancel()

	classifier, err := buildClassifier(cfg.Risk)
	if err != nil {
		return err
	}

	cache, err := store.New(store.Config{
		Backend:   cfg.Cache.Backend,
		Addr:      cfg.Cache.Addr,
		Password:  cfg.Cache.Password,
		DB:        cfg.Cache.DB,
		KeyPrefix: cfg.Cache.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if cache != nil {
		defer cache.Close()
		logger.Info("prediction cache enabled", zap.String("backend", cache.Name()), zap.Duration("ttl", cfg.Cache.TTL))
	}

	var provider feature.Provider
	if cfg.Feast.Enabled {
		fp, err := feature.NewFeastProvider(feature.FeastConfig{
			Host:         cfg.Feast.Host,
			Port:         cfg.Feast.Port,
			Project:      cfg.Feast.Project,
			FeatureTable: cfg.Feast.FeatureTable,
			EntityKey:    cfg.Feast.EntityKey,
		})
		if err != nil {
			return fmt.Errorf("feast: %w", err)
		}
		provider = fp
		logger.Info("feast provider enabled", zap.String("host", cfg.Feast.Host), zap.Int("port", cfg.Feast.Port))
	}

	var decisions decision.Recorder = decision.NopRecorder{}
	if cfg.Decisions.Enabled {
		kr, err := decision.NewKafkaRecorder(decision.KafkaConfig{
			Brokers:       cfg.Decisions.Brokers,
			Topic:         cfg.Decisions.Topic,
			ClientID:      cfg.Decisions.ClientID,
			BatchSize:     cfg.Decisions.BatchSize,
			FlushInterval: cfg.Decisions.FlushInterval,
			RequiredAcks:  cfg.Decisions.RequiredAcks,
			Compression:   cfg.Decisions.Compression,
			MaxPending:    cfg.Decisions.MaxPending,
			CloseTimeout:  cfg.Decisions.CloseTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("decisions: %w", err)
		}
		decisions = kr
		logger.Info("decision events enabled", zap.Strings("brokers", cfg.Decisions.Brokers), zap.String("topic", cfg.Decisions.Topic))
	}
	defer decisions.Close()

	svc := service.New(artifacts, service.Options{
		Reconciler: feature.NewReconciler(
			feature.WithFallback(feature.NewMapFallback(cfg.Features.DefaultValue, cfg.Features.Overrides)),
			feature.WithMonitor(collector),
		),
		Classifier:       classifier,
		Provider:         provider,
		ProviderTimeout:  cfg.Feast.Timeout,
		Cache:            cache,
		CacheTTL:         cfg.Cache.TTL,
		InferenceTimeout: cfg.Model.Timeout,
		Observer:         collector,
		Decisions:        decisions,
		Logger:           logger,
	})

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Options{
			Scorer:       svc,
			Logger:       logger,
			Metrics:      collector,
			CORSOrigins:  cfg.Server.CORSOrigins,
			RateLimit:    cfg.Server.RateLimit,
			RateBurst:    cfg.Server.RateBurst,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,

			TrustedProxies: cfg.Server.TrustedProxies,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("creditiq listening",
			zap.String("addr", server.Addr),
			zap.String("model_kind", cfg.Model.Kind),
			zap.String("artifacts", artifacts.State().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("creditiq stopped")
	return nil
}

func artifactSource(cfg config.ArtifactsConfig) artifact.Source {
	if cfg.BaseURL != "" {
		return artifact.NewHTTPSource(cfg.BaseURL, cfg.LoadTimeout)
	}
	return artifact.NewFileSource(cfg.Dir)
}

func modelSpec(cfg config.ModelConfig) model.Spec {
	return model.Spec{
		Kind:        cfg.Kind,
		Name:        cfg.Name,
		Endpoint:    cfg.Endpoint,
		RemoteModel: cfg.RemoteModel,
		Version:     cfg.Version,
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
		Token:       cfg.Token,
		Timeout:     cfg.Timeout,
	}
}

func buildClassifier(cfg config.RiskConfig) (risk.Classifier, error) {
	if len(cfg.Rules) == 0 {
		return risk.ThresholdClassifier{}, nil
	}
	rc, err := risk.NewRuleClassifier(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("risk rules: %w", err)
	}
	return rc, nil
}
