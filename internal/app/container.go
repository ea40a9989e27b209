package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/capture"
	"github.com/kapu/ai-hair-salon-go/internal/config"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/internal/narrator"
	"github.com/kapu/ai-hair-salon-go/internal/orchestrator"
	"github.com/kapu/ai-hair-salon-go/internal/server"
	"github.com/kapu/ai-hair-salon-go/internal/service/ai"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Container bundles the assembled services for the HTTP runtime.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        *session.Store
	Provider     *ai.GuardedProvider
	Orchestrator *orchestrator.Orchestrator
	Server       *server.Server

	closers []func(context.Context)
}

// Build assembles all services. Provider clients are created here so the
// server itself only deals with sessions and routing.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func(context.Context)
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i](context.Background())
			}
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, traceErr := initTracer()
		if traceErr != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", traceErr)
		}
		closers = append(closers, func(ctx context.Context) {
			if err := shutdown(ctx); err != nil {
				logger.Warn("Tracer shutdown failed", zap.Error(err))
			}
		})
		logger.Info("Tracing enabled", zap.String("exporter", "stdout"))
	}

	inner, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	breaker := util.NewCircuitBreaker(
		inner.Name(),
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		logger,
	)
	provider := ai.NewGuardedProvider(inner, breaker, logger)

	narr := narrator.New(cfg.Narrator.Interval, narrator.DefaultScript, logger)
	orch := orchestrator.New(provider, provider, narr, orchestrator.Options{Timeout: cfg.AI.Timeout}, logger)

	var camera capture.Device
	if cfg.Camera.SnapshotURL != "" {
		camera = capture.NewSnapshotDevice(cfg.Camera.SnapshotURL, nil, cfg.Upload.MaxBytes)
		logger.Info("Camera capture enabled", zap.String("device", camera.Name()))
	}

	store := session.NewStore()
	srv := server.New(store, orch, server.Options{
		Addr:    ":" + cfg.Server.Port,
		GinMode: cfg.Server.GinMode,
		Upload: domain.UploadPolicy{
			MaxBytes:     cfg.Upload.MaxBytes,
			AllowedTypes: cfg.Upload.AllowedTypes,
		},
		Camera:         camera,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Breaker:        provider.Breaker(),
	}, logger)

	logger.Info("Services assembled",
		zap.String("provider", provider.Name()),
		zap.String("analysis_model", cfg.AI.AnalysisModel),
		zap.String("image_model", cfg.AI.ImageModel),
		zap.Duration("collaborator_timeout", cfg.AI.Timeout),
	)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Provider:     provider,
		Orchestrator: orch,
		Server:       srv,
		closers:      closers,
	}, nil
}

func newProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ai.Provider, error) {
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		p, err := ai.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.AI.AnalysisModel, cfg.AI.ImageModel, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		return p, nil
	default:
		p, err := ai.NewOpenRouterProvider(ai.OpenRouterConfig{
			APIKey:        cfg.OpenRouter.APIKey,
			BaseURL:       cfg.OpenRouter.BaseURL,
			Referer:       cfg.OpenRouter.Referer,
			Title:         cfg.OpenRouter.Title,
			AnalysisModel: cfg.AI.AnalysisModel,
			ImageModel:    cfg.AI.ImageModel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openrouter provider: %w", err)
		}
		return p, nil
	}
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// RunPruner drops idle sessions until ctx is done.
func (c *Container) RunPruner(ctx context.Context) {
	ticker := time.NewTicker(constants.ServerConfig.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Store.Prune(constants.ServerConfig.SessionIdleTTL); n > 0 {
				c.Logger.Info("Pruned idle sessions", zap.Int("count", n), zap.Int("remaining", c.Store.Len()))
			}
			metrics.SetActiveSessions(c.Store.Len())
		}
	}
}

// Shutdown stops the HTTP server and flushes the tracer.
func (c *Container) Shutdown(ctx context.Context) error {
	err := c.Server.Shutdown(ctx)
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
	return err
}
