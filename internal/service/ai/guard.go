package ai

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
)

// GuardedProvider fails fast while the upstream is known to be down. It never
// retries; a tripped breaker only short-circuits new calls.
type GuardedProvider struct {
	inner   Provider
	breaker *util.CircuitBreaker
	logger  *zap.Logger
}

func NewGuardedProvider(inner Provider, breaker *util.CircuitBreaker, logger *zap.Logger) *GuardedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = util.NewCircuitBreaker(
			inner.Name(),
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		)
	}
	return &GuardedProvider{inner: inner, breaker: breaker, logger: logger}
}

func (g *GuardedProvider) Name() string {
	return g.inner.Name()
}

func (g *GuardedProvider) Breaker() *util.CircuitBreaker {
	return g.breaker
}

func (g *GuardedProvider) Analyze(ctx context.Context, req Request) (string, error) {
	if err := g.admit(); err != nil {
		return "", err
	}
	text, err := g.inner.Analyze(ctx, req)
	g.record(ctx, err)
	return text, err
}

func (g *GuardedProvider) Generate(ctx context.Context, req Request) (extract.GenerationMessage, error) {
	if err := g.admit(); err != nil {
		return extract.GenerationMessage{}, err
	}
	msg, err := g.inner.Generate(ctx, req)
	g.record(ctx, err)
	return msg, err
}

func (g *GuardedProvider) admit() error {
	if g.breaker.CanExecute() {
		return nil
	}

	status := g.breaker.GetStatus()
	g.logger.Warn("Collaborator unavailable (Circuit OPEN)",
		zap.String("provider", g.inner.Name()),
		zap.Int("failure_count", status.FailureCount),
	)
	return errors.NewAPIError("AI service temporarily unavailable", g.inner.Name(), http.StatusServiceUnavailable, nil)
}

func (g *GuardedProvider) record(ctx context.Context, err error) {
	if err == nil {
		g.breaker.RecordSuccess()
		return
	}
	// A run aborted by reset says nothing about upstream health.
	if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return
	}

	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		g.breaker.RecordFailure(constants.CircuitBreakerConfig.RateLimitTimeout)
		return
	}
	g.breaker.RecordFailure(0)
}
