package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/internal/narrator"
	"github.com/kapu/ai-hair-salon-go/internal/prompt"
	"github.com/kapu/ai-hair-salon-go/internal/service/ai"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// GenerationFailedMessage is what the user sees when no image could be produced.
const GenerationFailedMessage = "Failed to generate your makeover image."

const (
	callAnalysis   = "analysis"
	callGeneration = "generation"

	outcomeResults   = "results"
	outcomeError     = "error"
	outcomeDiscarded = "discarded"
)

// Outcome is the result of one transform run.
type Outcome struct {
	SessionID string
	Epoch     uint64
	State     session.UIState
	Analysis  domain.AnalysisResult
	Image     domain.GeneratedImage
	Err       error
	// Discarded is set when the session moved on (reset) before the run ended.
	Discarded bool
}

type Options struct {
	// Timeout bounds each collaborator call; zero means unbounded.
	Timeout time.Duration
}

// Orchestrator runs the analysis and generation calls side by side and commits
// the pair to the session. Analysis problems degrade the result; generation
// problems fail the run.
type Orchestrator struct {
	analyzer  ai.Analyzer
	generator ai.Generator
	narrator  *narrator.Narrator
	timeout   time.Duration
	tracer    trace.Tracer
	logger    *zap.Logger
}

func New(analyzer ai.Analyzer, generator ai.Generator, narr *narrator.Narrator, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if narr == nil {
		narr = narrator.New(0, nil, logger)
	}
	return &Orchestrator{
		analyzer:  analyzer,
		generator: generator,
		narrator:  narr,
		timeout:   opts.Timeout,
		tracer:    otel.Tracer("transform-orchestrator"),
		logger:    logger,
	}
}

// Start validates the demographics and moves the session to Loading, then runs
// the transform in the background. The returned channel yields exactly one
// Outcome. A validation or transition error is returned synchronously and the
// session is left as it was.
func (o *Orchestrator) Start(ctx context.Context, s *session.Session, demo domain.Demographics) (<-chan Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	epoch, source, err := s.BeginTransform(demo, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		defer cancel()
		out <- o.run(runCtx, s, epoch, source, demo.Normalize())
	}()
	return out, nil
}

// Transform is the blocking form of Start.
func (o *Orchestrator) Transform(ctx context.Context, s *session.Session, demo domain.Demographics) (Outcome, error) {
	ch, err := o.Start(ctx, s, demo)
	if err != nil {
		return Outcome{}, err
	}
	return <-ch, nil
}

func (o *Orchestrator) run(ctx context.Context, s *session.Session, epoch uint64, source domain.SourceImage, demo domain.Demographics) Outcome {
	ctx, span := o.tracer.Start(ctx, "orchestrator.transform")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int64("session.epoch", int64(epoch)),
	)

	start := time.Now()
	logger := o.logger.With(zap.String("session", s.ID), zap.Uint64("epoch", epoch))
	logger.Info("Transform started",
		zap.Int("age", demo.Age),
		zap.String("gender", string(demo.Gender)),
		zap.Int("image_bytes", source.Size),
	)

	narration := o.narrator.Start(ctx, func(p domain.Progress) {
		s.ReportProgress(epoch, p)
	})
	defer narration.Stop()

	var (
		analysis domain.AnalysisResult
		image    domain.GeneratedImage
		genErr   error
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		analysis = o.runAnalysis(ctx, source, demo, logger)
	})
	wg.Go(func() {
		image, genErr = o.runGeneration(ctx, source, demo, logger)
	})
	wg.Wait()

	narration.Stop()

	outcome := Outcome{SessionID: s.ID, Epoch: epoch}
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "generation failed")
		outcome.State = session.StateError
		outcome.Err = genErr
		outcome.Discarded = !s.Fail(epoch, userMessage(genErr))
	} else {
		outcome.State = session.StateResults
		outcome.Analysis = analysis
		outcome.Image = image
		outcome.Discarded = !s.Complete(epoch, analysis, image)
	}

	label := outcomeResults
	switch {
	case outcome.Discarded:
		label = outcomeDiscarded
	case genErr != nil:
		label = outcomeError
	}
	span.SetAttributes(attribute.String("transform.outcome", label))
	metrics.RecordTransform(label, time.Since(start))

	logger.Info("Transform finished",
		zap.String("outcome", label),
		zap.Bool("analysis_degraded", analysis.Degraded()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(genErr),
	)
	return outcome
}

// runAnalysis never fails: every problem becomes a degraded result.
func (o *Orchestrator) runAnalysis(ctx context.Context, source domain.SourceImage, demo domain.Demographics, logger *zap.Logger) (result domain.AnalysisResult) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.analysis")
	defer span.End()
	start := time.Now()

	var pc panics.Catcher
	pc.Try(func() {
		result = o.analyze(ctx, source, demo, logger)
	})
	if r := pc.Recovered(); r != nil {
		logger.Error("Analysis call panicked", zap.Error(r.AsError()))
		span.RecordError(r.AsError())
		metrics.RecordCollaboratorCall(callAnalysis, "panic", time.Since(start))
		result = domain.FallbackAnalysis("", domain.DegradationCallFailed)
	}

	if result.Degraded() {
		metrics.RecordAnalysisDegraded(string(result.Degradation))
		span.SetAttributes(attribute.String("analysis.degradation", string(result.Degradation)))
	}
	return result
}

func (o *Orchestrator) analyze(ctx context.Context, source domain.SourceImage, demo domain.Demographics, logger *zap.Logger) domain.AnalysisResult {
	instruction, err := prompt.BuildAnalysis(demo)
	if err != nil {
		logger.Error("Failed to build analysis prompt", zap.Error(err))
		return domain.FallbackAnalysis("", domain.DegradationCallFailed)
	}

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	start := time.Now()
	text, err := o.analyzer.Analyze(callCtx, ai.Request{Image: source, Prompt: instruction, Demographics: demo})
	if err != nil {
		metrics.RecordCollaboratorCall(callAnalysis, callResult(err), time.Since(start))
		logger.Warn("Analysis call failed, continuing with placeholder", zap.Error(err))
		return domain.FallbackAnalysis("", domain.DegradationCallFailed)
	}
	metrics.RecordCollaboratorCall(callAnalysis, "ok", time.Since(start))

	result := extract.ParseAnalysis(text)
	if result.Degraded() {
		logger.Warn("Analysis response was not JSON, using raw text",
			zap.String("reason", string(result.Degradation)),
			zap.Int("length", len(text)),
		)
	}
	return result
}

// runGeneration returns a GenerationError for every way of not getting an image.
func (o *Orchestrator) runGeneration(ctx context.Context, source domain.SourceImage, demo domain.Demographics, logger *zap.Logger) (image domain.GeneratedImage, err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.generation")
	defer span.End()
	start := time.Now()

	var pc panics.Catcher
	pc.Try(func() {
		image, err = o.generate(ctx, source, demo, logger)
	})
	if r := pc.Recovered(); r != nil {
		logger.Error("Generation call panicked", zap.Error(r.AsError()))
		metrics.RecordCollaboratorCall(callGeneration, "panic", time.Since(start))
		image, err = domain.GeneratedImage{}, errors.NewGenerationError(GenerationFailedMessage, "call", r.AsError())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return image, err
}

func (o *Orchestrator) generate(ctx context.Context, source domain.SourceImage, demo domain.Demographics, logger *zap.Logger) (domain.GeneratedImage, error) {
	instruction, err := prompt.BuildGeneration(demo)
	if err != nil {
		return domain.GeneratedImage{}, errors.NewGenerationError(GenerationFailedMessage, "prompt", err)
	}

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	start := time.Now()
	msg, err := o.generator.Generate(callCtx, ai.Request{Image: source, Prompt: instruction, Demographics: demo})
	if err != nil {
		metrics.RecordCollaboratorCall(callGeneration, callResult(err), time.Since(start))
		logger.Error("Generation call failed", zap.Error(err))
		return domain.GeneratedImage{}, errors.NewGenerationError(GenerationFailedMessage, "call", err)
	}
	metrics.RecordCollaboratorCall(callGeneration, "ok", time.Since(start))

	image, err := extract.ExtractImage(msg, logger)
	if err != nil {
		logger.Error("No image in generation response",
			zap.Int("images", len(msg.Images)),
			zap.Int("content_length", len(msg.Content)),
		)
		return domain.GeneratedImage{}, errors.NewGenerationError(GenerationFailedMessage, "extract", err)
	}

	metrics.RecordImageSource(image.IsDataURI())
	logger.Debug("Generated image resolved", zap.Int("ref_length", len(image.Ref)))
	return image, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func callResult(err error) string {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func userMessage(err error) string {
	var genErr *errors.GenerationError
	if stderrors.As(err, &genErr) {
		return genErr.Message
	}
	return fmt.Sprintf("Failed to process your request: %v", err)
}
