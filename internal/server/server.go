package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kapu/ai-hair-salon-go/internal/capture"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/orchestrator"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Transformer starts a makeover run for a session.
type Transformer interface {
	Start(ctx context.Context, s *session.Session, demo domain.Demographics) (<-chan orchestrator.Outcome, error)
}

type Options struct {
	Addr    string
	GinMode string
	Upload  domain.UploadPolicy
	// Camera is optional; without it the capture route answers with a CaptureError.
	Camera capture.Device
	// AllowedOrigins may open the progress WebSocket. Empty keeps the
	// same-origin check; "*" allows any origin.
	AllowedOrigins []string
	// Breaker, when set, is reported by /health.
	Breaker *util.CircuitBreaker
}

// Server exposes sessions over HTTP and streams progress over WebSocket.
// Transform runs are bound to the server's lifetime, not to the request that
// started them.
type Server struct {
	store       *session.Store
	transformer Transformer
	opts        Options
	logger      *zap.Logger

	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	runCtx    context.Context
	cancelRun context.CancelFunc
	now       func() time.Time
}

func New(store *session.Store, transformer Transformer, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:       store,
		transformer: transformer,
		opts:        opts,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		runCtx:    runCtx,
		cancelRun: cancel,
		now:       time.Now,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  constants.ServerConfig.ReadTimeout,
		WriteTimeout: constants.ServerConfig.WriteTimeout,
		IdleTimeout:  constants.ServerConfig.IdleTimeout,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger), requestLogger(s.logger))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/sessions")
	api.POST("", s.handleCreateSession)
	api.GET("/:id", s.handleGetSession)
	api.DELETE("/:id", s.handleDeleteSession)
	api.POST("/:id/photo", s.handlePhoto)
	api.POST("/:id/capture", s.handleCapture)
	api.POST("/:id/transform", s.handleTransform)
	api.POST("/:id/retry", s.handleRetry)
	api.POST("/:id/reset", s.handleReset)
	api.GET("/:id/view", s.handleView)
	api.GET("/:id/report", s.handleReport)
	api.GET("/:id/image", s.handleImage)

	r.GET("/ws/sessions/:id/progress", s.handleProgress)
	return r
}

// originChecker returns nil for an empty list, which makes the upgrader
// require Origin to match Host.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.opts.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, aborts running transforms and waits for
// in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRun()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
