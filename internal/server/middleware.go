package server

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
)

// requestLogger writes one access log line per request and feeds the API
// request metrics. Routes are labelled by their pattern so session ids don't
// blow up label cardinality.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(c.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}

// recovery turns handler panics into a 500 instead of dropping the connection.
func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Handler panicked",
			zap.Any("panic", recovered),
			zap.String("route", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// respondError maps the error hierarchy onto HTTP. Upstream provider statuses
// below 400 (or missing) surface as 502.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var coded errors.Coded
	if !stderrors.As(err, &coded) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	status := coded.HTTPStatus()
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}

	body := errorBody{Error: coded.UserMessage(), Code: coded.ErrorCode()}
	var vErr *errors.ValidationError
	if stderrors.As(err, &vErr) {
		body.Field = vErr.Field
	}
	c.AbortWithStatusJSON(status, body)
}
