package server

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kapu/ai-hair-salon-go/internal/capture"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/export"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
)

// base64 inflates by 4/3; the rest is JSON framing.
const jsonBodyOverhead = 64 * 1024

type photoRequest struct {
	Image string `json:"image"`
}

// handleHealth stays 200 while the provider breaker is open; transforms fail
// fast in that window but sessions and exports keep working.
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":   "healthy",
		"sessions": s.store.Len(),
	}
	if s.opts.Breaker != nil {
		status := s.opts.Breaker.GetStatus()
		if status.State == util.CircuitStateOpen {
			body["status"] = "degraded"
		}
		breaker := gin.H{
			"state":    status.State.String(),
			"failures": status.FailureCount,
		}
		if status.NextRetryTime != nil {
			breaker["nextRetry"] = status.NextRetryTime.UTC().Format(time.RFC3339)
		}
		body["breaker"] = breaker
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	sess := s.store.Create()
	metrics.SetActiveSessions(s.store.Len())
	s.logger.Info("Session created", zap.String("session", sess.ID))
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.store.Delete(c.Param("id")) {
		respondError(c, errors.NewNotFoundError("session", c.Param("id")))
		return
	}
	metrics.SetActiveSessions(s.store.Len())
	c.Status(http.StatusNoContent)
}

// handlePhoto accepts either a multipart "photo" file or a JSON data URI.
func (s *Server) handlePhoto(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	limit := s.opts.Upload.MaxBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit*4/3+jsonBodyOverhead)
	}

	var (
		img domain.SourceImage
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		img, err = s.readMultipartPhoto(c)
	} else {
		var req photoRequest
		bindErr := c.ShouldBindJSON(&req)
		var tooLarge *http.MaxBytesError
		if stderrors.As(bindErr, &tooLarge) {
			respondError(c, errors.NewValidationError(
				fmt.Sprintf("File size must be less than %dMB", limit/(1024*1024)), "size", tooLarge.Limit))
			return
		}
		if bindErr != nil || req.Image == "" {
			respondError(c, errors.NewValidationError("Please upload an image", "image", nil))
			return
		}
		img, err = domain.ParseSourceImage(req.Image, s.opts.Upload)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if err := sess.SetPhoto(img); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) readMultipartPhoto(c *gin.Context) (domain.SourceImage, error) {
	fh, err := c.FormFile("photo")
	if err != nil {
		return domain.SourceImage{}, errors.NewValidationError("Please upload an image", "photo", nil)
	}
	if s.opts.Upload.MaxBytes > 0 && fh.Size > s.opts.Upload.MaxBytes {
		return domain.SourceImage{}, errors.NewValidationError(
			fmt.Sprintf("File size must be less than %dMB", s.opts.Upload.MaxBytes/(1024*1024)),
			"size", fh.Size,
		)
	}

	f, err := fh.Open()
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("open uploaded photo: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("read uploaded photo: %w", err)
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	return domain.NewSourceImage(data, mimeType, s.opts.Upload)
}

func (s *Server) handleCapture(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if s.opts.Camera == nil {
		respondError(c, errors.NewCaptureError("No camera is configured. Please upload a photo.", "none", nil))
		return
	}

	img, err := capture.Capture(c.Request.Context(), s.opts.Camera, s.opts.Upload, s.logger)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := sess.SetPhoto(img); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// handleTransform validates and starts the run, then answers 202 right away.
// Progress and the final state arrive over the WebSocket or by polling.
func (s *Server) handleTransform(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var demo domain.Demographics
	if err := c.ShouldBindJSON(&demo); err != nil {
		respondError(c, errors.NewValidationError("Please fill in all fields: Age, Gender, and Profession", "body", nil))
		return
	}

	if _, err := s.transformer.Start(s.runCtx, sess, demo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess.Snapshot())
}

func (s *Server) handleRetry(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Retry(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, sess.Snapshot())
}

// handleView serves the rendered results page inline.
func (s *Server) handleView(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	body, err := export.View(sess.Snapshot(), s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, export.HTMLContentType, body)
}

func (s *Server) handleReport(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	art, err := export.Report(sess.Snapshot(), s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.RecordExport("report")
	attachment(c, art.Filename)
	c.Data(http.StatusOK, art.ContentType, art.Body)
}

func (s *Server) handleImage(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	art, err := export.Image(sess.Snapshot(), s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.RecordExport("image")
	if art.RedirectURL != "" {
		c.Redirect(http.StatusFound, art.RedirectURL)
		return
	}
	attachment(c, art.Filename)
	c.Data(http.StatusOK, art.ContentType, art.Body)
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
