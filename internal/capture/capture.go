package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
)

// Device is a camera that can hand out at most one open Stream at a time.
type Device interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// Stream yields still frames until closed.
type Stream interface {
	// Frame returns the encoded image bytes and their MIME type.
	Frame(ctx context.Context) ([]byte, string, error)
	Close() error
}

// Capture opens the device, grabs a single frame and turns it into a
// SourceImage. The stream is closed on every return path.
func Capture(ctx context.Context, dev Device, policy domain.UploadPolicy, logger *zap.Logger) (img domain.SourceImage, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() { metrics.RecordCapture(err) }()

	stream, err := dev.Open(ctx)
	if err != nil {
		return domain.SourceImage{}, asCaptureError("Unable to access camera. Please check permissions or upload a photo.", dev.Name(), err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn("Failed to release camera stream", zap.String("device", dev.Name()), zap.Error(cerr))
		}
	}()

	data, mimeType, err := stream.Frame(ctx)
	if err != nil {
		return domain.SourceImage{}, asCaptureError("Unable to capture a photo from the camera.", dev.Name(), err)
	}

	img, err = domain.NewSourceImage(data, mimeType, policy)
	if err != nil {
		return domain.SourceImage{}, err
	}

	logger.Info("Camera frame captured",
		zap.String("device", dev.Name()),
		zap.String("mime", img.MIMEType),
		zap.Int("bytes", img.Size),
	)
	return img, nil
}

func asCaptureError(message, device string, err error) error {
	var capErr *errors.CaptureError
	if stderrors.As(err, &capErr) {
		return err
	}
	return errors.NewCaptureError(message, device, err)
}

// SnapshotDevice reads frames from a camera that serves a still image over
// HTTP (most IP cameras expose one).
type SnapshotDevice struct {
	url      string
	client   *http.Client
	maxBytes int64

	mu   sync.Mutex
	open bool
}

func NewSnapshotDevice(url string, client *http.Client, maxBytes int64) *SnapshotDevice {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SnapshotDevice{url: url, client: client, maxBytes: maxBytes}
}

func (d *SnapshotDevice) Name() string {
	return "snapshot:" + d.url
}

func (d *SnapshotDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, errors.NewCaptureError("Camera is already in use.", d.Name(), nil)
	}
	d.open = true
	return &snapshotStream{dev: d}, nil
}

func (d *SnapshotDevice) release() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

// InUse reports whether a stream is currently open.
func (d *SnapshotDevice) InUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type snapshotStream struct {
	dev    *SnapshotDevice
	once   sync.Once
	closed bool
}

func (s *snapshotStream) Frame(ctx context.Context) ([]byte, string, error) {
	if s.closed {
		return nil, "", fmt.Errorf("stream closed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.dev.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := s.dev.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if s.dev.maxBytes > 0 {
		// one extra byte so oversize frames still fail the size check
		body = io.LimitReader(resp.Body, s.dev.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read snapshot: %w", err)
	}

	return data, frameMIMEType(resp.Header.Get("Content-Type"), data), nil
}

func (s *snapshotStream) Close() error {
	s.once.Do(func() {
		s.closed = true
		s.dev.release()
	})
	return nil
}

// frameMIMEType prefers the declared image type and sniffs the bytes otherwise.
func frameMIMEType(header string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return strings.TrimSpace(sniffed)
}
