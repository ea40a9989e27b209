package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/kapu/ai-hair-salon-go/internal/capture"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
	"github.com/kapu/ai-hair-salon-go/internal/narrator"
	"github.com/kapu/ai-hair-salon-go/internal/orchestrator"
	"github.com/kapu/ai-hair-salon-go/internal/service/ai"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const photoDataURI = "data:image/png;base64,iVBORw0KGgoAAAAN"

var uploadPolicy = domain.UploadPolicy{MaxBytes: 5 * 1024 * 1024, AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"}}

type stubAnalyzer struct{ text string }

func (a stubAnalyzer) Analyze(context.Context, ai.Request) (string, error) { return a.text, nil }

type stubGenerator struct {
	msg   extract.GenerationMessage
	block chan struct{}
}

func (g stubGenerator) Generate(ctx context.Context, _ ai.Request) (extract.GenerationMessage, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return extract.GenerationMessage{}, ctx.Err()
		}
	}
	return g.msg, nil
}

type snapshotBody struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	Visible        string `json:"visible"`
	Error          string `json:"error"`
	GeneratedImage *struct {
		Ref string `json:"ref"`
	} `json:"generatedImage"`
	Analysis *struct {
		AestheticScore float64 `json:"aestheticScore"`
	} `json:"analysis"`
}

type wsEvent struct {
	Type     session.EventType `json:"type"`
	Progress *domain.Progress  `json:"progress"`
	State    *snapshotBody     `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

func newTestServer(t *testing.T, gen stubGenerator, camera capture.Device) *Server {
	t.Helper()
	if gen.msg.Content == "" && len(gen.msg.Images) == 0 {
		gen.msg = extract.GenerationMessage{Content: "Here you go: ![after](https://cdn.test/after.png)"}
	}
	analyzer := stubAnalyzer{text: `{"aestheticScore":71,"featureScores":{"Hair":6},"potentialScores":{"Hair":9},"norwoodStage":2}`}
	orch := orchestrator.New(analyzer, gen, narrator.New(time.Millisecond, nil, zap.NewNop()), orchestrator.Options{}, zap.NewNop())

	srv := New(session.NewStore(), orch, Options{GinMode: gin.TestMode, Upload: uploadPolicy, Camera: camera}, zap.NewNop())
	t.Cleanup(srv.cancelRun)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createWithPhoto(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[snapshotBody](t, rec).ID
	require.NotEmpty(t, id)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/photo", map[string]string{"image": photoDataURI})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[snapshotBody](t, rec)
	require.Equal(t, "preview", snap.State)
	require.Equal(t, "previewSection", snap.Visible)
	return id
}

func waitForState(t *testing.T, h http.Handler, id, want string) snapshotBody {
	t.Helper()
	var snap snapshotBody
	require.Eventually(t, func() bool {
		snap = decode[snapshotBody](t, do(t, h, http.MethodGet, "/api/sessions/"+id, nil))
		return snap.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestFullMakeoverFlow(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := createWithPhoto(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 34, "gender": "Female", "profession": "Architect"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	snap := waitForState(t, h, id, "results")
	require.NotNil(t, snap.GeneratedImage)
	assert.Equal(t, "https://cdn.test/after.png", snap.GeneratedImage.Ref)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, 71.0, snap.Analysis.AestheticScore)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="aesthetic-protocol-\d+\.html"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Female's <span>Protocol</span>")

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/image", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.test/after.png", rec.Header().Get("Location"))

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upload", decode[snapshotBody](t, rec).State)
}

func TestResultsViewRendersInline(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := createWithPhoto(t, h)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id+"/view", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EXPORT_PRECONDITION", decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 41, "gender": "Male", "profession": "Pilot"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	waitForState(t, h, id, "results")

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	body := rec.Body.String()
	assert.Contains(t, body, `class="radar-svg"`)
	assert.Contains(t, body, `<div class="loss-stage active" data-stage="2">`)
	assert.Contains(t, body, "https://cdn.test/after.png")
}

func TestImageDownloadDecodesDataURI(t *testing.T) {
	gen := stubGenerator{msg: extract.GenerationMessage{Content: "data:image/webp;base64,YWJj"}}
	h := newTestServer(t, gen, nil).Handler()
	id := createWithPhoto(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 50, "gender": "male", "profession": "Chef"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForState(t, h, id, "results")

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/image", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".webp")
	assert.Equal(t, "abc", rec.Body.String())
}

func TestGenerationFailureThenRetry(t *testing.T) {
	gen := stubGenerator{msg: extract.GenerationMessage{Content: "I cannot edit photos."}}
	h := newTestServer(t, gen, nil).Handler()
	id := createWithPhoto(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 28, "gender": "other", "profession": "Nurse"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := waitForState(t, h, id, "error")
	assert.Equal(t, orchestrator.GenerationFailedMessage, snap.Error)
	assert.Equal(t, "errorSection", snap.Visible)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/report", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EXPORT_PRECONDITION", decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "preview", decode[snapshotBody](t, rec).State)
}

func TestTransformValidation(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := createWithPhoto(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 120, "gender": "female", "profession": "Pilot"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "age", body.Field)
	assert.Equal(t, "Please enter a valid age between 5 and 100", body.Error)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": "old"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, "preview", decode[snapshotBody](t, do(t, h, http.MethodGet, "/api/sessions/"+id, nil)).State)
}

func TestTransformWhileLoadingIsConflict(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := newTestServer(t, stubGenerator{block: block}, nil).Handler()
	id := createWithPhoto(t, h)

	demo := map[string]any{"age": 40, "gender": "male", "profession": "Lawyer"}
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", demo).Code)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/transform", demo)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TRANSITION_ERROR", decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/photo", map[string]string{"image": photoDataURI})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPhotoUploadValidation(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := decode[snapshotBody](t, do(t, h, http.MethodPost, "/api/sessions", nil)).ID

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/photo", map[string]string{"image": "data:image/gif;base64,R0lGODlh"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "mimeType", decode[errorResponse](t, rec).Field)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/photo", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMultipartPhotoUpload(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := decode[snapshotBody](t, do(t, h, http.MethodPost, "/api/sessions", nil)).ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="photo"; filename="me.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "preview", decode[snapshotBody](t, rec).State)
}

func TestCaptureRoute(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()
	id := decode[snapshotBody](t, do(t, h, http.MethodPost, "/api/sessions", nil)).ID

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "CAPTURE_ERROR", decode[errorResponse](t, rec).Code)

	camera := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	}))
	defer camera.Close()

	h = newTestServer(t, stubGenerator{}, capture.NewSnapshotDevice(camera.URL, camera.Client(), uploadPolicy.MaxBytes)).Handler()
	id = decode[snapshotBody](t, do(t, h, http.MethodPost, "/api/sessions", nil)).ID

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "preview", decode[snapshotBody](t, rec).State)
}

func TestUnknownSession(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorResponse](t, rec).Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/sessions/nope", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "salon_api_requests_total")
}

type healthBody struct {
	Status  string `json:"status"`
	Breaker struct {
		State     string `json:"state"`
		Failures  int    `json:"failures"`
		NextRetry string `json:"nextRetry"`
	} `json:"breaker"`
}

func TestHealthReportsOpenBreaker(t *testing.T) {
	srv := newTestServer(t, stubGenerator{}, nil)
	breaker := util.NewCircuitBreaker("stub", 1, time.Minute, zap.NewNop())
	srv.opts.Breaker = breaker

	body := decode[healthBody](t, do(t, srv.Handler(), http.MethodGet, "/health", nil))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "CLOSED", body.Breaker.State)
	assert.Empty(t, body.Breaker.NextRetry)

	breaker.RecordFailure(0)
	rec := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[healthBody](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "OPEN", body.Breaker.State)
	assert.Equal(t, 1, body.Breaker.Failures)
	assert.NotEmpty(t, body.Breaker.NextRetry)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	withOrigin := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws/sessions/x/progress", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	check := originChecker([]string{"https://salon.example/", "http://localhost:3000"})
	assert.True(t, check(withOrigin("https://salon.example")))
	assert.True(t, check(withOrigin("HTTP://LOCALHOST:3000")))
	assert.True(t, check(withOrigin("")))
	assert.False(t, check(withOrigin("https://evil.example")))

	assert.True(t, originChecker([]string{"*"})(withOrigin("https://evil.example")))
}

func TestProgressWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, stubGenerator{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	id := createWithPhoto(t, srv.Handler())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + id + "/progress"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{ts.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestProgressWebSocket(t *testing.T) {
	block := make(chan struct{})
	srv := newTestServer(t, stubGenerator{block: block}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	id := createWithPhoto(t, srv.Handler())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + id + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() wsEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev wsEvent
		require.NoError(t, json.Unmarshal(frame, &ev))
		return ev
	}

	first := readEvent()
	require.Equal(t, session.EventState, first.Type)
	assert.Equal(t, "preview", first.State.State)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions/"+id+"/transform", map[string]any{"age": 30, "gender": "female", "profession": "Designer"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	sawProgress := false
	for {
		ev := readEvent()
		if ev.Type == session.EventProgress {
			require.NotNil(t, ev.Progress)
			sawProgress = true
			if block != nil {
				close(block)
				block = nil
			}
			continue
		}
		require.NotNil(t, ev.State)
		if ev.State.State == "loading" {
			continue
		}
		assert.Equal(t, "results", ev.State.State)
		break
	}
	assert.True(t, sawProgress)
}
