package narrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	steps []domain.Progress
}

func (r *recorder) emit(p domain.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, p)
}

func (r *recorder) snapshot() []domain.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Progress(nil), r.steps...)
}

func TestNarratorHoldsAtTerminalStep(t *testing.T) {
	script := []Message{{Status: "One", Detail: "a"}, {Status: "Two", Detail: "b"}}
	n := New(2*time.Millisecond, script, zap.NewNop())
	rec := &recorder{}

	run := n.Start(context.Background(), rec.emit)
	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("narrator did not finish its script")
	}
	run.Stop()

	steps := rec.snapshot()
	require.Len(t, steps, 3)
	assert.Equal(t, domain.Progress{Status: "One", Detail: "a", Percent: 50}, steps[0])
	assert.Equal(t, domain.Progress{Status: "Two", Detail: "b", Percent: 100}, steps[1])
	assert.True(t, steps[2].Terminal)
	assert.Equal(t, 100.0, steps[2].Percent)

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 3)
}

func TestNarratorStopIsIdempotentAndFinal(t *testing.T) {
	n := New(time.Hour, nil, nil)
	rec := &recorder{}

	run := n.Start(context.Background(), rec.emit)
	run.Stop()
	run.Stop()

	select {
	case <-run.Done():
	default:
		t.Fatal("Stop returned before the goroutine exited")
	}
	assert.Empty(t, rec.snapshot())

	var nilRun *Run
	assert.NotPanics(t, nilRun.Stop)
}

func TestNarratorStopsWithContext(t *testing.T) {
	n := New(time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	run := n.Start(ctx, func(domain.Progress) {})
	cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("narrator ignored context cancellation")
	}
}

func TestDefaultScript(t *testing.T) {
	assert.Len(t, DefaultScript, 9)
	assert.Equal(t, "Initializing Analysis", DefaultScript[0].Status)
}
