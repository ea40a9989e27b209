package narrator

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"go.uber.org/zap"
)

// Message is one scripted (status, detail) pair.
type Message struct {
	Status string
	Detail string
}

// DefaultScript is shown while a transform is running.
var DefaultScript = []Message{
	{Status: "Initializing Analysis", Detail: "Establishing secure neural link..."},
	{Status: "Data Ingestion", Detail: "Scanning facial geometry..."},
	{Status: "Anthropometric Mapping", Detail: "Analyzing bone structure and ratios..."},
	{Status: "Feature Assessment", Detail: "Measuring facial symmetry and proportions..."},
	{Status: "Symmetry Analysis", Detail: "Calculating Golden Ratio alignment..."},
	{Status: "Texture Scan", Detail: "Analyzing hair density and scalp health..."},
	{Status: "Pattern Recognition", Detail: "Identifying current hair loss morphology..."},
	{Status: "Style Optimization", Detail: "Generating personalized aesthetic protocol..."},
	{Status: "Finalizing Report", Detail: "Synthesizing objective recommendations..."},
}

// Narrator produces cosmetic progress steps on a fixed interval.
type Narrator struct {
	interval time.Duration
	script   []Message
	logger   *zap.Logger
}

func New(interval time.Duration, script []Message, logger *zap.Logger) *Narrator {
	if interval <= 0 {
		interval = constants.NarratorConfig.Interval
	}
	if len(script) == 0 {
		script = DefaultScript
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{interval: interval, script: script, logger: logger}
}

// Run is one narration in progress. Stop must be called on every exit path.
type Run struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins emitting steps to emit until the script is exhausted (then one
// terminal 100% step), ctx is done, or Stop is called. It never blocks.
func (n *Narrator) Start(ctx context.Context, emit func(domain.Progress)) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{cancel: cancel, done: make(chan struct{})}
	go n.loop(runCtx, r.done, emit)
	return r
}

// Stop cancels the timer and waits for the narrator goroutine to exit. Safe to
// call more than once and on a nil Run.
func (r *Run) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
	})
}

// Done is closed once the narrator goroutine has exited.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (n *Narrator) loop(ctx context.Context, done chan<- struct{}, emit func(domain.Progress)) {
	defer close(done)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	total := len(n.script)
	index := 0
	for {
		select {
		case <-ctx.Done():
			n.logger.Debug("Narrator stopped", zap.Int("steps_shown", index))
			return
		case <-ticker.C:
		}

		// Stop may race with a tick that was already pending.
		if ctx.Err() != nil {
			return
		}

		if index < total {
			msg := n.script[index]
			index++
			emit(domain.Progress{
				Status:  msg.Status,
				Detail:  msg.Detail,
				Percent: float64(index) * 100 / float64(total),
			})
			continue
		}

		last := n.script[total-1]
		emit(domain.Progress{
			Status:   last.Status,
			Detail:   last.Detail,
			Percent:  100,
			Terminal: true,
		})
		n.logger.Debug("Narrator script exhausted, holding at 100%")
		return
	}
}
