package session

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
)

const subscriberBuffer = 32

// EventType distinguishes progress ticks from state changes.
type EventType string

const (
	EventProgress EventType = "progress"
	EventState    EventType = "state"
)

// Event is pushed to subscribers whenever the session changes.
type Event struct {
	Type     EventType        `json:"type"`
	Progress *domain.Progress `json:"progress,omitempty"`
	State    *Snapshot        `json:"state,omitempty"`
}

// Snapshot is an immutable copy of the session, safe to read without locks.
type Snapshot struct {
	ID           string                 `json:"id"`
	State        UIState                `json:"state"`
	Visible      Section                `json:"visible"`
	Source       *domain.SourceImage    `json:"source,omitempty"`
	Demographics *domain.Demographics   `json:"demographics,omitempty"`
	Analysis     *domain.AnalysisResult `json:"analysis,omitempty"`
	Generated    *domain.GeneratedImage `json:"generatedImage,omitempty"`
	Progress     *domain.Progress       `json:"progress,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Epoch        uint64                 `json:"epoch"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Session is the state of one makeover flow. All mutation goes through its
// transition methods; run results are accepted only for the current epoch.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	state        UIState
	source       *domain.SourceImage
	demographics *domain.Demographics
	analysis     *domain.AnalysisResult
	generated    *domain.GeneratedImage
	progress     *domain.Progress
	lastError    string
	epoch        uint64
	cancelRun    context.CancelFunc
	updatedAt    time.Time

	subscribers map[int]chan Event
	nextSubID   int

	now func() time.Time
}

func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		CreatedAt:   now,
		updatedAt:   now,
		state:       StateUpload,
		subscribers: make(map[int]chan Event),
		now:         time.Now,
	}
}

func (s *Session) State() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		State:     s.state,
		Visible:   Render(s.state).Visible(),
		Error:     s.lastError,
		Epoch:     s.epoch,
		UpdatedAt: s.updatedAt,
	}
	if s.source != nil {
		v := *s.source
		snap.Source = &v
	}
	if s.demographics != nil {
		v := *s.demographics
		snap.Demographics = &v
	}
	if s.analysis != nil {
		v := *s.analysis
		snap.Analysis = &v
	}
	if s.generated != nil {
		v := *s.generated
		snap.Generated = &v
	}
	if s.progress != nil {
		v := *s.progress
		snap.Progress = &v
	}
	return snap
}

// SetPhoto replaces the source image and moves to Preview. Any previous
// results are cleared.
func (s *Session) SetPhoto(img domain.SourceImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUpload && s.state != StatePreview {
		return errors.NewTransitionError(s.state.String(), StatePreview.String())
	}

	s.source = &img
	s.analysis = nil
	s.generated = nil
	s.progress = nil
	s.lastError = ""
	s.state = StatePreview
	s.touchLocked()
	return nil
}

// BeginTransform guards Preview → Loading. Invalid demographics keep the
// session in Preview with its photo untouched. On success the previous results
// are cleared, a new epoch is opened and cancel is kept so Reset can abort the
// run.
func (s *Session) BeginTransform(demo domain.Demographics, cancel context.CancelFunc) (uint64, domain.SourceImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreview {
		return 0, domain.SourceImage{}, errors.NewTransitionError(s.state.String(), StateLoading.String())
	}
	if s.source == nil {
		return 0, domain.SourceImage{}, errors.NewValidationError("Please upload a photo first", "photo", nil)
	}
	if err := demo.Validate(); err != nil {
		return 0, domain.SourceImage{}, err
	}

	normalized := demo.Normalize()
	s.demographics = &normalized
	s.analysis = nil
	s.generated = nil
	s.progress = nil
	s.lastError = ""
	s.epoch++
	s.cancelRun = cancel
	s.state = StateLoading
	s.touchLocked()

	return s.epoch, *s.source, nil
}

// ReportProgress records a narrator step for the given run.
func (s *Session) ReportProgress(epoch uint64, p domain.Progress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading || s.epoch != epoch {
		return false
	}
	s.progress = &p
	s.updatedAt = s.now()
	s.publishLocked(Event{Type: EventProgress, Progress: &p})
	return true
}

// Complete commits both results at once and moves to Results. A stale epoch
// is ignored.
func (s *Session) Complete(epoch uint64, analysis domain.AnalysisResult, image domain.GeneratedImage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading || s.epoch != epoch {
		return false
	}
	s.analysis = &analysis
	s.generated = &image
	s.finishRunLocked(StateResults)
	return true
}

// Fail moves a running transform to Error with a user-facing message.
func (s *Session) Fail(epoch uint64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading || s.epoch != epoch {
		return false
	}
	s.lastError = message
	s.finishRunLocked(StateError)
	return true
}

// Retry goes back from Error to Preview, keeping the photo and demographics.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateError {
		return errors.NewTransitionError(s.state.String(), StatePreview.String())
	}
	s.lastError = ""
	s.progress = nil
	s.state = StatePreview
	s.touchLocked()
	return nil
}

// Reset returns to Upload from any state, dropping every input and result and
// aborting a running transform.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.epoch++
	s.source = nil
	s.demographics = nil
	s.analysis = nil
	s.generated = nil
	s.progress = nil
	s.lastError = ""
	s.state = StateUpload
	s.touchLocked()
}

// Subscribe returns a channel of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

func (s *Session) finishRunLocked(next UIState) {
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.state = next
	s.touchLocked()
}

func (s *Session) touchLocked() {
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.publishLocked(Event{Type: EventState, State: &snap})
}

func (s *Session) publishLocked(ev Event) {
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
