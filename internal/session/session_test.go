package session

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPhoto = domain.SourceImage{DataURI: "data:image/png;base64,AAAA", MIMEType: "image/png", Size: 3}
	testDemo  = domain.Demographics{Age: 30, Gender: domain.GenderFemale, Profession: "Designer"}
)

func previewSession(t *testing.T) *Session {
	t.Helper()
	s := New("s1")
	require.NoError(t, s.SetPhoto(testPhoto))
	require.Equal(t, StatePreview, s.State())
	return s
}

func TestRenderShowsExactlyOneSection(t *testing.T) {
	for _, st := range []UIState{StateUpload, StatePreview, StateLoading, StateResults, StateError} {
		v := Render(st)
		shown := 0
		for _, sec := range Sections {
			if v[sec] {
				shown++
			}
		}
		assert.Equal(t, 1, shown, "state %s", st)
	}
	assert.Equal(t, SectionLoading, Render(StateLoading).Visible())
	assert.Equal(t, SectionUpload, Render(UIState(42)).Visible())
}

func TestInvalidDemographicsStayInPreview(t *testing.T) {
	s := previewSession(t)

	_, _, err := s.BeginTransform(domain.Demographics{Age: 4, Gender: domain.GenderMale, Profession: "x"}, nil)
	var vErr *errors.ValidationError
	require.True(t, stderrors.As(err, &vErr))

	snap := s.Snapshot()
	assert.Equal(t, StatePreview, snap.State)
	require.NotNil(t, snap.Source)
	assert.Equal(t, testPhoto.DataURI, snap.Source.DataURI)
	assert.Nil(t, snap.Demographics)
}

func TestHappyPathCommitsResults(t *testing.T) {
	s := previewSession(t)

	epoch, src, err := s.BeginTransform(testDemo, nil)
	require.NoError(t, err)
	assert.Equal(t, testPhoto, src)
	assert.Equal(t, StateLoading, s.State())

	assert.True(t, s.ReportProgress(epoch, domain.Progress{Status: "Scan", Percent: 10}))
	assert.True(t, s.Complete(epoch, domain.AnalysisResult{AestheticScore: 70}, domain.GeneratedImage{Ref: "https://x/y.png"}))

	snap := s.Snapshot()
	assert.Equal(t, StateResults, snap.State)
	assert.Equal(t, SectionResults, snap.Visible)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, domain.Number(70), snap.Analysis.AestheticScore)
	require.NotNil(t, snap.Generated)

	// A second commit for the same run is ignored.
	assert.False(t, s.Fail(epoch, "late"))
}

func TestFailureThenRetryKeepsPhoto(t *testing.T) {
	s := previewSession(t)
	epoch, _, err := s.BeginTransform(testDemo, nil)
	require.NoError(t, err)

	require.True(t, s.Fail(epoch, "No image generated"))
	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "No image generated", snap.Error)
	assert.Nil(t, snap.Generated)

	require.NoError(t, s.Retry())
	snap = s.Snapshot()
	assert.Equal(t, StatePreview, snap.State)
	assert.NotNil(t, snap.Source)
	assert.NotNil(t, snap.Demographics)
	assert.Empty(t, snap.Error)
}

func TestIllegalTransitions(t *testing.T) {
	s := New("s1")
	var tErr *errors.TransitionError

	_, _, err := s.BeginTransform(testDemo, nil)
	assert.True(t, stderrors.As(err, &tErr))
	assert.True(t, stderrors.As(s.Retry(), &tErr))

	require.NoError(t, s.SetPhoto(testPhoto))
	_, _, err = s.BeginTransform(testDemo, nil)
	require.NoError(t, err)
	assert.True(t, stderrors.As(s.SetPhoto(testPhoto), &tErr))
}

func TestResetClearsEverythingAndCancelsRun(t *testing.T) {
	s := previewSession(t)
	ctx, cancel := context.WithCancel(context.Background())

	epoch, _, err := s.BeginTransform(testDemo, cancel)
	require.NoError(t, err)

	s.Reset()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("reset did not cancel the running transform")
	}

	snap := s.Snapshot()
	assert.Equal(t, StateUpload, snap.State)
	assert.Nil(t, snap.Source)
	assert.Nil(t, snap.Demographics)
	assert.Nil(t, snap.Analysis)
	assert.Nil(t, snap.Generated)
	assert.Nil(t, snap.Progress)

	// Results of the superseded run are discarded.
	assert.False(t, s.ReportProgress(epoch, domain.Progress{}))
	assert.False(t, s.Complete(epoch, domain.AnalysisResult{}, domain.GeneratedImage{Ref: "x"}))
	assert.Equal(t, StateUpload, s.State())
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := New("s1")
	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SetPhoto(testPhoto))

	select {
	case ev := <-events:
		assert.Equal(t, EventState, ev.Type)
		require.NotNil(t, ev.State)
		assert.Equal(t, StatePreview, ev.State.State)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestStore(t *testing.T) {
	st := NewStore()
	s := st.Create()
	assert.Len(t, s.ID, 36)

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = st.Get("missing")
	var coded errors.Coded
	require.True(t, stderrors.As(err, &coded))
	assert.Equal(t, 404, coded.HTTPStatus())

	assert.True(t, st.Delete(s.ID))
	assert.False(t, st.Delete(s.ID))
	assert.Zero(t, st.Len())
}

func TestStorePruneSkipsRunningSessions(t *testing.T) {
	st := NewStore()
	idle := st.Create()
	busy := st.Create()
	require.NoError(t, busy.SetPhoto(testPhoto))
	_, _, err := busy.BeginTransform(testDemo, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, st.Prune(time.Millisecond))

	_, err = st.Get(idle.ID)
	assert.Error(t, err)
	_, err = st.Get(busy.ID)
	assert.NoError(t, err)
}
