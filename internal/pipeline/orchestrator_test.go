package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"plantguard/internal/action"
	"plantguard/internal/classifier"
	"plantguard/internal/feedback"
	"plantguard/internal/location"
	"plantguard/internal/risk"
	"plantguard/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type memRecorder struct {
	mu        sync.Mutex
	sightings []types.Sighting
	events    []types.FeedbackEvent
	err       error
}

func (r *memRecorder) Record(_ context.Context, s types.Sighting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sightings = append(r.sightings, s)
	return nil
}

func (r *memRecorder) RecordFeedback(_ context.Context, ev types.FeedbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) recorded() []types.Sighting {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Sighting(nil), r.sightings...)
}

// silentProvider never produces a fix and closes when ctx ends.
var silentProvider = location.ProviderFunc(func(ctx context.Context, _ location.Request) (<-chan types.Fix, error) {
	out := make(chan types.Fix)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
})

var fixedNow = time.UnixMilli(1700000000000)

func newTestOrchestrator(c classifier.Classifier, p location.Provider, rec *memRecorder) *Orchestrator {
	opts := Options{
		Classifier:      c,
		Location:        p,
		LocationRequest: location.Request{Timeout: time.Second},
		Now:             func() time.Time { return fixedNow },
	}
	if rec != nil {
		opts.Recorder = rec
		opts.FeedbackLog = rec
	}
	return New(opts)
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		conf     float64
		wantRisk types.RiskLevel
		wantText string
		wantTag  bool
	}{
		{"lantana high", "lantana", 0.9, types.RiskHigh, "Remove immediately", true},
		{"neltuma below threshold", "neltuma", 0.3, types.RiskUncertain, "retake clearer image", false},
		{"non invasive low", "non_invasive", 0.95, types.RiskLow, "No removal needed", false},
		{"unknown weed", "unknown_weed", 0.8, types.RiskUnknown, "Species not recognized", false},
		{"parthenium high", "parthenium", 0.6, types.RiskHigh, "Remove immediately", true},
		{"neltuma moderate", "neltuma", 0.7, types.RiskModerate, "Monitor growth", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			o := newTestOrchestrator(classifier.NewStatic(tt.label, tt.conf), location.NewStatic(12.97, 77.59, 5), rec)

			out, err := o.Run(context.Background(), classifier.Image{})
			require.NoError(t, err)
			o.Wait()

			assert.NotEmpty(t, out.RunID)
			assert.Equal(t, tt.label, out.Result.Label)
			assert.Equal(t, tt.wantRisk, out.Risk)
			assert.Contains(t, out.Recommendation, tt.wantText)
			assert.Equal(t, action.Decide(tt.wantRisk), out.Decision)

			if !tt.wantTag {
				assert.Nil(t, out.Tagging)
				assert.Empty(t, rec.recorded())
				return
			}
			require.NotNil(t, out.Tagging)
			s, err := out.Tagging.Wait(context.Background())
			require.NoError(t, err)
			want := types.Sighting{Species: tt.label, Latitude: 12.97, Longitude: 77.59, Time: fixedNow}
			assert.Equal(t, want, s)
			assert.Equal(t, []types.Sighting{want}, rec.recorded())
		})
	}
}

func TestRun_RunIDsAreUnique(t *testing.T) {
	o := newTestOrchestrator(classifier.NewStatic("non_invasive", 0.9), nil, nil)
	a, err := o.Run(context.Background(), classifier.Image{})
	require.NoError(t, err)
	b, err := o.Run(context.Background(), classifier.Image{})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_ClassifierErrors(t *testing.T) {
	o := New(Options{})
	_, err := o.Run(context.Background(), classifier.Image{})
	assert.ErrorIs(t, err, ErrNoClassifier)

	boom := errors.New("model crashed")
	o = New(Options{Classifier: classifier.Func(func(context.Context, classifier.Image) (types.ClassificationResult, error) {
		return types.ClassificationResult{}, boom
	})})
	_, err = o.Run(context.Background(), classifier.Image{})
	assert.ErrorIs(t, err, boom)
}

func TestRunWith_ManualConfidence(t *testing.T) {
	rec := &memRecorder{}
	o := newTestOrchestrator(nil, location.NewStatic(12.97, 77.59, 5), rec)

	_, err := o.RunWith(context.Background(), nil, classifier.Image{})
	assert.ErrorIs(t, err, ErrNoClassifier)

	_, err = o.RunWith(context.Background(), classifier.NewStatic("lantana", math.NaN()), classifier.Image{})
	assert.Error(t, err, "NaN confidence must not reach the risk policy")
	o.Wait()
	assert.Empty(t, rec.recorded())

	out, err := o.RunWith(context.Background(), classifier.NewStatic("lantana", 1.7), classifier.Image{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Result.Confidence)
	assert.Equal(t, types.RiskHigh, out.Risk)
	require.NotNil(t, out.Tagging)
	_, err = out.Tagging.Wait(context.Background())
	require.NoError(t, err)
}

func TestEvaluate_ResultNotBlockedByLocation(t *testing.T) {
	o := newTestOrchestrator(nil, silentProvider, nil)

	start := time.Now()
	out := o.Evaluate(context.Background(), types.NewClassificationResult("lantana", 0.9))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, types.RiskHigh, out.Risk)

	require.NotNil(t, out.Tagging)
	select {
	case <-out.Tagging.Done():
		t.Fatal("tagging finished before the location request resolved")
	default:
	}

	// Times out after the request's one-second bound.
	_, err := out.Tagging.Wait(context.Background())
	assert.ErrorIs(t, err, location.ErrNoFix)
	o.Wait()
}

func TestEvaluate_CancelAbandonsTagging(t *testing.T) {
	rec := &memRecorder{}
	o := newTestOrchestrator(nil, silentProvider, rec)

	ctx, cancel := context.WithCancel(context.Background())
	out := o.Evaluate(ctx, types.NewClassificationResult("parthenium", 0.99))
	require.NotNil(t, out.Tagging)
	cancel()

	_, err := out.Tagging.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	o.Wait()
	assert.Empty(t, rec.recorded())
}

func TestTagging_CancelAndWaitContext(t *testing.T) {
	o := newTestOrchestrator(nil, silentProvider, nil)
	out := o.Evaluate(context.Background(), types.NewClassificationResult("lantana", 0.9))

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelWait()
	_, err := out.Tagging.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out.Tagging.Cancel()
	<-out.Tagging.Done()
	o.Wait()
}

func TestEvaluate_NoProvider(t *testing.T) {
	o := newTestOrchestrator(nil, nil, nil)
	out := o.Evaluate(context.Background(), types.NewClassificationResult("lantana", 0.9))
	require.NotNil(t, out.Tagging)
	_, err := out.Tagging.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestEvaluate_RecordFailure(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	o := newTestOrchestrator(nil, location.NewStatic(1, 2, 3), rec)
	out := o.Evaluate(context.Background(), types.NewClassificationResult("lantana", 0.9))

	s, err := out.Tagging.Wait(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "lantana", s.Species, "fix is still reported")
}

func TestFeedback_DrivesThreshold(t *testing.T) {
	rec := &memRecorder{}
	o := newTestOrchestrator(nil, nil, rec)
	ctx := context.Background()

	// At 0.6 a 0.7 neltuma is MODERATE.
	assert.Equal(t, types.RiskModerate, o.Evaluate(ctx, types.NewClassificationResult("neltuma", 0.7)).Risk)

	var u feedback.Update
	for i := 0; i < 4; i++ {
		u = o.Feedback(ctx, false)
	}
	assert.Equal(t, -8, u.Score)
	assert.Equal(t, 0.75, o.State().Threshold())

	// The stricter bar now rejects the same classification.
	assert.Equal(t, types.RiskUncertain, o.Evaluate(ctx, types.NewClassificationResult("neltuma", 0.7)).Risk)

	require.Len(t, rec.events, 4)
	assert.Equal(t, "wrong", rec.events[3].Signal)
	assert.Equal(t, -8, rec.events[3].Score)
	assert.Equal(t, 0.75, rec.events[3].Threshold)
	assert.Equal(t, fixedNow, rec.events[3].Time)
	assert.NotEqual(t, rec.events[0].ID, rec.events[1].ID)
}

func TestFeedback_LenientAfterCorrectStreak(t *testing.T) {
	o := New(Options{})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		o.Feedback(ctx, true)
	}
	assert.Equal(t, 4, o.Controller().Score())
	assert.Equal(t, 0.55, o.State().Threshold())
	assert.Equal(t, types.RiskHigh, o.Evaluate(ctx, types.NewClassificationResult("lantana", 0.57)).Risk)
	o.Wait()
}

func TestFeedback_LogFailureKeepsUpdate(t *testing.T) {
	rec := &memRecorder{err: errors.New("locked")}
	o := newTestOrchestrator(nil, nil, rec)
	u := o.Feedback(context.Background(), false)
	assert.Equal(t, -2, u.Score)
}

func TestNew_InjectedState(t *testing.T) {
	state := risk.NewState(0.9)
	settings := feedback.Settings{Reward: 5, Penalty: 1, LowerBound: -1, UpperBound: 1, StrictThreshold: 0.95, LenientThreshold: 0.5}
	o := New(Options{State: state, Feedback: &settings})

	assert.Same(t, state, o.State())
	assert.Equal(t, types.RiskUncertain, o.Evaluate(context.Background(), types.NewClassificationResult("neltuma", 0.8)).Risk)

	o.Feedback(context.Background(), true)
	assert.Equal(t, 0.5, state.Threshold())
}

func TestConcurrentRunsAndFeedback(t *testing.T) {
	o := newTestOrchestrator(classifier.NewStatic("lantana", 0.9), location.NewStatic(1, 1, 1), &memRecorder{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = o.Run(ctx, classifier.Image{})
		}()
		go func(i int) {
			defer wg.Done()
			o.Feedback(ctx, i%2 == 0)
		}(i)
	}
	wg.Wait()
	o.Wait()
}
