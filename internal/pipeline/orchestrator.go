// Package pipeline runs one capture end to end: classify, assess risk,
// suggest an action and, for HIGH risk only, tag the sighting with a fresh
// location in the background.
//
// The threshold and feedback score are the only state carried between runs.
// Both live in the orchestrator and are shared by reference with the risk
// policy and the feedback controller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"plantguard/internal/action"
	"plantguard/internal/classifier"
	"plantguard/internal/feedback"
	"plantguard/internal/location"
	"plantguard/internal/logging"
	"plantguard/internal/risk"
	"plantguard/internal/types"
)

var (
	// ErrNoClassifier is returned by Run when no classifier is configured.
	ErrNoClassifier = errors.New("pipeline: no classifier configured")
	// ErrNoProvider is the tagging error when no location provider is configured.
	ErrNoProvider = errors.New("pipeline: no location provider configured")
)

// Recorder persists HIGH-risk sightings.
type Recorder interface {
	Record(ctx context.Context, s types.Sighting) error
}

// FeedbackRecorder persists feedback events.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, ev types.FeedbackEvent) error
}

// Options wires the orchestrator's collaborators. Only State and Feedback
// have defaults; nil collaborators disable the corresponding step.
type Options struct {
	Classifier      classifier.Classifier
	State           *risk.State // nil: new state at risk.DefaultThreshold
	Feedback        *feedback.Settings
	Location        location.Provider
	LocationRequest location.Request
	Recorder        Recorder
	FeedbackLog     FeedbackRecorder
	Now             func() time.Time
}

// Orchestrator runs the pipeline. It is safe for concurrent use.
type Orchestrator struct {
	classifier  classifier.Classifier
	policy      *risk.Policy
	controller  *feedback.Controller
	provider    location.Provider
	request     location.Request
	recorder    Recorder
	feedbackLog FeedbackRecorder
	now         func() time.Time

	wg sync.WaitGroup
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	state := opts.State
	if state == nil {
		state = risk.NewState(risk.DefaultThreshold)
	}
	settings := feedback.DefaultSettings()
	if opts.Feedback != nil {
		settings = *opts.Feedback
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	request := opts.LocationRequest
	if request == (location.Request{}) {
		request = location.DefaultRequest()
	}

	return &Orchestrator{
		classifier:  opts.Classifier,
		policy:      risk.NewPolicy(state),
		controller:  feedback.NewController(state, settings),
		provider:    opts.Location,
		request:     request,
		recorder:    opts.Recorder,
		feedbackLog: opts.FeedbackLog,
		now:         now,
	}
}

// Outcome is the result of one run.
type Outcome struct {
	RunID          string
	Result         types.ClassificationResult
	Risk           types.RiskLevel
	Recommendation string
	Decision       types.AgentDecision
	Tagging        *Tagging // nil unless Risk is HIGH
}

// Run classifies img and evaluates the result.
func (o *Orchestrator) Run(ctx context.Context, img classifier.Image) (Outcome, error) {
	if o.classifier == nil {
		return Outcome{}, ErrNoClassifier
	}
	return o.RunWith(ctx, o.classifier, img)
}

// RunWith is Run with an explicit classifier. Confidence checks the
// classifier applies (NaN rejection, clamping) happen before evaluation.
func (o *Orchestrator) RunWith(ctx context.Context, c classifier.Classifier, img classifier.Image) (Outcome, error) {
	if c == nil {
		return Outcome{}, ErrNoClassifier
	}

	timer := logging.StartTimer(logging.CategoryPipeline, "classify")
	result, err := c.Classify(ctx, img)
	timer.Stop()
	if err != nil {
		logging.PipelineWarn("classification failed for %s: %v", img.Path, err)
		return Outcome{}, fmt.Errorf("classification failed: %w", err)
	}
	return o.Evaluate(ctx, result), nil
}

// Evaluate assesses an existing classification. The returned outcome is
// complete; location tagging, if any, continues in the background and is
// cancelled when ctx is.
func (o *Orchestrator) Evaluate(ctx context.Context, result types.ClassificationResult) Outcome {
	runID := uuid.New().String()
	log := logging.Get(logging.CategoryPipeline).With("run", runID)

	level := o.policy.Assess(result)
	decision := action.Decide(level)
	out := Outcome{
		RunID:          runID,
		Result:         result,
		Risk:           level,
		Recommendation: decision.Recommendation,
		Decision:       decision,
	}
	log.Info("%s => %s (threshold %.2f)", result, level, o.policy.State().Threshold())

	if level == types.RiskHigh {
		out.Tagging = o.startTagging(ctx, runID, result.Label)
	}
	return out
}

func (o *Orchestrator) startTagging(ctx context.Context, runID, species string) *Tagging {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tagging{
		RunID:   runID,
		Species: species,
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer close(t.done)
		t.sighting, t.err = o.tag(ctx, runID, species)
	}()
	return t
}

func (o *Orchestrator) tag(ctx context.Context, runID, species string) (types.Sighting, error) {
	log := logging.Get(logging.CategoryLocation).With("run", runID)
	if o.provider == nil {
		log.Warn("HIGH risk %s not tagged: %v", species, ErrNoProvider)
		return types.Sighting{}, ErrNoProvider
	}

	fix, err := location.RequestOnce(ctx, o.provider, o.request)
	if err != nil {
		log.Warn("location request for %s failed: %v", species, err)
		return types.Sighting{}, err
	}

	s := types.Sighting{
		Species:   species,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Time:      o.now(),
	}
	log.Info("tagged %s at %.6f,%.6f", species, s.Latitude, s.Longitude)

	if o.recorder == nil {
		return s, nil
	}
	// The fix is in hand; finish the write even if the run was abandoned.
	if err := o.recorder.Record(context.WithoutCancel(ctx), s); err != nil {
		log.Error("failed to record sighting %s: %v", s.Key(), err)
		return s, fmt.Errorf("failed to record sighting: %w", err)
	}
	return s, nil
}

// Feedback forwards one correct/wrong signal to the controller and the
// feedback log. Log failures are reported but do not undo the update.
func (o *Orchestrator) Feedback(ctx context.Context, correct bool) feedback.Update {
	var u feedback.Update
	if correct {
		u = o.controller.CorrectPrediction()
	} else {
		u = o.controller.WrongPrediction()
	}

	if o.feedbackLog != nil {
		ev := types.FeedbackEvent{
			ID:        uuid.New().String(),
			Signal:    u.Signal.String(),
			Score:     u.Score,
			Threshold: u.Threshold,
			Time:      o.now(),
		}
		if err := o.feedbackLog.RecordFeedback(ctx, ev); err != nil {
			logging.PipelineWarn("failed to log feedback %s: %v", ev.ID, err)
		}
	}
	return u
}

// Wait blocks until every in-flight tagging has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// State returns the shared threshold state.
func (o *Orchestrator) State() *risk.State {
	return o.policy.State()
}

// Controller returns the feedback controller.
func (o *Orchestrator) Controller() *feedback.Controller {
	return o.controller
}
