// Package classifier defines the image classifier contract and its backends.
//
// The pipeline treats a classifier as a black box that yields one
// (label, confidence) pair per image. Backends:
//   - Static: a fixed result, for manual entry and tests
//   - Command: an external model runner process
//   - Gemini: a hosted multimodal model
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"

	"plantguard/internal/types"
)

var (
	// ErrNoBackend is returned when no classifier backend is configured.
	ErrNoBackend = errors.New("classifier: no backend configured")
	// ErrEmptyOutput is returned when a backend produced no usable prediction.
	ErrEmptyOutput = errors.New("classifier: empty model output")
)

// Image is one captured or selected photo.
type Image struct {
	Path     string
	Data     []byte
	MIMEType string
}

// LoadImage reads an image file and sniffs its content type.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image %s is empty", path)
	}
	return Image{Path: path, Data: data, MIMEType: http.DetectContentType(data)}, nil
}

// Classifier produces a classification for one image.
type Classifier interface {
	Classify(ctx context.Context, img Image) (types.ClassificationResult, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, img Image) (types.ClassificationResult, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, img Image) (types.ClassificationResult, error) {
	return f(ctx, img)
}

// Static always returns the same result.
type Static struct {
	Result types.ClassificationResult
}

// NewStatic creates a Static classifier.
func NewStatic(label string, confidence float64) *Static {
	return &Static{Result: types.NewClassificationResult(label, confidence)}
}

// Classify returns the fixed result.
func (s *Static) Classify(ctx context.Context, _ Image) (types.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ClassificationResult{}, err
	}
	return normalize(s.Result)
}

// Decode picks the highest-scoring label from a model output vector.
// labels and scores must have the same length; ties go to the first label.
// Only positive scores can win: if none is positive the first label is
// returned with zero confidence. Any NaN score rejects the whole vector.
func Decode(labels []string, scores []float32) (types.ClassificationResult, error) {
	if len(scores) == 0 {
		return types.ClassificationResult{}, ErrEmptyOutput
	}
	if len(labels) != len(scores) {
		return types.ClassificationResult{}, fmt.Errorf("classifier: %d scores for %d labels", len(scores), len(labels))
	}

	best, maxScore := 0, float32(math.SmallestNonzeroFloat32)
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			return types.ClassificationResult{}, fmt.Errorf("classifier: score %d for %q is NaN", i, labels[i])
		}
		if v > maxScore {
			best, maxScore = i, v
		}
	}
	return normalize(types.NewClassificationResult(labels[best], float64(maxScore)))
}

// normalize enforces the confidence contract: NaN is rejected and values
// are clamped into [0,1].
func normalize(r types.ClassificationResult) (types.ClassificationResult, error) {
	if math.IsNaN(r.Confidence) {
		return types.ClassificationResult{}, fmt.Errorf("classifier: confidence for %q is NaN", r.Label)
	}
	r.Confidence = math.Max(0, math.Min(1, r.Confidence))
	return r, nil
}
