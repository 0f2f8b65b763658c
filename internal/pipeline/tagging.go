package pipeline

import (
	"context"

	"plantguard/internal/types"
)

// Tagging is an in-flight location tag for one HIGH-risk run.
type Tagging struct {
	RunID   string
	Species string

	done     chan struct{}
	cancel   context.CancelFunc
	sighting types.Sighting
	err      error
}

// Done is closed when tagging has finished.
func (t *Tagging) Done() <-chan struct{} {
	return t.done
}

// Cancel abandons the pending location request.
func (t *Tagging) Cancel() {
	t.cancel()
}

// Wait blocks until tagging finishes or ctx ends, and returns the recorded
// sighting. A non-nil error with a non-zero sighting means the fix was
// obtained but could not be stored.
func (t *Tagging) Wait(ctx context.Context) (types.Sighting, error) {
	select {
	case <-t.done:
		return t.sighting, t.err
	case <-ctx.Done():
		return types.Sighting{}, ctx.Err()
	}
}
