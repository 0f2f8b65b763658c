package location

import (
	"context"
	"time"

	"plantguard/internal/types"
)

// Static reports a fixed position once, stamped with the current time.
type Static struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64

	now func() time.Time
}

// NewStatic creates a Static provider.
func NewStatic(lat, lon, accuracy float64) *Static {
	return &Static{Latitude: lat, Longitude: lon, Accuracy: accuracy, now: time.Now}
}

// Updates emits a single fix and closes the channel.
func (s *Static) Updates(ctx context.Context, _ Request) (<-chan types.Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	out := make(chan types.Fix, 1)
	out <- types.Fix{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Accuracy:  s.Accuracy,
		Time:      now(),
	}
	close(out)
	return out, nil
}
