// Package location obtains a single fresh position fix for tagging sightings.
//
// Providers stream fixes; RequestOnce turns a stream into one answer under a
// bounded wait: the first fix that meets the accuracy hint wins, otherwise the
// most accurate fix seen before the deadline is returned.
package location

import (
	"context"
	"errors"
	"time"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

var (
	// ErrNoFix is returned when no fix arrived before the deadline.
	ErrNoFix = errors.New("location: no fix available")
	// ErrDisabled is returned by New when location tagging is turned off.
	ErrDisabled = errors.New("location: provider disabled")
)

// Provider streams position fixes.
// The returned channel is closed when ctx ends or the provider runs dry.
type Provider interface {
	Updates(ctx context.Context, req Request) (<-chan types.Fix, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (<-chan types.Fix, error)

// Updates calls f.
func (f ProviderFunc) Updates(ctx context.Context, req Request) (<-chan types.Fix, error) {
	return f(ctx, req)
}

// Request bounds one location request.
type Request struct {
	Timeout     time.Duration // zero waits until ctx ends
	Accuracy    float64       // meters; zero accepts the first fix
	Interval    time.Duration // preferred update rate
	MinInterval time.Duration // fixes arriving faster than this are dropped
}

// DefaultRequest is a high-accuracy, single-update request: 1s interval,
// 500ms min interval, 20m accuracy hint, 10s wait.
func DefaultRequest() Request {
	return Request{
		Timeout:     10 * time.Second,
		Accuracy:    20,
		Interval:    time.Second,
		MinInterval: 500 * time.Millisecond,
	}
}

// spacing is the minimum gap between forwarded fixes.
// Without a MinInterval, Interval is used.
func (r Request) spacing() time.Duration {
	if r.MinInterval > 0 {
		return r.MinInterval
	}
	return r.Interval
}

// meets reports whether fix satisfies the accuracy hint.
// Fixes without an accuracy estimate are accepted.
func (r Request) meets(fix types.Fix) bool {
	return r.Accuracy <= 0 || fix.Accuracy <= 0 || fix.Accuracy <= r.Accuracy
}

// RequestOnce waits for one fix from p.
//
// Cancelling ctx abandons the request and returns ctx.Err(). When the timeout
// expires or the provider runs dry, the most accurate fix seen so far is
// returned, or ErrNoFix if there was none. The provider's stream is fully
// drained before RequestOnce returns.
func RequestOnce(ctx context.Context, p Provider, req Request) (types.Fix, error) {
	if err := ctx.Err(); err != nil {
		return types.Fix{}, err
	}

	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if req.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	updates, err := p.Updates(reqCtx, req)
	if err != nil {
		return types.Fix{}, err
	}
	defer func() {
		cancel()
		for range updates {
		}
	}()

	var best types.Fix
	have := false
	for {
		select {
		case <-reqCtx.Done():
			if err := ctx.Err(); err != nil {
				logging.LocationDebug("request cancelled: %v", err)
				return types.Fix{}, err
			}
			return settle(best, have)
		case fix, ok := <-updates:
			if !ok {
				return settle(best, have)
			}
			logging.LocationDebug("fix %.6f,%.6f ±%.1fm", fix.Latitude, fix.Longitude, fix.Accuracy)
			if req.meets(fix) {
				return fix, nil
			}
			if !have || fix.Accuracy < best.Accuracy {
				best, have = fix, true
			}
		}
	}
}

func settle(best types.Fix, have bool) (types.Fix, error) {
	if !have {
		return types.Fix{}, ErrNoFix
	}
	logging.LocationWarn("accuracy hint not met, using best fix ±%.1fm", best.Accuracy)
	return best, nil
}
