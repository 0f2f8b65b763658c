package location

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// Fused merges the streams of several providers.
// Providers that fail to start are skipped; it is an error only if all fail.
type Fused struct {
	Providers []Provider
}

// NewFused creates a Fused provider.
func NewFused(providers ...Provider) *Fused {
	return &Fused{Providers: providers}
}

// Updates starts every provider and forwards their fixes onto one channel,
// which closes once all underlying streams have closed.
func (f *Fused) Updates(ctx context.Context, req Request) (<-chan types.Fix, error) {
	var streams []<-chan types.Fix
	var errs []error
	for i, p := range f.Providers {
		ch, err := p.Updates(ctx, req)
		if err != nil {
			logging.LocationWarn("fused provider %d unavailable: %v", i, err)
			errs = append(errs, err)
			continue
		}
		streams = append(streams, ch)
	}
	if len(streams) == 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("location: fused provider has no sources")
		}
		return nil, fmt.Errorf("location: all fused sources failed: %w", errors.Join(errs...))
	}

	out := make(chan types.Fix)
	var g errgroup.Group
	for _, ch := range streams {
		g.Go(func() error {
			for fix := range ch {
				select {
				case out <- fix:
				case <-ctx.Done():
					// keep draining so the source can close
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()
	return out, nil
}
