package location

import (
	"fmt"

	"plantguard/internal/config"
)

// New builds the provider selected by cfg.Location.Provider.
// It returns ErrDisabled for "none".
func New(cfg *config.Config) (Provider, error) {
	return build(cfg.Location.Provider, cfg.Location, true)
}

// NewRequest returns the request bounds configured in cfg.
func NewRequest(cfg *config.Config) Request {
	return Request{
		Timeout:     cfg.GetLocationTimeout(),
		Accuracy:    cfg.Location.AccuracyMeters,
		Interval:    cfg.GetLocationInterval(),
		MinInterval: cfg.GetLocationMinInterval(),
	}
}

func build(name string, lc config.LocationConfig, allowFused bool) (Provider, error) {
	switch name {
	case "", "none":
		return nil, ErrDisabled
	case "static":
		return NewStatic(lc.Static.Latitude, lc.Static.Longitude, lc.Static.Accuracy), nil
	case "gpsd":
		return NewGPSD(lc.GPSDAddress), nil
	case "fused":
		if !allowFused {
			return nil, fmt.Errorf("location: fused provider cannot nest")
		}
		var providers []Provider
		for _, n := range lc.FusedProviders {
			p, err := build(n, lc, false)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
		return NewFused(providers...), nil
	default:
		return nil, fmt.Errorf("unknown location provider: %s", name)
	}
}
