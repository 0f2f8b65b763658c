package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"plantguard/internal/types"
)

func TestAssess_SpeciesTable(t *testing.T) {
	tests := []struct {
		label string
		want  types.RiskLevel
	}{
		{"lantana", types.RiskHigh},
		{"parthenium", types.RiskHigh},
		{"neltuma", types.RiskModerate},
		{"non_invasive", types.RiskLow},
		{"unknown_weed", types.RiskUnknown},
		{"", types.RiskUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			for _, conf := range []float64{0.6, 0.61, 0.8, 1.0} {
				got := Assess(types.NewClassificationResult(tt.label, conf), DefaultThreshold)
				assert.Equal(t, tt.want, got, "confidence %v", conf)
			}
		})
	}
}

func TestAssess_BelowThresholdIsUncertain(t *testing.T) {
	labels := append([]string{"unknown_weed", ""}, types.Vocabulary...)
	for _, label := range labels {
		for _, conf := range []float64{0, 0.3, 0.59, 0.5999} {
			got := Assess(types.NewClassificationResult(label, conf), DefaultThreshold)
			assert.Equal(t, types.RiskUncertain, got, "%s at %v", label, conf)
		}
	}
}

func TestAssess_ThresholdBoundaryIsInclusive(t *testing.T) {
	got := Assess(types.NewClassificationResult("neltuma", 0.75), 0.75)
	assert.Equal(t, types.RiskModerate, got)

	got = Assess(types.NewClassificationResult("neltuma", 0.7499), 0.75)
	assert.Equal(t, types.RiskUncertain, got)
}

func TestAssess_Idempotent(t *testing.T) {
	r := types.NewClassificationResult("lantana", 0.9)
	first := Assess(r, 0.6)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Assess(r, 0.6))
	}
}

func TestAssess_UnclampedThreshold(t *testing.T) {
	// Out-of-range thresholds are applied as given.
	assert.Equal(t, types.RiskUncertain, Assess(types.NewClassificationResult("lantana", 1.0), 1.5))
	assert.Equal(t, types.RiskHigh, Assess(types.NewClassificationResult("lantana", 0), -0.1))
}

func TestPolicy_ReadsSharedState(t *testing.T) {
	state := NewState(DefaultThreshold)
	policy := NewPolicy(state)
	r := types.NewClassificationResult("neltuma", 0.7)

	assert.Equal(t, types.RiskModerate, policy.Assess(r))

	state.SetThreshold(0.75)
	assert.Equal(t, types.RiskUncertain, policy.Assess(r))
	assert.Same(t, state, policy.State())
}

func TestState_ConcurrentAccess(t *testing.T) {
	state := NewState(DefaultThreshold)
	policy := NewPolicy(state)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				state.SetThreshold(0.75)
			} else {
				state.SetThreshold(0.55)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = policy.Assess(types.NewClassificationResult("lantana", 0.9))
		}()
	}
	wg.Wait()

	th := state.Threshold()
	assert.True(t, th == 0.75 || th == 0.55, "unexpected threshold %v", th)
}
