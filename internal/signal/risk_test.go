package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnotateIntraday(t *testing.T) {
	a := NewAnnotator(30, 60, 20, 40)

	rp := a.Annotate(MatchedScenario{}, 150, false)

	assert.InDelta(t, 150, rp.Entry, 1e-9)
	assert.InDelta(t, 105, rp.StopLoss, 1e-9)
	assert.InDelta(t, 240, rp.Target, 1e-9)
	assert.InDelta(t, 2.0, rp.RiskReward, 1e-9)
}

func TestAnnotateExpiryDayTightens(t *testing.T) {
	a := NewAnnotator(30, 60, 20, 40)

	rp := a.Annotate(MatchedScenario{}, 150, true)

	assert.InDelta(t, 120, rp.StopLoss, 1e-9, "expiry stop is 20 pct instead of 30")
	assert.InDelta(t, 210, rp.Target, 1e-9, "expiry target is 40 pct instead of 60")
	assert.InDelta(t, 2.0, rp.RiskReward, 1e-9)
}

func TestAnnotateRoundsToTick(t *testing.T) {
	a := NewAnnotator(30, 60, 20, 40)

	t.Run("intraday", func(t *testing.T) {
		rp := a.Annotate(MatchedScenario{}, 147.35, false)

		assert.InDelta(t, 103.15, rp.StopLoss, 1e-9)
		assert.InDelta(t, 235.75, rp.Target, 1e-9)
		assert.InDelta(t, 2.0, rp.RiskReward, 1e-9)
	})

	t.Run("expiry", func(t *testing.T) {
		rp := a.Annotate(MatchedScenario{}, 147.35, true)

		assert.InDelta(t, 117.90, rp.StopLoss, 1e-9)
		assert.InDelta(t, 206.30, rp.Target, 1e-9)
		assert.InDelta(t, 2.0, rp.RiskReward, 0.01)
	})
}

func TestAnnotateNonPositivePremium(t *testing.T) {
	a := NewAnnotator(30, 60, 20, 40)

	assert.Equal(t, RiskProfile{}, a.Annotate(MatchedScenario{}, 0, false))
	assert.Equal(t, RiskProfile{}, a.Annotate(MatchedScenario{}, -12.5, false))
}

func TestNewAnnotatorDefaults(t *testing.T) {
	a := NewAnnotator(0, 0, 0, 0)

	rp := a.Annotate(MatchedScenario{}, 100, false)
	assert.InDelta(t, 70, rp.StopLoss, 1e-9)
	assert.InDelta(t, 160, rp.Target, 1e-9)
	assert.InDelta(t, 2.0, rp.RiskReward, 1e-9)
}
