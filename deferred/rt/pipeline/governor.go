package pipeline

import (
	"time"

	"github.com/gekko3d/lumen"
)

// governorWindow is the number of frames averaged before a decision.
const governorWindow = 60

// QualityGovernor steps the quality tier to keep the average frame time
// within tolerance of the target.
type QualityGovernor struct {
	settings lumen.QualitySettings
	tier     lumen.QualityTier

	window   [governorWindow]time.Duration
	n        int
	sum      time.Duration
	cooldown int
}

func NewQualityGovernor(settings lumen.QualitySettings) *QualityGovernor {
	return &QualityGovernor{settings: settings, tier: settings.Tier}
}

func (g *QualityGovernor) Tier() lumen.QualityTier { return g.tier }

// Average is the mean over the frames currently in the window.
func (g *QualityGovernor) Average() time.Duration {
	if g.n == 0 {
		return 0
	}
	return g.sum / time.Duration(min(g.n, governorWindow))
}

// Observe records a frame time and reports the new tier when it changed.
func (g *QualityGovernor) Observe(frame time.Duration) (lumen.QualityTier, bool) {
	i := g.n % governorWindow
	if g.n >= governorWindow {
		g.sum -= g.window[i]
	}
	g.window[i] = frame
	g.sum += frame
	g.n++

	if g.cooldown > 0 {
		g.cooldown--
		return g.tier, false
	}
	if g.n < governorWindow {
		return g.tier, false
	}

	avg := float32(g.Average().Microseconds()) / 1000
	target, tol := g.settings.TargetFrameTimeMs, g.settings.ToleranceMs
	next := g.tier
	switch {
	case avg > target+tol && g.tier > g.settings.MinTier:
		next--
	case avg < target-tol && g.tier < lumen.QualityUltra:
		next++
	}
	if next == g.tier {
		return g.tier, false
	}
	g.tier = next
	g.cooldown = g.settings.CooldownFrames
	g.n, g.sum = 0, 0
	return next, true
}
