package playback

import "math"

const (
	MinRate     = 0.5
	MaxRate     = 2.0
	RateStep    = 0.25
	DefaultRate = 1.0
)

// SpeedController holds the persisted playback rate and an optional one-shot
// override that does not touch it.
type SpeedController struct {
	rate     float64
	override float64
}

// NewSpeedController starts at DefaultRate with no override.
func NewSpeedController() *SpeedController {
	return &SpeedController{rate: DefaultRate}
}

// Rate returns the persisted rate.
func (s *SpeedController) Rate() float64 {
	return s.rate
}

// Effective returns the override when one is active, else the persisted rate.
func (s *SpeedController) Effective() float64 {
	if s.override > 0 {
		return s.override
	}
	return s.rate
}

// Increase steps the rate up, clamping silently at MaxRate.
func (s *SpeedController) Increase() float64 {
	s.rate = clampRate(s.rate + RateStep)
	return s.rate
}

// Decrease steps the rate down, clamping silently at MinRate.
func (s *SpeedController) Decrease() float64 {
	s.rate = clampRate(s.rate - RateStep)
	return s.rate
}

// Set replaces the persisted rate, snapped to the step grid and clamped.
func (s *SpeedController) Set(r float64) float64 {
	s.rate = clampRate(r)
	return s.rate
}

// Override applies a transient rate for a single operation.
func (s *SpeedController) Override(r float64) float64 {
	s.override = clampRate(r)
	return s.override
}

// Overridden reports whether a one-shot rate is active.
func (s *SpeedController) Overridden() bool {
	return s.override > 0
}

// ClearOverride drops the one-shot rate and returns the persisted one.
func (s *SpeedController) ClearOverride() float64 {
	s.override = 0
	return s.rate
}

func clampRate(r float64) float64 {
	if math.IsNaN(r) {
		return DefaultRate
	}
	r = math.Round(r/RateStep) * RateStep
	return math.Min(MaxRate, math.Max(MinRate, r))
}
