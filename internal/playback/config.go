package playback

import "time"

// Config carries the engine's tuning knobs.
type Config struct {
	LoopPollInterval time.Duration
	LoopMinWidth     float64 // seconds
	LoopAdjustStep   float64 // seconds per fine-adjust key press
	RepeatCount      int
	SlowRate         float64
	RecordingTick    time.Duration
	IngestPolicy     IngestPolicy
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		LoopPollInterval: 50 * time.Millisecond,
		LoopMinWidth:     0.1,
		LoopAdjustStep:   0.1,
		RepeatCount:      DefaultRepeatCount,
		SlowRate:         0.75,
		RecordingTick:    time.Second,
		IngestPolicy:     IngestReject,
	}
}

// withDefaults fills zero or out-of-range fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LoopPollInterval <= 0 {
		c.LoopPollInterval = d.LoopPollInterval
	}
	if c.LoopMinWidth <= 0 {
		c.LoopMinWidth = d.LoopMinWidth
	}
	if c.LoopAdjustStep <= 0 {
		c.LoopAdjustStep = d.LoopAdjustStep
	}
	if c.RepeatCount < MinRepeatCount || c.RepeatCount > MaxRepeatCount {
		c.RepeatCount = d.RepeatCount
	}
	if c.SlowRate <= 0 {
		c.SlowRate = d.SlowRate
	}
	if c.RecordingTick <= 0 {
		c.RecordingTick = d.RecordingTick
	}
	return c
}

// Recorder receives engine metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	IncCommand(action string)
	IncSegmentChanges()
	AddSegmentsIngested(n int)
	IncSegmentsRejected()
	IncLoopRepeats()
	IncLoopCompletions()
	SetLoopTimersActive(n int)
	IncRecordings()
	IncRecordingFailures()
}

type nopRecorder struct{}

func (nopRecorder) IncCommand(string)       {}
func (nopRecorder) IncSegmentChanges()      {}
func (nopRecorder) AddSegmentsIngested(int) {}
func (nopRecorder) IncSegmentsRejected()    {}
func (nopRecorder) IncLoopRepeats()         {}
func (nopRecorder) IncLoopCompletions()     {}
func (nopRecorder) SetLoopTimersActive(int) {}
func (nopRecorder) IncRecordings()          {}
func (nopRecorder) IncRecordingFailures()   {}
