package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"transcript-sync/internal/platform/logger"
)

const (
	MinRepeatCount     = 1
	MaxRepeatCount     = 10
	DefaultRepeatCount = 3
)

// ErrLoopNotArmed is returned by StartPlayback when no A/B interval is set.
var ErrLoopNotArmed = errors.New("loop is not armed")

// LoopController enforces an A/B interval for a bounded number of repeats.
//
// Boundary detection uses its own fixed-interval poll timer rather than the
// transport's position ticks, which are too coarse and irregular. Overshoot is
// bounded by one poll interval. The timer is an owned resource: every
// transition that invalidates the bounds cancels it before returning, and a
// callback from a cancelled timer is ignored via the generation counter.
type LoopController struct {
	transport Transport
	sched     Scheduler
	interval  time.Duration
	minWidth  float64
	trackEnd  func() float64
	emit      func(Event)
	log       *slog.Logger
	metrics   Recorder

	start         float64
	end           float64
	armed         bool
	repeatCount   int
	currentRepeat int

	cancel func()
	gen    uint64
}

// NewLoopController returns an idle controller. The track end defaults to the
// transport's duration.
func NewLoopController(t Transport, sched Scheduler, cfg Config) *LoopController {
	cfg = cfg.withDefaults()
	return &LoopController{
		transport:   t,
		sched:       sched,
		interval:    cfg.LoopPollInterval,
		minWidth:    cfg.LoopMinWidth,
		trackEnd:    t.Duration,
		emit:        func(Event) {},
		log:         logger.Nop(),
		metrics:     nopRecorder{},
		repeatCount: cfg.RepeatCount,
	}
}

// State returns a snapshot.
func (c *LoopController) State() LoopState {
	return LoopState{
		Start:         c.start,
		End:           c.end,
		RepeatCount:   c.repeatCount,
		CurrentRepeat: c.currentRepeat,
		Armed:         c.armed,
		Polling:       c.cancel != nil,
	}
}

// Armed reports whether an interval is set.
func (c *LoopController) Armed() bool {
	return c.armed
}

// Polling reports whether a poll timer is live.
func (c *LoopController) Polling() bool {
	return c.cancel != nil
}

// Toggle disarms an armed loop, or arms one over active. It returns the new
// armed state; with nothing armed and no active segment it does nothing.
func (c *LoopController) Toggle(active *Segment) bool {
	if c.armed {
		c.cancelTimer()
		c.armed = false
		c.start, c.end = 0, 0
		c.currentRepeat = 0
		c.log.Debug("loop disarmed")
		c.emitState()
		return false
	}
	if active == nil {
		return false
	}
	c.cancelTimer()
	c.start, c.end = active.Start, active.End
	c.armed = true
	c.currentRepeat = 0
	c.clampToTrack()
	c.log.Debug("loop armed", slog.Float64("start", c.start), slog.Float64("end", c.end))
	c.emitState()
	return true
}

// SetPointA moves the start bound to the active segment's start.
func (c *LoopController) SetPointA(active *Segment) bool {
	if active == nil {
		return false
	}
	c.cancelTimer()
	c.currentRepeat = 0
	c.start = active.Start
	if !c.armed || c.end <= c.start {
		c.end = active.End
	}
	c.armed = true
	c.clampToTrack()
	c.log.Debug("loop point A set", slog.Float64("start", c.start), slog.Float64("end", c.end))
	c.emitState()
	return true
}

// SetPointB moves the end bound to the active segment's end.
func (c *LoopController) SetPointB(active *Segment) bool {
	if active == nil {
		return false
	}
	c.cancelTimer()
	c.currentRepeat = 0
	c.end = active.End
	if !c.armed || c.start >= c.end {
		c.start = active.Start
	}
	c.armed = true
	c.clampToTrack()
	c.log.Debug("loop point B set", slog.Float64("start", c.start), slog.Float64("end", c.end))
	c.emitState()
	return true
}

// AdjustStart shifts the start bound by delta seconds, clamped to the track
// and to a minimum interval width.
func (c *LoopController) AdjustStart(delta float64) bool {
	if !c.armed || math.IsNaN(delta) {
		return false
	}
	c.cancelTimer()
	c.currentRepeat = 0

	s := clamp(c.start+delta, 0, c.trackLimit())
	if s > c.end-c.minWidth {
		s = c.end - c.minWidth
	}
	if s < 0 {
		s = 0
	}
	if s < c.end {
		c.start = s
	}
	c.emitState()
	return true
}

// AdjustEnd shifts the end bound by delta seconds, clamped to the track and to
// a minimum interval width.
func (c *LoopController) AdjustEnd(delta float64) bool {
	if !c.armed || math.IsNaN(delta) {
		return false
	}
	c.cancelTimer()
	c.currentRepeat = 0

	limit := c.trackLimit()
	e := clamp(c.end+delta, 0, limit)
	if e < c.start+c.minWidth {
		e = c.start + c.minWidth
	}
	if e > limit {
		e = limit
	}
	if e > c.start {
		c.end = e
	}
	c.emitState()
	return true
}

// SetRepeatCount clamps n to [1,10]. The count applies from the next
// StartPlayback; a running loop is stopped.
func (c *LoopController) SetRepeatCount(n int) int {
	if n < MinRepeatCount {
		n = MinRepeatCount
	}
	if n > MaxRepeatCount {
		n = MaxRepeatCount
	}
	c.cancelTimer()
	c.repeatCount = n
	c.currentRepeat = 0
	c.emitState()
	return n
}

// StartPlayback seeks to the start bound, plays, and starts the single poll
// timer. Any timer already running is cancelled first.
func (c *LoopController) StartPlayback() error {
	if !c.armed {
		return ErrLoopNotArmed
	}
	c.cancelTimer()
	c.currentRepeat = 0
	c.transport.SetPosition(c.start)
	if err := c.transport.Play(); err != nil {
		c.emitState()
		return fmt.Errorf("start loop playback: %w", err)
	}

	gen := c.gen
	c.cancel = c.sched.Every(c.interval, func() { c.poll(gen) })
	c.metrics.SetLoopTimersActive(1)
	c.log.Debug("loop polling",
		slog.Float64("start", c.start),
		slog.Float64("end", c.end),
		slog.Int("repeat_count", c.repeatCount))
	c.emitState()
	return nil
}

// Stop cancels the poll timer without touching the bounds.
func (c *LoopController) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancelTimer()
	c.emitState()
}

func (c *LoopController) poll(gen uint64) {
	if gen != c.gen || c.cancel == nil || !c.armed {
		return
	}
	if c.transport.Position() < c.end {
		return
	}

	if c.currentRepeat < c.repeatCount-1 {
		c.currentRepeat++
		c.transport.SetPosition(c.start)
		c.metrics.IncLoopRepeats()
		c.log.Debug("loop repeat", slog.Int("current_repeat", c.currentRepeat))
		c.emitState()
		return
	}

	c.cancelTimer()
	c.transport.Pause()
	c.currentRepeat = 0
	c.metrics.IncLoopCompletions()
	c.log.Debug("loop complete", slog.Int("repeat_count", c.repeatCount))
	c.emitState()
}

func (c *LoopController) cancelTimer() {
	c.gen++
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.metrics.SetLoopTimersActive(0)
}

func (c *LoopController) clampToTrack() {
	limit := c.trackLimit()
	if c.end > limit && limit > c.start {
		c.end = limit
	}
}

// trackLimit is the track end, or +Inf when the duration is unknown.
func (c *LoopController) trackLimit() float64 {
	te := c.trackEnd()
	if te <= 0 || math.IsNaN(te) {
		return math.Inf(1)
	}
	return te
}

func (c *LoopController) emitState() {
	c.emit(Event{Kind: EventLoopStateChanged, Loop: c.State()})
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
