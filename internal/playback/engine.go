package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"transcript-sync/internal/platform/logger"
)

// ErrNoCaptureDevice is reported when recording is requested without a device.
var ErrNoCaptureDevice = errors.New("no capture device configured")

// Options wires host capabilities into an Engine. Zero values are valid:
// a wall-clock scheduler, no recording device, no scroller, a discarding logger.
type Options struct {
	Config    Config
	Scheduler Scheduler
	Device    AudioCaptureDevice
	Player    ArtifactPlayer
	Scroller  Scroller
	Rules     []Rule
	Logger    *slog.Logger
	Metrics   Recorder
}

// Engine keeps a transport's position in sync with a transcript and executes
// playback commands. All state changes happen under one lock; events raised
// while locked are delivered after it is released, in order.
type Engine struct {
	mu sync.Mutex

	id         string
	cfg        Config
	transport  Transport
	feed       *Feed
	tracker    *PositionTracker
	speed      *SpeedController
	loop       *LoopController
	recorder   *RecordingSession
	dispatcher *Dispatcher
	scroller   Scroller
	view       ViewState
	slow       *Segment // segment under a one-shot rate override

	events  emitter
	pending []Event
	after   []func()

	ctx    context.Context
	cancel context.CancelFunc
	unsub  []func()
	closed bool

	log     *slog.Logger
	metrics Recorder
}

// New builds an engine over t and feed and subscribes to the transport.
func New(t Transport, feed *Feed, opts Options) *Engine {
	cfg := opts.Config.withDefaults()
	sched := opts.Scheduler
	if sched == nil {
		sched = TickerScheduler{}
	}
	device := opts.Device
	if device == nil {
		device = noDevice{}
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules(cfg.LoopAdjustStep)
	}
	var rec Recorder = nopRecorder{}
	if opts.Metrics != nil {
		rec = opts.Metrics
	}

	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(slog.String("engine_id", id))

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:         id,
		cfg:        cfg,
		transport:  t,
		feed:       feed,
		tracker:    NewPositionTracker(),
		speed:      NewSpeedController(),
		dispatcher: NewDispatcher(rules),
		scroller:   opts.Scroller,
		view:       ViewState{ShowSource: true, ShowTranslation: true},
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
		metrics:    rec,
	}
	if r := t.Rate(); r > 0 {
		e.speed.Set(r)
	}

	e.loop = NewLoopController(t, lockedScheduler{inner: sched, e: e}, cfg)
	e.loop.trackEnd = e.trackEnd
	e.loop.emit = e.enqueue
	e.loop.log = logger.Component(log, "loop")
	e.loop.metrics = rec

	e.recorder = NewRecordingSession(device, opts.Player, sched, cfg)
	e.recorder.emit = func(ev Event) { e.events.deliver(ev) }
	e.recorder.log = logger.Component(log, "recording")
	e.recorder.metrics = rec

	e.unsub = append(e.unsub,
		t.OnPositionChanged(e.HandlePosition),
		t.OnPlayStateChanged(e.handlePlayState),
	)
	return e
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string {
	return e.id
}

// Subscribe registers l for every emitted event.
func (e *Engine) Subscribe(l Listener) {
	e.events.subscribe(l)
}

// Feed returns the segment feed the engine tracks.
func (e *Engine) Feed() *Feed {
	return e.feed
}

// Rules returns the dispatcher's table in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.dispatcher.Rules()
}

// Recording returns the recording session.
func (e *Engine) Recording() *RecordingSession {
	return e.recorder
}

// Append ingests a page of segments and re-resolves the current position
// against the grown feed.
func (e *Engine) Append(page []Segment) error {
	n, err := e.feed.Append(page)
	if err != nil {
		e.metrics.IncSegmentsRejected()
		e.log.Warn("segment page rejected", slog.Int("segments", len(page)), slog.String("error", err.Error()))
		return err
	}
	e.metrics.AddSegmentsIngested(n)
	e.log.Debug("segment page ingested", slog.Int("segments", n), slog.Int("total", e.feed.Len()))
	e.locked(func() {
		e.updatePositionLocked(e.transport.Position())
	})
	return nil
}

// HandlePosition processes one position tick from the transport.
func (e *Engine) HandlePosition(t float64) {
	e.locked(func() {
		e.updatePositionLocked(t)
	})
}

// HandleKey resolves one input event. Dispatch is synchronous.
func (e *Engine) HandleKey(ev KeyEvent) Result {
	var res Result
	e.locked(func() {
		if e.closed {
			return
		}
		res = e.dispatcher.Dispatch(ev, engineCommands{e})
	})
	if res.Handled {
		e.metrics.IncCommand(res.Action)
		e.log.Debug("command dispatched", slog.String("action", res.Action), slog.String("key", ev.Key))
	}
	return res
}

// Exec runs fn against the command set under the engine lock, for hosts that
// trigger commands from buttons rather than keys.
func (e *Engine) Exec(fn func(c Commands)) {
	e.locked(func() {
		if e.closed {
			return
		}
		fn(engineCommands{e})
	})
}

// Locate resolves t without touching the tracker.
func (e *Engine) Locate(t float64) ActiveIndex {
	segs := e.feed.Segments()
	idx := ActiveIndex{Segment: LocateSegment(segs, t), Word: -1}
	if idx.Segment >= 0 {
		idx.Word = LocateWord(segs[idx.Segment].Words, t)
	}
	return idx
}

// Snapshot returns the observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Playback: PlaybackState{
			Position: e.transport.Position(),
			Rate:     e.transport.Rate(),
			Playing:  !e.transport.Paused(),
		},
		Active:    e.tracker.Active(),
		Loop:      e.loop.State(),
		Recording: e.recorder.State(),
		View:      e.view,
		Segments:  e.feed.Len(),
	}
}

// Close cancels the loop timer, unsubscribes from the transport and tears
// down the recording session.
func (e *Engine) Close() error {
	e.locked(func() {
		if e.closed {
			return
		}
		e.closed = true
		e.loop.Stop()
		for _, u := range e.unsub {
			if u != nil {
				u()
			}
		}
		e.unsub = nil
		e.cancel()
	})
	return e.recorder.Close()
}

// locked runs fn under the engine lock, then delivers queued events and runs
// deferred host calls with the lock released.
func (e *Engine) locked(fn func()) {
	e.mu.Lock()
	fn()
	events, after := e.pending, e.after
	e.pending, e.after = nil, nil
	e.mu.Unlock()

	e.events.deliver(events...)
	for _, f := range after {
		f()
	}
}

func (e *Engine) enqueue(ev Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) later(fn func()) {
	e.after = append(e.after, fn)
}

func (e *Engine) updatePositionLocked(t float64) {
	if e.closed {
		return
	}
	for _, ev := range e.tracker.Update(e.feed.Segments(), t) {
		if ev.Kind == EventActiveSegmentChanged {
			e.metrics.IncSegmentChanges()
			if ev.Segment != nil && e.scroller != nil {
				id := ev.Segment.ID
				e.later(func() { e.scroller.ScrollIntoView(id) })
			}
		}
		e.enqueue(ev)
	}
	if e.slow != nil && !e.slow.Contains(t) {
		e.restoreRateLocked()
	}
}

func (e *Engine) handlePlayState(playing bool) {
	e.locked(func() {
		if !playing && e.slow != nil && e.transport.Paused() {
			e.restoreRateLocked()
		}
	})
}

func (e *Engine) restoreRateLocked() {
	e.slow = nil
	e.transport.SetRate(e.speed.ClearOverride())
}

func (e *Engine) activeSegmentLocked() *Segment {
	seg, ok := e.feed.At(e.tracker.Active().Segment)
	if !ok {
		return nil
	}
	return &seg
}

// trackEnd is the transport duration, falling back to the end of the feed.
func (e *Engine) trackEnd() float64 {
	if d := e.transport.Duration(); d > 0 {
		return d
	}
	return e.feed.End()
}

func (e *Engine) playLocked(reason string) {
	if err := e.transport.Play(); err != nil {
		e.log.Warn("transport play failed", slog.String("reason", reason), slog.String("error", err.Error()))
	}
}

// seekSegmentLocked seeks to segment i, resolves the tracker there and plays.
// A running loop is stopped when the target lies outside its interval.
func (e *Engine) seekSegmentLocked(i int) bool {
	seg, ok := e.feed.At(i)
	if !ok {
		return false
	}
	if e.slow != nil {
		e.restoreRateLocked()
	}
	if st := e.loop.State(); st.Polling && (seg.Start < st.Start || seg.Start >= st.End) {
		e.loop.Stop()
	}
	e.transport.SetPosition(seg.Start)
	e.updatePositionLocked(seg.Start)
	e.playLocked(fmt.Sprintf("segment %d", i))
	return true
}

type lockedScheduler struct {
	inner Scheduler
	e     *Engine
}

func (s lockedScheduler) Every(d time.Duration, fn func()) func() {
	return s.inner.Every(d, func() { s.e.locked(fn) })
}

type noDevice struct{}

func (noDevice) Request(context.Context) (CaptureStream, error) {
	return nil, ErrNoCaptureDevice
}

// engineCommands implements Commands against an Engine whose lock is held.
type engineCommands struct {
	e *Engine
}

func (c engineCommands) LoopArmed() bool {
	return c.e.loop.Armed()
}

func (c engineCommands) TogglePlay() {
	e := c.e
	if e.transport.Paused() {
		e.playLocked("toggle")
		return
	}
	e.transport.Pause()
}

func (c engineCommands) StepSegment(delta int) {
	e := c.e
	segs := e.feed.Segments()
	if len(segs) == 0 || delta == 0 {
		return
	}
	cur := e.tracker.Active().Segment
	var target int
	switch {
	case cur >= 0:
		target = cur + delta
	case delta > 0:
		// In a gap or before the first segment: the next one starting after the position.
		pos := e.transport.Position()
		target = sort.Search(len(segs), func(i int) bool { return segs[i].Start > pos })
	default:
		pos := e.transport.Position()
		target = sort.Search(len(segs), func(i int) bool { return segs[i].End > pos }) - 1
	}
	if target < 0 || target >= len(segs) {
		return
	}
	e.seekSegmentLocked(target)
}

func (c engineCommands) ReplaySegment() {
	if cur := c.e.tracker.Active().Segment; cur >= 0 {
		c.e.seekSegmentLocked(cur)
	}
}

func (c engineCommands) PlaySegmentSlow() {
	e := c.e
	cur := e.tracker.Active().Segment
	seg, ok := e.feed.At(cur)
	if !ok {
		return
	}
	e.seekSegmentLocked(cur)
	e.slow = &seg
	e.transport.SetRate(e.speed.Override(e.cfg.SlowRate))
}

func (c engineCommands) JumpToSegment(index int) {
	c.e.seekSegmentLocked(index)
}

func (c engineCommands) ToggleLoop() {
	c.e.loop.Toggle(c.e.activeSegmentLocked())
}

func (c engineCommands) SetLoopPointA() {
	c.e.loop.SetPointA(c.e.activeSegmentLocked())
}

func (c engineCommands) SetLoopPointB() {
	c.e.loop.SetPointB(c.e.activeSegmentLocked())
}

func (c engineCommands) AdjustLoopStart(delta float64) {
	c.e.loop.AdjustStart(delta)
}

func (c engineCommands) AdjustLoopEnd(delta float64) {
	c.e.loop.AdjustEnd(delta)
}

func (c engineCommands) PlayLoop() {
	e := c.e
	if e.slow != nil {
		e.restoreRateLocked()
	}
	if err := e.loop.StartPlayback(); err != nil {
		e.log.Warn("loop playback not started", slog.String("error", err.Error()))
	}
}

func (c engineCommands) SetRepeatCount(n int) {
	c.e.loop.SetRepeatCount(n)
}

func (c engineCommands) SpeedUp() {
	c.e.speed.Increase()
	c.applyRate()
}

func (c engineCommands) SpeedDown() {
	c.e.speed.Decrease()
	c.applyRate()
}

// applyRate drops any one-shot override so the stepped rate takes effect now.
func (c engineCommands) applyRate() {
	e := c.e
	e.slow = nil
	e.transport.SetRate(e.speed.ClearOverride())
}

func (c engineCommands) ToggleSource() {
	c.e.view.ShowSource = !c.e.view.ShowSource
	c.e.enqueue(Event{Kind: EventViewChanged, View: c.e.view})
}

func (c engineCommands) ToggleTranslation() {
	c.e.view.ShowTranslation = !c.e.view.ShowTranslation
	c.e.enqueue(Event{Kind: EventViewChanged, View: c.e.view})
}

func (c engineCommands) ToggleRecording() {
	e := c.e
	e.later(func() { e.recorder.Toggle(e.ctx) })
}

func (c engineCommands) PlayRecording() {
	e := c.e
	e.later(func() {
		go func() {
			if err := e.recorder.Play(e.ctx); err != nil {
				e.log.Warn("recording playback failed", slog.String("error", err.Error()))
			}
		}()
	})
}
