// Package transport provides an in-memory media element for headless hosts,
// simulation and tests.
package transport

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultTick approximates the cadence of a browser's timeupdate event.
const DefaultTick = 250 * time.Millisecond

// Memory simulates a media element. Time advances only through Advance, which
// Run drives from the wall clock. Subscribers are notified from Advance, never
// from the command methods.
type Memory struct {
	mu          sync.Mutex
	duration    float64
	position    float64
	rate        float64
	playing     bool
	lastEmitted float64
	queued      []bool
	playErr     error

	nextID   int
	posSubs  map[int]func(float64)
	playSubs map[int]func(bool)
}

// NewMemory returns a paused transport of the given length in seconds.
// A non-positive duration means unknown length.
func NewMemory(duration float64) *Memory {
	if duration < 0 || math.IsNaN(duration) {
		duration = 0
	}
	return &Memory{
		duration:    duration,
		rate:        1,
		lastEmitted: math.NaN(),
		posSubs:     make(map[int]func(float64)),
		playSubs:    make(map[int]func(bool)),
	}
}

// Position returns the current position in seconds.
func (m *Memory) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetPosition seeks, clamping into the media.
func (m *Memory) SetPosition(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = m.clampLocked(t)
}

// Rate returns the playback rate.
func (m *Memory) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// SetRate changes the playback rate. Non-positive rates are ignored.
func (m *Memory) SetRate(r float64) {
	if r <= 0 || math.IsNaN(r) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = r
}

// Play starts playback, restarting from zero when at the end.
func (m *Memory) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return m.playErr
	}
	if m.duration > 0 && m.position >= m.duration {
		m.position = 0
	}
	if !m.playing {
		m.playing = true
		m.queued = append(m.queued, true)
	}
	return nil
}

// Pause stops playback.
func (m *Memory) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.playing = false
		m.queued = append(m.queued, false)
	}
}

// Paused reports whether playback is stopped.
func (m *Memory) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.playing
}

// Duration returns the media length in seconds, or 0 when unknown.
func (m *Memory) Duration() float64 {
	return m.duration
}

// FailPlay makes subsequent Play calls return err, like a rejected autoplay.
// Pass nil to clear.
func (m *Memory) FailPlay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// OnPositionChanged subscribes fn to position ticks.
func (m *Memory) OnPositionChanged(fn func(t float64)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.posSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.posSubs, id)
	}
}

// OnPlayStateChanged subscribes fn to play/pause transitions.
func (m *Memory) OnPlayStateChanged(fn func(playing bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.playSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.playSubs, id)
	}
}

// Advance moves media time forward by d of wall time, then delivers queued
// play-state changes and, if the position moved, one position tick.
func (m *Memory) Advance(d time.Duration) {
	m.mu.Lock()
	if m.playing && d > 0 {
		m.position += d.Seconds() * m.rate
		if m.duration > 0 && m.position >= m.duration {
			m.position = m.duration
			m.playing = false
			m.queued = append(m.queued, false)
		}
	}
	queued := m.queued
	m.queued = nil

	pos := m.position
	emitPos := pos != m.lastEmitted
	m.lastEmitted = pos

	playSubs := make([]func(bool), 0, len(m.playSubs))
	for _, fn := range m.playSubs {
		playSubs = append(playSubs, fn)
	}
	posSubs := make([]func(float64), 0, len(m.posSubs))
	for _, fn := range m.posSubs {
		posSubs = append(posSubs, fn)
	}
	m.mu.Unlock()

	for _, playing := range queued {
		for _, fn := range playSubs {
			fn(playing)
		}
	}
	if emitPos {
		for _, fn := range posSubs {
			fn(pos)
		}
	}
}

// Run advances the transport from the wall clock every tick until ctx ends.
func (m *Memory) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Advance(now.Sub(last))
			last = now
		}
	}
}

func (m *Memory) clampLocked(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if m.duration > 0 && t > m.duration {
		return m.duration
	}
	return t
}
