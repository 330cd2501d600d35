package playback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Transport is the host's media element. Only the engine's command set and the
// LoopController call its mutating methods.
//
// Implementations must not invoke subscribers synchronously from inside
// SetPosition, SetRate, Play or Pause: the engine calls those while holding its
// lock and handles notifications by taking the same lock.
type Transport interface {
	Position() float64
	SetPosition(t float64)
	Rate() float64
	SetRate(r float64)
	Play() error
	Pause()
	Paused() bool
	// Duration is the media length in seconds, or 0 when unknown.
	Duration() float64
	OnPositionChanged(fn func(t float64)) (unsubscribe func())
	OnPlayStateChanged(fn func(playing bool)) (unsubscribe func())
}

// Scroller asks the host to bring a segment into view.
type Scroller interface {
	ScrollIntoView(segmentID string)
}

// AudioCaptureDevice grants access to a microphone.
type AudioCaptureDevice interface {
	// Request asks for permission and opens a stream. Denial should be
	// reported as an error wrapping ErrPermissionDenied.
	Request(ctx context.Context) (CaptureStream, error)
}

// CaptureStream is an open capture. Data is closed once the stream has stopped
// and every chunk has been delivered.
type CaptureStream interface {
	Data() <-chan []byte
	MIMEType() string
	Stop() error
}

// ArtifactPlayer plays a recorded artifact on an audio path that is
// independent of the transcript transport.
type ArtifactPlayer interface {
	Play(ctx context.Context, a *Artifact) error
}

// Scheduler runs fn every d until the returned cancel is called.
// Cancel is idempotent and may be called from inside fn.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
}

// TickerScheduler is the wall-clock Scheduler backed by time.Ticker.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler is a Scheduler driven by Advance instead of the wall clock.
// It is used by tests and by offline simulation.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	id    int
	every time.Duration
	due   time.Duration
	fn    func()
}

// NewManualScheduler returns a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{timers: make(map[int]*manualTimer)}
}

// Every implements Scheduler.
func (s *ManualScheduler) Every(d time.Duration, fn func()) func() {
	if d <= 0 {
		d = time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.timers[id] = &manualTimer{id: id, every: d, due: s.now + d, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, id)
	}
}

// Advance moves virtual time forward by d, firing due callbacks in time order.
// Callbacks run without the scheduler lock held.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		t := s.earliestLocked(target)
		if t == nil {
			break
		}
		s.now = t.due
		t.due += t.every
		fn := t.fn
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Live returns the number of uncancelled timers.
func (s *ManualScheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Now returns the virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) earliestLocked(limit time.Duration) *manualTimer {
	if len(s.timers) == 0 {
		return nil
	}
	due := make([]*manualTimer, 0, len(s.timers))
	for _, t := range s.timers {
		if t.due <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}
