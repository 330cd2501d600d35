package playback

import (
	"context"
	"slices"
	"sync"
)

// fakeTransport is a Transport whose clock moves only when a test says so.
type fakeTransport struct {
	mu       sync.Mutex
	pos      float64
	rate     float64
	duration float64
	playing  bool
	playErr  error
	seeks    []float64

	posSubs  []func(float64)
	playSubs []func(bool)
}

func newFakeTransport(duration float64) *fakeTransport {
	return &fakeTransport{rate: 1, duration: duration}
}

func (f *fakeTransport) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeTransport) SetPosition(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = t
	f.seeks = append(f.seeks, t)
}

func (f *fakeTransport) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeTransport) SetRate(r float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = r
}

func (f *fakeTransport) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeTransport) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeTransport) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.playing
}

func (f *fakeTransport) Duration() float64 {
	return f.duration
}

func (f *fakeTransport) OnPositionChanged(fn func(float64)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.posSubs)
	f.posSubs = append(f.posSubs, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.posSubs[i] = nil
	}
}

func (f *fakeTransport) OnPlayStateChanged(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.playSubs)
	f.playSubs = append(f.playSubs, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.playSubs[i] = nil
	}
}

// moveTo sets the position and delivers a position tick.
func (f *fakeTransport) moveTo(t float64) {
	f.mu.Lock()
	f.pos = t
	subs := slices.Clone(f.posSubs)
	f.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(t)
		}
	}
}

// notifyPlayState delivers the current play state to subscribers.
func (f *fakeTransport) notifyPlayState() {
	f.mu.Lock()
	playing := f.playing
	subs := slices.Clone(f.playSubs)
	f.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(playing)
		}
	}
}

func (f *fakeTransport) set(pos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

type fakeScroller struct {
	mu  sync.Mutex
	ids []string
}

func (s *fakeScroller) ScrollIntoView(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

func (s *fakeScroller) scrolled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fakeStream struct {
	ch   chan []byte
	once sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan []byte)}
}

func (s *fakeStream) Data() <-chan []byte { return s.ch }
func (s *fakeStream) MIMEType() string    { return "audio/test" }

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type fakeDevice struct {
	mu       sync.Mutex
	err      error
	streams  []*fakeStream
	requests int
}

func (d *fakeDevice) Request(context.Context) (CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(_ context.Context, a *Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, a.ID)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) ofKind(k EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// fiveSegments covers [0,10) in 2s segments with ids "1".."5".
func fiveSegments() []Segment {
	return []Segment{
		{ID: "1", Start: 0, End: 2, Text: "uno", Words: []Word{{Text: "uno", Start: 0, End: 1}}},
		{ID: "2", Start: 2, End: 4, Text: "dos tres", Words: []Word{{Text: "dos", Start: 2, End: 3}, {Text: "tres", Start: 3, End: 4}}},
		{ID: "3", Start: 4, End: 6, Text: "cuatro"},
		{ID: "4", Start: 6, End: 8, Text: "cinco"},
		{ID: "5", Start: 8, End: 10, Text: "seis"},
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
