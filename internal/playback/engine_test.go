package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

type engineFixture struct {
	e        *Engine
	tr       *fakeTransport
	sched    *ManualScheduler
	scroller *fakeScroller
	events   *eventLog
	dev      *fakeDevice
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		tr:       newFakeTransport(20),
		sched:    NewManualScheduler(),
		scroller: &fakeScroller{},
		events:   &eventLog{},
		dev:      &fakeDevice{},
	}
	feed := NewFeed(IngestReject)
	if _, err := feed.Append(fiveSegments()); err != nil {
		t.Fatal(err)
	}
	f.e = New(f.tr, feed, Options{
		Scheduler: f.sched,
		Scroller:  f.scroller,
		Device:    f.dev,
	})
	f.e.Subscribe(f.events.listen)
	t.Cleanup(func() { f.e.Close() })
	return f
}

func (f *engineFixture) key(k string) Result {
	return f.e.HandleKey(KeyEvent{Key: k})
}

func TestEngine_position_ticks_emit_and_scroll(t *testing.T) {
	f := newEngineFixture(t)

	f.tr.moveTo(2.5)
	f.tr.moveTo(2.6)
	f.tr.moveTo(4.1)

	segEvents := f.events.ofKind(EventActiveSegmentChanged)
	if len(segEvents) != 2 {
		t.Fatalf("segment events = %d, want 2", len(segEvents))
	}
	if segEvents[0].LocalIndex != 1 || segEvents[0].GlobalIndex != 2 || segEvents[0].Segment.ID != "2" {
		t.Errorf("first segment event = %+v", segEvents[0])
	}
	if got := f.scroller.scrolled(); len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Errorf("scrolled = %v", got)
	}
	if got := f.e.Snapshot().Active; got.Segment != 2 || got.Word != -1 {
		t.Errorf("active = %+v", got)
	}
}

func TestEngine_step_segments_and_bounds(t *testing.T) {
	f := newEngineFixture(t)

	f.tr.moveTo(2.5)
	if res := f.key("ArrowRight"); !res.Handled || res.Action != "segment.next" {
		t.Fatalf("res = %+v", res)
	}
	if f.tr.Position() != 4 || f.tr.Paused() {
		t.Errorf("next: pos=%v paused=%v", f.tr.Position(), f.tr.Paused())
	}

	f.tr.moveTo(8.5)
	f.key("ArrowRight")
	if f.tr.Position() != 8.5 {
		t.Errorf("next on last segment should not seek, pos=%v", f.tr.Position())
	}

	f.tr.moveTo(0.5)
	f.key("ArrowLeft")
	if f.tr.Position() != 0.5 {
		t.Errorf("previous on first segment should not seek, pos=%v", f.tr.Position())
	}

	f.tr.moveTo(6.5)
	f.key("ArrowLeft")
	if f.tr.Position() != 4 {
		t.Errorf("previous: pos=%v, want 4", f.tr.Position())
	}
}

func TestEngine_step_from_gap(t *testing.T) {
	tr := newFakeTransport(20)
	feed := NewFeed(IngestReject)
	feed.Append([]Segment{{ID: "a", Start: 0, End: 2}, {ID: "b", Start: 5, End: 7}})
	e := New(tr, feed, Options{Scheduler: NewManualScheduler()})
	defer e.Close()

	tr.moveTo(3)
	e.HandleKey(KeyEvent{Key: "ArrowRight"})
	if tr.Position() != 5 {
		t.Errorf("next from gap: pos=%v, want 5", tr.Position())
	}
	tr.moveTo(3)
	e.HandleKey(KeyEvent{Key: "ArrowLeft"})
	if tr.Position() != 0 {
		t.Errorf("previous from gap: pos=%v, want 0", tr.Position())
	}
}

func TestEngine_digit_jump(t *testing.T) {
	f := newEngineFixture(t)
	f.key("3")
	if f.tr.Position() != 4 {
		t.Errorf("digit 3: pos=%v, want 4 (segment index 2)", f.tr.Position())
	}
	f.key("0")
	if f.tr.Position() != 0 {
		t.Errorf("digit 0: pos=%v, want 0", f.tr.Position())
	}
	f.tr.set(1)
	f.key("9")
	if f.tr.Position() != 1 {
		t.Errorf("digit past the feed should not seek, pos=%v", f.tr.Position())
	}
}

func TestEngine_toggle_play(t *testing.T) {
	f := newEngineFixture(t)
	f.key(" ")
	if f.tr.Paused() {
		t.Error("space should play")
	}
	f.key("k")
	if !f.tr.Paused() {
		t.Error("k should pause")
	}
}

func TestEngine_loop_flow(t *testing.T) {
	f := newEngineFixture(t)
	f.tr.moveTo(2.5)

	f.key("l")
	if st := f.e.Snapshot().Loop; !st.Armed || st.Start != 2 || st.End != 4 {
		t.Fatalf("loop = %+v", st)
	}
	f.key("2")
	if st := f.e.Snapshot().Loop; st.RepeatCount != 2 {
		t.Errorf("armed digit should set repeat count, got %+v", st)
	}
	if f.tr.Position() != 2.5 {
		t.Error("armed digit must not seek")
	}

	f.key("Enter")
	if f.sched.Live() != 1 || f.tr.Position() != 2 {
		t.Fatalf("loop playback: live=%d pos=%v", f.sched.Live(), f.tr.Position())
	}

	f.tr.set(4)
	f.sched.Advance(50 * time.Millisecond)
	if st := f.e.Snapshot().Loop; st.CurrentRepeat != 1 || f.tr.Position() != 2 {
		t.Errorf("after first pass: %+v pos=%v", st, f.tr.Position())
	}
	f.tr.set(4)
	f.sched.Advance(50 * time.Millisecond)
	if !f.tr.Paused() || f.sched.Live() != 0 {
		t.Error("loop should finish after two passes")
	}
	if len(f.events.ofKind(EventLoopStateChanged)) == 0 {
		t.Error("expected loop events")
	}

	f.key("l")
	if f.e.Snapshot().Loop.Armed {
		t.Error("second l disarms")
	}
}

func TestEngine_seek_outside_loop_stops_polling(t *testing.T) {
	f := newEngineFixture(t)
	f.tr.moveTo(2.5)
	f.key("l")
	f.key("Enter")

	f.key("r")
	if f.sched.Live() != 1 {
		t.Error("replay inside the loop keeps polling")
	}

	f.key("ArrowRight")
	st := f.e.Snapshot().Loop
	if st.Polling || f.sched.Live() != 0 {
		t.Error("seek outside the loop should stop polling")
	}
	if !st.Armed {
		t.Error("bounds stay armed")
	}
}

func TestEngine_slow_replay_restores_rate(t *testing.T) {
	f := newEngineFixture(t)
	f.key("=")
	if f.tr.Rate() != 1.25 {
		t.Fatalf("rate = %v", f.tr.Rate())
	}

	f.tr.moveTo(2.5)
	f.e.HandleKey(KeyEvent{Key: "R", Shift: true})
	if f.tr.Rate() != 0.75 || f.tr.Position() != 2 {
		t.Fatalf("slow replay: rate=%v pos=%v", f.tr.Rate(), f.tr.Position())
	}
	f.tr.moveTo(3)
	if f.tr.Rate() != 0.75 {
		t.Error("rate restored too early")
	}
	f.tr.moveTo(4.01)
	if f.tr.Rate() != 1.25 {
		t.Errorf("rate after leaving segment = %v, want 1.25", f.tr.Rate())
	}
}

func TestEngine_slow_replay_restored_on_pause(t *testing.T) {
	f := newEngineFixture(t)
	f.tr.moveTo(2.5)
	f.e.HandleKey(KeyEvent{Key: "r", Shift: true})
	f.tr.Pause()
	f.tr.notifyPlayState()
	if f.tr.Rate() != 1 {
		t.Errorf("rate after pause = %v, want 1", f.tr.Rate())
	}
}

func TestEngine_view_toggles(t *testing.T) {
	f := newEngineFixture(t)
	f.key("s")
	f.key("t")
	v := f.e.Snapshot().View
	if v.ShowSource || v.ShowTranslation {
		t.Errorf("view = %+v", v)
	}
	if got := len(f.events.ofKind(EventViewChanged)); got != 2 {
		t.Errorf("view events = %d", got)
	}
}

func TestEngine_editable_ignored(t *testing.T) {
	f := newEngineFixture(t)
	if res := f.e.HandleKey(KeyEvent{Key: " ", Editable: true}); res.Handled {
		t.Error("editable target must not dispatch")
	}
	if !f.tr.Paused() {
		t.Error("transport should be untouched")
	}
}

func TestEngine_Append_resolves_position(t *testing.T) {
	tr := newFakeTransport(30)
	feed := NewFeed(IngestReject)
	events := &eventLog{}
	e := New(tr, feed, Options{Scheduler: NewManualScheduler()})
	defer e.Close()
	e.Subscribe(events.listen)

	tr.moveTo(12)
	if len(events.ofKind(EventActiveSegmentChanged)) != 0 {
		t.Fatal("nothing to resolve yet")
	}
	if err := e.Append([]Segment{{ID: "7", Start: 10, End: 14}}); err != nil {
		t.Fatal(err)
	}
	evs := events.ofKind(EventActiveSegmentChanged)
	if len(evs) != 1 || evs[0].GlobalIndex != 7 || evs[0].LocalIndex != 0 {
		t.Errorf("events = %+v", evs)
	}
	if err := e.Append([]Segment{{ID: "8", Start: 11, End: 12}}); !errors.Is(err, ErrInvalidSegments) {
		t.Errorf("overlapping page: %v", err)
	}
}

func TestEngine_recording_via_keys(t *testing.T) {
	f := newEngineFixture(t)
	f.e.HandleKey(KeyEvent{Key: "r", Meta: true})

	deadline := time.Now().Add(2 * time.Second)
	for f.e.Recording().State().Status != RecordingActive {
		if time.Now().After(deadline) {
			t.Fatal("recording did not start")
		}
		time.Sleep(time.Millisecond)
	}
	if f.tr.Position() != 0 || !f.tr.Paused() {
		t.Error("recording must not touch the transcript transport")
	}
	f.e.HandleKey(KeyEvent{Key: "r", Ctrl: true})
	if st := f.e.Recording().State(); st.Status != RecordingStopped {
		t.Errorf("status = %v", st.Status)
	}
	// The start event may still be draining on the capture goroutine.
	for len(f.events.ofKind(EventRecordingStateChanged)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("recording events should reach engine subscribers")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_recording_without_device(t *testing.T) {
	tr := newFakeTransport(10)
	e := New(tr, NewFeed(IngestReject), Options{Scheduler: NewManualScheduler()})
	defer e.Close()
	if err := e.Recording().Start(context.Background()); !errors.Is(err, ErrNoCaptureDevice) {
		t.Errorf("got %v", err)
	}
}

func TestEngine_Close(t *testing.T) {
	f := newEngineFixture(t)
	f.tr.moveTo(2.5)
	f.key("l")
	f.key("Enter")

	if err := f.e.Close(); err != nil {
		t.Fatal(err)
	}
	if f.sched.Live() != 0 {
		t.Error("Close should cancel the loop timer")
	}
	f.events.reset()
	f.tr.moveTo(6)
	if len(f.events.kinds()) != 0 {
		t.Error("no events after Close")
	}
	if res := f.key(" "); res.Handled {
		t.Error("keys ignored after Close")
	}
}

func TestEngine_Locate(t *testing.T) {
	f := newEngineFixture(t)
	if got := f.e.Locate(3.5); got.Segment != 1 || got.Word != 1 {
		t.Errorf("Locate(3.5) = %+v", got)
	}
	if got := f.e.Locate(50); got != NoActive {
		t.Errorf("Locate(50) = %+v", got)
	}
	if f.e.Snapshot().Active != NoActive {
		t.Error("Locate must not move the tracker")
	}
}

func TestEngine_initial_rate_from_transport(t *testing.T) {
	tr := newFakeTransport(10)
	tr.rate = 1.5
	e := New(tr, NewFeed(IngestReject), Options{Scheduler: NewManualScheduler()})
	defer e.Close()
	e.HandleKey(KeyEvent{Key: "-"})
	if tr.Rate() != 1.25 {
		t.Errorf("rate = %v, want 1.25", tr.Rate())
	}
}

func TestEngine_consecutive_steps_resolve_immediately(t *testing.T) {
	f := newEngineFixture(t)
	f.tr.moveTo(0.1)

	f.key("ArrowRight")
	f.key("ArrowRight")
	if got := f.tr.seeks; len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("seeks = %v, want [2 4]", got)
	}
	if got := f.e.Snapshot().Active.Segment; got != 2 {
		t.Errorf("active segment = %d, want 2", got)
	}
	if got := f.scroller.scrolled(); len(got) != 3 || got[2] != "3" {
		t.Errorf("scrolled = %v, want the seek target last", got)
	}

	f.e.HandleKey(KeyEvent{Key: "R", Shift: true})
	if f.tr.Position() != 4 || f.tr.Rate() != 0.75 {
		t.Errorf("slow replay after step: pos=%v rate=%v", f.tr.Position(), f.tr.Rate())
	}
}

func TestEngine_listener_may_call_back(t *testing.T) {
	f := newEngineFixture(t)
	var order []EventKind
	f.e.Subscribe(func(ev Event) {
		order = append(order, ev.Kind)
		if ev.Kind == EventActiveSegmentChanged && ev.Segment != nil && ev.Segment.ID == "2" {
			f.key("l")
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.tr.moveTo(2.5)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling HandleKey never returned")
	}

	if st := f.e.Snapshot().Loop; !st.Armed || st.Start != 2 || st.End != 4 {
		t.Errorf("loop = %+v", st)
	}
	// The word event raised by the same tick is delivered before the loop
	// event raised from inside the listener.
	want := []EventKind{EventActiveSegmentChanged, EventActiveWordChanged, EventLoopStateChanged}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}
