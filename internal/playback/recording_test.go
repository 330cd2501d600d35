package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"transcript-sync/internal/platform/logger"
)

func newTestSession(dev *fakeDevice, player ArtifactPlayer) (*RecordingSession, *ManualScheduler, *eventLog) {
	sched := NewManualScheduler()
	s := NewRecordingSession(dev, player, sched, Config{RecordingTick: time.Second})
	events := &eventLog{}
	s.emit = events.listen
	return s, sched, events
}

func TestRecording_start_tick_stop(t *testing.T) {
	dev := &fakeDevice{}
	s, sched, events := newTestSession(dev, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := s.State(); st.Status != RecordingActive {
		t.Fatalf("status = %v", st.Status)
	}

	stream := dev.last()
	stream.ch <- []byte("ab")
	stream.ch <- []byte("cd")

	sched.Advance(3 * time.Second)
	if st := s.State(); st.Elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", st.Elapsed)
	}

	art, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !bytes.Equal(art.Data, []byte("abcd")) {
		t.Errorf("data = %q", art.Data)
	}
	if art.ID == "" || art.MIMEType != "audio/test" {
		t.Errorf("artifact = %+v", art)
	}
	st := s.State()
	if st.Status != RecordingStopped || st.ArtifactID != art.ID {
		t.Errorf("state = %+v", st)
	}
	if sched.Live() != 0 {
		t.Error("elapsed ticker should be cancelled")
	}

	// started + 3 ticks + stopped
	if got := len(events.ofKind(EventRecordingStateChanged)); got != 5 {
		t.Errorf("events = %d, want 5", got)
	}
}

func TestRecording_permission_denied(t *testing.T) {
	dev := &fakeDevice{err: fmt.Errorf("prompt dismissed: %w", ErrPermissionDenied)}
	s, sched, events := newTestSession(dev, nil)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("got %v, want ErrPermissionDenied", err)
	}
	if st := s.State(); st.Status != RecordingIdle {
		t.Errorf("status = %v, want idle", st.Status)
	}
	if sched.Live() != 0 {
		t.Error("no ticker on failure")
	}
	evs := events.ofKind(EventRecordingStateChanged)
	if len(evs) != 1 || !errors.Is(evs[0].Err, ErrPermissionDenied) {
		t.Errorf("failure event = %+v", evs)
	}

	// A later grant works.
	dev.err = nil
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestRecording_busy_and_not_recording(t *testing.T) {
	s, _, _ := newTestSession(&fakeDevice{}, nil)
	if _, err := s.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop while idle: %v", err)
	}
	s.Start(context.Background())
	if err := s.Start(context.Background()); !errors.Is(err, ErrRecordingBusy) {
		t.Errorf("second Start: %v", err)
	}
}

func TestRecording_delete_and_restart_release_artifact(t *testing.T) {
	s, _, _ := newTestSession(&fakeDevice{}, nil)
	ctx := context.Background()

	s.Start(ctx)
	first, _ := s.Stop()

	s.Start(ctx)
	if !first.Released() || first.Data != nil {
		t.Error("starting over a stopped take must release the previous artifact")
	}
	second, _ := s.Stop()

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !second.Released() || s.Artifact() != nil || s.State().Status != RecordingIdle {
		t.Error("Delete should release and return to idle")
	}
	if err := s.Delete(); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("second Delete: %v", err)
	}
}

func TestRecording_Play(t *testing.T) {
	ctx := context.Background()

	s, _, _ := newTestSession(&fakeDevice{}, nil)
	if err := s.Play(ctx); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("no artifact: %v", err)
	}
	s.Start(ctx)
	s.Stop()
	if err := s.Play(ctx); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("no player: %v", err)
	}

	player := &fakePlayer{}
	s, _, _ = newTestSession(&fakeDevice{}, player)
	s.Start(ctx)
	art, _ := s.Stop()
	if err := s.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(player.played) != 1 || player.played[0] != art.ID {
		t.Errorf("played = %v", player.played)
	}
}

func TestRecording_Toggle(t *testing.T) {
	dev := &fakeDevice{}
	s, _, _ := newTestSession(dev, nil)

	s.Toggle(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for s.State().Status != RecordingActive {
		if time.Now().After(deadline) {
			t.Fatal("recording did not start")
		}
		time.Sleep(time.Millisecond)
	}
	s.Toggle(context.Background())
	if st := s.State(); st.Status != RecordingStopped {
		t.Errorf("status = %v, want stopped", st.Status)
	}
}

func TestRecording_Close(t *testing.T) {
	dev := &fakeDevice{}
	s, sched, _ := newTestSession(dev, nil)
	s.Start(context.Background())

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sched.Live() != 0 {
		t.Error("ticker should stop on Close")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start after Close: %v", err)
	}
}

func TestRecordingStatus_text(t *testing.T) {
	b, _ := RecordingStopped.MarshalText()
	if string(b) != "stopped" || RecordingActive.String() != "recording" {
		t.Errorf("got %q / %q", b, RecordingActive.String())
	}
}

type playerFunc func(context.Context, *Artifact) error

func (f playerFunc) Play(ctx context.Context, a *Artifact) error { return f(ctx, a) }

func TestRecording_Play_concurrent_with_Delete(t *testing.T) {
	dev := &fakeDevice{}
	var mu sync.Mutex
	var sizes []int
	player := playerFunc(func(_ context.Context, a *Artifact) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(a.Data))
		return nil
	})
	s, _, _ := newTestSession(dev, player)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	dev.last().ch <- []byte("pcm")
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Play(ctx); err != nil && !errors.Is(err, ErrNoArtifact) {
				t.Errorf("Play: %v", err)
			}
		}()
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete: %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, n := range sizes {
		if n != 3 {
			t.Errorf("player saw %d bytes, want the full take", n)
		}
	}
}

type stuckStream struct{ fakeStream }

func (s *stuckStream) Stop() error {
	s.fakeStream.Stop()
	return errors.New("device busy")
}

// gatedDevice answers a request only once release is closed.
type gatedDevice struct {
	requested chan struct{}
	release   chan struct{}
}

func (d *gatedDevice) Request(context.Context) (CaptureStream, error) {
	close(d.requested)
	<-d.release
	return &stuckStream{fakeStream{ch: make(chan []byte)}}, nil
}

func TestRecording_Close_during_request_logs_stop_error(t *testing.T) {
	dev := &gatedDevice{requested: make(chan struct{}), release: make(chan struct{})}
	s := NewRecordingSession(dev, nil, NewManualScheduler(), Config{})
	var buf syncBuffer
	s.log = logger.NewWithWriter(&buf, "debug", "text")

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()
	<-dev.requested
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(dev.release)

	if err := <-errc; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start = %v, want ErrSessionClosed", err)
	}
	if logs := buf.String(); !strings.Contains(logs, "capture stream stop failed") || !strings.Contains(logs, "device busy") {
		t.Errorf("stop error not logged:\n%s", logs)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
