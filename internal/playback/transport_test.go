package playback

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManualScheduler_fires_in_order(t *testing.T) {
	s := NewManualScheduler()
	var order []string
	s.Every(30*time.Millisecond, func() { order = append(order, "slow") })
	s.Every(20*time.Millisecond, func() { order = append(order, "fast") })

	// Both are due at 60ms; registration order breaks the tie.
	s.Advance(60 * time.Millisecond)
	want := []string{"fast", "slow", "fast", "slow", "fast"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Now() != 60*time.Millisecond {
		t.Errorf("Now = %v", s.Now())
	}
}

func TestManualScheduler_cancel_from_callback(t *testing.T) {
	s := NewManualScheduler()
	n := 0
	var cancel func()
	cancel = s.Every(10*time.Millisecond, func() {
		n++
		cancel()
	})
	s.Advance(100 * time.Millisecond)
	if n != 1 || s.Live() != 0 {
		t.Errorf("n=%d live=%d", n, s.Live())
	}
	cancel()
}

func TestTickerScheduler(t *testing.T) {
	var n atomic.Int32
	cancel := TickerScheduler{}.Every(time.Millisecond, func() { n.Add(1) })
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("ticker did not fire")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	cancel()
	after := n.Load()
	time.Sleep(10 * time.Millisecond)
	if n.Load() > after+1 {
		t.Error("ticker kept firing after cancel")
	}
}
