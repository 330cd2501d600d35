// Package capture holds capture devices and artifact players for hosts that
// have no microphone or speaker, such as the headless server.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transcript-sync/internal/playback"
)

const (
	// SampleRate of the PCM produced by Silence.
	SampleRate = 16000
	// PCMType describes Silence's output: 16-bit mono linear PCM.
	PCMType = "audio/L16;rate=16000;channels=1"
)

// Silence is a capture device that always grants access and records zeroed
// PCM in chunks of Interval.
type Silence struct {
	Interval time.Duration
}

// Request implements playback.AudioCaptureDevice.
func (d Silence) Request(ctx context.Context) (playback.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interval := d.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	s := &silenceStream{
		data:  make(chan []byte, 8),
		stop:  make(chan struct{}),
		chunk: int(interval.Seconds()*SampleRate) * 2,
	}
	go s.run(interval)
	return s, nil
}

type silenceStream struct {
	data  chan []byte
	stop  chan struct{}
	once  sync.Once
	chunk int
}

func (s *silenceStream) run(interval time.Duration) {
	defer close(s.data)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			select {
			case s.data <- make([]byte, s.chunk):
			case <-s.stop:
				return
			}
		}
	}
}

func (s *silenceStream) Data() <-chan []byte { return s.data }
func (s *silenceStream) MIMEType() string    { return PCMType }

func (s *silenceStream) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Denied is a capture device whose permission request is always refused.
type Denied struct{}

// Request implements playback.AudioCaptureDevice.
func (Denied) Request(context.Context) (playback.CaptureStream, error) {
	return nil, fmt.Errorf("microphone: %w", playback.ErrPermissionDenied)
}

// LogPlayer "plays" artifacts by logging them.
type LogPlayer struct {
	Log *slog.Logger
}

// Play implements playback.ArtifactPlayer.
func (p LogPlayer) Play(ctx context.Context, a *playback.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Log != nil {
		p.Log.Info("artifact playback",
			slog.String("artifact_id", a.ID),
			slog.String("mime_type", a.MIMEType),
			slog.Int("bytes", len(a.Data)),
			slog.Duration("duration", a.Duration))
	}
	return nil
}

// FromName maps a config value to a device: "silence" or "denied"; anything
// else returns nil (no device).
func FromName(name string) playback.AudioCaptureDevice {
	switch name {
	case "silence":
		return Silence{}
	case "denied":
		return Denied{}
	default:
		return nil
	}
}
