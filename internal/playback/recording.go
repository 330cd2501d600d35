package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"transcript-sync/internal/platform/logger"
)

var (
	// ErrPermissionDenied is wrapped by capture devices when the user refuses access.
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrRecordingBusy    = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrNoArtifact       = errors.New("no recorded artifact")
	ErrNoPlayer         = errors.New("no artifact player configured")
	ErrSessionClosed    = errors.New("recording session closed")
)

// drainTimeout bounds how long Stop waits for a stream to flush its last chunks.
const drainTimeout = 2 * time.Second

// Artifact is a finished recording owned by its RecordingSession.
type Artifact struct {
	ID        string
	MIMEType  string
	Data      []byte
	Duration  time.Duration
	CreatedAt time.Time

	released bool
}

// Released reports whether the session has freed the artifact. Callers other
// than the session's own goroutine should rely on the copy handed to the
// player instead.
func (a *Artifact) Released() bool {
	return a.released
}

func (a *Artifact) release() {
	a.Data = nil
	a.released = true
}

// RecordingSession drives microphone capture independently of the transcript
// transport: Idle -> Recording -> Stopped(artifact) -> Idle.
type RecordingSession struct {
	mu      sync.Mutex
	device  AudioCaptureDevice
	player  ArtifactPlayer
	sched   Scheduler
	tick    time.Duration
	now     func() time.Time
	emit    func(Event)
	log     *slog.Logger
	metrics Recorder

	status     RecordingStatus
	pending    bool
	closed     bool
	stream     CaptureStream
	buf        *bytes.Buffer
	drained    chan struct{}
	startedAt  time.Time
	elapsed    time.Duration
	cancelTick func()
	artifact   *Artifact
}

// NewRecordingSession returns an idle session. player may be nil, in which
// case Play reports ErrNoPlayer.
func NewRecordingSession(device AudioCaptureDevice, player ArtifactPlayer, sched Scheduler, cfg Config) *RecordingSession {
	cfg = cfg.withDefaults()
	return &RecordingSession{
		device:  device,
		player:  player,
		sched:   sched,
		tick:    cfg.RecordingTick,
		now:     time.Now,
		emit:    func(Event) {},
		log:     logger.Nop(),
		metrics: nopRecorder{},
	}
}

// State returns a snapshot.
func (s *RecordingSession) State() RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Artifact returns the current artifact, or nil.
func (s *RecordingSession) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Start requests the capture device and begins recording. It blocks until
// the device answers; use StartAsync from input handlers. On failure the
// session stays where it was and a recording-state-changed event carries the
// error.
func (s *RecordingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.status == RecordingActive || s.pending:
		s.mu.Unlock()
		return ErrRecordingBusy
	}
	s.pending = true
	s.mu.Unlock()

	stream, err := s.device.Request(ctx)

	s.mu.Lock()
	s.pending = false
	if err == nil && s.closed {
		s.mu.Unlock()
		if stopErr := stream.Stop(); stopErr != nil {
			s.log.Warn("capture stream stop failed", slog.String("error", stopErr.Error()))
		}
		return ErrSessionClosed
	}
	if err != nil {
		state := s.stateLocked()
		s.mu.Unlock()
		err = fmt.Errorf("request capture device: %w", err)
		s.metrics.IncRecordingFailures()
		s.log.Warn("recording not started", slog.String("error", err.Error()))
		s.emit(Event{Kind: EventRecordingStateChanged, Recording: state, Err: err})
		return err
	}

	s.releaseLocked()
	buf := &bytes.Buffer{}
	drained := make(chan struct{})
	s.status = RecordingActive
	s.stream = stream
	s.buf = buf
	s.drained = drained
	s.startedAt = s.now()
	s.elapsed = 0
	s.cancelTick = s.sched.Every(s.tick, s.onTick)

	go func() {
		defer close(drained)
		for chunk := range stream.Data() {
			s.mu.Lock()
			buf.Write(chunk)
			s.mu.Unlock()
		}
	}()

	state := s.stateLocked()
	s.mu.Unlock()

	s.log.Info("recording started", slog.String("mime_type", stream.MIMEType()))
	s.emit(Event{Kind: EventRecordingStateChanged, Recording: state})
	return nil
}

// StartAsync runs Start on its own goroutine so the caller never waits on a
// permission prompt.
func (s *RecordingSession) StartAsync(ctx context.Context) {
	go func() {
		_ = s.Start(ctx)
	}()
}

// Stop finalizes the capture into an artifact and releases the device.
func (s *RecordingSession) Stop() (*Artifact, error) {
	s.mu.Lock()
	if s.status != RecordingActive || s.stream == nil {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream, drained := s.stream, s.drained
	s.stream = nil
	s.stopTickLocked()
	s.mu.Unlock()

	stopErr := stream.Stop()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		s.log.Warn("capture stream did not drain", slog.Duration("timeout", drainTimeout))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	art := &Artifact{
		ID:        uuid.NewString(),
		MIMEType:  stream.MIMEType(),
		Data:      bytes.Clone(s.buf.Bytes()),
		Duration:  s.now().Sub(s.startedAt),
		CreatedAt: s.now(),
	}
	s.buf = nil
	s.drained = nil
	s.artifact = art
	s.status = RecordingStopped
	state := s.stateLocked()
	s.mu.Unlock()

	s.metrics.IncRecordings()
	s.log.Info("recording stopped",
		slog.String("artifact_id", art.ID),
		slog.Int("bytes", len(art.Data)),
		slog.Duration("duration", art.Duration))
	s.emit(Event{Kind: EventRecordingStateChanged, Recording: state})

	if stopErr != nil {
		return art, fmt.Errorf("stop capture: %w", stopErr)
	}
	return art, nil
}

// Toggle stops an active recording or starts a new one asynchronously.
func (s *RecordingSession) Toggle(ctx context.Context) {
	s.mu.Lock()
	active := s.status == RecordingActive
	s.mu.Unlock()

	if active {
		if _, err := s.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
			s.log.Warn("recording stop failed", slog.String("error", err.Error()))
		}
		return
	}
	s.StartAsync(ctx)
}

// Play plays the artifact through the injected player. The player gets a
// copy, so a concurrent Delete cannot pull the data out from under it.
func (s *RecordingSession) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.artifact == nil || s.artifact.released {
		s.mu.Unlock()
		return ErrNoArtifact
	}
	art := *s.artifact
	s.mu.Unlock()

	if s.player == nil {
		return ErrNoPlayer
	}
	if err := s.player.Play(ctx, &art); err != nil {
		return fmt.Errorf("play artifact %s: %w", art.ID, err)
	}
	return nil
}

// Delete releases the artifact and returns to Idle.
func (s *RecordingSession) Delete() error {
	s.mu.Lock()
	if s.status != RecordingStopped || s.artifact == nil {
		s.mu.Unlock()
		return ErrNoArtifact
	}
	id := s.artifact.ID
	s.releaseLocked()
	s.status = RecordingIdle
	state := s.stateLocked()
	s.mu.Unlock()

	s.log.Debug("artifact released", slog.String("artifact_id", id))
	s.emit(Event{Kind: EventRecordingStateChanged, Recording: state})
	return nil
}

// Close stops any capture and releases the artifact. The session cannot be
// restarted afterwards.
func (s *RecordingSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.stopTickLocked()
	s.releaseLocked()
	s.buf = nil
	s.status = RecordingIdle
	s.mu.Unlock()

	if stream != nil {
		return stream.Stop()
	}
	return nil
}

func (s *RecordingSession) onTick() {
	s.mu.Lock()
	if s.status != RecordingActive || s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.elapsed += s.tick
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventRecordingStateChanged, Recording: state})
}

func (s *RecordingSession) stopTickLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *RecordingSession) releaseLocked() {
	if s.artifact != nil {
		s.artifact.release()
		s.artifact = nil
	}
}

func (s *RecordingSession) stateLocked() RecordingState {
	st := RecordingState{Status: s.status}
	switch s.status {
	case RecordingActive:
		st.Elapsed = s.elapsed
	case RecordingStopped:
		if s.artifact != nil {
			st.ArtifactID = s.artifact.ID
		}
	}
	return st
}
