package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"transcript-sync/internal/capture"
	"transcript-sync/internal/platform/logger"
	"transcript-sync/internal/playback"
	"transcript-sync/internal/transport"
)

// simStep is one script token: either a wait or a key press.
type simStep struct {
	wait  time.Duration
	key   playback.KeyEvent
	token string
}

type timelineEntry struct {
	At     time.Duration `json:"at"`
	Kind   string        `json:"kind"`
	Detail string        `json:"detail"`
}

type simulation struct {
	mu       sync.Mutex
	Timeline []timelineEntry   `json:"timeline"`
	Final    playback.Snapshot `json:"final"`
}

// record appends to the timeline. Recording events can arrive from the
// capture goroutine.
func (s *simulation) record(at time.Duration, kind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timeline = append(s.Timeline, timelineEntry{At: at, Kind: kind, Detail: detail})
}

var keyAliases = map[string]string{
	"space": " ",
	"left":  "ArrowLeft",
	"right": "ArrowRight",
	"up":    "ArrowUp",
	"down":  "ArrowDown",
	"enter": "Enter",
}

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var tick time.Duration
	var duration float64
	var paused bool
	var device string

	cmd := &cobra.Command{
		Use:   "simulate <step>...",
		Short: "Replay a key script against a virtual transport",
		Long: `Replay a key script against a virtual transport and print the events.

Each step is either a wait ("2s", "750ms") or a key press such as "right",
"space", "l", "enter", "3", "shift+r", "alt+left" or "cmd+r".`,
		Example: "  syncctl simulate -f lesson.yaml 1s l enter 5s right 2s",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseScript(args)
			if err != nil {
				return err
			}
			f, feed, err := ctx.loadFeed()
			if err != nil {
				return err
			}
			if duration <= 0 {
				duration = f.TrackEnd()
			}
			if tick <= 0 {
				tick = 50 * time.Millisecond
			}

			log := logger.Nop()
			if ctx.logLevel != "" {
				log = ctx.logger(cmd)
			}

			media := transport.NewMemory(duration)
			sched := playback.NewManualScheduler()
			engine := playback.New(media, feed, playback.Options{
				Scheduler: sched,
				Device:    capture.FromName(device),
				Player:    capture.LogPlayer{Log: log},
				Logger:    log,
			})
			defer engine.Close()

			sim := &simulation{}
			engine.Subscribe(func(ev playback.Event) {
				sim.record(sched.Now(), string(ev.Kind), describeEvent(ev))
			})

			if !paused {
				if err := media.Play(); err != nil {
					return err
				}
			}
			media.Advance(0)

			for _, step := range steps {
				if step.wait > 0 {
					advance(media, sched, step.wait, tick)
					continue
				}
				res := engine.HandleKey(step.key)
				action := res.Action
				if !res.Handled {
					action = "unhandled"
				}
				sim.record(sched.Now(), "key", fmt.Sprintf("%s -> %s", step.token, action))
				log.Debug("simulated key", slog.String("key", describeKey(step.key)), slog.String("action", action))
			}
			sim.mu.Lock()
			defer sim.mu.Unlock()
			sim.Final = engine.Snapshot()

			if ctx.jsonOut {
				return writeJSON(cmd, sim)
			}
			printSimulation(cmd, sim)
			return nil
		},
	}

	cmd.Flags().DurationVar(&tick, "tick", 50*time.Millisecond, "Virtual transport tick")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Track duration in seconds (default: transcript end)")
	cmd.Flags().BoolVar(&paused, "paused", false, "Start paused instead of playing")
	cmd.Flags().StringVar(&device, "device", "none", "Capture device: none, denied")
	return cmd
}

// advance moves the transport and the scheduler forward together in tick steps.
func advance(media *transport.Memory, sched *playback.ManualScheduler, d, tick time.Duration) {
	for d > 0 {
		step := min(tick, d)
		media.Advance(step)
		sched.Advance(step)
		d -= step
	}
}

func parseScript(tokens []string) ([]simStep, error) {
	steps := make([]simStep, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if d, err := time.ParseDuration(tok); err == nil && d > 0 {
			steps = append(steps, simStep{wait: d})
			continue
		}
		ev, err := parseKey(tok)
		if err != nil {
			return nil, err
		}
		steps = append(steps, simStep{key: ev, token: tok})
	}
	return steps, nil
}

// parseKey reads "mod+mod+key". A trailing "++" means the plus key.
func parseKey(tok string) (playback.KeyEvent, error) {
	var ev playback.KeyEvent
	mods, key := "", tok
	switch {
	case tok == "+":
	case strings.HasSuffix(tok, "++"):
		mods, key = tok[:len(tok)-2], "+"
	case strings.Contains(tok, "+"):
		i := strings.LastIndex(tok, "+")
		mods, key = tok[:i], tok[i+1:]
	}
	if mods != "" {
		for _, m := range strings.Split(mods, "+") {
			switch strings.ToLower(m) {
			case "shift":
				ev.Shift = true
			case "ctrl":
				ev.Ctrl = true
			case "cmd", "meta":
				ev.Meta = true
			case "alt", "option":
				ev.Alt = true
			default:
				return ev, fmt.Errorf("unknown modifier %q in %q", m, tok)
			}
		}
	}
	if alias, ok := keyAliases[strings.ToLower(key)]; ok {
		key = alias
	}
	if key == "" {
		return ev, fmt.Errorf("missing key in %q", tok)
	}
	ev.Key = key
	return ev, nil
}

func describeKey(ev playback.KeyEvent) string {
	var parts []string
	if ev.Ctrl {
		parts = append(parts, "ctrl")
	}
	if ev.Meta {
		parts = append(parts, "cmd")
	}
	if ev.Alt {
		parts = append(parts, "alt")
	}
	if ev.Shift {
		parts = append(parts, "shift")
	}
	key := ev.Key
	if key == " " {
		key = "space"
	}
	return strings.Join(append(parts, key), "+")
}

func describeEvent(ev playback.Event) string {
	switch ev.Kind {
	case playback.EventActiveSegmentChanged:
		if ev.Segment == nil {
			return "none"
		}
		return fmt.Sprintf("#%d id=%s [%s, %s) %s", ev.LocalIndex, ev.Segment.ID,
			formatSeconds(ev.Segment.Start), formatSeconds(ev.Segment.End), truncate(ev.Segment.Text, 40))
	case playback.EventActiveWordChanged:
		if ev.Word == nil {
			return "none"
		}
		return fmt.Sprintf("#%d.%d %q", ev.LocalIndex, ev.WordIndex, ev.Word.Text)
	case playback.EventLoopStateChanged:
		l := ev.Loop
		if !l.Armed {
			return "off"
		}
		return fmt.Sprintf("[%s, %s) repeat %d/%d polling=%v", formatSeconds(l.Start), formatSeconds(l.End),
			l.CurrentRepeat+1, l.RepeatCount, l.Polling)
	case playback.EventRecordingStateChanged:
		if ev.Err != nil {
			return fmt.Sprintf("%s (%v)", ev.Recording.Status, ev.Err)
		}
		return ev.Recording.Status.String()
	case playback.EventViewChanged:
		return fmt.Sprintf("source=%v translation=%v", ev.View.ShowSource, ev.View.ShowTranslation)
	default:
		return ""
	}
}

func printSimulation(cmd *cobra.Command, sim *simulation) {
	out := cmd.OutOrStdout()
	color := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Timeline", color))
	for _, e := range sim.Timeline {
		kind := fmt.Sprintf("%-24s", e.Kind)
		switch e.Kind {
		case "key":
			kind = colorize(kind, ansiYellow, color)
		case string(playback.EventActiveWordChanged):
			kind = colorize(kind, ansiDim, color)
		default:
			kind = colorize(kind, ansiGreen, color)
		}
		fmt.Fprintf(out, "%9s  %s %s\n", formatSeconds(e.At.Seconds()), kind, e.Detail)
	}

	f := sim.Final
	fmt.Fprintln(out, renderSectionHeader("Final state", color))
	rows := [][]string{
		{"Position", formatSeconds(f.Playback.Position)},
		{"Rate", fmt.Sprintf("%.2f", f.Playback.Rate)},
		{"Playing", fmt.Sprintf("%v", f.Playback.Playing)},
		{"Active segment", fmt.Sprintf("%d", f.Active.Segment)},
		{"Active word", fmt.Sprintf("%d", f.Active.Word)},
		{"Loop armed", fmt.Sprintf("%v", f.Loop.Armed)},
		{"Recording", f.Recording.Status.String()},
	}
	if f.Loop.Armed {
		rows = append(rows, []string{"Loop", fmt.Sprintf("[%s, %s) x%d", formatSeconds(f.Loop.Start), formatSeconds(f.Loop.End), f.Loop.RepeatCount)})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}
