package playback

import "strings"

// Commands is the surface dispatcher rules act on. The Engine implements it
// while holding its lock, so every rule runs to completion before the next
// input event is considered.
type Commands interface {
	LoopArmed() bool

	TogglePlay()
	StepSegment(delta int)
	ReplaySegment()
	PlaySegmentSlow()
	JumpToSegment(index int)

	ToggleLoop()
	SetLoopPointA()
	SetLoopPointB()
	AdjustLoopStart(delta float64)
	AdjustLoopEnd(delta float64)
	PlayLoop()
	SetRepeatCount(n int)

	SpeedUp()
	SpeedDown()

	ToggleSource()
	ToggleTranslation()

	ToggleRecording()
	PlayRecording()
}

// Rule pairs a predicate with an action. Keys and Description document the
// binding for help output.
type Rule struct {
	Action      string
	Keys        string
	Description string
	Match       func(ev KeyEvent, c Commands) bool
	Run         func(ev KeyEvent, c Commands)
}

// Result reports what a dispatch did.
type Result struct {
	Action  string `json:"action,omitempty"`
	Handled bool   `json:"handled"`
}

// Dispatcher resolves input events against an ordered rule table. The first
// matching rule wins; modifier-qualified rules must precede their bare-key
// counterparts.
type Dispatcher struct {
	rules []Rule
}

// NewDispatcher returns a dispatcher over rules, evaluated in order.
func NewDispatcher(rules []Rule) *Dispatcher {
	return &Dispatcher{rules: append([]Rule(nil), rules...)}
}

// Rules returns the table in evaluation order.
func (d *Dispatcher) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Dispatch runs the first matching rule. Events from editable targets are
// never dispatched.
func (d *Dispatcher) Dispatch(ev KeyEvent, c Commands) Result {
	if ev.Editable || ev.Key == "" {
		return Result{}
	}
	for _, r := range d.rules {
		if r.Match(ev, c) {
			r.Run(ev, c)
			return Result{Action: r.Action, Handled: true}
		}
	}
	return Result{}
}

// DefaultRules is the stock key map. step is the loop fine-adjust size in seconds.
func DefaultRules(step float64) []Rule {
	return []Rule{
		// ctrl/cmd-qualified
		bind("recording.toggle", "Ctrl/Cmd+R", "start or stop recording",
			cmdKey("r"),
			func(_ KeyEvent, c Commands) { c.ToggleRecording() }),
		bind("recording.play", "Ctrl/Cmd+P", "play the recorded take",
			cmdKey("p"),
			func(_ KeyEvent, c Commands) { c.PlayRecording() }),

		// shift/alt-qualified loop fine adjustment
		bind("loop.start.earlier", "Shift+A, Shift+Left", "move loop start earlier",
			whenArmed(shiftKey("a", "ArrowLeft")),
			func(_ KeyEvent, c Commands) { c.AdjustLoopStart(-step) }),
		bind("loop.start.later", "Alt+A, Shift+Right", "move loop start later",
			whenArmed(anyOf(altKey("a"), shiftKey("ArrowRight"))),
			func(_ KeyEvent, c Commands) { c.AdjustLoopStart(step) }),
		bind("loop.end.later", "Shift+B, Alt+Right", "move loop end later",
			whenArmed(anyOf(shiftKey("b"), altKey("ArrowRight"))),
			func(_ KeyEvent, c Commands) { c.AdjustLoopEnd(step) }),
		bind("loop.end.earlier", "Alt+B, Alt+Left", "move loop end earlier",
			whenArmed(altKey("b", "ArrowLeft")),
			func(_ KeyEvent, c Commands) { c.AdjustLoopEnd(-step) }),
		bind("segment.play_slow", "Shift+R", "replay the active segment slowly",
			shiftKey("r"),
			func(_ KeyEvent, c Commands) { c.PlaySegmentSlow() }),

		// bare keys
		bind("playback.toggle", "Space, K", "play or pause",
			bareKey(" ", "Space", "Spacebar", "k"),
			func(_ KeyEvent, c Commands) { c.TogglePlay() }),
		bind("segment.previous", "Left", "play the previous segment",
			bareKey("ArrowLeft"),
			func(_ KeyEvent, c Commands) { c.StepSegment(-1) }),
		bind("segment.next", "Right", "play the next segment",
			bareKey("ArrowRight"),
			func(_ KeyEvent, c Commands) { c.StepSegment(1) }),
		bind("segment.replay", "R", "replay the active segment",
			bareKey("r"),
			func(_ KeyEvent, c Commands) { c.ReplaySegment() }),
		bind("loop.toggle", "L", "loop the active segment, or clear the loop",
			bareKey("l"),
			func(_ KeyEvent, c Commands) { c.ToggleLoop() }),
		bind("loop.point_a", "A", "set loop start at the active segment",
			bareKey("a"),
			func(_ KeyEvent, c Commands) { c.SetLoopPointA() }),
		bind("loop.point_b", "B", "set loop end at the active segment",
			bareKey("b"),
			func(_ KeyEvent, c Commands) { c.SetLoopPointB() }),
		bind("loop.play", "Enter", "play the loop for its repeat count",
			whenArmed(bareKey("Enter")),
			func(_ KeyEvent, c Commands) { c.PlayLoop() }),
		bind("speed.up", "+, =, Up", "increase playback speed",
			anyOf(bareKey("=", "+", "ArrowUp"), shiftKey("+")),
			func(_ KeyEvent, c Commands) { c.SpeedUp() }),
		bind("speed.down", "-, Down", "decrease playback speed",
			bareKey("-", "ArrowDown"),
			func(_ KeyEvent, c Commands) { c.SpeedDown() }),
		bind("view.source", "S", "show or hide the source text",
			bareKey("s"),
			func(_ KeyEvent, c Commands) { c.ToggleSource() }),
		bind("view.translation", "T", "show or hide the translation",
			bareKey("t"),
			func(_ KeyEvent, c Commands) { c.ToggleTranslation() }),
		bind("loop.repeat", "0-9 (loop armed)", "set loop repeat count (0 = 10)",
			whenArmed(digitKey),
			func(ev KeyEvent, c Commands) {
				n := digit(ev.Key)
				if n == 0 {
					n = MaxRepeatCount
				}
				c.SetRepeatCount(n)
			}),
		bind("segment.jump", "0-9", "play segment N (0 = first)",
			digitKey,
			func(ev KeyEvent, c Commands) {
				n := digit(ev.Key)
				if n > 0 {
					n--
				}
				c.JumpToSegment(n)
			}),
	}
}

func bind(action, keys, desc string, match matcher, run func(KeyEvent, Commands)) Rule {
	return Rule{Action: action, Keys: keys, Description: desc, Match: match, Run: run}
}

type matcher = func(ev KeyEvent, c Commands) bool

func keyIs(ev KeyEvent, keys []string) bool {
	for _, k := range keys {
		if ev.Key == k || (len(k) == 1 && strings.EqualFold(ev.Key, k)) {
			return true
		}
	}
	return false
}

func cmdKey(keys ...string) matcher {
	return func(ev KeyEvent, _ Commands) bool {
		return ev.Command() && !ev.Alt && keyIs(ev, keys)
	}
}

func shiftKey(keys ...string) matcher {
	return func(ev KeyEvent, _ Commands) bool {
		return ev.Shift && !ev.Command() && !ev.Alt && keyIs(ev, keys)
	}
}

func altKey(keys ...string) matcher {
	return func(ev KeyEvent, _ Commands) bool {
		return ev.Alt && !ev.Command() && !ev.Shift && keyIs(ev, keys)
	}
}

func bareKey(keys ...string) matcher {
	return func(ev KeyEvent, _ Commands) bool {
		return ev.Bare() && keyIs(ev, keys)
	}
}

func anyOf(ms ...matcher) matcher {
	return func(ev KeyEvent, c Commands) bool {
		for _, m := range ms {
			if m(ev, c) {
				return true
			}
		}
		return false
	}
}

func whenArmed(m matcher) matcher {
	return func(ev KeyEvent, c Commands) bool {
		return c.LoopArmed() && m(ev, c)
	}
}

func digitKey(ev KeyEvent, _ Commands) bool {
	return ev.Bare() && len(ev.Key) == 1 && ev.Key[0] >= '0' && ev.Key[0] <= '9'
}

func digit(key string) int {
	return int(key[0] - '0')
}
