// Package button turns a noisy digital line into clean press, release,
// held and repeat events.
package button

import (
	"iter"
	"strings"
	"time"

	"github.com/cjeanneret/DipGo/internal/config"
)

// State is the debounced state of a button.
type State int

const (
	StateIdle State = iota
	StatePressed
	StateHeld
	StateRepeating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StateHeld:
		return "held"
	case StateRepeating:
		return "repeating"
	default:
		return "unknown"
	}
}

// Down reports whether the button is debounced as pressed, in any phase.
func (s State) Down() bool {
	return s != StateIdle
}

// HeldDown reports whether the button has been held past the held delay.
func (s State) HeldDown() bool {
	return s == StateHeld || s == StateRepeating
}

// Event is a discrete button event.
type Event uint8

const (
	EventPressed Event = 1 << iota
	EventReleased
	EventHeld
	EventRepeat
)

var eventOrder = [...]Event{EventPressed, EventReleased, EventHeld, EventRepeat}

func (e Event) String() string {
	switch e {
	case EventPressed:
		return "pressed"
	case EventReleased:
		return "released"
	case EventHeld:
		return "held"
	case EventRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Events is the set of events produced by one sample. Each kind appears at
// most once.
type Events uint8

// Has reports whether ev is in the set.
func (e Events) Has(ev Event) bool {
	return e&Events(ev) != 0
}

// All yields the events of the set in a fixed order. The sequence can be
// ranged over any number of times.
func (e Events) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, ev := range eventOrder {
			if e.Has(ev) && !yield(ev) {
				return
			}
		}
	}
}

func (e Events) String() string {
	var names []string
	for ev := range e.All() {
		names = append(names, ev.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}

// Timing holds the debounce and auto-repeat parameters.
type Timing struct {
	Threshold     int           // consecutive consistent samples to accept a transition
	Delay         time.Duration // minimum spacing between accepted samples
	Held          time.Duration // press duration before Held
	RepeatInitial time.Duration // Held duration before the first Repeat
	Repeat        time.Duration // spacing between Repeats
}

// TimingFromConfig extracts the button timing from configuration.
func TimingFromConfig(cfg *config.Config) Timing {
	return Timing{
		Threshold:     cfg.Buttons.Threshold,
		Delay:         cfg.DebounceDelay(),
		Held:          cfg.Held(),
		RepeatInitial: cfg.RepeatInitial(),
		Repeat:        cfg.Repeat(),
	}
}

// Reading is the view of a button after a sample: its state and the events
// that sample produced.
type Reading struct {
	State  State
	Events Events
}

// Button is the debounce state machine for one physical button.
// It is not safe for concurrent use; the control loop owns it.
type Button struct {
	name   string
	timing Timing

	state   State
	count   int // consecutive samples contradicting the debounced level
	sampled bool
	last    time.Time // last accepted sample

	pressedAt  time.Time
	heldAt     time.Time
	lastRepeat time.Time
}

// New creates an idle button.
func New(name string, t Timing) *Button {
	if t.Threshold < 1 {
		t.Threshold = 1
	}
	return &Button{name: name, timing: t}
}

// Name returns the button name.
func (b *Button) Name() string {
	return b.name
}

// State returns the current debounced state.
func (b *Button) State() State {
	return b.state
}

// Update feeds one raw sample taken at now. Samples closer than the
// configured delay to the previous accepted one are ignored.
func (b *Button) Update(now time.Time, raw bool) Reading {
	if b.sampled && now.Sub(b.last) < b.timing.Delay {
		return Reading{State: b.state}
	}
	b.sampled = true
	b.last = now

	var ev Events

	if raw != b.state.Down() {
		b.count++
	} else {
		// a contradicting sample restarts the count, it does not pause it
		b.count = 0
	}

	if b.count >= b.timing.Threshold {
		b.count = 0
		if raw {
			b.state = StatePressed
			b.pressedAt = now
			return Reading{State: b.state, Events: Events(EventPressed)}
		}
		b.state = StateIdle
		return Reading{State: b.state, Events: Events(EventReleased)}
	}

	if b.state == StatePressed && now.Sub(b.pressedAt) >= b.timing.Held {
		b.state = StateHeld
		b.heldAt = b.pressedAt.Add(b.timing.Held)
		ev |= Events(EventHeld)
	}
	if b.state == StateHeld && now.Sub(b.heldAt) >= b.timing.RepeatInitial {
		b.state = StateRepeating
		b.lastRepeat = b.heldAt.Add(b.timing.RepeatInitial)
		ev |= Events(EventRepeat)
	} else if b.state == StateRepeating && b.timing.Repeat > 0 && now.Sub(b.lastRepeat) >= b.timing.Repeat {
		b.lastRepeat = b.lastRepeat.Add(b.timing.Repeat)
		if now.Sub(b.lastRepeat) >= b.timing.Repeat {
			// fell behind by more than a period; resynchronise
			b.lastRepeat = now
		}
		ev |= Events(EventRepeat)
	}

	return Reading{State: b.state, Events: ev}
}
