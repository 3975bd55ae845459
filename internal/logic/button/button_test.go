package button

import (
	"slices"
	"testing"
	"time"
)

const tick = 100 * time.Millisecond

// referenceTiming mirrors the reference rig's button feel.
var referenceTiming = Timing{
	Threshold:     5,
	Delay:         5 * time.Millisecond,
	Held:          800 * time.Millisecond,
	RepeatInitial: 1000 * time.Millisecond,
	Repeat:        300 * time.Millisecond,
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type emitted struct {
	i  int
	ev Event
}

// feed samples levels at a fixed tick and returns every event emitted,
// with the sample index that produced it.
func feed(b *Button, start int, levels []bool) []emitted {
	var out []emitted
	for i, lvl := range levels {
		r := b.Update(epoch.Add(time.Duration(start+i)*tick), lvl)
		for ev := range r.Events.All() {
			out = append(out, emitted{start + i, ev})
		}
	}
	return out
}

func repeat(level bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func TestButton_PressAfterThreshold(t *testing.T) {
	b := New("start", referenceTiming)
	got := feed(b, 0, repeat(true, 5))
	want := []emitted{{4, EventPressed}}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if b.State() != StatePressed {
		t.Errorf("state = %s, want pressed", b.State())
	}
}

func TestButton_NoiseShorterThanThresholdIsIgnored(t *testing.T) {
	cases := []struct {
		name   string
		levels []bool
	}{
		{"single_spike", []bool{true, false, false}},
		{"four_high", []bool{true, true, true, true, false}},
		{"bounce", []bool{true, false, true, true, false, true, true, true, true, false}},
		{"alternating", []bool{true, false, true, false, true, false, true, false, true, false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("stop", referenceTiming)
			if got := feed(b, 0, tc.levels); len(got) != 0 {
				t.Errorf("expected no events, got %v", got)
			}
			if b.State() != StateIdle {
				t.Errorf("state = %s, want idle", b.State())
			}
		})
	}
}

func TestButton_ContradictingSampleResetsCount(t *testing.T) {
	b := New("start", referenceTiming)
	// four highs, one low, then four highs: without a reset this would press.
	levels := append(append(repeat(true, 4), false), repeat(true, 4)...)
	if got := feed(b, 0, levels); len(got) != 0 {
		t.Fatalf("expected no press, got %v", got)
	}
	// the fifth consecutive high presses
	got := feed(b, len(levels), []bool{true})
	if len(got) != 1 || got[0].ev != EventPressed {
		t.Errorf("expected press, got %v", got)
	}
}

func TestButton_ReleaseNeedsSustainedLow(t *testing.T) {
	b := New("start", referenceTiming)
	feed(b, 0, repeat(true, 5))

	// short dropout while pressed: no release
	if got := feed(b, 5, []bool{false, false, true}); len(got) != 0 {
		t.Fatalf("dropout produced events %v", got)
	}
	got := feed(b, 8, repeat(false, 5))
	want := []emitted{{12, EventReleased}}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if b.State() != StateIdle {
		t.Errorf("state = %s, want idle", b.State())
	}
}

func TestButton_HeldThenRepeat(t *testing.T) {
	b := New("start", referenceTiming)
	// pressed at sample 4 (400ms); held at 1200ms; first repeat at 2200ms;
	// then every 300ms.
	got := feed(b, 0, repeat(true, 29))
	want := []emitted{
		{4, EventPressed},
		{12, EventHeld},
		{22, EventRepeat},
		{25, EventRepeat},
		{28, EventRepeat},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if b.State() != StateRepeating {
		t.Errorf("state = %s, want repeating", b.State())
	}
}

func TestButton_RepeatCount(t *testing.T) {
	// Held for Held + RepeatInitial + k*Repeat after the press: k+1 repeats.
	for k := 0; k < 6; k++ {
		b := New("start", referenceTiming)
		pressTick := referenceTiming.Threshold - 1
		span := referenceTiming.Held + referenceTiming.RepeatInitial + time.Duration(k)*referenceTiming.Repeat
		lastTick := pressTick + int(span/tick)

		n := 0
		for _, e := range feed(b, 0, repeat(true, lastTick+1)) {
			if e.ev == EventRepeat {
				n++
			}
		}
		if n != k+1 {
			t.Errorf("k=%d: got %d repeats, want %d", k, n, k+1)
		}
	}
}

func TestButton_ReleaseFromRepeating(t *testing.T) {
	b := New("start", referenceTiming)
	feed(b, 0, repeat(true, 25))
	// repeats keep coming while the release is being debounced
	got := feed(b, 25, repeat(false, 5))
	want := []emitted{{25, EventRepeat}, {28, EventRepeat}, {29, EventReleased}}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	// a new press starts over from Pressed, not Repeating
	got = feed(b, 30, repeat(true, 5))
	if len(got) != 1 || got[0].ev != EventPressed {
		t.Fatalf("expected press, got %v", got)
	}
}

func TestButton_SamplesCloserThanDelayIgnored(t *testing.T) {
	tm := referenceTiming
	tm.Delay = 50 * time.Millisecond
	b := New("estop", tm)

	at := epoch
	for i := 0; i < 10; i++ {
		// 10ms apart: only every fifth sample is accepted
		if r := b.Update(at, true); r.Events.Has(EventPressed) {
			t.Fatalf("pressed too early at sample %d", i)
		}
		at = at.Add(10 * time.Millisecond)
	}
	if b.State() != StateIdle {
		t.Fatalf("state = %s, want idle after 2 accepted samples", b.State())
	}
	for i := 0; i < 3; i++ {
		b.Update(at, true)
		at = at.Add(50 * time.Millisecond)
	}
	if b.State() != StatePressed {
		t.Errorf("state = %s, want pressed after 5 accepted samples", b.State())
	}
}

func TestButton_HeldAndRepeatInSameSample(t *testing.T) {
	tm := referenceTiming
	tm.RepeatInitial = 0
	b := New("start", tm)
	var got Events
	for i := 0; i <= 12; i++ {
		got = b.Update(epoch.Add(time.Duration(i)*tick), true).Events
	}
	if !got.Has(EventHeld) || !got.Has(EventRepeat) {
		t.Errorf("sample 12 events = %s, want held and repeat", got)
	}
}

func TestButton_ThresholdBelowOne(t *testing.T) {
	tm := referenceTiming
	tm.Threshold = 0
	b := New("start", tm)
	r := b.Update(epoch, true)
	if !r.Events.Has(EventPressed) {
		t.Errorf("threshold 0 should behave as 1, got %s", r.Events)
	}
}

func TestEvents_AllIsRestartable(t *testing.T) {
	e := Events(EventPressed) | Events(EventRepeat)
	first := slices.Collect(e.All())
	second := slices.Collect(e.All())
	want := []Event{EventPressed, EventRepeat}
	if !slices.Equal(first, want) || !slices.Equal(second, want) {
		t.Errorf("All() = %v then %v, want %v twice", first, second, want)
	}
	for ev := range e.All() {
		_ = ev
		break // early stop must not panic
	}
	if e.String() != "[pressed,repeat]" {
		t.Errorf("String() = %q", e.String())
	}
}

func TestState_Predicates(t *testing.T) {
	cases := []struct {
		s        State
		down     bool
		heldDown bool
	}{
		{StateIdle, false, false},
		{StatePressed, true, false},
		{StateHeld, true, true},
		{StateRepeating, true, true},
	}
	for _, tc := range cases {
		if tc.s.Down() != tc.down || tc.s.HeldDown() != tc.heldDown {
			t.Errorf("%s: Down=%v HeldDown=%v", tc.s, tc.s.Down(), tc.s.HeldDown())
		}
	}
}
