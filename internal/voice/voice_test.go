package voice

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ajbucci/rustfmsynth/internal/algorithm"
	"github.com/ajbucci/rustfmsynth/internal/envelope"
	"github.com/ajbucci/rustfmsynth/internal/operator"
	"github.com/ajbucci/rustfmsynth/internal/waveform"
)

const sr = 48000.0

func flatOp(env envelope.Params) operator.Params {
	return operator.Params{
		Waveform: waveform.Sine,
		FreqMode: operator.Ratio,
		Ratio:    1,
		ModIndex: 0,
		Gain:     1,
		Envelope: env,
	}
}

// pureCarrierPlan compiles a trivial single-operator, single-carrier plan.
func pureCarrierPlan(t *testing.T) *algorithm.Plan {
	t.Helper()
	g := algorithm.NewGraph(1, zerolog.Nop())
	if err := g.SetCarriers([]int{0}); err != nil {
		t.Fatal(err)
	}
	plan, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestNewNoteEventRejectsOutOfRange(t *testing.T) {
	if _, err := NewNoteEvent(128, 100, SourceKeyboard); err == nil {
		t.Error("expected error for note > 127")
	}
	if _, err := NewNoteEvent(60, 128, SourceKeyboard); err == nil {
		t.Error("expected error for velocity > 127")
	}
	if _, err := NewNoteEvent(60, 100, SourceKeyboard); err != nil {
		t.Errorf("unexpected error for valid event: %v", err)
	}
}

func TestVelocityToScaleMonotonicAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	prev := -1.0
	for v := uint8(1); v <= 127; v++ {
		s := cfg.VelocityToScale(v)
		if s < 0 || s > 1 {
			t.Fatalf("velocity %d produced out-of-range scale %v", v, s)
		}
		if s < prev {
			t.Fatalf("velocity scale not monotonic at %d: %v < %v", v, s, prev)
		}
		prev = s
	}
}

func TestVelocityToScaleInsensitiveIgnoresVelocity(t *testing.T) {
	cfg := Config{VelocitySensitive: false, VelocityCurve: 1.5}
	low := cfg.VelocityToScale(1)
	high := cfg.VelocityToScale(127)
	if math.Abs(low-high) > 1e-12 {
		t.Errorf("velocity-insensitive config should ignore velocity: %v vs %v", low, high)
	}
}

func TestActivateSetsFrequencyAndClearsRelease(t *testing.T) {
	v := New()
	v.UpdatePlan(pureCarrierPlan(t), 1, 64)
	evt, err := NewNoteEvent(69, 100, SourceKeyboard)
	if err != nil {
		t.Fatal(err)
	}
	v.Activate(evt, DefaultConfig())
	if !v.Active || v.Releasing {
		t.Fatalf("voice should be active and not releasing after Activate, got Active=%v Releasing=%v", v.Active, v.Releasing)
	}
	if math.Abs(v.Frequency-440) > 1e-6 {
		t.Errorf("note 69 should be 440Hz, got %v", v.Frequency)
	}
}

func TestMatchesChecksNoteAndSource(t *testing.T) {
	v := New()
	v.UpdatePlan(pureCarrierPlan(t), 1, 64)
	evt, _ := NewNoteEvent(60, 100, SourceKeyboard)
	v.Activate(evt, DefaultConfig())

	if !v.Matches(60, SourceKeyboard) {
		t.Error("expected match on (note, source)")
	}
	if v.Matches(61, SourceKeyboard) {
		t.Error("unexpected match on wrong note")
	}
	if v.Matches(60, SourceMIDI) {
		t.Error("unexpected match on wrong source")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	v := New()
	v.UpdatePlan(pureCarrierPlan(t), 1, 64)
	evt, _ := NewNoteEvent(60, 100, SourceKeyboard)
	v.Activate(evt, DefaultConfig())

	v.Release()
	first := v.noteOffSample
	v.Release()
	if v.noteOffSample != first {
		t.Error("a second Release call should not move the recorded release sample")
	}
}

func TestProcessInactiveVoiceProducesSilence(t *testing.T) {
	v := New()
	v.UpdatePlan(pureCarrierPlan(t), 1, 64)
	ops := []operator.Params{flatOp(envelope.Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0})}
	out := make([]float64, 64)
	for i := range out {
		out[i] = 1 // poison the buffer so a no-op Process would be caught
	}
	v.Process(nil, nil, ops, []int{0}, sr, 1, 0, out)
	for k, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 for an inactive voice", k, s)
		}
	}
}

func TestProcessActiveVoiceProducesSignal(t *testing.T) {
	plan := pureCarrierPlan(t)
	g := algorithm.NewGraph(1, zerolog.Nop())
	g.SetCarriers([]int{0})
	v := New()
	v.UpdatePlan(plan, 1, 64)
	evt, _ := NewNoteEvent(69, 100, SourceKeyboard)
	v.Activate(evt, DefaultConfig())

	ops := []operator.Params{flatOp(envelope.Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0})}
	out := make([]float64, 64)
	v.Process(plan, g.Matrix(), ops, g.Carriers(), sr, 1, 0, out)

	var energy float64
	for _, s := range out {
		energy += s * s
	}
	if energy == 0 {
		t.Error("expected non-zero output from an active carrier voice")
	}
}

func TestLevelNegativeWhenInactive(t *testing.T) {
	v := New()
	v.UpdatePlan(pureCarrierPlan(t), 1, 64)
	ops := []operator.Params{flatOp(envelope.Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0})}
	if l := v.Level(ops, []int{0}, sr); l >= 0 {
		t.Errorf("an inactive voice should report a negative level, got %v", l)
	}
}

func TestLevelDropsAfterRelease(t *testing.T) {
	plan := pureCarrierPlan(t)
	g := algorithm.NewGraph(1, zerolog.Nop())
	g.SetCarriers([]int{0})
	v := New()
	v.UpdatePlan(plan, 1, 64)
	evt, _ := NewNoteEvent(69, 100, SourceKeyboard)
	v.Activate(evt, DefaultConfig())

	ops := []operator.Params{flatOp(envelope.Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0.1})}
	out := make([]float64, 64)

	sustainLevel := v.Level(ops, []int{0}, sr)
	v.Process(plan, g.Matrix(), ops, g.Carriers(), sr, 1, 0, out)
	v.Release()
	// advance most of the way through the release tail
	for i := 0; i < 70; i++ {
		v.Process(plan, g.Matrix(), ops, g.Carriers(), sr, 1, 0, out)
	}
	releasedLevel := v.Level(ops, []int{0}, sr)

	if releasedLevel >= sustainLevel {
		t.Errorf("level should drop during release: sustain=%v released=%v", sustainLevel, releasedLevel)
	}
}

func TestIsFinishedOnlyAfterReleaseElapses(t *testing.T) {
	plan := pureCarrierPlan(t)
	g := algorithm.NewGraph(1, zerolog.Nop())
	g.SetCarriers([]int{0})
	v := New()
	v.UpdatePlan(plan, 1, 64)
	evt, _ := NewNoteEvent(60, 100, SourceKeyboard)
	v.Activate(evt, DefaultConfig())

	ops := []operator.Params{flatOp(envelope.Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0.05})}
	out := make([]float64, 64)

	if v.IsFinished(plan, ops, g.Carriers(), sr) {
		t.Error("a held note should never be finished")
	}

	v.Release()
	if v.IsFinished(plan, ops, g.Carriers(), sr) {
		t.Error("should not be finished the instant release begins")
	}

	// 0.05s release at 48kHz and 64-sample blocks: run enough blocks to clear it.
	for i := 0; i < 100 && v.Active; i++ {
		v.Process(plan, g.Matrix(), ops, g.Carriers(), sr, 1, 0, out)
	}
	if v.Active {
		t.Error("voice should have auto-deactivated once its release fully elapsed")
	}
}
