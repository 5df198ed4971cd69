// Package voice implements the per-note state machine: a voice owns one
// OperatorState per plan node and runs the compiled algorithm plan once per
// render block.
package voice

import (
	"fmt"
	"math"

	"github.com/ajbucci/rustfmsynth/internal/algorithm"
	"github.com/ajbucci/rustfmsynth/internal/envelope"
	"github.com/ajbucci/rustfmsynth/internal/operator"
)

// Source tags which control surface triggered a note, so a keyboard and a
// MIDI port driving the same engine don't cancel each other's notes.
type Source int

const (
	SourceUnknown Source = iota
	SourceKeyboard
	SourceMIDI
)

// NoteEvent is a validated note-on/note-off request.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Source   Source
}

// NewNoteEvent validates note and velocity are both in MIDI range [0,127].
func NewNoteEvent(note, velocity uint8, source Source) (NoteEvent, error) {
	if note > 127 {
		return NoteEvent{}, fmt.Errorf("voice: note %d out of range [0,127]", note)
	}
	if velocity > 127 {
		return NoteEvent{}, fmt.Errorf("voice: velocity %d out of range [0,127]", velocity)
	}
	return NoteEvent{Note: note, Velocity: velocity, Source: source}, nil
}

// Config is the per-engine default voice behavior (velocity curve).
type Config struct {
	VelocitySensitive bool
	VelocityCurve     float64
}

// DefaultConfig matches the original source's velocity_to_scale defaults.
func DefaultConfig() Config {
	return Config{VelocitySensitive: true, VelocityCurve: 1.5}
}

// VelocityToScale converts a MIDI velocity into a [0,1] gain scale.
func (c Config) VelocityToScale(velocity uint8) float64 {
	v := uint8(100)
	if c.VelocitySensitive {
		v = velocity
		if v < 1 {
			v = 1
		}
		if v > 127 {
			v = 127
		}
	}
	normalized := float64(v) / 127.0
	return math.Pow(normalized, c.VelocityCurve)
}

func midiToFreq(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// Voice is one held-note instance.
type Voice struct {
	Active        bool
	Releasing     bool
	Note          uint8
	Velocity      uint8
	Source        Source
	Frequency     float64
	VelocityScale float64

	samplesSinceTrigger uint64
	noteOffSample       *uint64

	states  []*operator.State
	scratch *algorithm.Scratch
}

// New constructs an inactive voice with no node states (UpdatePlan must be
// called once a plan exists, before the first Process).
func New() *Voice {
	return &Voice{}
}

// UpdatePlan resizes the node-state array to the new plan's length,
// discarding all prior per-node history — rebuilding the plan always clears
// voice state, per §3's invariant. opCount is the fixed operator-table size
// (used to size the scratch's per-operator carrier dedup bitmap).
func (v *Voice) UpdatePlan(plan *algorithm.Plan, opCount, blockLen int) {
	n := plan.Len()
	states := make([]*operator.State, n)
	for i := range states {
		states[i] = operator.NewState(uint32(i*2654435761 + 1))
	}
	v.states = states
	if v.scratch == nil {
		v.scratch = algorithm.NewScratch(n, opCount, blockLen)
	} else {
		v.scratch.Resize(n, opCount, blockLen)
	}
}

// Activate (re)triggers the voice for a new note.
func (v *Voice) Activate(evt NoteEvent, cfg Config) {
	v.Active = true
	v.Releasing = false
	v.Note = evt.Note
	v.Velocity = evt.Velocity
	v.Source = evt.Source
	v.Frequency = midiToFreq(evt.Note)
	v.VelocityScale = cfg.VelocityToScale(evt.Velocity)
	v.samplesSinceTrigger = 0
	v.noteOffSample = nil
	for _, s := range v.states {
		s.Reset()
	}
}

// Release marks the voice as releasing, recording the sample index release
// began at (idempotent — a second call while already releasing is a no-op).
func (v *Voice) Release() {
	if v.Releasing {
		return
	}
	v.Releasing = true
	sample := v.samplesSinceTrigger
	v.noteOffSample = &sample
}

// Matches reports whether this voice is the target of a note_off for
// (note, source): active-or-releasing and matching identity.
func (v *Voice) Matches(note uint8, source Source) bool {
	return (v.Active || v.Releasing) && v.Note == note && v.Source == source
}

// Process renders one block into out, scaled by velocity, then advances the
// trigger clock and retires the voice if its release has fully elapsed.
// freqScale multiplies the voice's base frequency for this block (a global
// vibrato LFO's contribution; 1 means no vibrato configured).
// filterSweepHz is added to every operator's low-pass cutoff for this block
// (a global filter-sweep LFO's contribution; 0 means none configured).
func (v *Voice) Process(plan *algorithm.Plan, matrix [][]*algorithm.ConnectionParams, operators []operator.Params, carriers []int, sr float64, freqScale, filterSweepHz float64, out []float64) {
	if !v.Active {
		for k := range out {
			out[k] = 0
		}
		return
	}
	ctx := algorithm.Context{
		SampleRate:    sr,
		BaseFreq:      v.Frequency * freqScale,
		StartSample:   v.samplesSinceTrigger,
		NoteOff:       v.noteOffSample,
		Operators:     operators,
		Carriers:      carriers,
		FilterSweepHz: filterSweepHz,
	}
	algorithm.Execute(plan, matrix, v.states, ctx, v.scratch, out)
	for k := range out {
		out[k] *= v.VelocityScale
	}
	v.samplesSinceTrigger += uint64(len(out))
	if v.Releasing && v.isFinished(plan, operators, carriers, sr) {
		v.Active = false
		v.Releasing = false
	}
}

// IsFinished reports whether every carrier operator's envelope has fully
// released, as of the voice's current clock.
func (v *Voice) IsFinished(plan *algorithm.Plan, operators []operator.Params, carriers []int, sr float64) bool {
	return v.isFinished(plan, operators, carriers, sr)
}

// Level estimates how audible this voice currently is: the summed envelope
// value of its carrier operators at the voice's current clock, the same
// signal the teacher's own voice-stealing heuristic reads from a live
// carrier operator's envelope state.
func (v *Voice) Level(operators []operator.Params, carriers []int, sr float64) float64 {
	if !v.Active {
		return -1
	}
	tOn := float64(v.samplesSinceTrigger) / sr
	var tOffPtr *float64
	if v.noteOffSample != nil {
		t := float64(v.samplesSinceTrigger-*v.noteOffSample) / sr
		tOffPtr = &t
	}
	var sum float64
	for _, c := range carriers {
		if c < 0 || c >= len(operators) {
			continue
		}
		sum += envelope.Evaluate(operators[c].Envelope, tOn, tOffPtr)
	}
	return sum
}

func (v *Voice) isFinished(plan *algorithm.Plan, operators []operator.Params, carriers []int, sr float64) bool {
	if v.noteOffSample == nil {
		return false
	}
	for _, c := range carriers {
		if !operator.Finished(&operators[c], v.samplesSinceTrigger, v.noteOffSample, sr) {
			return false
		}
	}
	return true
}
