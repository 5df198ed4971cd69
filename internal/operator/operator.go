// Package operator implements the oscillator-envelope-filter building block
// shared across voices: an immutable Params bundle and a per-voice,
// per-plan-node State that carries phase, smoothed parameters, and a cloned
// filter chain.
package operator

import (
	"math"

	"github.com/ajbucci/rustfmsynth/internal/envelope"
	"github.com/ajbucci/rustfmsynth/internal/filter"
	"github.com/ajbucci/rustfmsynth/internal/waveform"
)

// FreqMode selects how an operator's carrier frequency is derived.
type FreqMode int

const (
	// Ratio derives frequency from the voice's base frequency times Ratio.
	Ratio FreqMode = iota
	// Fixed uses FixedHz regardless of the voice's note.
	Fixed
)

const (
	smoothingAlphaRatio = 0.001
	smoothingAlphaMod   = 0.001
)

// Params is the immutable, shared-across-voices description of one operator.
type Params struct {
	Waveform    waveform.Kind
	FreqMode    FreqMode
	Ratio       float64
	FixedHz     float64
	DetuneCents float64
	Envelope    envelope.Params
	ModIndex    float64
	Gain        float64
	Filters     filter.Template
}

// DefaultParams returns a plain sine carrier: ratio 1, mod index 0, unity
// gain, a short default envelope, no filters.
func DefaultParams() Params {
	return Params{
		Waveform: waveform.Sine,
		FreqMode: Ratio,
		Ratio:    1,
		ModIndex: 0,
		Gain:     1,
		Envelope: envelope.Params{Attack: 0.01, Decay: 0.1, Sustain: 0.8, Release: 0.3},
	}
}

// State is the mutable, per-voice, per-plan-node instance of an operator:
// phase, smoothed ratio/mod-index, a cloned filter chain, and a private
// noise source (see waveform.NoiseSource for why this isn't shared).
type State struct {
	phase       float64
	ratioSm     float64
	modIndexSm  float64
	filters     *filter.Chain
	initialized bool
	noise       *waveform.NoiseSource
}

// NewState returns a freshly reset operator state. seed disambiguates the
// per-instance noise source across voices/nodes so independent Noise
// operators don't happen to correlate.
func NewState(seed uint32) *State {
	return &State{noise: waveform.NewNoiseSource(seed)}
}

// Reset clears all per-voice history, forcing re-initialization (phase,
// smoothing seed, filter clone, pitched-comb retune) on the next Process
// call, as happens at note-on.
func (s *State) Reset() {
	s.phase = 0
	s.ratioSm = 0
	s.modIndexSm = 0
	s.filters = nil
	s.initialized = false
}

func detuneHz(freq, cents float64) float64 {
	if cents == 0 {
		return 0
	}
	return freq * (math.Pow(2, cents/1200) - 1)
}

// Process renders one block of out (length B) from one block of modulation
// input mod (length B, may be nil/zero for a pure oscillator node). sr is
// the sample rate, f0 the voice's base frequency (from its note), startSample
// the absolute sample index of out[0] since the voice's trigger, and noteOff
// the absolute sample index of release (nil while the note is held).
// modIdxOut, if non-nil, receives this block's smoothed modulation index at
// every sample — the scale a caller (algorithm.Execute) applies to this
// node's out buffer (after filter, envelope and gain) when forwarding it as
// another node's modulation input. Modulation index never scales this node's own emitted
// out buffer: it only governs how strongly it drives downstream operators.
// filterSweepHz is the current global filter-sweep LFO offset (0 if none
// configured), added to this operator's low-pass cutoff for the block.
func (s *State) Process(p *Params, sr, f0 float64, startSample uint64, noteOff *uint64, mod, out, modIdxOut []float64, filterSweepHz float64) {
	if !s.initialized {
		s.ratioSm = p.Ratio
		s.modIndexSm = p.ModIndex
		s.filters = p.Filters.Instantiate(sr)
		if pc, ok := s.filters.PitchedComb(); ok {
			target := f0 * s.ratioSm
			if p.FreqMode == Fixed {
				target = p.FixedHz
			}
			pc.Retune(sr, target)
		}
		s.initialized = true
	}

	if filterSweepHz != 0 {
		if lp, ok := s.filters.LowPass(); ok {
			if d, ok := p.Filters.Get(filter.LowPass); ok {
				lp.SetCutoff(d.Cutoff+filterSweepHz, sr)
			}
		}
	}

	for k := range out {
		s.ratioSm += (p.Ratio - s.ratioSm) * smoothingAlphaRatio
		s.modIndexSm += (p.ModIndex - s.modIndexSm) * smoothingAlphaMod

		freq := f0 * s.ratioSm
		if p.FreqMode == Fixed {
			freq = p.FixedHz
		}
		freq += detuneHz(freq, p.DetuneCents)

		var modSample float64
		if mod != nil {
			modSample = mod[k]
		}

		// Sample at the current phase accumulator before advancing it, so
		// the first sample of a freshly triggered voice reads phase 0 (and
		// scenario 1's closed-form sin(2*pi*f*k/sr) comparison holds for
		// k=0 as well as every later k).
		var wave float64
		if p.Waveform == waveform.Input {
			wave = modSample
		} else {
			wave = waveform.Sample(s.phase+modSample, p.Waveform, s.noise)
		}

		filtered := s.filters.Process(wave)

		sampleIndex := startSample + uint64(k)
		tOn := float64(sampleIndex) / sr
		var tOffPtr *float64
		if noteOff != nil {
			t := float64(sampleIndex-*noteOff) / sr
			tOffPtr = &t
		}
		env := envelope.Evaluate(p.Envelope, tOn, tOffPtr)

		out[k] = filtered * env * p.Gain
		if modIdxOut != nil {
			modIdxOut[k] = s.modIndexSm
		}

		s.phase += 2 * math.Pi * freq / sr
		s.phase = math.Mod(s.phase, 2*math.Pi)
		if s.phase < 0 {
			s.phase += 2 * math.Pi
		}
	}
}

// Finished reports whether this operator's envelope has fully released, as
// of sampleIndex (absolute samples since trigger). Used by Voice.IsFinished
// against carrier nodes.
func Finished(p *Params, sampleIndex uint64, noteOff *uint64, sr float64) bool {
	if noteOff == nil {
		return false
	}
	t := float64(sampleIndex-*noteOff) / sr
	return envelope.Finished(p.Envelope, &t)
}
