// Package filter implements the three per-operator filter kinds and the
// ordered, at-most-one-per-kind template/chain they live in.
package filter

import "math"

// Kind discriminates the closed set of filter variants. It identifies a
// filter's variant (template lookup, replace/remove by kind); per-sample
// processing in Chain calls each filter through the Filter interface, not
// through a switch on Kind.
type Kind int

const (
	LowPass Kind = iota
	Comb
	PitchedComb
)

// Filter is a stateful unary transform.
type Filter interface {
	Kind() Kind
	Reset()
	Process(x float64) float64
	// Clone returns an independent copy with the same parameters and fresh
	// (zeroed) history, used when a voice clones an operator's template at
	// note-on.
	Clone() Filter
}

// ---- LowPassBiquad -------------------------------------------------------

const sqrt2Inv = 0.70710678118654752440 // 1/sqrt(2), the RBJ Q for this design.

// LowPassBiquad is an RBJ Direct-Form-I low-pass biquad.
type LowPassBiquad struct {
	cutoff, sampleRate float64
	b0, b1, b2         float64
	a1, a2             float64
	x1, x2, y1, y2     float64
}

// NewLowPassBiquad constructs a biquad for cutoff (clamped to [1, 0.49*sr]).
func NewLowPassBiquad(cutoff, sampleRate float64) *LowPassBiquad {
	f := &LowPassBiquad{}
	f.configure(cutoff, sampleRate)
	return f
}

func (f *LowPassBiquad) configure(cutoff, sampleRate float64) {
	if cutoff < 1 {
		cutoff = 1
	}
	maxCutoff := 0.49 * sampleRate
	if cutoff > maxCutoff {
		cutoff = maxCutoff
	}
	f.cutoff = cutoff
	f.sampleRate = sampleRate

	omega := 2 * math.Pi * cutoff / sampleRate
	cosOmega := math.Cos(omega)
	sinOmega := math.Sin(omega)
	alpha := sinOmega / (2 * sqrt2Inv)

	b0 := (1 - cosOmega) / 2
	b1 := 1 - cosOmega
	b2 := (1 - cosOmega) / 2
	a0 := 1 + alpha
	a1 := -2 * cosOmega
	a2 := 1 - alpha

	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = a1/a0, a2/a0
}

func (f *LowPassBiquad) Kind() Kind { return LowPass }

func (f *LowPassBiquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

func (f *LowPassBiquad) Process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *LowPassBiquad) Clone() Filter {
	cp := *f
	cp.x1, cp.x2, cp.y1, cp.y2 = 0, 0, 0, 0
	return &cp
}

// Cutoff reports the (clamped) cutoff this biquad was built with.
func (f *LowPassBiquad) Cutoff() float64 { return f.cutoff }

// SetCutoff recomputes this biquad's coefficients for a new cutoff,
// preserving its x1/x2/y1/y2 history (used to retarget cutoff in place for
// a filter sweep, without the discontinuity a full Reset would cause).
func (f *LowPassBiquad) SetCutoff(cutoff, sampleRate float64) {
	f.configure(cutoff, sampleRate)
}

// ---- Comb ------------------------------------------------------------

// CombFilter is a fixed-length feedback comb.
type CombFilter struct {
	alpha   float64
	buf     []float64
	index   int
	k       int
}

// NewComb constructs a comb filter with feedback alpha and delay length k
// (samples). k < 1 is clamped to 1.
func NewComb(alpha float64, k int) *CombFilter {
	if k < 1 {
		k = 1
	}
	return &CombFilter{alpha: alpha, buf: make([]float64, k), k: k}
}

func (f *CombFilter) Kind() Kind { return Comb }

func (f *CombFilter) Reset() {
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.index = 0
}

func (f *CombFilter) Process(x float64) float64 {
	y := x + f.alpha*f.buf[f.index]
	f.buf[f.index] = y
	f.index = (f.index + 1) % f.k
	return y
}

func (f *CombFilter) Clone() Filter {
	cp := &CombFilter{alpha: f.alpha, k: f.k, buf: make([]float64, f.k)}
	return cp
}

// ---- PitchedComb -------------------------------------------------------

// PitchedCombFilter is a Comb whose delay length tracks a target frequency,
// giving Karplus-Strong-like plucked behavior via 2-tap damping.
type PitchedCombFilter struct {
	alpha float64
	buf   []float64
	index int
	k     int
}

// NewPitchedComb constructs an (initially untuned, k=1) pitched comb. Retune
// must be called once the target frequency is known (typically at note-on).
func NewPitchedComb(alpha float64) *PitchedCombFilter {
	return &PitchedCombFilter{alpha: alpha, buf: make([]float64, 1), k: 1}
}

// Retune resizes the delay line to round(sr/freq) samples, resetting history.
func (f *PitchedCombFilter) Retune(sampleRate, freq float64) {
	k := 1
	if freq > 0 {
		k = int(math.Round(sampleRate / freq))
		if k < 1 {
			k = 1
		}
	}
	f.k = k
	f.buf = make([]float64, k)
	f.index = 0
}

func (f *PitchedCombFilter) Kind() Kind { return PitchedComb }

func (f *PitchedCombFilter) Reset() {
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.index = 0
}

func (f *PitchedCombFilter) Process(x float64) float64 {
	cur := f.buf[f.index]
	prevIdx := (f.index + f.k - 1) % f.k
	prev := f.buf[prevIdx]
	loop := x + f.alpha*cur
	y := (loop + prev) / 2
	if !isFinite(y) {
		f.Reset()
		return 0
	}
	f.buf[f.index] = y
	f.index = (f.index + 1) % f.k
	return y
}

func (f *PitchedCombFilter) Clone() Filter {
	cp := &PitchedCombFilter{alpha: f.alpha, k: f.k, buf: make([]float64, f.k)}
	return cp
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
