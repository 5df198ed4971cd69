// Package reverb implements a permutation feedback-delay-network reverb:
// prime-length delay lines per channel, an optional chain of multichannel
// diffusers, and Householder-reflection feedback mixing through two
// LCG-derived permutation vectors.
package reverb

import (
	"math"
	"math/rand"
)

const (
	minChannels     = 2
	maxChannels     = 128
	defaultChannels = 16
	diffusionStages = 4
	spreadSeconds   = 0.5
	permutationSeed = 42

	multiplier1 uint64 = 69069
	multiplier2 uint64 = 1664525
)

// Params are the user-facing reverb controls: pre-delay and decay time (T60)
// in seconds, and wet mix. The effect slot is chosen by the caller.
type Params struct {
	PreDelaySec float64
	DecaySec    float64 // T60
	Wet         float64
}

// FDN is one configured reverb instance, ready to process one sample at a
// time. Construction is the only place randomness or prime search happens;
// Process never allocates.
type FDN struct {
	wet        float64
	channels   int
	delays     []*delayLine
	decayCoeff []float64
	diffusers  []*diffuser
	pIn        []int
	pOut       []int

	feedback    []float64
	inputCh     []float64
	delayOut    []float64
	permuteIn   []float64
}

// New builds an FDN reverb for the given sample rate and controls.
func New(sr float64, p Params) *FDN {
	channels := channelsPow2(defaultChannels)
	predelaySamples := sr * p.PreDelaySec
	spreadSamples := sr * spreadSeconds
	rt60 := p.DecaySec
	if rt60 <= 0 {
		rt60 = 0.001
	}

	deltas := delayTargetDeltas(int(predelaySamples), int(predelaySamples+spreadSamples), channels)
	delaySamples := findPrimeDelays(deltas)

	f := &FDN{
		wet:       p.Wet,
		channels:  channels,
		delays:    make([]*delayLine, channels),
		decayCoeff: make([]float64, channels),
		feedback:  make([]float64, channels),
		inputCh:   make([]float64, channels),
		delayOut:  make([]float64, channels),
		permuteIn: make([]float64, channels),
	}
	for i := 0; i < channels; i++ {
		d := 2
		if i < len(delaySamples) {
			d = delaySamples[i]
		}
		f.delays[i] = newDelayLine(d)
		f.decayCoeff[i] = math.Pow(0.001, float64(d)/(sr*rt60))
	}

	rng := rand.New(rand.NewSource(permutationSeed))
	for stage := 0; stage < diffusionStages; stage++ {
		maxDelay := 0.01 * float64(stage+1) * sr
		f.diffusers = append(f.diffusers, newDiffuser(channels, maxDelay, rng))
	}

	f.pIn, f.pOut = permutations(channels, permutationSeed)
	return f
}

// SetControls updates wet mix in place (decay/predelay require rebuilding
// the delay lines, so callers replace the FDN wholesale for those — see
// the synth effect-chain wiring).
func (f *FDN) SetControls(wet float64) {
	f.wet = wet
}

// Reset clears all delay and diffuser history (does not re-randomize
// diffuser geometry or permutations).
func (f *FDN) Reset() {
	for _, d := range f.delays {
		d.reset()
	}
	for _, d := range f.diffusers {
		d.reset()
	}
	for i := range f.feedback {
		f.feedback[i] = 0
	}
}

// Process runs one mono sample through the network in place.
func (f *FDN) Process(x float64) float64 {
	n := f.channels
	for i := 0; i < n; i++ {
		f.inputCh[i] = x
	}
	for _, d := range f.diffusers {
		d.process(f.inputCh)
	}

	var wet float64
	for i := 0; i < n; i++ {
		in := f.feedback[i] + f.inputCh[i]
		y := f.delays[i].process(in)
		if !isFiniteF(y) {
			f.delays[i].reset()
			y = 0
		}
		f.delayOut[i] = y
		a := y * f.decayCoeff[i]
		wet += y
		f.permuteIn[f.pIn[i]] = a
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += f.permuteIn[i]
	}
	k := (2 / float64(n)) * sum
	for i := 0; i < n; i++ {
		out := f.permuteIn[i] - k
		f.feedback[f.pOut[i]] = out
	}

	wetOut := wet / math.Sqrt(float64(n))
	return (1-f.wet)*x + f.wet*wetOut
}

func isFiniteF(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func channelsPow2(channels int) int {
	if channels < minChannels {
		channels = minChannels
	}
	if channels > maxChannels {
		channels = maxChannels
	}
	if channels&(channels-1) == 0 {
		return channels
	}
	upper := nextPow2(channels)
	lower := upper / 2
	if channels-lower <= upper-channels {
		return lower
	}
	return upper
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// permutations derives two index permutations over [0,channels) from a
// fixed seed via two distinct LCG-style multipliers.
func permutations(channels int, seed uint64) ([]int, []int) {
	pIn := make([]int, channels)
	pOut := make([]int, channels)
	offset1 := seed + uint64(channels/2)
	offset2 := (seed >> 32) + (seed & 0xFFFFFFFF)
	c := uint64(channels)
	for i := 0; i < channels; i++ {
		pIn[i] = int((multiplier1*uint64(i) + offset1) % c)
		pOut[i] = int((multiplier2*uint64(i) + offset2) % c)
	}
	return pIn, pOut
}

// delayTargetDeltas distributes num targets along a blended linear/
// exponential curve (curve=1.0, pure exponential) between min and max.
func delayTargetDeltas(min, max, num int) []int {
	if min < 2 {
		min = 2
	}
	if max < min {
		max = min
	}
	deltas := make([]int, num)
	deltas[0] = min
	if num == 1 {
		return deltas
	}
	ratio := math.Pow(float64(max)/float64(min), 1/float64(num-1))
	last := float64(deltas[0])
	for i := 1; i < num; i++ {
		next := last * ratio
		delta := next - last
		last = next
		deltas[i] = int(math.Round(delta))
	}
	return deltas
}

// findPrimeDelays walks the prime sequence, picking the next prime at or
// beyond last_prime + delta for each requested delta, guaranteeing a
// strictly non-decreasing, distinct sequence of prime delay lengths.
func findPrimeDelays(deltas []int) []int {
	num := len(deltas)
	result := make([]int, 0, num)

	sum := 0
	for _, d := range deltas {
		sum += d
	}
	sieveLimit := sum*2 + num*100
	if sieveLimit < 64 {
		sieveLimit = 64
	}

	composite := make([]bool, sieveLimit+1)
	for i := 2; i*i <= sieveLimit; i++ {
		if composite[i] {
			continue
		}
		for m := i * i; m <= sieveLimit; m += i {
			composite[m] = true
		}
	}

	lastPrime := 0
	targetIdx := 0
	for p := 2; p <= sieveLimit && len(result) < num; p++ {
		if composite[p] {
			continue
		}
		searchVal := lastPrime + deltas[targetIdx]
		if searchVal < lastPrime+1 {
			searchVal = lastPrime + 1
		}
		if p >= searchVal {
			result = append(result, p)
			lastPrime = p
			if len(result) < num {
				targetIdx++
			}
		}
	}
	for len(result) < num {
		result = append(result, lastPrime+1)
		lastPrime++
	}
	return result
}
