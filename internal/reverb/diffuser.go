package reverb

import (
	"math"
	"math/rand"
)

// diffuser is one stage of a multichannel diffusion network: a per-channel
// short delay, a Walsh-Hadamard mix across channels, then per-channel
// polarity flips and power normalization. Channel count must be a power of
// two (the caller, fdn, guarantees this).
type diffuser struct {
	delays     []*delayLine
	polarity   []float64
	norm       float64
	numChannels int
}

// newDiffuser builds a diffuser for numChannels channels, with each
// channel's delay length drawn uniformly from its own sub-range of
// [0, maxDelaySamples) so the stage's channels decorrelate from each other.
// rng is a private, construction-only source (never touched again after
// this call returns) — diffusion is randomized once at startup, not per
// sample.
func newDiffuser(numChannels int, maxDelaySamples float64, rng *rand.Rand) *diffuser {
	d := &diffuser{
		delays:      make([]*delayLine, numChannels),
		polarity:    make([]float64, numChannels),
		numChannels: numChannels,
		norm:        1 / math.Sqrt(float64(numChannels)),
	}
	for i := 0; i < numChannels; i++ {
		lo := maxDelaySamples * float64(i) / float64(numChannels)
		hi := maxDelaySamples * float64(i+1) / float64(numChannels)
		var length float64
		if lo >= hi {
			length = maxFloat(lo, 0)
		} else {
			length = lo + rng.Float64()*(hi-lo)
		}
		if length < 1 {
			length = 1
		}
		d.delays[i] = newDelayLine(int(length))
		if rng.Intn(2) == 0 {
			d.polarity[i] = -1
		} else {
			d.polarity[i] = 1
		}
	}
	return d
}

// process runs the per-channel delay, the in-place fast Walsh-Hadamard
// transform, and the polarity/normalization pass over buf (length must
// equal numChannels).
func (d *diffuser) process(buf []float64) {
	for i, dl := range d.delays {
		buf[i] = dl.process(buf[i])
	}
	for h := 1; h < d.numChannels; h *= 2 {
		for i := 0; i < d.numChannels; i += h * 2 {
			for j := i; j < i+h; j++ {
				x, y := buf[j], buf[j+h]
				buf[j] = x + y
				buf[j+h] = x - y
			}
		}
	}
	for i := range buf {
		buf[i] *= d.polarity[i] * d.norm
	}
}

func (d *diffuser) reset() {
	for _, dl := range d.delays {
		dl.reset()
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
