// Package envelope implements the stateless ADSR-with-curve-blend evaluator
// shared by every operator.
package envelope

import "math"

// epsilon below which a duration is treated as "instantaneous."
const epsilon = 1e-9

// Params describes one ADSR shape. CurveBlend (β) is in [0,1]: 0 is a linear
// ramp, 1 is the exponential-ish blend described in spec §4.3. Callers
// deriving β from a 0-10 UI control divide by 10 before storing it here.
type Params struct {
	Attack     float64
	Decay      float64
	Sustain    float64
	Release    float64
	CurveBlend float64
}

// attackShape and decayShape return the blended multiplier for progress
// p ∈ [0,1] given the linear-to-exponential blend β: attackShape is the
// attack curve (y = (1-β)p + β(2^p-1)), decayShape the decay/release curve
// (m = (1-β)(1-p) + β(2-2^p)).
func attackShape(p, beta float64) float64 {
	return (1-beta)*p + beta*(math.Pow(2, p)-1)
}

func decayShape(p, beta float64) float64 {
	return (1-beta)*(1-p) + beta*(2-math.Pow(2, p))
}

// preRelease evaluates the envelope ignoring any release, at time tOn since
// trigger.
func preRelease(p Params, tOn float64) float64 {
	if tOn < p.Attack {
		if p.Attack <= epsilon {
			return 1
		}
		progress := tOn / p.Attack
		return attackShape(progress, p.CurveBlend)
	}
	decayElapsed := tOn - p.Attack
	if decayElapsed < p.Decay {
		if p.Decay <= epsilon {
			return p.Sustain
		}
		progress := decayElapsed / p.Decay
		m := decayShape(progress, p.CurveBlend)
		return p.Sustain + (1-p.Sustain)*m
	}
	return p.Sustain
}

// Evaluate returns the envelope's gain in [0,1] at (tOn, tOff). tOff is nil
// while the note is held; once non-nil it is the elapsed time since release
// (tOn - note_off_time), always ≥ 0.
func Evaluate(p Params, tOn float64, tOff *float64) float64 {
	if tOff == nil {
		return preRelease(p, tOn)
	}
	if p.Release <= epsilon || *tOff >= p.Release {
		return 0
	}
	v0 := preRelease(p, tOn-*tOff)
	progress := *tOff / p.Release
	m := decayShape(progress, p.CurveBlend)
	return v0 * m
}

// Finished reports whether the release phase (if any) has fully elapsed.
func Finished(p Params, tOff *float64) bool {
	if tOff == nil {
		return false
	}
	return *tOff >= p.Release
}
