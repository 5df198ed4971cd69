package envelope

import (
	"math"
	"testing"
)

func flat(sustain float64) Params {
	return Params{Attack: 0, Decay: 0, Sustain: sustain, Release: 0, CurveBlend: 0}
}

func TestFlatEnvelopeIsConstant(t *testing.T) {
	p := flat(1)
	for _, t0 := range []float64{0, 0.001, 1, 100} {
		if got := Evaluate(p, t0, nil); math.Abs(got-1) > 1e-12 {
			t.Errorf("Evaluate(%v) = %v, want 1", t0, got)
		}
	}
}

func TestAttackRampsToOne(t *testing.T) {
	p := Params{Attack: 1, Decay: 0, Sustain: 1, Release: 0, CurveBlend: 0}
	if got := Evaluate(p, 0, nil); math.Abs(got) > 1e-12 {
		t.Errorf("Evaluate(0) = %v, want 0", got)
	}
	if got := Evaluate(p, 0.5, nil); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Evaluate(0.5) = %v, want 0.5 (linear attack, beta=0)", got)
	}
	if got := Evaluate(p, 1.0, nil); math.Abs(got-1) > 1e-9 {
		t.Errorf("Evaluate(1.0) = %v, want 1", got)
	}
}

func TestDecayInterpolatesToSustain(t *testing.T) {
	p := Params{Attack: 0, Decay: 1, Sustain: 0.5, Release: 0, CurveBlend: 0}
	if got := Evaluate(p, 0, nil); math.Abs(got-1) > 1e-9 {
		t.Errorf("Evaluate(0) = %v, want 1 (start of decay)", got)
	}
	if got := Evaluate(p, 1, nil); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Evaluate(1) = %v, want 0.5 (sustain level)", got)
	}
	if got := Evaluate(p, 0.5, nil); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Evaluate(0.5) = %v, want 0.75 (midpoint, linear)", got)
	}
}

func TestReleaseReachesZero(t *testing.T) {
	p := Params{Attack: 0.01, Decay: 0.1, Sustain: 0.5, Release: 0.2}
	tOn := 0.5
	for _, tOff := range []float64{0, 0.1, 0.2, 0.3} {
		got := Evaluate(p, tOn, &tOff)
		if tOff >= p.Release {
			if got != 0 {
				t.Errorf("Evaluate with tOff=%v should be 0 once released fully, got %v", tOff, got)
			}
		}
	}
}

func TestReleaseZeroDurationIsImmediatelySilent(t *testing.T) {
	p := Params{Attack: 0, Decay: 0, Sustain: 1, Release: 0}
	tOff := 0.0
	if got := Evaluate(p, 1, &tOff); got != 0 {
		t.Errorf("Evaluate with Release=0 should be 0, got %v", got)
	}
}

func TestEnvelopeRangeIsUnitInterval(t *testing.T) {
	p := Params{Attack: 0.05, Decay: 0.2, Sustain: 0.6, Release: 0.3, CurveBlend: 0.7}
	for tOn := 0.0; tOn < 1.0; tOn += 0.017 {
		got := Evaluate(p, tOn, nil)
		if got < -1e-9 || got > 1+1e-9 {
			t.Fatalf("Evaluate(%v, nil) = %v out of [0,1]", tOn, got)
		}
	}
	for tOff := 0.0; tOff < 0.5; tOff += 0.013 {
		toff := tOff
		got := Evaluate(p, 1.0, &toff)
		if got < -1e-9 || got > 1+1e-9 {
			t.Fatalf("Evaluate(1.0, %v) = %v out of [0,1]", tOff, got)
		}
	}
}

func TestFinished(t *testing.T) {
	p := Params{Release: 0.2}
	if Finished(p, nil) {
		t.Error("held note should never report finished")
	}
	tOff := 0.1
	if Finished(p, &tOff) {
		t.Error("mid-release should not be finished")
	}
	tOff = 0.2
	if !Finished(p, &tOff) {
		t.Error("tOff == Release should be finished")
	}
}
