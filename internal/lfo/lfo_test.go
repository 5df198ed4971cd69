package lfo

import (
	"math"
	"testing"
)

func TestLFOTriangleBasicShape(t *testing.T) {
	l := &LFO{Target: TargetVibrato, Waveform: WaveTriangle, DepthVal: 1.0, RateHz: 1.0}

	sr := 100.0 // 100 samples per second = 100 samples per cycle
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Sample(sr)
	}

	if math.Abs(samples[0]-(-1.0)) > 0.05 {
		t.Errorf("triangle at phase 0: got %f, want -1.0", samples[0])
	}
	if math.Abs(samples[25]) > 0.05 {
		t.Errorf("triangle at phase 0.25: got %f, want ~0", samples[25])
	}
	if math.Abs(samples[50]-1.0) > 0.05 {
		t.Errorf("triangle at phase 0.5: got %f, want 1.0", samples[50])
	}
}

func TestLFOSquareShape(t *testing.T) {
	l := &LFO{Target: TargetTremolo, Waveform: WaveSquare, DepthVal: 2.0, RateHz: 1.0}

	sr := 100.0
	v := l.Sample(sr)
	if math.Abs(v-2.0) > 0.01 {
		t.Errorf("square first half: got %f, want 2.0", v)
	}
	for i := 1; i < 50; i++ {
		l.Sample(sr)
	}
	v = l.Sample(sr)
	if math.Abs(v-(-2.0)) > 0.01 {
		t.Errorf("square second half: got %f, want -2.0", v)
	}
}

func TestLFOSawShape(t *testing.T) {
	l := &LFO{Target: TargetFilterSweep, Waveform: WaveSaw, DepthVal: 1.0, RateHz: 1.0}

	sr := 100.0
	v := l.Sample(sr)
	if math.Abs(v-1.0) > 0.05 {
		t.Errorf("saw at phase 0: got %f, want 1.0", v)
	}
}

func TestLFOZeroDepthReturnsZero(t *testing.T) {
	l := &LFO{Target: TargetVibrato, Waveform: WaveTriangle, DepthVal: 0, RateHz: 5.0}

	v := l.Sample(44100)
	if v != 0 {
		t.Errorf("zero depth should return 0, got %f", v)
	}
}

func TestLFOZeroRateReturnsZero(t *testing.T) {
	l := &LFO{Target: TargetVibrato, Waveform: WaveTriangle, DepthVal: 1.0, RateHz: 0}

	v := l.Sample(44100)
	if v != 0 {
		t.Errorf("zero rate should return 0, got %f", v)
	}
}

func TestLFOTargetNoneIsInactive(t *testing.T) {
	l := &LFO{Waveform: WaveTriangle, DepthVal: 1.0, RateHz: 5.0}
	if l.Active() {
		t.Error("TargetNone LFO should not be active regardless of depth/rate")
	}
	if v := l.Sample(44100); v != 0 {
		t.Errorf("TargetNone LFO should sample to 0, got %f", v)
	}
}

func TestLFOActive(t *testing.T) {
	l := &LFO{}
	if l.Active() {
		t.Error("default LFO should not be active")
	}
	l = &LFO{Target: TargetVibrato, Waveform: WaveTriangle, DepthVal: 1.0, RateHz: 5.0}
	if !l.Active() {
		t.Error("configured LFO should be active")
	}
	l.DepthVal = 0
	if l.Active() {
		t.Error("zero-depth LFO should not be active")
	}
}

func TestLFORandomProducesValues(t *testing.T) {
	l := &LFO{Target: TargetVibrato, Waveform: WaveRandom, DepthVal: 1.0, RateHz: 10.0}

	sr := 1000.0
	var nonZero int
	for i := 0; i < 200; i++ {
		v := l.Sample(sr)
		if v != 0 {
			nonZero++
		}
		if math.Abs(v) > 1.0 {
			t.Errorf("random sample exceeds depth: %f", v)
		}
	}
	if nonZero == 0 {
		t.Log("warning: all random samples were zero (possible but unlikely)")
	}
}

func TestLFOResetClearsPhase(t *testing.T) {
	l := &LFO{Target: TargetVibrato, Waveform: WaveTriangle, DepthVal: 1.0, RateHz: 1.0}
	for i := 0; i < 30; i++ {
		l.Sample(100)
	}
	l.Reset()
	v := l.Sample(100)
	if math.Abs(v-(-1.0)) > 0.05 {
		t.Errorf("after reset, first sample should be -1.0 again, got %f", v)
	}
}
