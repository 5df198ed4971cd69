// Command render drives a synth.Synth offline and writes the result to a
// WAV file — a demo/audition tool, not a core engine feature.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ajbucci/rustfmsynth/internal/algorithm"
	"github.com/ajbucci/rustfmsynth/internal/envelope"
	"github.com/ajbucci/rustfmsynth/internal/operator"
	"github.com/ajbucci/rustfmsynth/internal/reverb"
	"github.com/ajbucci/rustfmsynth/internal/synth"
	"github.com/ajbucci/rustfmsynth/internal/voice"
)

func main() {
	out := flag.String("out", "render.wav", "output WAV path")
	note := flag.Int("note", 69, "MIDI note number")
	velocity := flag.Int("velocity", 100, "MIDI velocity")
	seconds := flag.Float64("seconds", 2.0, "total render duration in seconds")
	sampleRate := flag.Int("rate", 48000, "sample rate in Hz")
	modIndex := flag.Float64("mod-index", 2.0, "modulator operator 1's modulation index")
	reverbWet := flag.Float64("reverb-wet", 0.25, "reverb wet mix [0,1]")
	flag.Parse()

	const bufferLen = 512
	s := synth.New(float64(*sampleRate), synth.WithBufferSize(bufferLen))

	if err := s.SetConnection(1, 0, algorithm.ConnectionParams{Scale: 1}); err != nil {
		fmt.Fprintln(os.Stderr, "configure algorithm:", err)
		os.Exit(1)
	}
	op1 := operator.DefaultParams()
	op1.Ratio = 2
	op1.ModIndex = *modIndex
	op1.Envelope = envelope.Params{Attack: 0.005, Decay: 0.2, Sustain: 0.4, Release: 0.3}
	if err := s.SetOperator(1, op1); err != nil {
		fmt.Fprintln(os.Stderr, "configure operator:", err)
		os.Exit(1)
	}
	s.SetEffectReverb(1, reverb.Params{PreDelaySec: 0.01, DecaySec: 1.2, Wet: *reverbWet})

	evt, err := voice.NewNoteEvent(uint8(*note), uint8(*velocity), voice.SourceKeyboard)
	if err != nil {
		fmt.Fprintln(os.Stderr, "note event:", err)
		os.Exit(1)
	}
	s.NoteOn(evt)

	totalSamples := int(*seconds * float64(*sampleRate))
	releaseAt := totalSamples * 2 / 3

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create file:", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, *sampleRate, 16, 1, 1)
	defer enc.Close()

	block := make([]float64, bufferLen)
	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: *sampleRate},
		Data:           make([]int, bufferLen),
		SourceBitDepth: 16,
	}

	rendered := 0
	for rendered < totalSamples {
		n := bufferLen
		if totalSamples-rendered < n {
			n = totalSamples - rendered
		}
		if rendered < releaseAt && rendered+n >= releaseAt {
			s.NoteOff(uint8(*note), voice.SourceKeyboard)
		}
		s.Render(block[:n])
		intBuf.Data = intBuf.Data[:n]
		for i := 0; i < n; i++ {
			intBuf.Data[i] = int(math.Round(clamp(block[i], -1, 1) * 32767))
		}
		if err := enc.Write(intBuf); err != nil {
			fmt.Fprintln(os.Stderr, "write samples:", err)
			os.Exit(1)
		}
		rendered += n
	}

	fmt.Printf("wrote %d samples to %s\n", rendered, *out)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
