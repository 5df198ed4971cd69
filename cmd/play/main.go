// Command play drives a synth.Synth live through ebiten's audio device,
// triggering notes from the computer keyboard's QWERTY rows.
package main

import (
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	intaudio "github.com/ajbucci/rustfmsynth/internal/audio"
	"github.com/ajbucci/rustfmsynth/internal/algorithm"
	"github.com/ajbucci/rustfmsynth/internal/synth"
	"github.com/ajbucci/rustfmsynth/internal/voice"
)

const sampleRate = 48000

var keyNotes = []struct {
	key  ebiten.Key
	note uint8
}{
	{ebiten.KeyA, 60}, {ebiten.KeyW, 61}, {ebiten.KeyS, 62}, {ebiten.KeyE, 63},
	{ebiten.KeyD, 64}, {ebiten.KeyF, 65}, {ebiten.KeyT, 66}, {ebiten.KeyG, 67},
	{ebiten.KeyY, 68}, {ebiten.KeyH, 69}, {ebiten.KeyU, 70}, {ebiten.KeyJ, 71},
	{ebiten.KeyK, 72},
}

type game struct {
	s *synth.Synth
}

func (g *game) Update() error {
	for _, kn := range keyNotes {
		if inpututil.IsKeyJustPressed(kn.key) {
			evt, err := voice.NewNoteEvent(kn.note, 100, voice.SourceKeyboard)
			if err == nil {
				g.s.NoteOn(evt)
			}
		}
		if inpututil.IsKeyJustReleased(kn.key) {
			g.s.NoteOff(kn.note, voice.SourceKeyboard)
		}
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	ebitenutil.DebugPrint(screen, "rustfmsynth\nkeys A W S E D F T G Y H U J K play notes 60-72\nesc to quit")
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 480, 240
}

func main() {
	s := synth.New(sampleRate, synth.WithBufferSize(512))
	if err := s.SetConnection(1, 0, algorithm.ConnectionParams{Scale: 1}); err != nil {
		log.Fatal(err)
	}

	player, err := intaudio.NewPlayer(sampleRate, s)
	if err != nil {
		log.Fatal(err)
	}
	player.Play()

	ebiten.SetWindowSize(480, 240)
	ebiten.SetWindowTitle("rustfmsynth")
	if err := ebiten.RunGame(&game{s: s}); err != nil {
		fmt.Println("exiting:", err)
	}
}
