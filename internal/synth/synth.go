// Package synth is the top-level facade: it owns the operator table, the
// compiled plan, the voice pool, master gain, and the effect chain, and
// exposes every control operation plus the block-render entry point.
package synth

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ajbucci/rustfmsynth/internal/algorithm"
	"github.com/ajbucci/rustfmsynth/internal/effect"
	"github.com/ajbucci/rustfmsynth/internal/lfo"
	"github.com/ajbucci/rustfmsynth/internal/operator"
	"github.com/ajbucci/rustfmsynth/internal/reverb"
	"github.com/ajbucci/rustfmsynth/internal/voice"
)

// modIndexHeadroom compensates for the maximum permissible per-operator
// modulation index (10) so a fully driven stack doesn't clip before the
// effect chain and limiter get a chance to shape it.
const modIndexHeadroom = 1.0 / 10.0

// Option configures a Synth at construction time.
type Option func(*config)

type config struct {
	operatorCount int
	voiceCount    int
	bufferLen     int
	logger        zerolog.Logger
	voiceConfig   voice.Config
}

func defaultConfig() config {
	return config{
		operatorCount: 4,
		voiceCount:    16,
		bufferLen:     512,
		voiceConfig:   voice.DefaultConfig(),
	}
}

// WithOperatorCount sets N, the fixed operator-table size (default 4).
func WithOperatorCount(n int) Option {
	return func(c *config) { c.operatorCount = n }
}

// WithVoiceCount sets the fixed voice-pool size P (default 16).
func WithVoiceCount(n int) Option {
	return func(c *config) { c.voiceCount = n }
}

// WithBufferSize pre-sizes render scratch buffers (default 512).
func WithBufferSize(n int) Option {
	return func(c *config) { c.bufferLen = n }
}

// WithLogger installs a diagnostics sink (plan-rebuild and no-carrier
// warnings, voice-steal notices). Rejected control input is reported only
// through the returned error and is not logged. The zero value drops
// everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithVoiceConfig overrides the default velocity-sensitivity curve applied
// to newly activated voices.
func WithVoiceConfig(vc voice.Config) Option {
	return func(c *config) { c.voiceConfig = vc }
}

// Synth is the engine's single entry point: construct once via New, then
// drive it with the control operations and Render.
type Synth struct {
	mu sync.Mutex

	sampleRate  float64
	logger      zerolog.Logger
	voiceConfig voice.Config

	operators []operator.Params
	graph     *algorithm.Graph
	plan      *algorithm.Plan

	voices    []*voice.Voice
	nextSteal int

	masterGainBits uint64 // atomic, math.Float64bits(gain)

	effects *effect.Chain
	lfos    [3]lfo.LFO

	mixBuf    []float64
	voiceBuf  []float64
	limiterOn bool
}

// New constructs a Synth for the given sample rate with defaults: 4
// operators, 16 voices, 512-sample scratch, logging disabled.
func New(sampleRate float64, opts ...Option) *Synth {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	ops := make([]operator.Params, cfg.operatorCount)
	for i := range ops {
		ops[i] = operator.DefaultParams()
	}

	s := &Synth{
		sampleRate:     sampleRate,
		logger:         cfg.logger,
		voiceConfig:    cfg.voiceConfig,
		operators:      ops,
		graph:          algorithm.NewGraph(cfg.operatorCount, cfg.logger),
		voices:         make([]*voice.Voice, cfg.voiceCount),
		masterGainBits: math.Float64bits(1.0),
		effects:        &effect.Chain{},
		mixBuf:         make([]float64, cfg.bufferLen),
		voiceBuf:       make([]float64, cfg.bufferLen),
		limiterOn:      true,
	}
	for i := range s.voices {
		s.voices[i] = voice.New()
	}
	_ = s.graph.SetCarriers([]int{0})
	s.rebuildPlan()
	return s
}

// rebuildPlan recompiles the graph and pushes the new plan to every voice.
// Caller must hold mu.
func (s *Synth) rebuildPlan() {
	plan, err := s.graph.Compile()
	if err != nil {
		if algorithm.IsNoCarriersWarning(err) {
			s.logger.Warn().Msg("synth: rebuildPlan: no carriers, keeping previous plan")
			return
		}
		s.logger.Warn().Err(err).Msg("synth: rebuildPlan failed")
		return
	}
	s.plan = plan
	for _, v := range s.voices {
		v.UpdatePlan(plan, len(s.operators), len(s.mixBuf))
	}
}

// SetOperator replaces operator i's immutable parameter bundle wholesale.
func (s *Synth) SetOperator(i int, p operator.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.operators) {
		return fmt.Errorf("synth: operator index %d out of range", i)
	}
	s.operators[i] = p
	return nil
}

// SetConnection installs or replaces edge i->j in the modulation matrix and
// recompiles the plan.
func (s *Synth) SetConnection(i, j int, params algorithm.ConnectionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.SetConnection(i, j, params); err != nil {
		return err
	}
	s.rebuildPlan()
	return nil
}

// ClearConnection removes edge i->j and recompiles the plan.
func (s *Synth) ClearConnection(i, j int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.ClearConnection(i, j)
	s.rebuildPlan()
}

// SetCarriers replaces the carrier set and recompiles the plan.
func (s *Synth) SetCarriers(carriers []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.SetCarriers(carriers); err != nil {
		return err
	}
	s.rebuildPlan()
	return nil
}

// LoadAlgorithmMatrix parses the external N x (N+1) control-surface table
// (§6) and recompiles the plan.
func (s *Synth) LoadAlgorithmMatrix(table [][]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.graph.LoadMatrixTable(table)
	if err != nil && !algorithm.IsNoCarriersWarning(err) {
		return err
	}
	s.rebuildPlan()
	return nil
}

// AddFeedbackRule appends an explicit feedback rule and recompiles.
func (s *Synth) AddFeedbackRule(r algorithm.FeedbackRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.AddFeedbackRule(r)
	s.rebuildPlan()
}

// ClearFeedbackRules removes every explicit feedback rule and recompiles.
func (s *Synth) ClearFeedbackRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.ClearFeedbackRules()
	s.rebuildPlan()
}

// NoteOn triggers evt: reuses the first inactive voice, or steals the
// quietest-carrier-envelope voice if the pool is full.
func (s *Synth) NoteOn(evt voice.NoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.voices {
		if !v.Active {
			v.Activate(evt, s.voiceConfig)
			return
		}
	}

	victim := s.stealVoice()
	s.logger.Warn().Uint8("note", evt.Note).Msg("synth: voice pool exhausted, stealing quietest voice")
	victim.Activate(evt, s.voiceConfig)
}

// stealVoice picks the active voice whose carrier envelopes currently sum
// to the smallest magnitude — the least audible voice to cut. Caller must
// hold mu.
func (s *Synth) stealVoice() *voice.Voice {
	best := s.voices[0]
	bestLevel := math.Inf(1)
	carriers := s.graph.Carriers()
	for _, v := range s.voices {
		level := v.Level(s.operators, carriers, s.sampleRate)
		if level < bestLevel {
			bestLevel = level
			best = v
		}
	}
	return best
}

// NoteOff releases every voice matching (note, source).
func (s *Synth) NoteOff(note uint8, source voice.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.Matches(note, source) {
			v.Release()
		}
	}
}

// SetEffectReverb installs an FDN reverb in the given slot (1-indexed per
// §6, valid range [1,effect.MaxSlots]; an out-of-range slot is ignored).
func (s *Synth) SetEffectReverb(slot int, p reverb.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slot - 1
	s.effects.Set(idx, reverb.New(s.sampleRate, p))
}

// RemoveEffect uninstalls whatever occupies slot.
func (s *Synth) RemoveEffect(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects.Remove(slot - 1)
}

// SetMasterVolume sets the master gain, clamped to [0,1]. Render applies it
// to the voice mix before the effect chain.
func (s *Synth) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	atomic.StoreUint64(&s.masterGainBits, math.Float64bits(v))
}

func (s *Synth) masterGain() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.masterGainBits))
}

// SetBufferSize resizes every voice's scratch buffers. Non-real-time.
func (s *Synth) SetBufferSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixBuf = make([]float64, n)
	s.voiceBuf = make([]float64, n)
	for _, v := range s.voices {
		v.UpdatePlan(s.plan, len(s.operators), n)
	}
}

// SetGlobalLFO configures one of the three global modulation LFOs (index
// 0-2): vibrato, tremolo, or a filter sweep applied across every voice.
func (s *Synth) SetGlobalLFO(index int, l lfo.LFO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lfos) {
		return
	}
	s.lfos[index] = l
}

// Render fills out with the next len(out) samples of mixed, effected audio.
// Must be called with a buffer no longer than the size set by
// SetBufferSize/WithBufferSize. Allocation-free once scratch is sized.
func (s *Synth) Render(out []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(out)
	mix := s.mixBuf[:n]
	for k := range mix {
		mix[k] = 0
	}

	// Sample each configured global LFO once per block and route it to its
	// target: vibrato scales every voice's base frequency, a filter sweep
	// offsets every operator's low-pass cutoff, tremolo scales the master
	// gain below.
	freqScale := 1.0
	filterSweepHz := 0.0
	tremoloMult := 1.0
	for i := range s.lfos {
		l := &s.lfos[i]
		if !l.Active() {
			continue
		}
		switch l.Target {
		case lfo.TargetVibrato:
			cents := l.Sample(s.sampleRate)
			freqScale *= math.Pow(2, cents/1200)
		case lfo.TargetFilterSweep:
			filterSweepHz += l.Sample(s.sampleRate)
		case lfo.TargetTremolo:
			tremoloMult *= 1 + l.Sample(s.sampleRate)
		}
	}

	for _, v := range s.voices {
		if !v.Active {
			continue
		}
		voiceOut := s.voiceBuf[:n]
		v.Process(s.plan, s.graph.Matrix(), s.operators, s.graph.Carriers(), s.sampleRate, freqScale, filterSweepHz, voiceOut)
		for k := range mix {
			mix[k] += voiceOut[k]
		}
	}

	gain := s.masterGain() * modIndexHeadroom * tremoloMult

	for k := 0; k < n; k++ {
		x := mix[k] * gain
		x = s.effects.Process(x)
		if s.limiterOn {
			x = softLimit(x)
		}
		out[k] = x
	}
}

// softLimit is a soft-knee safety limiter kept as a supplementary guard
// against the headroom scalar being insufficient for unusual patches; it
// does not replace the fixed modIndexHeadroom compensation.
func softLimit(x float64) float64 {
	const threshold = 0.9
	a := math.Abs(x)
	if a <= threshold {
		return x
	}
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	over := a - threshold
	compressed := threshold + over/(1+over)
	return sign * compressed
}
