package algorithm

import (
	"github.com/ajbucci/rustfmsynth/internal/operator"
)

// Context carries the per-voice information Execute needs beyond the plan
// and operator states themselves.
type Context struct {
	SampleRate  float64
	BaseFreq    float64
	StartSample uint64
	NoteOff     *uint64
	Operators   []operator.Params
	Carriers    []int

	// FilterSweepHz is the current global filter-sweep LFO offset (Hz),
	// added to every operator's low-pass cutoff for this block. Zero means
	// no sweep is configured.
	FilterSweepHz float64
}

// Scratch holds the pre-sized, reusable buffers and dedup bitmaps Execute
// needs: one output, modulation, and smoothed-mod-index buffer per plan
// node (sized to the plan length and configured block length), plus a
// per-operator dedup bitmap for the carrier-summation pass. Allocate once
// (on plan rebuild or buffer-size change), never inside Execute — this is
// the only state Execute may touch per sample.
type Scratch struct {
	nodeOut    []float64 // len(plan) * blockLen
	nodeMod    []float64 // len(plan) * blockLen
	nodeModIdx []float64 // len(plan) * blockLen, smoothed modulation index per sample
	visited    []bool    // len(plan), dedups the recursive per-node evaluation
	seenOp     []bool    // len(opCount), dedups carrier op_index across duplicated plan nodes
	blockLen   int
	planLen    int
	opCount    int
}

// NewScratch allocates a Scratch for a plan of the given length, an operator
// table of the given size, and a block size.
func NewScratch(planLen, opCount, blockLen int) *Scratch {
	return &Scratch{
		nodeOut:    make([]float64, planLen*blockLen),
		nodeMod:    make([]float64, planLen*blockLen),
		nodeModIdx: make([]float64, planLen*blockLen),
		visited:    make([]bool, planLen),
		seenOp:     make([]bool, opCount),
		blockLen:   blockLen,
		planLen:    planLen,
		opCount:    opCount,
	}
}

// Resize grows or shrinks the scratch to match a new plan length, operator
// count, and/or block length. This is a non-real-time operation (called
// from set_buffer_size or a plan rebuild), never from Execute.
func (s *Scratch) Resize(planLen, opCount, blockLen int) {
	if s.planLen == planLen && s.opCount == opCount && s.blockLen == blockLen {
		return
	}
	s.nodeOut = make([]float64, planLen*blockLen)
	s.nodeMod = make([]float64, planLen*blockLen)
	s.nodeModIdx = make([]float64, planLen*blockLen)
	s.visited = make([]bool, planLen)
	s.seenOp = make([]bool, opCount)
	s.planLen = planLen
	s.opCount = opCount
	s.blockLen = blockLen
}

func (s *Scratch) outBuf(node int) []float64 {
	start := node * s.blockLen
	return s.nodeOut[start : start+s.blockLen]
}

func (s *Scratch) modBuf(node int) []float64 {
	start := node * s.blockLen
	return s.nodeMod[start : start+s.blockLen]
}

func (s *Scratch) modIdxBuf(node int) []float64 {
	start := node * s.blockLen
	return s.nodeModIdx[start : start+s.blockLen]
}

// Execute runs the plan for one voice-block: states is the parallel array
// of per-node operator states (length == plan.Len()), matrix is the
// graph's connection matrix (for modulation scale lookups), output is the
// destination buffer (length == len(out) <= scratch.blockLen).
func Execute(plan *Plan, matrix [][]*ConnectionParams, states []*operator.State, ctx Context, scratch *Scratch, output []float64) {
	n := plan.Len()
	for i := 0; i < n && i < len(scratch.visited); i++ {
		scratch.visited[i] = false
	}

	B := len(output)

	var evaluate func(node int)
	evaluate = func(node int) {
		if scratch.visited[node] {
			return
		}
		pn := plan.Nodes[node]
		mod := scratch.modBuf(node)[:B]
		for k := range mod {
			mod[k] = 0
		}
		for _, in := range pn.Inputs {
			evaluate(in)
			srcOp := plan.Nodes[in].OpIndex
			conn := matrix[srcOp][pn.OpIndex]
			if conn == nil {
				continue
			}
			inOut := scratch.outBuf(in)[:B]
			inModIdx := scratch.modIdxBuf(in)[:B]
			if conn.ModulationEnvelope == nil {
				for k := 0; k < B; k++ {
					mod[k] += inOut[k] * inModIdx[k] * conn.Scale
				}
			} else {
				for k := 0; k < B; k++ {
					envVal := connectionEnvelopeValue(conn, ctx, k)
					mod[k] += inOut[k] * inModIdx[k] * conn.Scale * envVal
				}
			}
		}
		out := scratch.outBuf(node)[:B]
		modIdx := scratch.modIdxBuf(node)[:B]
		states[node].Process(&ctx.Operators[pn.OpIndex], ctx.SampleRate, ctx.BaseFreq, ctx.StartSample, ctx.NoteOff, mod, out, modIdx, ctx.FilterSweepHz)
		scratch.visited[node] = true
	}

	for i := 0; i < n; i++ {
		evaluate(i)
	}

	for k := range output {
		output[k] = 0
	}
	for i := range scratch.seenOp {
		scratch.seenOp[i] = false
	}
	for i := 0; i < n; i++ {
		op := plan.Nodes[i].OpIndex
		if op < 0 || op >= len(scratch.seenOp) || !isCarrier(op, ctx) || scratch.seenOp[op] {
			continue
		}
		scratch.seenOp[op] = true
		src := scratch.outBuf(i)[:B]
		for k := 0; k < B; k++ {
			output[k] += src[k]
		}
	}
}

// connectionEnvelopeValue evaluates an edge's optional modulation envelope
// at sample k of the current block (absolute time derived from
// ctx.StartSample+k, per-sample as the envelope is audible at block-rate
// resolution otherwise); a nil envelope means "always 1" (the edge
// contributes at full Scale).
func connectionEnvelopeValue(conn *ConnectionParams, ctx Context, k int) float64 {
	e := conn.ModulationEnvelope
	tOn := float64(ctx.StartSample+uint64(k)) / ctx.SampleRate
	if tOn < e.AttackSec {
		if e.AttackSec <= 0 {
			return 1
		}
		return tOn / e.AttackSec
	}
	decayElapsed := tOn - e.AttackSec
	if decayElapsed < e.DecaySec {
		if e.DecaySec <= 0 {
			return e.Sustain
		}
		p := decayElapsed / e.DecaySec
		return 1 + (e.Sustain-1)*p
	}
	return e.Sustain
}

// isCarrier is resolved against the carrier marker the Synth facade stashes
// on Context (see synth package); algorithm itself only needs to know the
// *compiled* carrier set, which it already baked into which op_index values
// were used as Phase-A roots. Since Phase A only ever starts from carrier
// operators, the set of op_index values appearing as a *root* equals the
// carrier set; callers that need strict membership pass it explicitly via
// Context.Carriers to keep Execute decoupled from Graph.
func isCarrier(op int, ctx Context) bool {
	for _, c := range ctx.Carriers {
		if c == op {
			return true
		}
	}
	return false
}
