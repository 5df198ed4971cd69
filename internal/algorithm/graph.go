// Package algorithm compiles a user-editable operator connectivity matrix
// (with feedback) into a finite, acyclic evaluation plan, and executes that
// plan against a parallel array of operator states to render one voice's
// audio block.
package algorithm

import (
	"fmt"

	"github.com/rs/zerolog"
)

// MaxCycleDepth bounds how many times a single DFS path may revisit the
// same operator index while building the plan. 2 permits exactly one
// self-reference (A -> A unrolls into two chained nodes).
const MaxCycleDepth = 2

// ConnectionParams describes one edge of the modulation matrix: how
// strongly (and, optionally, under what envelope) a source operator
// modulates a target.
type ConnectionParams struct {
	Scale              float64
	ModulationEnvelope *ConnectionEnvelope
}

// ConnectionEnvelope is an optional per-edge envelope shaping the
// modulation amount over time; nil means "always Scale."
type ConnectionEnvelope struct {
	AttackSec float64
	DecaySec  float64
	Sustain   float64
}

// FeedbackRule structurally duplicates the subgraph rooted at ToNode Count
// times, appending each copy as an additional input of FromNode. Indices
// are plan-node indices from the graph as it exists before any rule in the
// current Compile call has been applied.
type FeedbackRule struct {
	FromNode int
	ToNode   int
	Count    int
}

// PlanNode is one entry of a compiled evaluation plan.
type PlanNode struct {
	OpIndex int
	Inputs  []int
}

// Plan is the compiled, acyclic sequence of PlanNodes produced by Compile.
type Plan struct {
	Nodes []PlanNode
}

// Len is the number of nodes in the plan.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Nodes)
}

// Graph holds the control-surface state (matrix, carriers, feedback rules,
// and the diagonal-as-self-feedback set) that Compile turns into a Plan.
type Graph struct {
	n             int
	matrix        [][]*ConnectionParams
	carriers      []int
	feedbackRules []FeedbackRule
	selfFeedback  map[int]bool
	logger        zerolog.Logger
}

// NewGraph constructs an empty N-operator graph. logger may be the zero
// value (zerolog.Logger{}), which drops all diagnostics.
func NewGraph(n int, logger zerolog.Logger) *Graph {
	matrix := make([][]*ConnectionParams, n)
	for i := range matrix {
		matrix[i] = make([]*ConnectionParams, n)
	}
	return &Graph{
		n:            n,
		matrix:       matrix,
		selfFeedback: make(map[int]bool),
		logger:       logger,
	}
}

// N reports the fixed operator count.
func (g *Graph) N() int { return g.n }

// Carriers reports the current carrier set. The returned slice is the
// graph's own backing array, not a copy — callers must treat it as
// read-only; it is only ever replaced wholesale (SetCarriers/
// LoadMatrixTable), never mutated in place.
func (g *Graph) Carriers() []int {
	return g.carriers
}

// Matrix returns the live connection matrix (not a copy) for Execute's
// modulation-scale lookups.
func (g *Graph) Matrix() [][]*ConnectionParams {
	return g.matrix
}

// SetConnection installs or replaces the edge i->j (i modulates j). i==j
// is accepted but is never stored in the matrix; it is recorded as a
// self-feedback flag per the resolved diagonal policy (DESIGN.md).
func (g *Graph) SetConnection(i, j int, params ConnectionParams) error {
	if i < 0 || i >= g.n || j < 0 || j >= g.n {
		return fmt.Errorf("algorithm: connection index out of range: i=%d j=%d n=%d", i, j, g.n)
	}
	if i == j {
		g.selfFeedback[i] = true
		return nil
	}
	p := params
	if p.Scale == 0 {
		p.Scale = 1
	}
	g.matrix[i][j] = &p
	return nil
}

// ClearConnection removes the edge i->j, if any, including a diagonal
// self-feedback flag when i==j.
func (g *Graph) ClearConnection(i, j int) {
	if i < 0 || i >= g.n || j < 0 || j >= g.n {
		return
	}
	if i == j {
		delete(g.selfFeedback, i)
		return
	}
	g.matrix[i][j] = nil
}

// SetCarriers replaces the carrier set wholesale. Out-of-range indices are
// rejected; an empty set is accepted (Compile will warn and return an
// empty plan).
func (g *Graph) SetCarriers(carriers []int) error {
	for _, c := range carriers {
		if c < 0 || c >= g.n {
			return fmt.Errorf("algorithm: carrier index %d out of range [0,%d)", c, g.n)
		}
	}
	g.carriers = append([]int(nil), carriers...)
	return nil
}

// AddFeedbackRule appends an explicit feedback rule, applied after the
// diagonal-derived self-feedback rules during Compile.
func (g *Graph) AddFeedbackRule(r FeedbackRule) {
	g.feedbackRules = append(g.feedbackRules, r)
}

// ClearFeedbackRules removes every explicit feedback rule (diagonal flags
// are untouched; clear those via ClearConnection(i,i)).
func (g *Graph) ClearFeedbackRules() {
	g.feedbackRules = nil
}

// LoadMatrixTable parses the §6 external control-surface representation:
// an N x (N+1) table of {0,1}, row i column j<N meaning "i modulates j",
// and column N meaning "i is a carrier." Diagonal entries become
// self-feedback flags rather than matrix edges.
func (g *Graph) LoadMatrixTable(table [][]int) error {
	if len(table) != g.n {
		return fmt.Errorf("algorithm: matrix has %d rows, want %d", len(table), g.n)
	}
	for i, row := range table {
		if len(row) != g.n+1 {
			return fmt.Errorf("algorithm: matrix row %d has %d columns, want %d", i, len(row), g.n+1)
		}
	}
	newMatrix := make([][]*ConnectionParams, g.n)
	for i := range newMatrix {
		newMatrix[i] = make([]*ConnectionParams, g.n)
	}
	newSelf := make(map[int]bool)
	var carriers []int
	for i, row := range table {
		for j := 0; j < g.n; j++ {
			if row[j] == 0 {
				continue
			}
			if i == j {
				newSelf[i] = true
				continue
			}
			newMatrix[i][j] = &ConnectionParams{Scale: 1}
		}
		if row[g.n] != 0 {
			carriers = append(carriers, i)
		}
	}
	if len(carriers) == 0 {
		g.logger.Warn().Msg("algorithm: set_algorithm called with no carriers; keeping previous plan")
		return errNoCarriers
	}
	g.matrix = newMatrix
	g.selfFeedback = newSelf
	g.carriers = carriers
	return nil
}

var errNoCarriers = fmt.Errorf("algorithm: no carriers specified")

// IsNoCarriersWarning reports whether err is the specific "no carriers"
// warning condition (a no-op, not a failure) from LoadMatrixTable.
func IsNoCarriersWarning(err error) bool {
	return err == errNoCarriers
}
