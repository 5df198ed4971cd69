package algorithm

import "github.com/rs/zerolog"

// Compile turns the current matrix/carriers/feedback-rules into an acyclic
// Plan. It never errors on graph structure (out-of-range rule indices are
// skipped with a logged warning). Shape mismatches and out-of-range
// carriers are rejected earlier by LoadMatrixTable/SetCarriers, so the
// returned error is always nil.
func (g *Graph) Compile() (*Plan, error) {
	if len(g.carriers) == 0 {
		g.logger.Warn().Msg("algorithm: compiling with no carriers; plan will be empty")
		return &Plan{}, nil
	}

	nodes := g.buildPhaseA()
	nodes = g.applyDiagonalSelfFeedback(nodes)
	nodes = g.applyFeedbackRules(nodes)

	return &Plan{Nodes: nodes}, nil
}

// buildPhaseA runs the depth-limited DFS from every carrier, per §4.1.1
// Phase A. A parent node's index is allocated before its children are
// visited (matching the literal step order in spec §4.1.1 step 3), so every
// node's inputs have higher indices than the node itself — see DESIGN.md's
// resolution of the compile-order Open Question.
func (g *Graph) buildPhaseA() []PlanNode {
	var nodes []PlanNode
	for _, c := range g.carriers {
		path := make([]int, 0, MaxCycleDepth+1)
		buildNode(g, c, path, &nodes)
	}
	return nodes
}

func buildNode(g *Graph, t int, path []int, nodes *[]PlanNode) (int, bool) {
	occurrences := 0
	for _, p := range path {
		if p == t {
			occurrences++
		}
	}
	if occurrences >= MaxCycleDepth {
		return 0, false
	}

	path = append(path, t)
	idx := len(*nodes)
	*nodes = append(*nodes, PlanNode{OpIndex: t})

	var inputs []int
	for s := 0; s < g.n; s++ {
		if g.matrix[s][t] == nil {
			continue
		}
		childIdx, ok := buildNode(g, s, path, nodes)
		if ok {
			inputs = append(inputs, childIdx)
		}
	}
	(*nodes)[idx].Inputs = inputs
	return idx, true
}

// applyDiagonalSelfFeedback installs a (node,node,1) feedback rule for
// every plan node whose op_index has a self-feedback flag set, per the
// resolved diagonal policy (DESIGN.md).
func (g *Graph) applyDiagonalSelfFeedback(nodes []PlanNode) []PlanNode {
	if len(g.selfFeedback) == 0 {
		return nodes
	}
	// Snapshot the node count reached so far so feedback targets refer to
	// Phase A's output, not nodes created by earlier self-feedback rules in
	// this same pass.
	phaseACount := len(nodes)
	for idx := 0; idx < phaseACount; idx++ {
		if g.selfFeedback[nodes[idx].OpIndex] {
			nodes = applyOneFeedbackRule(nodes, FeedbackRule{FromNode: idx, ToNode: idx, Count: 1}, g.logger)
		}
	}
	return nodes
}

func (g *Graph) applyFeedbackRules(nodes []PlanNode) []PlanNode {
	for _, rule := range g.feedbackRules {
		nodes = applyOneFeedbackRule(nodes, rule, g.logger)
	}
	return nodes
}

func applyOneFeedbackRule(nodes []PlanNode, rule FeedbackRule, logger zerolog.Logger) []PlanNode {
	boundCount := len(nodes)
	if rule.FromNode < 0 || rule.FromNode >= boundCount || rule.ToNode < 0 || rule.ToNode >= boundCount || rule.Count < 0 {
		logger.Warn().Msg("algorithm: feedback rule references out-of-range node, skipping")
		return nodes
	}

	currentIndex := make(map[int]int)
	for i := 0; i < rule.Count; i++ {
		mapping := make(map[int]int)
		stack := []int{rule.ToNode}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := mapping[cur]; ok {
				continue
			}
			newIdx := len(nodes)
			mapping[cur] = newIdx
			nodes = append(nodes, PlanNode{OpIndex: nodes[cur].OpIndex})
			for _, in := range nodes[cur].Inputs {
				if _, visited := mapping[in]; !visited {
					stack = append(stack, in)
				}
			}
		}
		for orig, dup := range mapping {
			origInputs := nodes[orig].Inputs
			newInputs := make([]int, len(origInputs))
			for k, in := range origInputs {
				if d, ok := mapping[in]; ok {
					newInputs[k] = d
				} else if live, ok2 := currentIndex[in]; ok2 {
					newInputs[k] = live
				} else {
					newInputs[k] = in
				}
			}
			nodes[dup].Inputs = newInputs
		}
		nodes[rule.FromNode].Inputs = append(nodes[rule.FromNode].Inputs, mapping[rule.ToNode])
		for orig, dup := range mapping {
			currentIndex[orig] = dup
		}
	}
	return nodes
}
