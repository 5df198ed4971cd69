package filter

// Descriptor is the control-surface representation of a filter: enough to
// construct (or reconstruct) a Filter instance. Exactly one field group is
// meaningful depending on Kind.
type Descriptor struct {
	Kind Kind

	// LowPass
	Cutoff float64

	// Comb
	Alpha float64
	K     int

	// PitchedComb uses Alpha only; its k is set by Retune at note-on.
}

// Template is the operator-level, immutable ordered list of filter
// descriptors, at most one per Kind.
type Template struct {
	descriptors []Descriptor
}

// Set installs or replaces the filter of the descriptor's kind, preserving
// the existing position in the list if one already exists for that kind,
// otherwise appending.
func (t *Template) Set(d Descriptor) {
	for i, existing := range t.descriptors {
		if existing.Kind == d.Kind {
			t.descriptors[i] = d
			return
		}
	}
	t.descriptors = append(t.descriptors, d)
}

// Remove deletes the filter of the given kind, if present.
func (t *Template) Remove(k Kind) {
	for i, existing := range t.descriptors {
		if existing.Kind == k {
			t.descriptors = append(t.descriptors[:i], t.descriptors[i+1:]...)
			return
		}
	}
}

// Get reports the descriptor for a kind, if present.
func (t *Template) Get(k Kind) (Descriptor, bool) {
	for _, existing := range t.descriptors {
		if existing.Kind == k {
			return existing, true
		}
	}
	return Descriptor{}, false
}

// Clone returns an independent copy of the descriptor list.
func (t Template) Clone() Template {
	cp := Template{descriptors: make([]Descriptor, len(t.descriptors))}
	copy(cp.descriptors, t.descriptors)
	return cp
}

// Instantiate builds a live Chain from the template, for sampleRate (needed
// by LowPass coefficient computation; PitchedComb is left untuned until
// Retune is called at note-on).
func (t Template) Instantiate(sampleRate float64) *Chain {
	c := &Chain{}
	for _, d := range t.descriptors {
		switch d.Kind {
		case LowPass:
			c.filters = append(c.filters, NewLowPassBiquad(d.Cutoff, sampleRate))
		case Comb:
			k := d.K
			if k < 1 {
				k = 1
			}
			c.filters = append(c.filters, NewComb(d.Alpha, k))
		case PitchedComb:
			c.filters = append(c.filters, NewPitchedComb(d.Alpha))
		}
	}
	return c
}

// Chain is a per-voice, per-operator ordered list of live filter instances,
// cloned from a Template at note-on so each voice has independent history.
type Chain struct {
	filters []Filter
}

// Process runs x through every filter in list order.
func (c *Chain) Process(x float64) float64 {
	for _, f := range c.filters {
		x = f.Process(x)
	}
	return x
}

// Reset clears every filter's history without rebuilding the chain.
func (c *Chain) Reset() {
	for _, f := range c.filters {
		f.Reset()
	}
}

// Clone deep-copies the chain (used when an OperatorState is itself cloned,
// which currently doesn't happen, but kept symmetric with Filter.Clone).
func (c *Chain) Clone() *Chain {
	cp := &Chain{filters: make([]Filter, len(c.filters))}
	for i, f := range c.filters {
		cp.filters[i] = f.Clone()
	}
	return cp
}

// PitchedComb returns the chain's pitched comb filter, if one is installed,
// so the operator can retune it at note-on.
func (c *Chain) PitchedComb() (*PitchedCombFilter, bool) {
	for _, f := range c.filters {
		if pc, ok := f.(*PitchedCombFilter); ok {
			return pc, true
		}
	}
	return nil, false
}

// LowPass returns the chain's low-pass biquad, if one is installed, so a
// global filter-sweep LFO can retarget its cutoff.
func (c *Chain) LowPass() (*LowPassBiquad, bool) {
	for _, f := range c.filters {
		if lp, ok := f.(*LowPassBiquad); ok {
			return lp, true
		}
	}
	return nil, false
}
