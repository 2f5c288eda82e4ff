package shape

// Policy holds the arena's tuning constants.
type Policy struct {
	// MaxTransitions is the fan-out threshold: once a shape has this many
	// outgoing transitions, further property-add and prototype-change
	// transitions from it produce fresh dictionary shapes.
	MaxTransitions int

	// MaxTransitionLength caps the number of properties on a shareable
	// path; adding past it demotes the object to a dictionary shape.
	MaxTransitionLength int

	// InitialCapacity is the storage capacity of the first grown shape.
	InitialCapacity int

	// GrowthFactor multiplies capacity whenever the layout outgrows it.
	GrowthFactor int

	// Concurrent enables the arena lock and publish-once transition
	// insertion for hosts that mutate shapes from several goroutines.
	// Individual objects are still owned by one goroutine at a time.
	Concurrent bool
}

// DefaultPolicy returns the engine defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxTransitions:      64,
		MaxTransitionLength: 64,
		InitialCapacity:     4,
		GrowthFactor:        2,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxTransitions <= 0 {
		p.MaxTransitions = d.MaxTransitions
	}
	if p.MaxTransitionLength <= 0 {
		p.MaxTransitionLength = d.MaxTransitionLength
	}
	if p.InitialCapacity <= 0 {
		p.InitialCapacity = d.InitialCapacity
	}
	if p.GrowthFactor < 2 {
		p.GrowthFactor = d.GrowthFactor
	}
	return p
}

// capacityFor returns the capacity needed to hold need slots, starting from
// cur and growing geometrically.
func (p Policy) capacityFor(cur, need int) int {
	if need <= cur {
		return cur
	}
	c := cur
	if c < p.InitialCapacity {
		c = p.InitialCapacity
	}
	for c < need {
		c *= p.GrowthFactor
	}
	return c
}
