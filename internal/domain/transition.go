package domain

// Transition compares the previous recorded status with the current cycle.
// It is derived, never stored.
type Transition struct {
	Previous Status
	Current  Status
}

// WentDown reports a known UP followed by DOWN.
func (t Transition) WentDown() bool {
	return t.Previous == StatusUp && t.Current == StatusDown
}

// Recovered reports a known DOWN followed by UP.
func (t Transition) Recovered() bool {
	return t.Previous == StatusDown && t.Current == StatusUp
}

// Changed is true only between two known, different statuses.
func (t Transition) Changed() bool {
	return t.WentDown() || t.Recovered()
}
