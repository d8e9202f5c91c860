package engine

type TurnFilter struct {
	Limit *int // nil means no cut-off
}

func NewTurnFilterUntil(untilTurn int) TurnFilter {
	if untilTurn <= 0 {
		return TurnFilter{}
	}
	limit := untilTurn
	return TurnFilter{Limit: &limit}
}

// Allow reports whether events belonging to turn may still be folded.
func (f TurnFilter) Allow(turn int) bool {
	if f.Limit == nil {
		return true
	}
	return turn <= *f.Limit
}
