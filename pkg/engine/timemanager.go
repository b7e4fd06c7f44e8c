package engine

// SimpleTimeManager budgets a fixed fraction of the remaining clock plus
// half the increment, clamped to keep blitz games moving.
type SimpleTimeManager struct{}

func (SimpleTimeManager) AllocateTimeMs(timeLeftMs, incrementMs, moveNumber, movesToGo int) int {
	var budget = timeLeftMs/25 + incrementMs/2
	if budget < 10 {
		budget = 10
	}
	if budget > 2000 {
		budget = 2000
	}
	return budget
}
