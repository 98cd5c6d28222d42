package game

import "github.com/tatianab/money-adventure/internal/models"

// ApplyEffects returns s with e applied. It never fails: callers gate
// choices before getting here.
//
// Cash, savings and debt floor at zero, wellbeing is clamped to [0,100],
// traits accumulate freely and aggregate counters only ever grow.
func ApplyEffects(s models.GameState, e models.Effects) models.GameState {
	s.Cash = floor(s.Cash + e.Cash)
	s.Savings = floor(s.Savings + e.Savings)
	s.Debt = floor(s.Debt + e.Debt)
	s.Wellbeing = clamp(s.Wellbeing+e.Wellbeing, 0, 100)

	s.SaverScore += e.SaverScore
	s.RiskScore += e.RiskScore
	s.PlannerScore += e.PlannerScore

	s.TotalEarned += growth(e.TotalEarned)
	s.TotalSpentNeeds += growth(e.TotalSpentNeeds)
	s.TotalSpentWants += growth(e.TotalSpentWants)
	s.TotalSaved += growth(e.TotalSaved)
	s.TotalBorrowed += growth(e.TotalBorrowed)
	return s
}

// ApplyFlags sets the narrative flags named in f.
func ApplyFlags(s models.GameState, f models.Flags) models.GameState {
	if f.BusinessStarted != nil {
		s.BusinessStarted = *f.BusinessStarted
	}
	if f.BusinessPath != nil {
		s.BusinessPath = *f.BusinessPath
	}
	if f.GoalPurchaseAttempted != nil {
		s.GoalPurchaseAttempted = *f.GoalPurchaseAttempted
	}
	return s
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func growth(d int) int {
	if d < 0 {
		return 0
	}
	return d
}
