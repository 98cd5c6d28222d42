package game

import "github.com/tatianab/money-adventure/internal/models"

// DetermineEnding classifies a finished playthrough. Rules are checked in
// order and the first match wins; risky_spender catches everything else.
func DetermineEnding(s models.GameState) models.EndingType {
	funds := s.Cash + s.Savings
	cost := s.Goal.Cost
	switch {
	case s.BoughtGoal && s.Debt == 0 && funds >= cost+20 && s.SaverScore >= 6:
		return models.EndingSuperSaver
	case s.BoughtGoal && s.Debt <= 10 && s.SaverScore >= 3:
		return models.EndingBalancedPlanner
	// savings*2 >= cost is savings >= 0.5*cost without rounding.
	case !s.BoughtGoal && s.Debt == 0 && s.Savings*2 >= cost:
		return models.EndingAlmostThere
	case s.BoughtGoal && s.Debt > 0:
		return models.EndingBorrowNowPayLater
	default:
		return models.EndingRiskySpender
	}
}

// Ending is the display bundle for an ending.
type Ending struct {
	Type        models.EndingType
	Title       string
	Badge       string
	Description string
}

var endings = map[models.EndingType]Ending{
	models.EndingSuperSaver: {
		Title:       "Super Saver",
		Badge:       "🏆",
		Description: "You reached your goal with money to spare and no debt. Your patience paid off big time!",
	},
	models.EndingBalancedPlanner: {
		Title:       "Balanced Planner",
		Badge:       "⚖️",
		Description: "You got your goal while keeping debt small. You balanced fun today with plans for tomorrow.",
	},
	models.EndingAlmostThere: {
		Title:       "Almost There",
		Badge:       "🌱",
		Description: "You didn't buy your goal yet, but you're debt-free and more than halfway. Keep going!",
	},
	models.EndingBorrowNowPayLater: {
		Title:       "Borrow Now, Pay Later",
		Badge:       "💳",
		Description: "You got your goal, but you owe money. Remember: borrowed money has to be paid back, often with interest.",
	},
	models.EndingRiskySpender: {
		Title:       "Risky Spender",
		Badge:       "🎢",
		Description: "Spending felt good in the moment, but your goal slipped away. Next time, try saving a little first.",
	},
}

// EndingInfo looks up the display bundle for t.
func EndingInfo(t models.EndingType) Ending {
	e, ok := endings[t]
	if !ok {
		e = endings[models.EndingRiskySpender]
		t = models.EndingRiskySpender
	}
	e.Type = t
	return e
}
