package story

import (
	"fmt"
	"strconv"

	"github.com/tatianab/money-adventure/internal/models"
)

// WeeklySaving is the weekly amount the weeks-to-goal answer assumes.
const WeeklySaving = 10

// businessChapter is the chapter with the business storyline.
const businessChapter = 2

// Payday is what the chapter-2 payday brings in, which depends on the
// business path the player chose.
func Payday(st models.GameState) int {
	if !st.BusinessStarted {
		return 40
	}
	switch st.BusinessPath {
	case models.BusinessExpand:
		return 150
	case models.BusinessSteady:
		return 90
	case models.BusinessClosed:
		return 30
	default:
		return 60
	}
}

// DefaultRules is the rule registry the shipped script is written against.
func DefaultRules() Rules {
	return Rules{
		Conditions: map[string]Predicate{
			"business_started":   func(s models.GameState) bool { return s.BusinessStarted },
			"no_business":        func(s models.GameState) bool { return !s.BusinessStarted },
			"has_debt":           func(s models.GameState) bool { return s.Debt > 0 },
			"debt_free":          func(s models.GameState) bool { return s.Debt == 0 },
			"can_afford_goal":    func(s models.GameState) bool { return s.GoalGap() <= 0 },
			"cannot_afford_goal": func(s models.GameState) bool { return s.GoalGap() > 0 },
		},
		Reasons: map[string]ReasonRule{
			"cash_below_debt": func(s models.GameState) string {
				if s.Cash < s.Debt {
					return fmt.Sprintf("You need %s in cash to pay it all back.", Money(s.Debt))
				}
				return ""
			},
			"no_cash": func(s models.GameState) string {
				if s.Cash <= 0 {
					return "You don't have any cash right now."
				}
				return ""
			},
		},
		Effects: map[string]EffectsRule{
			"pay_debt_full": func(s models.GameState) models.Effects {
				return models.Effects{Cash: -s.Debt, Debt: -s.Debt}
			},
			"move_cash_to_savings": func(s models.GameState) models.Effects {
				return models.Effects{Cash: -s.Cash, Savings: s.Cash, TotalSaved: s.Cash}
			},
			"payday_save": func(s models.GameState) models.Effects {
				p := Payday(s)
				return models.Effects{Savings: p, TotalEarned: p, TotalSaved: p}
			},
			"payday_cash": func(s models.GameState) models.Effects {
				p := Payday(s)
				return models.Effects{Cash: p, TotalEarned: p}
			},
			"payday_splurge": func(s models.GameState) models.Effects {
				p := Payday(s)
				return models.Effects{Cash: p - p/2, TotalEarned: p, TotalSpentWants: p / 2}
			},
			"borrow_for_goal": func(s models.GameState) models.Effects {
				gap := s.GoalGap()
				if gap < 0 {
					gap = 0
				}
				return models.Effects{Debt: gap, TotalBorrowed: gap}
			},
			"spend_all_cash": func(s models.GameState) models.Effects {
				return models.Effects{Cash: -s.Cash, TotalSpentWants: s.Cash}
			},
		},
		Answers: map[string]AnswerRule{
			"weeks_to_goal": func(s models.GameState) string {
				gap := s.GoalGap()
				if gap <= 0 {
					return "0"
				}
				return strconv.Itoa((gap + WeeklySaving - 1) / WeeklySaving)
			},
			"goal_gap": func(s models.GameState) string {
				gap := s.GoalGap()
				if gap < 0 {
					gap = 0
				}
				return strconv.Itoa(gap)
			},
		},
		Next: map[string]NextRule{
			"after_business_pitch": func(s models.GameState, choiceID string) Location {
				if s.BusinessStarted {
					return Location{Chapter: businessChapter, Scene: 2}
				}
				return Location{Chapter: businessChapter, Scene: 3}
			},
		},
	}
}
