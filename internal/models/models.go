package models

import "time"

// Stage is the lifecycle stage of a playthrough.
type Stage string

const (
	StageCharacterCreation Stage = "character_creation"
	StagePlaying           Stage = "playing"
	StageEnded             Stage = "ended"
)

// rank orders stages so transitions can be checked for monotonicity.
func (s Stage) rank() int {
	switch s {
	case StageCharacterCreation:
		return 0
	case StagePlaying:
		return 1
	case StageEnded:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps the stage order
// character_creation -> playing -> ended.
func (s Stage) CanAdvanceTo(next Stage) bool {
	return s.rank() >= 0 && next.rank() == s.rank()+1
}

// BusinessPath records which direction the player took their side business.
type BusinessPath string

const (
	BusinessNone   BusinessPath = ""
	BusinessExpand BusinessPath = "expand"
	BusinessSteady BusinessPath = "steady"
	BusinessClosed BusinessPath = "closed"
)

// EndingType is one of the five narrative endings.
type EndingType string

const (
	EndingNone              EndingType = ""
	EndingSuperSaver        EndingType = "super_saver"
	EndingBalancedPlanner   EndingType = "balanced_planner"
	EndingAlmostThere       EndingType = "almost_there"
	EndingBorrowNowPayLater EndingType = "borrow_now_pay_later"
	EndingRiskySpender      EndingType = "risky_spender"
)

// Endings lists every ending in classification order.
var Endings = []EndingType{
	EndingSuperSaver,
	EndingBalancedPlanner,
	EndingAlmostThere,
	EndingBorrowNowPayLater,
	EndingRiskySpender,
}

// GameState is one player's playthrough. It is treated as a value: the
// reducer copies it, never mutates it in place.
type GameState struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Theme       Theme  `json:"theme"`
	Goal        Goal   `json:"goal"`

	Chapter int   `json:"chapter"`
	Scene   int   `json:"scene"`
	Stage   Stage `json:"stage"`

	Cash      int `json:"cash"`
	Savings   int `json:"savings"`
	Debt      int `json:"debt"`
	Wellbeing int `json:"wellbeing"`

	SaverScore   int `json:"saver_score"`
	RiskScore    int `json:"risk_score"`
	PlannerScore int `json:"planner_score"`

	TotalEarned     int `json:"total_earned"`
	TotalSpentNeeds int `json:"total_spent_needs"`
	TotalSpentWants int `json:"total_spent_wants"`
	TotalSaved      int `json:"total_saved"`
	TotalBorrowed   int `json:"total_borrowed"`

	BusinessStarted       bool         `json:"business_started"`
	BusinessPath          BusinessPath `json:"business_path,omitempty"`
	GoalPurchaseAttempted bool         `json:"goal_purchase_attempted"`

	EndingType EndingType `json:"ending_type,omitempty"`
	BoughtGoal bool       `json:"bought_goal"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Starting resources for a new playthrough.
const (
	StartingCash      = 20
	StartingWellbeing = 70
)

// NewGameState returns a playthrough waiting for character creation.
func NewGameState(playerID string) GameState {
	return GameState{
		PlayerID:  playerID,
		Stage:     StageCharacterCreation,
		Cash:      StartingCash,
		Wellbeing: StartingWellbeing,
	}
}

// Funds is everything the player could spend right now.
func (s GameState) Funds() int {
	return s.Cash + s.Savings
}

// GoalGap is how much is still missing to afford the goal; zero or negative
// means the goal is affordable.
func (s GameState) GoalGap() int {
	return s.Goal.Cost - s.Funds()
}

// Effects is a full delta record. Every field defaults to zero so a missing
// entry in the script means "no change".
type Effects struct {
	Cash      int `yaml:"cash" json:"cash,omitempty"`
	Savings   int `yaml:"savings" json:"savings,omitempty"`
	Debt      int `yaml:"debt" json:"debt,omitempty"`
	Wellbeing int `yaml:"wellbeing" json:"wellbeing,omitempty"`

	SaverScore   int `yaml:"saver_score" json:"saver_score,omitempty"`
	RiskScore    int `yaml:"risk_score" json:"risk_score,omitempty"`
	PlannerScore int `yaml:"planner_score" json:"planner_score,omitempty"`

	TotalEarned     int `yaml:"total_earned" json:"total_earned,omitempty"`
	TotalSpentNeeds int `yaml:"total_spent_needs" json:"total_spent_needs,omitempty"`
	TotalSpentWants int `yaml:"total_spent_wants" json:"total_spent_wants,omitempty"`
	TotalSaved      int `yaml:"total_saved" json:"total_saved,omitempty"`
	TotalBorrowed   int `yaml:"total_borrowed" json:"total_borrowed,omitempty"`
}

// Add returns the field-wise sum of two effect records.
func (e Effects) Add(o Effects) Effects {
	return Effects{
		Cash:            e.Cash + o.Cash,
		Savings:         e.Savings + o.Savings,
		Debt:            e.Debt + o.Debt,
		Wellbeing:       e.Wellbeing + o.Wellbeing,
		SaverScore:      e.SaverScore + o.SaverScore,
		RiskScore:       e.RiskScore + o.RiskScore,
		PlannerScore:    e.PlannerScore + o.PlannerScore,
		TotalEarned:     e.TotalEarned + o.TotalEarned,
		TotalSpentNeeds: e.TotalSpentNeeds + o.TotalSpentNeeds,
		TotalSpentWants: e.TotalSpentWants + o.TotalSpentWants,
		TotalSaved:      e.TotalSaved + o.TotalSaved,
		TotalBorrowed:   e.TotalBorrowed + o.TotalBorrowed,
	}
}

// Flags are the explicit narrative flags a choice may set. Nil means
// "leave unchanged".
type Flags struct {
	BusinessStarted       *bool         `yaml:"business_started" json:"business_started,omitempty"`
	BusinessPath          *BusinessPath `yaml:"business_path" json:"business_path,omitempty"`
	GoalPurchaseAttempted *bool         `yaml:"goal_purchase_attempted" json:"goal_purchase_attempted,omitempty"`
}

// TraitLevel turns a latent trait score into the qualitative level shown to
// the player.
func TraitLevel(score int) string {
	switch {
	case score >= 6:
		return "high"
	case score >= 2:
		return "medium"
	default:
		return "low"
	}
}
