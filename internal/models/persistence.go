package models

import (
	"encoding/json"
	"fmt"
)

// Phase is the step within the current scene.
type Phase string

const (
	PhaseStory              Phase = "story"
	PhaseOutcome            Phase = "outcome"
	PhaseChallenge          Phase = "challenge"
	PhaseChallengeFeedback  Phase = "challenge_feedback"
	PhaseReflection         Phase = "reflection"
	PhaseReflectionFeedback Phase = "reflection_feedback"
	PhaseTurnEnd            Phase = "turn_end"
	PhaseEnded              Phase = "ended"
	PhaseContentMissing     Phase = "content_missing"
)

// ChallengeResult is what the player sees after answering a challenge.
type ChallengeResult struct {
	Correct     bool   `json:"correct"`
	Accepted    bool   `json:"accepted,omitempty"` // grader unavailable, answer let through
	Answer      string `json:"answer"`
	Expected    string `json:"expected,omitempty"`
	Feedback    string `json:"feedback"`
	BonusEarned int    `json:"bonus_earned,omitempty"`
}

// ReflectionResult is the evaluator's response to an open-ended reflection.
type ReflectionResult struct {
	Answer   string `json:"answer"`
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
	Fallback bool   `json:"fallback,omitempty"`
}

// SavedGame is everything needed to resume a playthrough mid-scene
// without re-applying a choice.
type SavedGame struct {
	State        GameState         `json:"state"`
	Phase        Phase             `json:"phase"`
	LastChoiceID string            `json:"last_choice_id,omitempty"`
	LastOutcome  string            `json:"last_outcome,omitempty"`
	Challenge    *ChallengeResult  `json:"challenge,omitempty"`
	Reflection   *ReflectionResult `json:"reflection,omitempty"`
	Epilogue     string            `json:"epilogue,omitempty"`
}

// Marshal encodes the save as a JSON blob.
func (g *SavedGame) Marshal() ([]byte, error) {
	return json.Marshal(g)
}

// UnmarshalSavedGame decodes a save blob. A blob that decodes but fails
// Validate is rejected as malformed.
func UnmarshalSavedGame(data []byte) (*SavedGame, error) {
	var g SavedGame
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode saved game: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("decode saved game: %w", err)
	}
	return &g, nil
}

// playingPhases are the phases a game in StagePlaying can be in.
var playingPhases = map[Phase]bool{
	PhaseStory:              true,
	PhaseOutcome:            true,
	PhaseChallenge:          true,
	PhaseChallengeFeedback:  true,
	PhaseReflection:         true,
	PhaseReflectionFeedback: true,
	PhaseTurnEnd:            true,
	PhaseContentMissing:     true,
}

// Validate reports whether g is a state the game could have produced:
// stage and phase agree, resources are in range and the goal is from the
// catalog.
func (g *SavedGame) Validate() error {
	st := g.State
	switch st.Stage {
	case StageCharacterCreation:
		if g.Phase != "" {
			return fmt.Errorf("phase %q before character creation", g.Phase)
		}
	case StagePlaying:
		if !playingPhases[g.Phase] {
			return fmt.Errorf("phase %q while playing", g.Phase)
		}
		if st.Chapter <= 0 || st.Scene <= 0 {
			return fmt.Errorf("bad cursor %d.%d", st.Chapter, st.Scene)
		}
	case StageEnded:
		if g.Phase != PhaseEnded {
			return fmt.Errorf("phase %q after the ending", g.Phase)
		}
		known := false
		for _, e := range Endings {
			known = known || e == st.EndingType
		}
		if !known {
			return fmt.Errorf("unknown ending %q", st.EndingType)
		}
	case "":
		return fmt.Errorf("missing stage")
	default:
		return fmt.Errorf("unknown stage %q", st.Stage)
	}

	if st.Cash < 0 || st.Savings < 0 || st.Debt < 0 {
		return fmt.Errorf("negative resources: cash %d, savings %d, debt %d", st.Cash, st.Savings, st.Debt)
	}
	if st.Wellbeing < 0 || st.Wellbeing > 100 {
		return fmt.Errorf("wellbeing %d out of range", st.Wellbeing)
	}
	if st.Stage != StageCharacterCreation {
		if _, ok := FindGoal(st.Goal.ID); !ok {
			return fmt.Errorf("goal %q is not in the catalog", st.Goal.ID)
		}
	}
	return nil
}
