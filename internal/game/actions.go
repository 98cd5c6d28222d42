package game

// Action is a player intent sent to Session.Dispatch.
type Action interface {
	action() string
}

// CreateCharacter binds identity and the big goal, then starts chapter 1.
type CreateCharacter struct {
	DisplayName string
	Avatar      string
	Theme       string
	GoalID      string
}

// SelectChoice picks one of the current scene's choices.
type SelectChoice struct {
	ChoiceID string
}

// SubmitChallengeAnswer answers the scene's bonus challenge.
type SubmitChallengeAnswer struct {
	Answer string
}

// SubmitReflection answers the scene's reflection prompt.
type SubmitReflection struct {
	Answer string
}

// AdvanceScene is the "continue" press in every phase that does not take
// input.
type AdvanceScene struct{}

func (CreateCharacter) action() string       { return "create_character" }
func (SelectChoice) action() string          { return "select_choice" }
func (SubmitChallengeAnswer) action() string { return "submit_challenge_answer" }
func (SubmitReflection) action() string      { return "submit_reflection" }
func (AdvanceScene) action() string          { return "advance_scene" }
