// Package game runs a Money Adventure playthrough: the phase machine that
// walks the scene graph, applies choice effects, grades challenges and
// classifies the ending.
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tatianab/money-adventure/internal/mastery"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

// MaxNameLength bounds the player's display name, in runes.
const MaxNameLength = 24

// Repository persists a player's snapshot and mastery scores. LoadGame and
// LoadMastery return nil with no error when nothing usable is saved.
type Repository interface {
	LoadGame(ctx context.Context, playerID string) (*models.SavedGame, error)
	SaveGame(ctx context.Context, g *models.SavedGame) error
	LoadMastery(ctx context.Context, playerID string) (map[string]mastery.ConceptScore, error)
	SaveMastery(ctx context.Context, playerID string, scores map[string]mastery.ConceptScore) error
	Forget(ctx context.Context, playerID string) error
}

// Deps wires a session to its collaborators. Graph is required; a nil
// Grader or Epilogues means every call falls back.
type Deps struct {
	Graph     *story.Graph
	Grader    Grader
	Epilogues EpilogueWriter
	Repo      Repository
	Logger    *zerolog.Logger
	Now       func() time.Time

	GradeTimeout    time.Duration
	EpilogueTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = &log.Logger
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.GradeTimeout <= 0 {
		d.GradeTimeout = 10 * time.Second
	}
	if d.EpilogueTimeout <= 0 {
		d.EpilogueTimeout = 20 * time.Second
	}
	return d
}

// Session is one player's game. Accessors are safe to call while a
// Dispatch is waiting on the grader.
type Session struct {
	deps    Deps
	log     zerolog.Logger
	tracker *mastery.Tracker

	mu    sync.Mutex
	saved models.SavedGame
	rev   int
}

// New starts a fresh playthrough at character creation.
func New(deps Deps, playerID string) *Session {
	deps = deps.withDefaults()
	s := &Session{
		deps:    deps,
		log:     deps.Logger.With().Str("player_id", playerID).Logger(),
		tracker: mastery.NewTracker(nil),
	}
	s.saved = models.SavedGame{State: models.NewGameState(playerID)}
	return s
}

// Resume loads the player's saved game and mastery. With nothing usable
// saved it behaves like New.
func Resume(ctx context.Context, deps Deps, playerID string) (*Session, error) {
	s := New(deps, playerID)
	if s.deps.Repo == nil {
		return s, nil
	}

	scores, err := s.deps.Repo.LoadMastery(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	s.tracker.Load(scores)

	saved, err := s.deps.Repo.LoadGame(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	if saved == nil || saved.State.PlayerID != playerID {
		s.log.Info().Msg("no saved game, starting fresh")
		return s, nil
	}
	if err := saved.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("ignoring malformed saved game")
		return s, nil
	}
	if saved.State.Stage == models.StagePlaying {
		if _, ok := s.deps.Graph.Scene(saved.State.Chapter, saved.State.Scene); !ok {
			s.log.Error().Int("chapter", saved.State.Chapter).Int("scene", saved.State.Scene).Msg("saved scene not found")
			saved.Phase = models.PhaseContentMissing
		}
	}
	s.saved = *saved
	s.log.Info().
		Str("stage", string(saved.State.Stage)).
		Str("phase", string(saved.Phase)).
		Stringer("location", s.location()).
		Msg("resumed saved game")
	return s, nil
}

// Restart begins a new playthrough for the same player. Mastery carries
// over.
func (s *Session) Restart(ctx context.Context) {
	s.mu.Lock()
	s.saved = models.SavedGame{State: models.NewGameState(s.saved.State.PlayerID)}
	s.rev++
	snapshot := s.saved
	s.mu.Unlock()
	s.log.Info().Msg("restarted")
	s.persist(ctx, snapshot)
}

// Reset erases the player's saved game and mastery and starts over at
// character creation.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	playerID := s.saved.State.PlayerID
	if s.deps.Repo != nil {
		if err := s.deps.Repo.Forget(ctx, playerID); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("forget player: %w", err)
		}
	}
	s.tracker.Reset()
	s.saved = models.SavedGame{State: models.NewGameState(playerID)}
	s.rev++
	s.mu.Unlock()
	s.log.Info().Msg("progress erased")
	return nil
}

// Dispatch applies one action. On error the session is unchanged.
func (s *Session) Dispatch(ctx context.Context, a Action) error {
	if a == nil {
		return newError(CodeUnknownAction, "nil action")
	}
	s.mu.Lock()
	cur, rev := s.saved, s.rev
	s.mu.Unlock()

	next, obs, err := s.reduce(ctx, cur, a)
	if err != nil {
		s.log.Debug().Err(err).Str("action", a.action()).Msg("action rejected")
		return err
	}

	s.mu.Lock()
	if s.rev != rev {
		s.mu.Unlock()
		return newError(CodeInvalidPhase, "the game moved on while %s was in flight", a.action())
	}
	s.saved = next
	s.rev++
	s.mu.Unlock()

	if len(obs) > 0 {
		if err := s.tracker.Record(obs...); err != nil {
			s.log.Warn().Err(err).Msg("record mastery")
		}
	}
	s.log.Debug().
		Str("action", a.action()).
		Str("phase", string(next.Phase)).
		Stringer("location", locationOf(next.State)).
		Msg("action applied")
	s.persist(ctx, next)
	return nil
}

func (s *Session) reduce(ctx context.Context, cur models.SavedGame, a Action) (models.SavedGame, []mastery.Observation, error) {
	switch a := a.(type) {
	case CreateCharacter:
		next, err := s.createCharacter(cur, a)
		return next, nil, err
	case SelectChoice:
		next, err := s.selectChoice(cur, a)
		return next, nil, err
	case SubmitChallengeAnswer:
		return s.submitChallenge(ctx, cur, a)
	case SubmitReflection:
		next, err := s.submitReflection(ctx, cur, a)
		return next, nil, err
	case AdvanceScene:
		next, err := s.advance(cur)
		return next, nil, err
	default:
		return cur, nil, newError(CodeUnknownAction, "unknown action %T", a)
	}
}

func (s *Session) createCharacter(cur models.SavedGame, a CreateCharacter) (models.SavedGame, error) {
	if cur.State.Stage != models.StageCharacterCreation {
		return cur, newError(CodeInvalidStage, "character already created")
	}
	name := strings.TrimSpace(a.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return cur, newError(CodeInvalidCharacter, "name must be 1 to %d characters", MaxNameLength)
	}
	if _, ok := models.FindAvatar(a.Avatar); !ok {
		return cur, newError(CodeInvalidCharacter, "unknown avatar %q", a.Avatar)
	}
	theme := models.Theme(a.Theme)
	if !theme.Valid() {
		return cur, newError(CodeInvalidCharacter, "unknown theme %q", a.Theme)
	}
	goal, ok := models.FindGoal(a.GoalID)
	if !ok {
		return cur, newError(CodeInvalidCharacter, "unknown goal %q", a.GoalID)
	}

	st := cur.State
	st.DisplayName = name
	st.Avatar = a.Avatar
	st.Theme = theme
	st.Goal = goal
	st.Stage = models.StagePlaying
	st.StartedAt = s.deps.Now()
	start := s.deps.Graph.Start()
	st.Chapter, st.Scene = start.Chapter, start.Scene

	next := models.SavedGame{State: st, Phase: models.PhaseStory}
	if _, ok := s.deps.Graph.Scene(start.Chapter, start.Scene); !ok {
		s.log.Error().Stringer("location", start).Msg("start scene not found")
		next.Phase = models.PhaseContentMissing
	}
	s.log.Info().Str("goal", goal.ID).Str("theme", string(theme)).Msg("character created")
	return next, nil
}

func (s *Session) selectChoice(cur models.SavedGame, a SelectChoice) (models.SavedGame, error) {
	scene, err := s.requirePhase(cur, models.PhaseStory)
	if err != nil {
		return cur, err
	}
	choice, ok := scene.Choice(cur.State, a.ChoiceID)
	if !ok {
		return cur, newError(CodeChoiceUnknown, "no choice %q in scene %s", a.ChoiceID, scene.Location)
	}
	if !choice.Enabled() {
		return cur, newError(CodeChoiceDisabled, "%s", choice.DisabledReason)
	}

	st := ApplyFlags(ApplyEffects(cur.State, choice.Effects), choice.Flags)
	return models.SavedGame{
		State:        st,
		Phase:        models.PhaseOutcome,
		LastChoiceID: choice.ID,
		LastOutcome:  scene.Outcome(st, choice.ID),
	}, nil
}

func (s *Session) submitChallenge(ctx context.Context, cur models.SavedGame, a SubmitChallengeAnswer) (models.SavedGame, []mastery.Observation, error) {
	scene, err := s.requirePhase(cur, models.PhaseChallenge)
	if err != nil {
		return cur, nil, err
	}
	answer := strings.TrimSpace(a.Answer)
	if answer == "" {
		return cur, nil, newError(CodeEmptyAnswer, "answer is empty")
	}
	c := scene.Challenge

	var res models.ChallengeResult
	if c.Type == story.ChallengeOpenEnded {
		graded, err := s.grade(ctx, GradeRequest{
			QuestionID: c.ID,
			Prompt:     c.Question(cur.State),
			Answer:     answer,
			Concepts:   c.Concepts,
			Rubric:     c.Rubric,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("challenge", c.ID).Msg("grader unavailable, accepting answer")
			res = models.ChallengeResult{Accepted: true, Answer: answer, Feedback: ChallengeFallback}
		} else {
			res = models.ChallengeResult{
				Correct:  graded.Status == GradeGoodEnough,
				Answer:   answer,
				Feedback: graded.Feedback,
			}
		}
	} else {
		res = gradeChallenge(c, cur.State, answer)
	}

	next := cur
	next.Phase = models.PhaseChallengeFeedback
	if res.Correct && c.Bonus > 0 {
		next.State = ApplyEffects(next.State, models.Effects{Cash: c.Bonus})
		res.BonusEarned = c.Bonus
	}
	next.Challenge = &res

	var obs []mastery.Observation
	if !res.Accepted {
		for _, concept := range c.Concepts {
			obs = append(obs, mastery.Observation{Concept: concept, Correct: res.Correct})
		}
	}
	s.log.Info().Str("challenge", c.ID).Bool("correct", res.Correct).Bool("accepted", res.Accepted).Msg("challenge graded")
	return next, obs, nil
}

func (s *Session) submitReflection(ctx context.Context, cur models.SavedGame, a SubmitReflection) (models.SavedGame, error) {
	scene, err := s.requirePhase(cur, models.PhaseReflection)
	if err != nil {
		return cur, err
	}
	answer := strings.TrimSpace(a.Answer)
	if answer == "" {
		return cur, newError(CodeEmptyAnswer, "reflection is empty")
	}
	r := scene.Reflection

	res := models.ReflectionResult{Answer: answer}
	graded, err := s.grade(ctx, GradeRequest{
		QuestionID: r.ID,
		Prompt:     r.Prompt(cur.State),
		Answer:     answer,
		Concepts:   r.Concepts,
		Rubric:     r.Rubric,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("reflection", r.ID).Msg("grader unavailable, using fallback")
		res.Status = string(GradeGoodEnough)
		res.Feedback = ReflectionFallback
		res.Fallback = true
	} else {
		res.Status = string(graded.Status)
		res.Feedback = graded.Feedback
	}

	next := cur
	next.Phase = models.PhaseReflectionFeedback
	next.Reflection = &res
	return next, nil
}

// grade calls the grader with its own deadline. Any failure, including an
// empty or unknown verdict, is reported as an error so callers fall back.
func (s *Session) grade(ctx context.Context, req GradeRequest) (GradeResult, error) {
	if s.deps.Grader == nil {
		return GradeResult{}, fmt.Errorf("no grader configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.GradeTimeout)
	defer cancel()
	res, err := s.deps.Grader.Grade(ctx, req)
	if err != nil {
		return GradeResult{}, err
	}
	if res.Status != GradeGoodEnough && res.Status != GradeNeedsRevision {
		return GradeResult{}, fmt.Errorf("grader returned status %q", res.Status)
	}
	if strings.TrimSpace(res.Feedback) == "" {
		return GradeResult{}, fmt.Errorf("grader returned no feedback")
	}
	return res, nil
}

func (s *Session) advance(cur models.SavedGame) (models.SavedGame, error) {
	if cur.State.Stage != models.StagePlaying {
		return cur, newError(CodeInvalidStage, "game is %s", cur.State.Stage)
	}
	if cur.Phase == models.PhaseContentMissing {
		return s.skipMissing(cur), nil
	}
	scene, ok := s.deps.Graph.Scene(cur.State.Chapter, cur.State.Scene)
	if !ok {
		return cur, newError(CodeSceneNotFound, "scene %s not found", locationOf(cur.State))
	}

	next := cur
	switch cur.Phase {
	case models.PhaseOutcome:
		switch {
		case scene.Challenge != nil:
			next.Phase = models.PhaseChallenge
		case scene.Reflection != nil:
			next.Phase = models.PhaseReflection
		default:
			next.Phase = models.PhaseTurnEnd
		}
	case models.PhaseChallengeFeedback:
		if scene.Reflection != nil {
			next.Phase = models.PhaseReflection
		} else {
			next.Phase = models.PhaseTurnEnd
		}
	case models.PhaseReflectionFeedback:
		next.Phase = models.PhaseTurnEnd
	case models.PhaseTurnEnd:
		return s.nextScene(cur, scene), nil
	default:
		return cur, newError(CodeInvalidPhase, "cannot continue from %s", cur.Phase)
	}
	return next, nil
}

// nextScene moves the cursor forward or finishes the game. A target that
// does not exist, or is not ahead of the cursor, parks the game in
// content_missing without moving.
func (s *Session) nextScene(cur models.SavedGame, scene *story.Scene) models.SavedGame {
	here := scene.Location
	to := scene.Next(cur.State, cur.LastChoiceID)
	if to.IsEnd() {
		return s.finish(cur)
	}
	if _, ok := s.deps.Graph.Scene(to.Chapter, to.Scene); !ok || !here.Before(to) {
		s.log.Error().Stringer("from", here).Stringer("to", to).Msg("next scene not found")
		next := cur
		next.Phase = models.PhaseContentMissing
		return next
	}
	st := cur.State
	st.Chapter, st.Scene = to.Chapter, to.Scene
	return models.SavedGame{State: st, Phase: models.PhaseStory}
}

// skipMissing moves a game parked in content_missing on to the first scene
// after the cursor, or finishes it when no scene is left.
func (s *Session) skipMissing(cur models.SavedGame) models.SavedGame {
	here := locationOf(cur.State)
	for _, loc := range s.deps.Graph.Locations() {
		if here.Before(loc) {
			s.log.Warn().Stringer("from", here).Stringer("to", loc).Msg("skipping to next available scene")
			st := cur.State
			st.Chapter, st.Scene = loc.Chapter, loc.Scene
			return models.SavedGame{State: st, Phase: models.PhaseStory}
		}
	}
	s.log.Warn().Stringer("from", here).Msg("no scene left, finishing")
	return s.finish(cur)
}

func (s *Session) finish(cur models.SavedGame) models.SavedGame {
	st := cur.State
	st.Stage = models.StageEnded
	st.BoughtGoal = st.GoalPurchaseAttempted
	st.EndingType = DetermineEnding(st)
	now := s.deps.Now()
	st.EndedAt = &now
	s.log.Info().
		Str("ending", string(st.EndingType)).
		Bool("bought_goal", st.BoughtGoal).
		Int("cash", st.Cash).Int("savings", st.Savings).Int("debt", st.Debt).
		Msg("adventure finished")
	return models.SavedGame{State: st, Phase: models.PhaseEnded}
}

func (s *Session) requirePhase(cur models.SavedGame, want models.Phase) (*story.Scene, error) {
	if cur.State.Stage != models.StagePlaying {
		return nil, newError(CodeInvalidStage, "game is %s", cur.State.Stage)
	}
	if cur.Phase != want {
		return nil, newError(CodeInvalidPhase, "expected %s, game is at %s", want, cur.Phase)
	}
	scene, ok := s.deps.Graph.Scene(cur.State.Chapter, cur.State.Scene)
	if !ok {
		return nil, newError(CodeSceneNotFound, "scene %s not found", locationOf(cur.State))
	}
	return scene, nil
}

// Epilogue returns the ending narrative, asking the writer once and
// caching the result. Failures produce a fallback, never an error; the
// only error is calling it before the game has ended.
func (s *Session) Epilogue(ctx context.Context) (string, error) {
	s.mu.Lock()
	cur, rev := s.saved, s.rev
	s.mu.Unlock()
	if cur.State.Stage != models.StageEnded {
		return "", newError(CodeInvalidStage, "game has not ended")
	}
	if cur.Epilogue != "" {
		return cur.Epilogue, nil
	}

	text := s.writeEpilogue(ctx, cur.State)

	s.mu.Lock()
	if s.rev != rev {
		s.mu.Unlock()
		return text, nil
	}
	s.saved.Epilogue = text
	s.rev++
	snapshot := s.saved
	s.mu.Unlock()
	s.persist(ctx, snapshot)
	return text, nil
}

func (s *Session) writeEpilogue(ctx context.Context, st models.GameState) string {
	if s.deps.Epilogues == nil {
		return FallbackEpilogue(st)
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.EpilogueTimeout)
	defer cancel()
	text, err := s.deps.Epilogues.WriteEpilogue(ctx, EpilogueRequest{State: st, DisplayName: st.DisplayName})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty epilogue")
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("epilogue unavailable, using fallback")
		return FallbackEpilogue(st)
	}
	return strings.TrimSpace(text)
}

// FallbackEpilogue is the canned epilogue used when none can be generated.
func FallbackEpilogue(st models.GameState) string {
	e := EndingInfo(st.EndingType)
	goal := st.Goal.Name
	if goal == "" {
		goal = "your goal"
	}
	if st.BoughtGoal {
		return fmt.Sprintf("%s got the %s and finished as a %s. Every choice along the way taught something about money.", st.DisplayName, goal, e.Title)
	}
	return fmt.Sprintf("%s is still working toward the %s and finished as a %s. The habits built on this adventure will get them there.", st.DisplayName, goal, e.Title)
}

// persist writes the snapshot and mastery. It outlives a canceled caller so
// the last action is not lost when the UI shuts down.
func (s *Session) persist(ctx context.Context, g models.SavedGame) {
	if s.deps.Repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.deps.Repo.SaveGame(ctx, &g); err != nil {
		s.log.Error().Err(err).Msg("save game")
	}
	if err := s.deps.Repo.SaveMastery(ctx, g.State.PlayerID, s.tracker.Scores()); err != nil {
		s.log.Error().Err(err).Msg("save mastery")
	}
}

// Ending returns the ending display bundle once the game is over.
func (s *Session) Ending() (Ending, bool) {
	st := s.State()
	if st.Stage != models.StageEnded {
		return Ending{}, false
	}
	return EndingInfo(st.EndingType), true
}

// Snapshot returns a copy of the saved game.
func (s *Session) Snapshot() models.SavedGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// State returns the current game state.
func (s *Session) State() models.GameState { return s.Snapshot().State }

// Phase returns the current phase.
func (s *Session) Phase() models.Phase { return s.Snapshot().Phase }

// Scene returns the scene under the cursor.
func (s *Session) Scene() (*story.Scene, bool) {
	st := s.State()
	if st.Stage == models.StageCharacterCreation {
		return nil, false
	}
	return s.deps.Graph.Scene(st.Chapter, st.Scene)
}

// Choices resolves the current scene's choices.
func (s *Session) Choices() []story.ResolvedChoice {
	scene, ok := s.Scene()
	if !ok {
		return nil
	}
	return scene.Choices(s.State())
}

// Mastery is the player's concept tracker.
func (s *Session) Mastery() *mastery.Tracker { return s.tracker }

// Graph is the scene graph the session plays through.
func (s *Session) Graph() *story.Graph { return s.deps.Graph }

func (s *Session) location() story.Location { return locationOf(s.State()) }

func locationOf(st models.GameState) story.Location {
	return story.Location{Chapter: st.Chapter, Scene: st.Scene}
}
