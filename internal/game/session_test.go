package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/tatianab/money-adventure/internal/mastery"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func playingState(t *testing.T, goalID string) models.GameState {
	t.Helper()
	goal, ok := models.FindGoal(goalID)
	if !ok {
		t.Fatalf("unknown goal %q", goalID)
	}
	st := models.NewGameState("p1")
	st.DisplayName = "Maya"
	st.Avatar = "fox"
	st.Theme = models.ThemeSports
	st.Goal = goal
	st.Stage = models.StagePlaying
	st.Chapter, st.Scene = 1, 1
	return st
}

type fakeGrader struct {
	status GradeStatus
	err    error
	block  bool
	calls  int
}

func (f *fakeGrader) Grade(ctx context.Context, req GradeRequest) (GradeResult, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return GradeResult{}, ctx.Err()
	}
	if f.err != nil {
		return GradeResult{}, f.err
	}
	status := f.status
	if status == "" {
		status = GradeGoodEnough
	}
	return GradeResult{Status: status, Feedback: "Nice thinking about " + req.QuestionID}, nil
}

type fakeEpilogue struct {
	text string
	err  error
}

func (f fakeEpilogue) WriteEpilogue(ctx context.Context, req EpilogueRequest) (string, error) {
	return f.text, f.err
}

type memRepo struct {
	mu      sync.Mutex
	games   map[string]models.SavedGame
	mastery map[string]map[string]mastery.ConceptScore
	saves   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		games:   make(map[string]models.SavedGame),
		mastery: make(map[string]map[string]mastery.ConceptScore),
	}
}

func (r *memRepo) LoadGame(ctx context.Context, playerID string) (*models.SavedGame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[playerID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *memRepo) SaveGame(ctx context.Context, g *models.SavedGame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.State.PlayerID] = *g
	r.saves++
	return nil
}

func (r *memRepo) LoadMastery(ctx context.Context, playerID string) (map[string]mastery.ConceptScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mastery[playerID], nil
}

func (r *memRepo) Forget(ctx context.Context, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, playerID)
	delete(r.mastery, playerID)
	return nil
}

func (r *memRepo) SaveMastery(ctx context.Context, playerID string, scores map[string]mastery.ConceptScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mastery[playerID] = scores
	return nil
}

type fixture struct {
	graph  *story.Graph
	grader *fakeGrader
	repo   *memRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := story.Load()
	if err != nil {
		t.Fatalf("story.Load: %v", err)
	}
	return &fixture{graph: g, grader: &fakeGrader{}, repo: newMemRepo()}
}

func (f *fixture) deps() Deps {
	logger := zerolog.Nop()
	return Deps{
		Graph:        f.graph,
		Grader:       f.grader,
		Epilogues:    fakeEpilogue{text: "And they lived frugally ever after."},
		Repo:         f.repo,
		Logger:       &logger,
		Now:          func() time.Time { return testNow },
		GradeTimeout: 50 * time.Millisecond,
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func create(t *testing.T, s *Session, goal string) {
	t.Helper()
	must(t, s.Dispatch(context.Background(), CreateCharacter{
		DisplayName: "Maya", Avatar: "fox", Theme: "sports", GoalID: goal,
	}))
}

// turn picks a choice and then continues through the scene, answering the
// challenge with answer, until the next scene or the ending.
func turn(t *testing.T, s *Session, choice, answer string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Dispatch(ctx, SelectChoice{ChoiceID: choice}); err != nil {
		t.Fatalf("scene %d.%d: select %s: %v", s.State().Chapter, s.State().Scene, choice, err)
	}
	for {
		switch s.Phase() {
		case models.PhaseChallenge:
			must(t, s.Dispatch(ctx, SubmitChallengeAnswer{Answer: answer}))
		case models.PhaseReflection:
			must(t, s.Dispatch(ctx, SubmitReflection{Answer: "I learned that waiting helps me save."}))
		case models.PhaseStory, models.PhaseEnded:
			return
		default:
			must(t, s.Dispatch(ctx, AdvanceScene{}))
		}
	}
}

type step struct{ choice, answer string }

var saverRun = []step{
	{"save_all", "Lunch for school"},
	{"save_all", ""},
	{"save_all", "15"},
	{"start_business", ""},
	{"expand", "17"},
	{"deposit_earnings", ""},
	{"pay_from_savings", "Keep an emergency fund"},
	{"save_birthday", ""},
	{"move_cash_to_savings", "$55"},
	{"save_summer", "0"},
	{"buy_goal", ""},
}

func play(t *testing.T, s *Session, steps []step) {
	t.Helper()
	for _, st := range steps {
		turn(t, s, st.choice, st.answer)
	}
}

func TestSuperSaverPlaythrough(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, saverRun)

	st := s.State()
	if st.Stage != models.StageEnded || s.Phase() != models.PhaseEnded {
		t.Fatalf("stage %s phase %s, want ended", st.Stage, s.Phase())
	}
	if !st.BoughtGoal || st.EndingType != models.EndingSuperSaver {
		t.Errorf("bought %v ending %s, want super_saver", st.BoughtGoal, st.EndingType)
	}
	if st.Cash != 10 || st.Savings != 235 || st.Debt != 0 || st.SaverScore != 16 {
		t.Errorf("final resources = cash %d savings %d debt %d saver %d", st.Cash, st.Savings, st.Debt, st.SaverScore)
	}
	if st.EndedAt == nil || !st.EndedAt.Equal(testNow) {
		t.Errorf("EndedAt = %v", st.EndedAt)
	}
	if e, ok := s.Ending(); !ok || e.Title != "Super Saver" {
		t.Errorf("Ending() = %+v, %v", e, ok)
	}

	sum := s.Mastery().Summary(f.graph.Concepts()...)
	if sum.Attempts != 8 || sum.Accuracy != 100 || sum.Struggling != 0 {
		t.Errorf("mastery summary = %+v", sum)
	}
	if got := s.Mastery().Score("delayed_gratification"); got.Total != 0 {
		t.Errorf("reflection recorded mastery: %+v", got)
	}

	saved := f.repo.games["p1"]
	if diff := cmp.Diff(s.Snapshot(), saved); diff != "" {
		t.Errorf("persisted snapshot differs (-session +repo):\n%s", diff)
	}
	if len(f.repo.mastery["p1"]) == 0 {
		t.Error("mastery not persisted")
	}
}

func TestAlmostThereWhenWaiting(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	run := append([]step(nil), saverRun[:len(saverRun)-1]...)
	play(t, s, append(run, step{"keep_saving_more", ""}))

	st := s.State()
	if st.BoughtGoal || st.EndingType != models.EndingAlmostThere {
		t.Errorf("bought %v ending %s, want almost_there", st.BoughtGoal, st.EndingType)
	}
}

func TestBorrowNowPayLaterPlaythrough(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, []step{
		{"spend_all", "A bigger TV"},
		{"treat_friends", ""},
		{"spend_all", "3"},
		{"relax", ""},
		{"keep_cash", ""},
		{"borrow", "Borrow every time"},
		{"spend_birthday", ""},
	})

	st := s.State()
	if st.Debt != 50 || st.TotalBorrowed != 50 {
		t.Fatalf("after emergency borrow: debt %d borrowed %d", st.Debt, st.TotalBorrowed)
	}
	risk, planner := st.RiskScore, st.PlannerScore
	must(t, s.Dispatch(context.Background(), SelectChoice{ChoiceID: "ignore_debt"}))
	st = s.State()
	if st.Debt != 55 || st.RiskScore != risk+2 || st.PlannerScore != planner-2 {
		t.Errorf("ignore_debt: debt %d risk %+d planner %+d", st.Debt, st.RiskScore-risk, st.PlannerScore-planner)
	}
	for s.Phase() != models.PhaseStory {
		switch s.Phase() {
		case models.PhaseChallenge:
			must(t, s.Dispatch(context.Background(), SubmitChallengeAnswer{Answer: "55"}))
		case models.PhaseReflection:
			must(t, s.Dispatch(context.Background(), SubmitReflection{Answer: "Borrowed money is not mine."}))
		default:
			must(t, s.Dispatch(context.Background(), AdvanceScene{}))
		}
	}
	play(t, s, []step{{"keep_summer", "1"}, {"borrow_for_goal", ""}})

	st = s.State()
	if !st.BoughtGoal || st.Debt <= 10 || st.EndingType != models.EndingBorrowNowPayLater {
		t.Errorf("bought %v debt %d ending %s", st.BoughtGoal, st.Debt, st.EndingType)
	}
	if got := s.Mastery().Score("needs_vs_wants").Strength(); got != mastery.Struggling {
		t.Errorf("needs_vs_wants strength = %s", got)
	}
}

func TestFailedNumericChallengeStillProgresses(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, []step{{"save_all", "A new video game"}, {"save_all", ""}})
	must(t, s.Dispatch(context.Background(), SelectChoice{ChoiceID: "save_all"}))

	st := s.State()
	if st.Savings != 30 || st.Cash != 20 {
		t.Fatalf("after three saves: cash %d savings %d", st.Cash, st.Savings)
	}
	must(t, s.Dispatch(context.Background(), AdvanceScene{}))
	must(t, s.Dispatch(context.Background(), SubmitChallengeAnswer{Answer: "10"}))

	snap := s.Snapshot()
	if snap.Phase != models.PhaseChallengeFeedback {
		t.Fatalf("phase = %s", snap.Phase)
	}
	if snap.Challenge.Correct || snap.Challenge.BonusEarned != 0 || snap.State.Cash != 20 {
		t.Errorf("wrong answer result = %+v, cash %d", snap.Challenge, snap.State.Cash)
	}
	if snap.Challenge.Feedback == "" {
		t.Error("no feedback for wrong answer")
	}
	must(t, s.Dispatch(context.Background(), AdvanceScene{}))
	must(t, s.Dispatch(context.Background(), AdvanceScene{}))
	if st := s.State(); st.Chapter != 2 || st.Scene != 1 {
		t.Errorf("cursor = %d.%d, want 2.1", st.Chapter, st.Scene)
	}
}

func TestReflectionGraderTimeout(t *testing.T) {
	f := newFixture(t)
	f.grader.block = true
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, []step{{"save_all", "Lunch for school"}})

	ctx := context.Background()
	must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "save_all"}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	must(t, s.Dispatch(ctx, SubmitReflection{Answer: "It felt hard to wait."}))

	res := s.Snapshot().Reflection
	if res == nil || !res.Fallback || res.Feedback != ReflectionFallback {
		t.Fatalf("reflection result = %+v", res)
	}
	if err := s.Dispatch(ctx, AdvanceScene{}); err != nil {
		t.Errorf("continue after fallback: %v", err)
	}
	if got := s.Mastery().Score("delayed_gratification").Total; got != 0 {
		t.Errorf("fallback recorded %d mastery attempts", got)
	}
}

func TestInvalidActionsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	ctx := context.Background()

	if err := s.Dispatch(ctx, SelectChoice{ChoiceID: "save_all"}); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("select before creation: %v", err)
	}
	bad := []CreateCharacter{
		{DisplayName: " ", Avatar: "fox", Theme: "sports", GoalID: "bike"},
		{DisplayName: "Maya", Avatar: "dragon", Theme: "sports", GoalID: "bike"},
		{DisplayName: "Maya", Avatar: "fox", Theme: "cooking", GoalID: "bike"},
		{DisplayName: "Maya", Avatar: "fox", Theme: "sports", GoalID: "pony"},
		{DisplayName: "Maximiliana Esperanza Rosalind", Avatar: "fox", Theme: "sports", GoalID: "bike"},
	}
	for _, a := range bad {
		if err := s.Dispatch(ctx, a); !errors.Is(err, ErrInvalidCharacter) {
			t.Errorf("CreateCharacter(%+v) = %v, want INVALID_CHARACTER", a, err)
		}
	}
	create(t, s, "bike")
	if err := s.Dispatch(ctx, CreateCharacter{DisplayName: "Sam", Avatar: "owl", Theme: "art", GoalID: "console"}); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("second CreateCharacter: %v", err)
	}

	before := s.Snapshot()
	checks := []struct {
		action Action
		want   error
	}{
		{SelectChoice{ChoiceID: "nope"}, ErrChoiceUnknown},
		{SubmitChallengeAnswer{Answer: "5"}, ErrInvalidPhase},
		{SubmitReflection{Answer: "hi"}, ErrInvalidPhase},
		{AdvanceScene{}, ErrInvalidPhase},
	}
	for _, c := range checks {
		if err := s.Dispatch(ctx, c.action); !errors.Is(err, c.want) {
			t.Errorf("%T: err = %v, want %v", c.action, err, c.want.(*Error).Code)
		}
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("rejected actions changed state (-want +got):\n%s", diff)
	}

	must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "save_all"}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	if err := s.Dispatch(ctx, SubmitChallengeAnswer{Answer: "  "}); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("blank answer: %v", err)
	}
}

func TestDisabledChoiceRejected(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, []step{{"spend_all", "x"}, {"treat_friends", ""}, {"spend_all", "1"}, {"relax", ""}, {"keep_cash", ""}})

	before := s.Snapshot()
	err := s.Dispatch(context.Background(), SelectChoice{ChoiceID: "pay_from_savings"})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Code != CodeChoiceDisabled {
		t.Fatalf("err = %v, want CHOICE_DISABLED", err)
	}
	if gerr.Message != "You need $50 in savings." {
		t.Errorf("message = %q", gerr.Message)
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("state changed (-want +got):\n%s", diff)
	}
}

func TestCursorAndStageAreMonotonic(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")

	prevStage := s.State().Stage
	prev := story.Location{Chapter: s.State().Chapter, Scene: s.State().Scene}
	for _, st := range saverRun {
		turn(t, s, st.choice, st.answer)
		cur := s.State()
		loc := story.Location{Chapter: cur.Chapter, Scene: cur.Scene}
		if cur.Stage == models.StageEnded {
			if !prevStage.CanAdvanceTo(cur.Stage) {
				t.Errorf("stage went %s -> %s", prevStage, cur.Stage)
			}
			break
		}
		if !prev.Before(loc) {
			t.Errorf("cursor went %s -> %s", prev, loc)
		}
		prev, prevStage = loc, cur.Stage
	}
}

func TestDeterministicPlaythrough(t *testing.T) {
	var snaps []models.SavedGame
	for i := 0; i < 2; i++ {
		f := newFixture(t)
		s := New(f.deps(), "p1")
		create(t, s, "console")
		play(t, s, saverRun[:4])
		snaps = append(snaps, s.Snapshot())
	}
	if diff := cmp.Diff(snaps[0], snaps[1]); diff != "" {
		t.Errorf("same inputs gave different states (-first +second):\n%s", diff)
	}
}

func TestNextSceneMissing(t *testing.T) {
	rules := story.DefaultRules()
	rules.Next["jump"] = func(models.GameState, string) story.Location {
		return story.Location{Chapter: 1, Scene: 5}
	}
	g, err := story.Parse([]byte(`
chapters:
  - number: 1
    title: "Short"
    scenes:
      - number: 1
        story: "Hello {{.Name}}"
        choices: [{id: go, label: "Go", outcome: "Off you go"}]
        next_rule: jump
`), rules)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	f.graph = g
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	ctx := context.Background()
	must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "go"}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))

	st := s.State()
	if s.Phase() != models.PhaseContentMissing || st.Chapter != 1 || st.Scene != 1 || st.Stage != models.StagePlaying {
		t.Errorf("phase %s at %d.%d stage %s", s.Phase(), st.Chapter, st.Scene, st.Stage)
	}
	if err := s.Dispatch(ctx, SelectChoice{ChoiceID: "go"}); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("select from content_missing: %v", err)
	}
	// Nothing lies after 1.1, so continuing finishes the adventure.
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	if st := s.State(); st.Stage != models.StageEnded || st.EndingType == models.EndingNone {
		t.Errorf("after skipping: stage %s ending %q", st.Stage, st.EndingType)
	}
}

func TestContentMissingSkipsToNextScene(t *testing.T) {
	rules := story.DefaultRules()
	rules.Next["jump"] = func(models.GameState, string) story.Location {
		return story.Location{Chapter: 1, Scene: 5}
	}
	g, err := story.Parse([]byte(`
chapters:
  - number: 1
    title: "Short"
    scenes:
      - number: 1
        story: "Hello {{.Name}}"
        choices: [{id: go, label: "Go", outcome: "Off you go", effects: {savings: 10}}]
        next_rule: jump
      - number: 2
        story: "Still here"
        choices: [{id: stay, label: "Stay", outcome: "ok"}]
        next: end
`), rules)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	f.graph = g
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	ctx := context.Background()
	must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "go"}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	if s.Phase() != models.PhaseContentMissing {
		t.Fatalf("phase = %s, want content_missing", s.Phase())
	}

	must(t, s.Dispatch(ctx, AdvanceScene{}))
	st := s.State()
	if s.Phase() != models.PhaseStory || st.Chapter != 1 || st.Scene != 2 {
		t.Errorf("phase %s at %d.%d, want story at 1.2", s.Phase(), st.Chapter, st.Scene)
	}
	if st.Savings != 10 {
		t.Errorf("savings = %d, progress from 1.1 lost", st.Savings)
	}
}

func TestResumeIntoMissingSceneCanContinue(t *testing.T) {
	f := newFixture(t)
	st := playingState(t, "bike")
	st.Chapter, st.Scene = 2, 9
	f.repo.games["p1"] = models.SavedGame{State: st, Phase: models.PhaseStory}

	s, err := Resume(context.Background(), f.deps(), "p1")
	must(t, err)
	if s.Phase() != models.PhaseContentMissing {
		t.Fatalf("phase = %s, want content_missing", s.Phase())
	}
	must(t, s.Dispatch(context.Background(), AdvanceScene{}))
	if got := s.State(); s.Phase() != models.PhaseStory || got.Chapter != 3 || got.Scene != 1 {
		t.Errorf("phase %s at %d.%d, want story at 3.1", s.Phase(), got.Chapter, got.Scene)
	}
}

func TestOpenEndedChallenge(t *testing.T) {
	g, err := story.Parse([]byte(`
chapters:
  - number: 1
    title: "Think"
    scenes:
      - number: 1
        story: "Hi"
        choices: [{id: go, label: "Go", outcome: "Ok"}]
        challenge:
          id: why_save
          type: open_ended
          question: "Why save?"
          rubric: "Mentions the future."
          concepts: [saving]
          bonus: 3
        next: end
`), story.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		grader     *fakeGrader
		wantCash   int
		wantTotal  int
		wantAccept bool
	}{
		{"good enough", &fakeGrader{status: GradeGoodEnough}, models.StartingCash + 3, 1, false},
		{"needs revision", &fakeGrader{status: GradeNeedsRevision}, models.StartingCash, 1, false},
		{"grader error", &fakeGrader{err: fmt.Errorf("quota")}, models.StartingCash, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.graph, f.grader = g, tt.grader
			s := New(f.deps(), "p1")
			create(t, s, "bike")
			ctx := context.Background()
			must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "go"}))
			must(t, s.Dispatch(ctx, AdvanceScene{}))
			must(t, s.Dispatch(ctx, SubmitChallengeAnswer{Answer: "For later"}))

			snap := s.Snapshot()
			if snap.State.Cash != tt.wantCash || snap.Challenge.Accepted != tt.wantAccept {
				t.Errorf("cash %d accepted %v", snap.State.Cash, snap.Challenge.Accepted)
			}
			if got := s.Mastery().Score("saving").Total; got != tt.wantTotal {
				t.Errorf("mastery attempts = %d, want %d", got, tt.wantTotal)
			}
			if tt.wantAccept && snap.Challenge.Feedback != ChallengeFallback {
				t.Errorf("feedback = %q", snap.Challenge.Feedback)
			}
		})
	}
}

func TestResumeAndRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh, err := Resume(ctx, f.deps(), "p1")
	must(t, err)
	if fresh.State().Stage != models.StageCharacterCreation {
		t.Fatalf("fresh stage = %s", fresh.State().Stage)
	}

	create(t, fresh, "bike")
	must(t, fresh.Dispatch(ctx, SelectChoice{ChoiceID: "save_all"}))
	must(t, fresh.Dispatch(ctx, AdvanceScene{}))
	must(t, fresh.Dispatch(ctx, SubmitChallengeAnswer{Answer: "Lunch for school"}))

	resumed, err := Resume(ctx, f.deps(), "p1")
	must(t, err)
	if diff := cmp.Diff(fresh.Snapshot(), resumed.Snapshot()); diff != "" {
		t.Errorf("resumed snapshot differs (-want +got):\n%s", diff)
	}
	if got := resumed.Mastery().Score("needs_vs_wants"); got.Correct != 1 {
		t.Errorf("resumed mastery = %+v", got)
	}
	// Resuming mid-scene must not re-apply the choice.
	must(t, resumed.Dispatch(ctx, AdvanceScene{}))
	if got := resumed.State().Savings; got != 10 {
		t.Errorf("savings after resume = %d, want 10", got)
	}

	resumed.Restart(ctx)
	if st := resumed.State(); st.Stage != models.StageCharacterCreation || st.Savings != 0 {
		t.Errorf("after restart: %+v", st)
	}
	if resumed.Mastery().Score("needs_vs_wants").Total != 1 {
		t.Error("restart dropped mastery")
	}
	if f.repo.games["p1"].State.Stage != models.StageCharacterCreation {
		t.Error("restart not persisted")
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	must(t, s.Dispatch(ctx, SelectChoice{ChoiceID: "save_all"}))
	must(t, s.Dispatch(ctx, AdvanceScene{}))
	must(t, s.Dispatch(ctx, SubmitChallengeAnswer{Answer: "Lunch for school"}))
	if _, ok := f.repo.games["p1"]; !ok {
		t.Fatal("nothing saved before reset")
	}

	must(t, s.Reset(ctx))
	if st := s.State(); st.Stage != models.StageCharacterCreation || st.Savings != 0 {
		t.Errorf("after reset: %+v", st)
	}
	if got := s.Mastery().Score("needs_vs_wants"); got.Total != 0 {
		t.Errorf("mastery after reset = %+v", got)
	}
	if _, ok := f.repo.games["p1"]; ok {
		t.Error("saved game survived reset")
	}
	if _, ok := f.repo.mastery["p1"]; ok {
		t.Error("saved mastery survived reset")
	}

	resumed, err := Resume(ctx, f.deps(), "p1")
	must(t, err)
	if resumed.State().Stage != models.StageCharacterCreation {
		t.Errorf("resumed stage = %s", resumed.State().Stage)
	}
}

func TestResumeIgnoresInvalidSave(t *testing.T) {
	f := newFixture(t)
	bad := playingState(t, "bike")
	bad.Cash, bad.Wellbeing = -40, 900
	f.repo.games["p1"] = models.SavedGame{State: bad, Phase: "bogus"}

	s, err := Resume(context.Background(), f.deps(), "p1")
	must(t, err)
	if st := s.State(); st.Stage != models.StageCharacterCreation || st.Cash != models.StartingCash {
		t.Errorf("resumed invalid save: stage %s cash %d", st.Stage, st.Cash)
	}
	create(t, s, "bike")
	if s.Phase() != models.PhaseStory {
		t.Errorf("phase = %s after creating a character", s.Phase())
	}
}

func TestBrokeDebtFreePlayerCanLeaveDebtCheck(t *testing.T) {
	f := newFixture(t)
	s := New(f.deps(), "p1")
	create(t, s, "bike")
	play(t, s, []step{
		{"save_all", "nope"},
		{"treat_friends", "nope"},
		{"save_all", "nope"},
		{"do_chores", "nope"},
		{"splurge", "nope"},
		{"pay_with_cash", "nope"},
		{"save_birthday", "nope"},
	})

	st := s.State()
	if st.Chapter != 3 || st.Scene != 3 || st.Cash != 0 || st.Savings != 60 || st.Debt != 0 {
		t.Fatalf("at %d.%d cash %d savings %d debt %d, want 3.3 with $0 cash, $60 saved, no debt",
			st.Chapter, st.Scene, st.Cash, st.Savings, st.Debt)
	}
	turn(t, s, "keep_as_is", "55")
	if st := s.State(); st.Chapter != 4 || st.Scene != 1 {
		t.Errorf("after keep_as_is at %d.%d, want 4.1", st.Chapter, st.Scene)
	}
}

func TestEverySceneHasAChoiceForSamplePlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, loc := range f.graph.Locations() {
		for i, sample := range story.SampleStates() {
			sample.PlayerID = "p1"
			sample.Chapter, sample.Scene = loc.Chapter, loc.Scene
			f.repo.games["p1"] = models.SavedGame{State: sample, Phase: models.PhaseStory}

			s, err := Resume(ctx, f.deps(), "p1")
			must(t, err)
			var picked string
			for _, c := range s.Choices() {
				if c.Enabled() {
					picked = c.ID
					break
				}
			}
			if picked == "" {
				t.Errorf("scene %s, sample %d (cash %d, debt %d): no enabled choice", loc, i, sample.Cash, sample.Debt)
				continue
			}
			if err := s.Dispatch(ctx, SelectChoice{ChoiceID: picked}); err != nil {
				t.Errorf("scene %s, sample %d: select %s: %v", loc, i, picked, err)
			}
		}
	}
}

func TestEpilogue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := New(f.deps(), "p1")
	if _, err := s.Epilogue(ctx); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("epilogue before end: %v", err)
	}
	create(t, s, "bike")
	play(t, s, saverRun)

	text, err := s.Epilogue(ctx)
	must(t, err)
	if text != "And they lived frugally ever after." {
		t.Errorf("epilogue = %q", text)
	}
	if f.repo.games["p1"].Epilogue != text {
		t.Error("epilogue not persisted")
	}

	deps := f.deps()
	deps.Epilogues = fakeEpilogue{err: context.DeadlineExceeded}
	f2 := newFixture(t)
	deps.Repo = f2.repo
	s2 := New(deps, "p2")
	create(t, s2, "bike")
	play(t, s2, saverRun)
	text, err = s2.Epilogue(ctx)
	must(t, err)
	if text != FallbackEpilogue(s2.State()) {
		t.Errorf("fallback epilogue = %q", text)
	}
}
