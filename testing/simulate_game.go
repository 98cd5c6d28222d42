package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tatianab/money-adventure/internal/config"
	"github.com/tatianab/money-adventure/internal/engine"
	"github.com/tatianab/money-adventure/internal/game"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/store"
	"github.com/tatianab/money-adventure/internal/story"
)

const maxSteps = 200

var (
	strategy = flag.String("strategy", "saver", "how the player picks: saver, spender, borrower or llm")
	persona  = flag.String("persona", "curious and a little impatient", "player personality for -strategy=llm")
	goalID   = flag.String("goal", "bike", "goal id to save for")
)

func main() {
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	graph, err := story.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load story")
	}

	deps := game.Deps{
		Graph:  graph,
		Repo:   store.NewRepository(store.NewMemoryStore(), &log.Logger),
		Logger: &log.Logger,
	}
	var player *engine.Engine
	if cfg.HasGemini() {
		eng, err := engine.NewEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create engine")
		}
		defer eng.Close()
		deps.Grader, deps.Epilogues = eng, eng
		player = eng
	} else if *strategy == "llm" {
		log.Fatal().Msg("-strategy=llm needs GEMINI_API_KEY")
	}

	s := game.New(deps, "simulated-"+*strategy)
	err = s.Dispatch(ctx, game.CreateCharacter{DisplayName: "Sim", Avatar: "robot", Theme: string(models.ThemeGames), GoalID: *goalID})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create character")
	}

	for step := 1; step <= maxSteps; step++ {
		snap := s.Snapshot()
		if snap.Phase == models.PhaseEnded || snap.Phase == models.PhaseContentMissing {
			break
		}
		action := nextAction(ctx, s, player)
		if err := s.Dispatch(ctx, action); err != nil {
			log.Fatal().Err(err).Str("phase", string(snap.Phase)).Msg("Action rejected")
		}
		report(s, snap.Phase)
	}

	ending, ok := s.Ending()
	if !ok {
		log.Fatal().Str("phase", string(s.Phase())).Msg("Game did not end")
	}
	epilogue, _ := s.Epilogue(ctx)
	st := s.State()
	fmt.Printf("\n=== %s %s ===\n%s\n\n%s\n", ending.Badge, ending.Title, ending.Description, epilogue)
	fmt.Printf("Cash %s  Savings %s  Owed %s  Goal bought: %v\n",
		story.Money(st.Cash), story.Money(st.Savings), story.Money(st.Debt), st.BoughtGoal)

	sum := s.Mastery().Summary(graph.Concepts()...)
	fmt.Printf("Mastery: %d strong, %d okay, %d struggling, %d not started (%d%% of %d answers correct)\n",
		sum.Strong, sum.Okay, sum.Struggling, sum.NotStarted, sum.Accuracy, sum.Attempts)
}

// nextAction decides what the simulated player does in the current phase.
func nextAction(ctx context.Context, s *game.Session, player *engine.Engine) game.Action {
	st := s.State()
	scene, _ := s.Scene()

	switch s.Phase() {
	case models.PhaseStory:
		var options []string
		var enabled []story.ResolvedChoice
		for _, c := range s.Choices() {
			if c.Enabled() {
				enabled = append(enabled, c)
				options = append(options, c.Label)
			}
		}
		if len(enabled) == 0 {
			log.Fatal().Int("chapter", st.Chapter).Int("scene", st.Scene).Msg("No choice can be picked")
		}
		if *strategy == "llm" {
			idx, _, err := player.ChooseAction(ctx, engine.PlayerTurn{
				Persona: *persona, State: st, Situation: scene.Story(st), Options: options,
			})
			if err == nil {
				return game.SelectChoice{ChoiceID: enabled[idx].ID}
			}
			log.Warn().Err(err).Msg("player LLM failed, picking first option")
			return game.SelectChoice{ChoiceID: enabled[0].ID}
		}
		return game.SelectChoice{ChoiceID: best(enabled).ID}

	case models.PhaseChallenge:
		c := scene.Challenge
		if *strategy == "llm" {
			turn := engine.PlayerTurn{Persona: *persona, State: st, Situation: c.Question(st)}
			if c.Type == story.ChallengeMultipleChoice {
				turn.Options = c.Options
			}
			idx, text, err := player.ChooseAction(ctx, turn)
			switch {
			case err != nil:
				log.Warn().Err(err).Msg("player LLM failed, guessing")
			case c.Type == story.ChallengeMultipleChoice:
				return game.SubmitChallengeAnswer{Answer: c.Options[idx]}
			default:
				return game.SubmitChallengeAnswer{Answer: text}
			}
		}
		if answer := c.Answer(st); answer != "" {
			return game.SubmitChallengeAnswer{Answer: answer}
		}
		return game.SubmitChallengeAnswer{Answer: "I would save some first and spend the rest on what I need."}

	case models.PhaseReflection:
		if *strategy == "llm" {
			_, text, err := player.ChooseAction(ctx, engine.PlayerTurn{Persona: *persona, State: st, Situation: scene.Reflection.Prompt(st)})
			if err == nil && strings.TrimSpace(text) != "" {
				return game.SubmitReflection{Answer: text}
			}
		}
		return game.SubmitReflection{Answer: "It helps to plan ahead so I still have money for my goal."}
	}
	return game.AdvanceScene{}
}

// best ranks choices by the scripted strategy.
func best(choices []story.ResolvedChoice) story.ResolvedChoice {
	score := func(e models.Effects) int {
		switch *strategy {
		case "spender":
			return e.TotalSpentWants + e.RiskScore - e.Savings
		case "borrower":
			return e.Debt*2 + e.TotalBorrowed + e.RiskScore
		default:
			return e.Savings + e.SaverScore + e.PlannerScore
		}
	}
	top := choices[0]
	for _, c := range choices[1:] {
		if score(c.Effects) > score(top.Effects) {
			top = c
		}
	}
	return top
}

func report(s *game.Session, from models.Phase) {
	snap := s.Snapshot()
	ev := log.Info().
		Str("from", string(from)).
		Str("phase", string(snap.Phase)).
		Int("chapter", snap.State.Chapter).
		Int("scene", snap.State.Scene).
		Int("cash", snap.State.Cash).
		Int("savings", snap.State.Savings).
		Int("debt", snap.State.Debt)
	switch snap.Phase {
	case models.PhaseOutcome:
		ev = ev.Str("choice", snap.LastChoiceID)
	case models.PhaseChallengeFeedback:
		if snap.Challenge != nil {
			ev = ev.Bool("correct", snap.Challenge.Correct)
		}
	}
	ev.Msg("step")
}
