package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tatianab/money-adventure/internal/config"
	"github.com/tatianab/money-adventure/internal/engine"
	"github.com/tatianab/money-adventure/internal/game"
	"github.com/tatianab/money-adventure/internal/store"
	"github.com/tatianab/money-adventure/internal/story"
	"github.com/tatianab/money-adventure/internal/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Store.Dir, "game.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()
	log.Logger = zerolog.New(logFile).Level(cfg.Level()).With().Timestamp().Logger()

	graph, err := story.Load()
	if err != nil {
		log.Error().Err(err).Msg("load story")
		return fmt.Errorf("loading story: %w", err)
	}

	blobs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer blobs.Close()

	deps := game.Deps{
		Graph:           graph,
		Repo:            store.NewRepository(blobs, &log.Logger),
		Logger:          &log.Logger,
		GradeTimeout:    cfg.GradeTimeout,
		EpilogueTimeout: cfg.EpilogueTimeout,
	}
	if cfg.HasGemini() {
		eng, err := engine.NewEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("creating engine: %w", err)
		}
		defer eng.Close()
		deps.Grader = eng
		deps.Epilogues = eng
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, open-ended answers use canned feedback")
	}

	playerID, err := loadPlayerID(cfg, blobs)
	if err != nil {
		return err
	}
	session, err := game.Resume(ctx, deps, playerID)
	if err != nil {
		return fmt.Errorf("resuming game: %w", err)
	}
	log.Info().Str("player_id", playerID).Str("store", cfg.Store.Backend).Msg("starting")

	return tui.Run(ctx, session)
}

// loadPlayerID returns PLAYER_ID, or a stable id kept next to the saves.
// Without one, a file store holding exactly one player's save is picked up.
func loadPlayerID(cfg *config.Config, blobs store.Blobs) (string, error) {
	if cfg.PlayerID != "" {
		return cfg.PlayerID, nil
	}
	path := filepath.Join(cfg.Store.Dir, "player_id")
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	id := uuid.NewString()
	if fs, ok := blobs.(*store.FileStore); ok {
		players, err := fs.Players()
		if err != nil {
			return "", fmt.Errorf("listing players: %w", err)
		}
		if len(players) == 1 {
			log.Info().Str("player_id", players[0]).Msg("adopting the only saved player")
			id = players[0]
		}
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("saving player id: %w", err)
	}
	return id, nil
}
