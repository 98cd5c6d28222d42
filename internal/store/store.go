// Package store persists saved games and mastery scores as opaque blobs
// in one of several key-value backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tatianab/money-adventure/internal/config"
	"github.com/tatianab/money-adventure/internal/mastery"
	"github.com/tatianab/money-adventure/internal/models"
)

// ErrNotFound is returned by Blobs.Get for a missing key.
var ErrNotFound = errors.New("store: not found")

// Blobs is a minimal key-value store. Writes are last-write-wins.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open connects the backend named in cfg.
func Open(ctx context.Context, cfg config.Store) (Blobs, error) {
	switch cfg.Backend {
	case "", "file":
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	case "mongo":
		s, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Key kinds.
const (
	KindGame    = "game"
	KindMastery = "mastery"
)

func key(kind, playerID string) string { return kind + ":" + playerID }

// Repository stores a player's saved game and mastery scores as JSON.
type Repository struct {
	blobs Blobs
	log   zerolog.Logger
}

// NewRepository wraps blobs. A nil logger uses the global one.
func NewRepository(blobs Blobs, logger *zerolog.Logger) *Repository {
	if logger == nil {
		logger = &log.Logger
	}
	return &Repository{blobs: blobs, log: logger.With().Str("component", "store").Logger()}
}

// LoadGame returns the player's saved game. A missing or unreadable save
// yields nil so the caller starts fresh.
func (r *Repository) LoadGame(ctx context.Context, playerID string) (*models.SavedGame, error) {
	data, err := r.blobs.Get(ctx, key(KindGame, playerID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get saved game: %w", err)
	}
	g, err := models.UnmarshalSavedGame(data)
	if err != nil {
		r.log.Warn().Err(err).Str("player_id", playerID).Msg("ignoring malformed saved game")
		return nil, nil
	}
	return g, nil
}

// SaveGame overwrites the player's saved game.
func (r *Repository) SaveGame(ctx context.Context, g *models.SavedGame) error {
	data, err := g.Marshal()
	if err != nil {
		return fmt.Errorf("encode saved game: %w", err)
	}
	if err := r.blobs.Put(ctx, key(KindGame, g.State.PlayerID), data); err != nil {
		return fmt.Errorf("put saved game: %w", err)
	}
	return nil
}

// LoadMastery returns the player's concept scores, or nil if none are
// saved or the blob is unreadable.
func (r *Repository) LoadMastery(ctx context.Context, playerID string) (map[string]mastery.ConceptScore, error) {
	data, err := r.blobs.Get(ctx, key(KindMastery, playerID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mastery: %w", err)
	}
	var scores map[string]mastery.ConceptScore
	if err := json.Unmarshal(data, &scores); err != nil {
		r.log.Warn().Err(err).Str("player_id", playerID).Msg("ignoring malformed mastery scores")
		return nil, nil
	}
	return scores, nil
}

// SaveMastery overwrites the player's concept scores.
func (r *Repository) SaveMastery(ctx context.Context, playerID string, scores map[string]mastery.ConceptScore) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode mastery: %w", err)
	}
	if err := r.blobs.Put(ctx, key(KindMastery, playerID), data); err != nil {
		return fmt.Errorf("put mastery: %w", err)
	}
	return nil
}

// Forget deletes everything saved for the player.
func (r *Repository) Forget(ctx context.Context, playerID string) error {
	for _, kind := range []string{KindGame, KindMastery} {
		if err := r.blobs.Delete(ctx, key(kind, playerID)); err != nil {
			return fmt.Errorf("delete %s: %w", kind, err)
		}
	}
	return nil
}
