package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/tatianab/money-adventure/internal/config"
	"github.com/tatianab/money-adventure/internal/game"
	"github.com/tatianab/money-adventure/internal/mastery"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

var _ game.Repository = (*Repository)(nil)

func backends(t *testing.T) map[string]Blobs {
	t.Helper()
	ctx := context.Background()
	out := map[string]Blobs{"memory": NewMemoryStore()}

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out["file"] = fs

	for name, path := range map[string]string{
		"sqlite-memory": ":memory:",
		"sqlite-file":   filepath.Join(t.TempDir(), "nested", "saves.db"),
	} {
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			t.Fatalf("OpenSQLite(%s): %v", path, err)
		}
		t.Cleanup(func() { db.Close() })
		out[name] = db
	}

	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		r, err := OpenRedis(ctx, addr, "")
		if err != nil {
			t.Fatalf("OpenRedis: %v", err)
		}
		t.Cleanup(func() { r.Close() })
		out["redis"] = r
	}
	if uri := os.Getenv("TEST_MONGO_URI"); uri != "" {
		m, err := OpenMongo(ctx, uri, "money_adventure_test")
		if err != nil {
			t.Fatalf("OpenMongo: %v", err)
		}
		t.Cleanup(func() { m.Close() })
		out["mongo"] = m
	}
	return out
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := "game:" + name + "-player"
			if _, err := b.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := b.Put(ctx, key, []byte(`{"v":1}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := b.Put(ctx, key, []byte(`{"v":2}`)); err != nil {
				t.Fatalf("Put again: %v", err)
			}
			got, err := b.Get(ctx, key)
			if err != nil || string(got) != `{"v":2}` {
				t.Fatalf("Get = %q, %v; want last write", got, err)
			}
			if err := b.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := b.Delete(ctx, key); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
			if _, err := b.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete = %v", err)
			}
		})
	}
}

func TestFileStoreLayoutAndPlayers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"game:zoe", "mastery:zoe", "game:amir", "mastery:lee"} {
		if err := fs.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "zoe", "game.json")); err != nil {
		t.Errorf("expected zoe/game.json: %v", err)
	}
	players, err := fs.Players()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"amir", "zoe"}, players); diff != "" {
		t.Errorf("Players (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"game", "game:", ":p1", "game:../etc", "game:a/b", "../x:p1"} {
		if err := fs.Put(ctx, bad, nil); err == nil {
			t.Errorf("Put(%q) succeeded", bad)
		}
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	blobs := NewMemoryStore()
	repo := NewRepository(blobs, &logger)

	if g, err := repo.LoadGame(ctx, "p1"); g != nil || err != nil {
		t.Fatalf("LoadGame empty = %v, %v", g, err)
	}

	st := models.NewGameState("p1")
	st.Stage = models.StagePlaying
	st.Goal, _ = models.FindGoal("bike")
	st.Chapter, st.Scene = 1, 3
	st.StartedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	saved := &models.SavedGame{
		State:        st,
		Phase:        models.PhaseChallengeFeedback,
		LastChoiceID: "save_all",
		Challenge:    &models.ChallengeResult{Correct: true, Answer: "15", Feedback: "Correct!", BonusEarned: 5},
	}
	if err := repo.SaveGame(ctx, saved); err != nil {
		t.Fatal(err)
	}
	got, err := repo.LoadGame(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("LoadGame (-want +got):\n%s", diff)
	}

	scores := map[string]mastery.ConceptScore{"saving": {Concept: "saving", Correct: 2, Total: 3}}
	if err := repo.SaveMastery(ctx, "p1", scores); err != nil {
		t.Fatal(err)
	}
	gotScores, err := repo.LoadMastery(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(scores, gotScores); diff != "" {
		t.Errorf("LoadMastery (-want +got):\n%s", diff)
	}

	if err := repo.Forget(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if g, _ := repo.LoadGame(ctx, "p1"); g != nil {
		t.Error("game survived Forget")
	}
}

func TestRepositoryIgnoresMalformed(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	blobs := NewMemoryStore()
	repo := NewRepository(blobs, &logger)

	blobs.Put(ctx, "game:p1", []byte("{not json"))
	blobs.Put(ctx, "mastery:p1", []byte("[1,2,3]"))
	blobs.Put(ctx, "game:p2", []byte(`{"state":{"player_id":"p2"}}`))
	blobs.Put(ctx, "game:p3", []byte(`{"state":{"player_id":"p3","stage":"playing","chapter":1,"scene":1,"cash":-40,"wellbeing":900},"phase":"bogus"}`))
	blobs.Put(ctx, "game:p4", []byte(`{"state":{"player_id":"p4","stage":"playing","chapter":1,"scene":1,"cash":20,"wellbeing":70,"goal":{"id":"yacht"}},"phase":"story"}`))

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if g, err := repo.LoadGame(ctx, id); g != nil || err != nil {
			t.Errorf("LoadGame(%s) = %v, %v; want nil, nil", id, g, err)
		}
	}
	if s, err := repo.LoadMastery(ctx, "p1"); s != nil || err != nil {
		t.Errorf("LoadMastery = %v, %v", s, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, backend := range []string{"file", "sqlite", "memory"} {
		b, err := Open(ctx, config.Store{Backend: backend, Dir: dir, SQLitePath: filepath.Join(dir, "saves.db")})
		if err != nil {
			t.Errorf("Open(%s): %v", backend, err)
			continue
		}
		b.Close()
	}
	if _, err := Open(ctx, config.Store{Backend: "postgres"}); err == nil {
		t.Error("Open(postgres) succeeded")
	}
}

func TestResumeFromStore(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	db, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewRepository(db, &logger)

	deps := game.Deps{Graph: mustGraph(t), Repo: repo, Logger: &logger}
	s := game.New(deps, "p1")
	if err := s.Dispatch(ctx, game.CreateCharacter{DisplayName: "Ada", Avatar: "owl", Theme: "music", GoalID: "console"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(ctx, game.SelectChoice{ChoiceID: "split"}); err != nil {
		t.Fatal(err)
	}

	resumed, err := game.Resume(ctx, deps, "p1")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := repo.LoadGame(ctx, "p1")
	if diff := cmp.Diff(*want, resumed.Snapshot()); diff != "" {
		t.Errorf("resumed (-want +got):\n%s", diff)
	}
	if resumed.Phase() != models.PhaseOutcome || resumed.State().Cash != 25 {
		t.Errorf("phase %s cash %d", resumed.Phase(), resumed.State().Cash)
	}

	db.Put(ctx, "game:p1", []byte("garbage"))
	fresh, err := game.Resume(ctx, deps, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.State().Stage != models.StageCharacterCreation {
		t.Errorf("malformed save resumed as %s", fresh.State().Stage)
	}
}

func mustGraph(t *testing.T) *story.Graph {
	t.Helper()
	g, err := story.Load()
	if err != nil {
		t.Fatal(err)
	}
	return g
}
