package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps one directory per player under a save directory, with
// one JSON file per kind: <dir>/<player>/game.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	kind, player, ok := strings.Cut(key, ":")
	if !ok || kind == "" || player == "" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	if player != filepath.Base(player) || player == "." || player == ".." || strings.ContainsAny(kind, `/\.`) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, player, kind+".json"), nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes through a temp file so a crash never leaves a half-written
// save behind.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Players lists the players with a saved game, sorted.
func (s *FileStore) Players() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var players []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// game.json marks a real save.
		if _, err := os.Stat(filepath.Join(s.dir, entry.Name(), KindGame+".json")); err == nil {
			players = append(players, entry.Name())
		}
	}
	sort.Strings(players)
	return players, nil
}
