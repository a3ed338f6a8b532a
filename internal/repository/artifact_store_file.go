package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	applogger "StockCast/pkg/logger"
)

// FileArtifactStore keeps one JSON document per key under
// {dir}/{TICKER}/{model}_{ticker}.json. Writes go to a temp file in the same
// directory and are renamed into place, so readers see the old or the new
// artifact and never a partial one.
type FileArtifactStore struct {
	dir string
	l   *applogger.Logger
}

// NewFileArtifactStore creates the root directory if needed.
func NewFileArtifactStore(dir string, l *applogger.Logger) (*FileArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &FileArtifactStore{dir: dir, l: l}, nil
}

var _ repository.ArtifactStore = (*FileArtifactStore)(nil)

// Path returns the file that holds key.
func (s *FileArtifactStore) Path(key models.ArtifactKey) string {
	return filepath.Join(s.dir, key.Ticker,
		fmt.Sprintf("%s_%s.json", key.Model.Lower(), strings.ToLower(key.Ticker)))
}

func (s *FileArtifactStore) Get(ctx context.Context, key models.ArtifactKey) (*models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	var a models.Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &a, nil
}

func (s *FileArtifactStore) Put(ctx context.Context, a *models.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(a.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if err := json.NewEncoder(tmp).Encode(a); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("encode artifact %s: %w", a.Key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync artifact %s: %w", a.Key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close artifact %s: %w", a.Key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return fmt.Errorf("publish artifact %s: %w", a.Key, err)
	}

	s.l.Info("artifact saved",
		applogger.String("key", a.Key.String()),
		applogger.String("path", path))
	return nil
}

func (s *FileArtifactStore) Exists(ctx context.Context, key models.ArtifactKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	return true, nil
}

// List walks the ticker directories and returns every stored key, sorted.
func (s *FileArtifactStore) List(ctx context.Context) ([]models.ArtifactKey, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var keys []models.ArtifactKey
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ticker := e.Name()
		files, err := os.ReadDir(filepath.Join(s.dir, ticker))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ticker, err)
		}
		suffix := "_" + strings.ToLower(ticker) + ".json"
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, suffix) {
				continue
			}
			mt, err := models.ParseModelType(strings.TrimSuffix(name, suffix))
			if err != nil {
				continue
			}
			keys = append(keys, models.ArtifactKey{Ticker: ticker, Model: mt})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Ticker != keys[j].Ticker {
			return keys[i].Ticker < keys[j].Ticker
		}
		return keys[i].Model < keys[j].Model
	})
	return keys, nil
}
