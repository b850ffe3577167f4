package labels

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the current Catalog and swaps it atomically when the override
// directory changes. Readers never block.
type Store struct {
	fallback string
	dir      string
	logger   *zap.Logger
	current  atomic.Pointer[Catalog]
}

// NewStore loads the catalog once. A broken override directory is an error
// here; later reload failures keep the previous catalog.
func NewStore(fallback, dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{fallback: fallback, dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Reload rebuilds the catalog from the embedded tables and the override
// directory.
func (s *Store) Reload() error {
	catalog, err := LoadCatalog(s.fallback, s.dir)
	if err != nil {
		return err
	}
	s.current.Store(catalog)
	return nil
}

// Watch reloads the catalog whenever a YAML file in the override directory
// changes. It returns when ctx is done, or immediately without a directory.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create label watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.logger.Info("watching label overrides", zap.String("dir", s.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".yaml" || event.Op == fsnotify.Chmod {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("label reload failed, keeping previous catalog",
					zap.String("file", event.Name), zap.Error(err))
				continue
			}
			s.logger.Info("label catalog reloaded", zap.String("file", event.Name), zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("label watcher error", zap.Error(err))
		}
	}
}
