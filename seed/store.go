package seed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
)

// Store serves the current reference data. Reloads swap the whole
// snapshot, so readers never see a partial update.
type Store struct {
	dir     string
	current atomic.Pointer[Data]
	logger  *slog.Logger
}

// NewStore creates a store holding the embedded defaults overlaid with
// every YAML file under dir. An empty dir uses the defaults only.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Data returns the current snapshot.
func (s *Store) Data() *Data {
	return s.current.Load()
}

// Dir returns the overlay directory.
func (s *Store) Dir() string {
	return s.dir
}

// Reload rebuilds the snapshot from the defaults and the overlay directory.
// On error the previous snapshot stays in place.
func (s *Store) Reload() error {
	data := Defaults()
	if s.dir != "" {
		files, err := ListFiles(s.dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			raw, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("read seed file %s: %w", f, err)
			}
			overlay, err := Parse(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			data = data.Merge(overlay)
		}
		s.logger.Debug("Loaded seed overlays", "dir", s.dir, "files", len(files))
	}
	s.current.Store(data)
	return nil
}

// ListFiles returns the YAML files under dir in lexical order, so later
// files override earlier ones predictably.
func ListFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"**/*.yaml", "**/*.yml"} {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob seed dir: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}
