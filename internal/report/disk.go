package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Load when no outcome is stored under a run ID.
var ErrNotFound = errors.New("run not found")

// DiskStore writes outcomes as JSON files to a directory. When Dir is
// empty a temp directory is created lazily on first use.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a DiskStore rooted at dir, or at a lazily created
// temp directory when dir is empty.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes an outcome as <id>.json.
func (s *DiskStore) Save(outcome *Outcome) error {
	path, err := s.path(outcome.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshalling outcome %s: %w", outcome.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing outcome %s: %w", outcome.ID, err)
	}
	return nil
}

// Load reads an outcome from disk.
func (s *DiskStore) Load(runID string) (*Outcome, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("reading outcome %s: %w", runID, err)
	}
	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("unmarshalling outcome %s: %w", runID, err)
	}
	return &outcome, nil
}

func (s *DiskStore) path(runID string) (string, error) {
	// Run IDs are UUIDs; reject anything that could escape the directory.
	if runID == "" || strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, runID+".json"), nil
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating outcome directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "synthkit-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating outcome directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
