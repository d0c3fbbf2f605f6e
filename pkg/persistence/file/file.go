// Package file provides file-based persistence implementation for workflows and executions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/durgasflow/durgasflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every record is one JSON file; writes go through a temp file and a rename.
type Persistence struct {
	store         *store
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	logRepo       *ExecutionLogRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:         s,
		workflowRepo:  &WorkflowRepository{store: s},
		executionRepo: &ExecutionRepository{store: s},
		logRepo:       &ExecutionLogRepository{store: s},
		scheduleRepo:  &ScheduleRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return fp.logRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

// store serializes all reads and writes below root.
type store struct {
	root string
	mu   sync.Mutex
}

func (s *store) path(kind, id string) string {
	return filepath.Join(s.root, kind, filepath.Base(id)+".json")
}

// read decodes kind/id into v. It reports false when the file does not exist.
func (s *store) read(kind, id string, v any) (bool, error) {
	body, err := os.ReadFile(s.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (s *store) write(kind, id string, v any) error {
	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return os.Rename(tmp.Name(), s.path(kind, id))
}

func (s *store) remove(kind, id string) (bool, error) {
	err := os.Remove(s.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	return true, nil
}

// ids lists the record ids stored under kind.
func (s *store) ids(kind string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(s.root), kind+"/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, strings.TrimSuffix(filepath.Base(f), ".json"))
	}

	return out, nil
}
