// Package file provides a file-system checkpoint store. It suits single
// host deployments and tests; anything multi-process should use the redis
// or postgres backends.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/models"
)

// Store implements checkpoint.Store on a directory of JSON files, one per
// run. A process-wide mutex makes Resolve single-winner within the process;
// cross-process exclusivity is out of scope for this backend.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a file checkpoint store rooted at the given directory.
// A file:// prefix is stripped so the backend can be picked by URL.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimPrefix(root, "file://")}
}

func validateWorkflowID(workflowID string) error {
	if workflowID == "" {
		return checkpoint.ErrInvalidWorkflowID
	}

	if strings.Contains(workflowID, "..") || strings.ContainsAny(workflowID, `/\`) {
		return checkpoint.ErrInvalidWorkflowID
	}

	return nil
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "checkpoints")
}

func (s *Store) path(workflowID string) string {
	return filepath.Join(s.dir(), workflowID+".json")
}

func (s *Store) write(state *models.WorkflowState) error {
	if err := os.MkdirAll(s.dir(), 0750); err != nil {
		return fmt.Errorf("create checkpoints directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", state.WorkflowID, err)
	}

	if err := os.WriteFile(s.path(state.WorkflowID), data, 0600); err != nil {
		return fmt.Errorf("write run %s: %w", state.WorkflowID, err)
	}

	return nil
}

func (s *Store) read(workflowID string) (*models.WorkflowState, error) {
	if err := validateWorkflowID(workflowID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(workflowID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, checkpoint.ErrRunNotFound
		}

		return nil, fmt.Errorf("read run %s: %w", workflowID, err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", workflowID, err)
	}

	return &state, nil
}

// Save persists the run state, overwriting any previous checkpoint.
func (s *Store) Save(_ context.Context, state *models.WorkflowState) error {
	if err := validateWorkflowID(state.WorkflowID); err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(state); err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	return nil
}

// Get loads a checkpointed run by workflow ID.
func (s *Store) Get(_ context.Context, workflowID string) (*models.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read(workflowID)
	if err != nil {
		return nil, checkpoint.NewStoreError("Get", workflowID, err)
	}

	return state, nil
}

// Suspended returns every run currently waiting at the approval gate.
func (s *Store) Suspended(_ context.Context) ([]*models.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, checkpoint.NewStoreError("Suspended", "", err)
	}

	var suspended []*models.WorkflowState

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		state, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, checkpoint.NewStoreError("Suspended", name, err)
		}

		if state.Suspended() {
			suspended = append(suspended, state)
		}
	}

	return suspended, nil
}

// Resolve applies an approval decision to a pending run exactly once.
func (s *Store) Resolve(_ context.Context, workflowID string, approval models.ApprovalStatus, details string) (*models.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read(workflowID)
	if err != nil {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, err)
	}

	if state.Approval != models.ApprovalPending {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, checkpoint.ErrAlreadyResolved)
	}

	// A pending approval alone is the enum default; only runs the gate
	// actually suspended may be decided.
	if state.SuspendedAt == nil {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, checkpoint.ErrNotSuspended)
	}

	state.Approval = approval
	state.ApprovalDetails = details

	if err := s.write(state); err != nil {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, err)
	}

	return state, nil
}

// Delete removes a run's checkpoint.
func (s *Store) Delete(_ context.Context, workflowID string) error {
	if err := validateWorkflowID(workflowID); err != nil {
		return checkpoint.NewStoreError("Delete", workflowID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(workflowID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return checkpoint.NewStoreError("Delete", workflowID, checkpoint.ErrRunNotFound)
		}

		return checkpoint.NewStoreError("Delete", workflowID, err)
	}

	return nil
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for the file backend.
func (s *Store) Close(_ context.Context) error {
	return nil
}
