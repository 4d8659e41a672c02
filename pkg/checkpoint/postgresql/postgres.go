// Package postgresql provides a PostgreSQL checkpoint store. The approval
// status and the gate-suspension flag are denormalized into their own
// columns so Resolve can be a single conditional UPDATE.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/checkpoint/sqlbase"
	"github.com/costdesk/costdesk/pkg/models"
)

// Store implements checkpoint.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to PostgreSQL and runs pending migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := sqlbase.NewMigrationManager(logger, db, migrations())
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save upserts the run state and its denormalized approval status.
func (s *Store) Save(ctx context.Context, state *models.WorkflowState) error {
	if state.WorkflowID == "" {
		return checkpoint.NewStoreError("Save", "", checkpoint.ErrInvalidWorkflowID)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, approval, suspended, state, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (workflow_id)
		DO UPDATE SET approval = $2, suspended = $3, state = $4, updated_at = NOW()
	`, state.WorkflowID, string(state.Approval), state.Suspended(), data)
	if err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	return nil
}

func scanState(data []byte) (*models.WorkflowState, error) {
	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run state: %w", err)
	}

	return &state, nil
}

// Get loads a checkpointed run by workflow ID.
func (s *Store) Get(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM checkpoints WHERE workflow_id = $1", workflowID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.NewStoreError("Get", workflowID, checkpoint.ErrRunNotFound)
		}

		return nil, checkpoint.NewStoreError("Get", workflowID, err)
	}

	state, err := scanState(data)
	if err != nil {
		return nil, checkpoint.NewStoreError("Get", workflowID, err)
	}

	return state, nil
}

// Suspended returns every run currently waiting at the approval gate.
func (s *Store) Suspended(ctx context.Context) ([]*models.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT state FROM checkpoints WHERE suspended ORDER BY updated_at")
	if err != nil {
		return nil, checkpoint.NewStoreError("Suspended", "", err)
	}
	defer rows.Close()

	var suspended []*models.WorkflowState

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, checkpoint.NewStoreError("Suspended", "", err)
		}

		state, err := scanState(data)
		if err != nil {
			return nil, checkpoint.NewStoreError("Suspended", "", err)
		}

		suspended = append(suspended, state)
	}

	if err := rows.Err(); err != nil {
		return nil, checkpoint.NewStoreError("Suspended", "", err)
	}

	return suspended, nil
}

// Resolve applies an approval decision to a pending run exactly once. The
// conditional UPDATE is the atomicity guarantee: a run that was already
// decided matches zero rows.
func (s *Store) Resolve(ctx context.Context, workflowID string, approval models.ApprovalStatus, details string) (*models.WorkflowState, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, `
		UPDATE checkpoints
		SET approval = $2,
		    suspended = FALSE,
		    state = jsonb_set(jsonb_set(state::jsonb, '{approval}', to_jsonb($2::text)), '{approval_details}', to_jsonb($3::text))::json,
		    updated_at = NOW()
		WHERE workflow_id = $1 AND suspended
		RETURNING state
	`, workflowID, string(approval), details).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.NewStoreError("Resolve", workflowID, err)
		}

		// Zero rows: missing, already decided, or finished without ever
		// reaching the gate.
		existing, getErr := s.Get(ctx, workflowID)
		if getErr != nil {
			return nil, checkpoint.NewStoreError("Resolve", workflowID, checkpoint.ErrRunNotFound)
		}

		if existing.Approval != models.ApprovalPending {
			return nil, checkpoint.NewStoreError("Resolve", workflowID, checkpoint.ErrAlreadyResolved)
		}

		return nil, checkpoint.NewStoreError("Resolve", workflowID, checkpoint.ErrNotSuspended)
	}

	state, err := scanState(data)
	if err != nil {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, err)
	}

	return state, nil
}

// Delete removes a run's checkpoint.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE workflow_id = $1", workflowID)
	if err != nil {
		return checkpoint.NewStoreError("Delete", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return checkpoint.NewStoreError("Delete", workflowID, err)
	}

	if affected == 0 {
		return checkpoint.NewStoreError("Delete", workflowID, checkpoint.ErrRunNotFound)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
