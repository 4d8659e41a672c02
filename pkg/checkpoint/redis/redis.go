// Package redis provides a Redis-backed checkpoint store. Run state lives
// in one key per run; a set tracks which runs are suspended so sweeps never
// scan the keyspace.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/models"
)

const (
	keyPrefix    = "costdesk:checkpoint:"
	suspendedKey = "costdesk:suspended"
)

// Store implements checkpoint.Store on Redis. Resolve uses an optimistic
// WATCH transaction, so of two racing decisions exactly one commits.
type Store struct {
	client goredis.UniversalClient
}

// NewStore creates a Redis checkpoint store from a redis:// URL.
func NewStore(redisURL string) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &Store{client: goredis.NewClient(opts)}, nil
}

// NewStoreFromClient creates a Store over an existing client.
func NewStoreFromClient(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

func runKey(workflowID string) string {
	return keyPrefix + workflowID
}

// Save persists the run state and keeps the suspended index in sync.
func (s *Store) Save(ctx context.Context, state *models.WorkflowState) error {
	if state.WorkflowID == "" {
		return checkpoint.NewStoreError("Save", "", checkpoint.ErrInvalidWorkflowID)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, runKey(state.WorkflowID), data, 0)

	if state.Suspended() {
		pipe.SAdd(ctx, suspendedKey, state.WorkflowID)
	} else {
		pipe.SRem(ctx, suspendedKey, state.WorkflowID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return checkpoint.NewStoreError("Save", state.WorkflowID, err)
	}

	return nil
}

func (s *Store) get(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	data, err := s.client.Get(ctx, runKey(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, checkpoint.ErrRunNotFound
		}

		return nil, err
	}

	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", workflowID, err)
	}

	return &state, nil
}

// Get loads a checkpointed run by workflow ID.
func (s *Store) Get(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	state, err := s.get(ctx, workflowID)
	if err != nil {
		return nil, checkpoint.NewStoreError("Get", workflowID, err)
	}

	return state, nil
}

// Suspended returns every run currently waiting at the approval gate.
func (s *Store) Suspended(ctx context.Context) ([]*models.WorkflowState, error) {
	ids, err := s.client.SMembers(ctx, suspendedKey).Result()
	if err != nil {
		return nil, checkpoint.NewStoreError("Suspended", "", err)
	}

	suspended := make([]*models.WorkflowState, 0, len(ids))

	for _, id := range ids {
		state, err := s.get(ctx, id)
		if err != nil {
			// Index entries can outlive their runs; skip the strays.
			if checkpoint.IsRunNotFound(err) {
				s.client.SRem(ctx, suspendedKey, id)

				continue
			}

			return nil, checkpoint.NewStoreError("Suspended", id, err)
		}

		if state.Suspended() {
			suspended = append(suspended, state)
		}
	}

	return suspended, nil
}

// Resolve applies an approval decision to a pending run exactly once.
func (s *Store) Resolve(ctx context.Context, workflowID string, approval models.ApprovalStatus, details string) (*models.WorkflowState, error) {
	var resolved *models.WorkflowState

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, runKey(workflowID)).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return checkpoint.ErrRunNotFound
			}

			return err
		}

		var state models.WorkflowState
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("parse run %s: %w", workflowID, err)
		}

		if state.Approval != models.ApprovalPending {
			return checkpoint.ErrAlreadyResolved
		}

		// A pending approval alone is the enum default; only runs the gate
		// actually suspended may be decided.
		if state.SuspendedAt == nil {
			return checkpoint.ErrNotSuspended
		}

		state.Approval = approval
		state.ApprovalDetails = details

		payload, err := json.Marshal(&state)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, runKey(workflowID), payload, 0)
			pipe.SRem(ctx, suspendedKey, workflowID)

			return nil
		})
		if err != nil {
			return err
		}

		resolved = &state

		return nil
	}, runKey(workflowID))
	if err != nil {
		return nil, checkpoint.NewStoreError("Resolve", workflowID, err)
	}

	return resolved, nil
}

// Delete removes a run's checkpoint and its index entry.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, runKey(workflowID))
	pipe.SRem(ctx, suspendedKey, workflowID)

	if _, err := pipe.Exec(ctx); err != nil {
		return checkpoint.NewStoreError("Delete", workflowID, err)
	}

	if del.Val() == 0 {
		return checkpoint.NewStoreError("Delete", workflowID, checkpoint.ErrRunNotFound)
	}

	return nil
}

// HealthCheck pings the Redis server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	return nil
}

// Close releases the client connection pool.
func (s *Store) Close(_ context.Context) error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}

	return nil
}
