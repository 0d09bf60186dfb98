// Package redis stores each case as one JSON document. Commits are
// optimistic: WATCH on the case key plus the version check inside MULTI/EXEC.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	"transferdesk/pkg/platform/sentinel"
)

const defaultKeyPrefix = "transferdesk:case:"

// RedisCaseStore implements the workflow case store on Redis.
type RedisCaseStore struct {
	client redis.UniversalClient
	prefix string
}

type Option func(*RedisCaseStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *RedisCaseStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *RedisCaseStore {
	s := &RedisCaseStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCaseStore) key(caseID id.CaseID) string {
	return s.prefix + caseID.String()
}

func encode(snap *models.Snapshot) ([]byte, error) {
	stored := *snap
	stored.Remarks = ""
	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encode case: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode case: %w", err)
	}
	return &snap, nil
}

func (s *RedisCaseStore) CreateCase(ctx context.Context, c *models.Case) error {
	data, err := encode(&models.Snapshot{Case: *c})
	if err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, s.key(c.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	if !created {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrAlreadyExists)
	}
	return nil
}

func (s *RedisCaseStore) LoadSnapshot(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(caseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	return decode(data)
}

func (s *RedisCaseStore) Commit(ctx context.Context, caseID id.CaseID, expectedVersion int64, change models.Change) (*models.Case, error) {
	key := s.key(caseID)
	var updated models.Case

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load case: %w", err)
		}
		snap, err := decode(data)
		if err != nil {
			return err
		}
		if snap.Case.Version != expectedVersion {
			return fmt.Errorf("case %s at version %d, expected %d: %w", caseID, snap.Case.Version, expectedVersion, sentinel.ErrConflict)
		}

		snap.Apply(change)
		out, err := encode(snap)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = snap.Case
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("case %s changed during commit: %w", caseID, sentinel.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
