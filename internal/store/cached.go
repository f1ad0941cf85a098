package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/models"
)

// CountCache holds per-profile unseen notification counts.
type CountCache interface {
	InvalidateUnseenCount(ctx context.Context, profileID uuid.UUID) error
}

// countInvalidatingStore drops a target's cached unseen count whenever one
// of its notifications is created or marked seen.
type countInvalidatingStore struct {
	DataStore
	cache  CountCache
	logger zerolog.Logger
}

// WithCountInvalidation wraps ds so notification writes invalidate cache.
// Cache failures are logged; the write itself still succeeds.
func WithCountInvalidation(ds DataStore, cache CountCache, logger zerolog.Logger) DataStore {
	return &countInvalidatingStore{DataStore: ds, cache: cache, logger: logger}
}

func (s *countInvalidatingStore) CreateNotification(ctx context.Context, n NewNotification) (*models.Notification, error) {
	out, err := s.DataStore.CreateNotification(ctx, n)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, n.TargetID)
	return out, nil
}

func (s *countInvalidatingStore) MarkNotificationSeen(ctx context.Context, id int64, targetID uuid.UUID) error {
	if err := s.DataStore.MarkNotificationSeen(ctx, id, targetID); err != nil {
		return err
	}
	s.invalidate(ctx, targetID)
	return nil
}

func (s *countInvalidatingStore) invalidate(ctx context.Context, profileID uuid.UUID) {
	if err := s.cache.InvalidateUnseenCount(ctx, profileID); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", profileID.String()).Msg("unseen count cache invalidation failed")
	}
}
