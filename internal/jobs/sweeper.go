package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"imgvault/internal/models"
	"imgvault/internal/repository"
)

type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time) ([]models.Image, error)
	Delete(ctx context.Context, id string) error
}

type ObjectDeleter interface {
	DeleteMany(ctx context.Context, keys []string) error
}

type ListInvalidator interface {
	Invalidate(kind string)
}

// Sweeper removes expired images: bytes first, metadata row after. A
// failing item is logged and skipped, never aborts the sweep.
type Sweeper struct {
	images      ExpiredLister
	store       ObjectDeleter
	invalidator ListInvalidator
	log         zerolog.Logger
}

func NewSweeper(images ExpiredLister, store ObjectDeleter, invalidator ListInvalidator, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		images:      images,
		store:       store,
		invalidator: invalidator,
		log:         log,
	}
}

// Sweep deletes everything expired as of now and returns how many records
// were fully removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired, err := s.images.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("list expired failed")
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	removed := 0
	for _, image := range expired {
		if err := s.store.DeleteMany(ctx, image.ConcreteKeys()); err != nil {
			s.log.Warn().Err(err).Str("image_id", image.ID).Msg("expired object delete failed, skipping")
			continue
		}
		if err := s.images.Delete(ctx, image.ID); err != nil && !errors.Is(err, repository.ErrImageNotFound) {
			s.log.Warn().Err(err).Str("image_id", image.ID).Msg("expired row delete failed, skipping")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.invalidator.Invalidate("images")
	}

	s.log.Info().Int("removed", removed).Int("expired", len(expired)).Msg("expiry sweep finished")
	return removed
}
