package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"imgvault/internal/media/negotiate"
	"imgvault/internal/models"
	"imgvault/internal/repository"
	"imgvault/internal/storage"
)

// ImageFinder is the slice of the metadata store retrieval needs.
type ImageFinder interface {
	Get(ctx context.Context, id string) (models.Image, error)
	SelectRandom(ctx context.Context, filter repository.Filter) (models.Image, error)
	Delete(ctx context.Context, id string) error
}

// ObjectReader streams and deletes stored objects.
type ObjectReader interface {
	GetStream(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	DeleteMany(ctx context.Context, keys []string) error
}

type ServeRequest struct {
	Filter repository.Filter
	// Format is the explicit format query parameter, empty when absent.
	Format string
	// Accept is the client's Accept header.
	Accept string
	// MobileHint applies a portrait preference when the caller did not
	// filter by orientation itself.
	MobileHint bool
}

// ServeResult is a negotiated byte stream; the caller owns Body.
type ServeResult struct {
	ImageID     string
	Format      string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

type ServeService struct {
	images      ImageFinder
	store       ObjectReader
	urls        *URLBuilder
	client      *http.Client
	invalidator ListInvalidator
	log         zerolog.Logger
}

func NewServeService(images ImageFinder, store ObjectReader, urls *URLBuilder, transformTimeout time.Duration, invalidator ListInvalidator, log zerolog.Logger) *ServeService {
	return &ServeService{
		images:      images,
		store:       store,
		urls:        urls,
		client:      &http.Client{Timeout: transformTimeout},
		invalidator: invalidator,
		log:         log,
	}
}

// Random picks a matching record and serves its best variant.
func (s *ServeService) Random(ctx context.Context, req ServeRequest) (ServeResult, error) {
	filter := req.Filter
	if filter.Orientation == "" && req.MobileHint {
		filter.Orientation = models.OrientationPortrait
	}

	image, err := s.images.SelectRandom(ctx, filter)
	if err != nil {
		return ServeResult{}, err
	}
	return s.serve(ctx, image, req)
}

// ByID serves a known record's best variant.
func (s *ServeService) ByID(ctx context.Context, id string, req ServeRequest) (ServeResult, error) {
	image, err := s.images.Get(ctx, id)
	if err != nil {
		return ServeResult{}, err
	}
	return s.serve(ctx, image, req)
}

func (s *ServeService) Meta(ctx context.Context, id string) (models.Image, error) {
	return s.images.Get(ctx, id)
}

// Delete removes the stored bytes first and the metadata row after, so a
// failed object deletion never leaves a record pointing at nothing while
// reporting success.
func (s *ServeService) Delete(ctx context.Context, id string) error {
	image, err := s.images.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMany(ctx, image.ConcreteKeys()); err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidator.Invalidate("images")
	return nil
}

func (s *ServeService) serve(ctx context.Context, image models.Image, req ServeRequest) (ServeResult, error) {
	decision := negotiate.Negotiate(image, negotiate.Request{
		Format: req.Format,
		Accept: req.Accept,
	}, image.MIME)

	if decision.Mode == negotiate.ModeProxy {
		return s.proxyTransform(ctx, image, decision)
	}

	body, info, err := s.store.GetStream(ctx, decision.Key)
	if err != nil {
		// a record claiming a missing object is a not-found, never a
		// silent substitution
		return ServeResult{}, err
	}

	return ServeResult{
		ImageID:     image.ID,
		Format:      decision.Format,
		ContentType: decision.MIME,
		Size:        info.Size,
		Body:        body,
	}, nil
}

// proxyTransform fetches an on-demand conversion of the original and passes
// the upstream response through verbatim.
func (s *ServeService) proxyTransform(ctx context.Context, image models.Image, decision negotiate.Decision) (ServeResult, error) {
	url := s.urls.TransformURL(decision.Key, decision.Format)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ServeResult{}, fmt.Errorf("build transform request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("image_id", image.ID).Msg("transform fetch failed")
		return ServeResult{}, storage.ErrObjectMissing
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		s.log.Warn().Int("status", resp.StatusCode).Str("image_id", image.ID).Msg("transform upstream error")
		return ServeResult{}, storage.ErrObjectMissing
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = decision.MIME
	}

	return ServeResult{
		ImageID:     image.ID,
		Format:      decision.Format,
		ContentType: contentType,
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}
