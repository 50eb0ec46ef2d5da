package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"imgvault/internal/media/paths"
	"imgvault/internal/media/sniffer"
	"imgvault/internal/models"
	"imgvault/internal/transcode"
)

// ValidationError marks bad client input; its message is safe to surface
// verbatim.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

func validationf(format string, args ...any) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ImageSaver is the slice of the metadata store the upload pipeline needs.
type ImageSaver interface {
	Save(ctx context.Context, image models.Image) error
}

// Processor settles the variant slots and performs the durable writes.
type Processor interface {
	Process(ctx context.Context, job transcode.Job) (transcode.VariantSet, error)
}

// ListInvalidator drops cached listings, fire-and-forget.
type ListInvalidator interface {
	Invalidate(kind string)
}

type UploadInput struct {
	File          multipart.File
	Header        *multipart.FileHeader
	Tags          string
	ExpiryMinutes int
	WantWebp      bool
	WantAvif      bool
}

type UploadService struct {
	images      ImageSaver
	coordinator Processor
	invalidator ListInvalidator
	log         zerolog.Logger
}

func NewUploadService(images ImageSaver, coordinator Processor, invalidator ListInvalidator, log zerolog.Logger) *UploadService {
	return &UploadService{
		images:      images,
		coordinator: coordinator,
		invalidator: invalidator,
		log:         log,
	}
}

// Upload runs the ingest pipeline: inspect, allocate, write, persist. The
// metadata row is saved only after every referenced byte is durable, so a
// reader can never observe a record whose objects do not exist yet.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (models.Image, error) {
	if input.File == nil || input.Header == nil {
		return models.Image{}, validationf("image file is required")
	}
	if input.ExpiryMinutes < 0 {
		return models.Image{}, validationf("expiryMinutes must not be negative")
	}

	data, err := io.ReadAll(input.File)
	if err != nil {
		return models.Image{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return models.Image{}, validationf("image file is empty")
	}

	info, err := sniffer.Inspect(data)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnsupportedFormat) {
			return models.Image{}, validationf("unsupported image format")
		}
		if errors.Is(err, sniffer.ErrCorruptImage) {
			return models.Image{}, validationf("corrupt image data")
		}
		return models.Image{}, err
	}

	id := ksuid.New().String()
	keys := paths.Allocate(id, info.Orientation, info.Format)

	set, err := s.coordinator.Process(ctx, transcode.Job{
		Data:     data,
		Format:   info.Format,
		Keys:     keys,
		WantWebp: input.WantWebp,
		WantAvif: input.WantAvif,
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("store image: %w", err)
	}

	now := time.Now().UTC()
	image := models.Image{
		ID:          id,
		Filename:    input.Header.Filename,
		Format:      string(info.Format),
		MIME:        info.MIME,
		Width:       info.Width,
		Height:      info.Height,
		Orientation: info.Orientation,
		Tags:        NormalizeTags(input.Tags),
		Original:    set.Original,
		Webp:        set.Webp,
		Avif:        set.Avif,
		ExpireAt:    expiry(now, input.ExpiryMinutes),
		CreatedAt:   now,
	}

	if err := s.images.Save(ctx, image); err != nil {
		return models.Image{}, fmt.Errorf("save metadata: %w", err)
	}

	s.invalidator.Invalidate("images")

	s.log.Info().
		Str("image_id", id).
		Str("format", image.Format).
		Str("orientation", string(image.Orientation)).
		Int64("size", image.Original.Size).
		Msg("image uploaded")

	return image, nil
}

// NormalizeTags splits a comma-separated tag string into trimmed lowercase
// tags, dropping empties and duplicates while keeping first-seen order.
func NormalizeTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func expiry(now time.Time, minutes int) *time.Time {
	if minutes <= 0 {
		return nil
	}
	at := now.Add(time.Duration(minutes) * time.Minute)
	return &at
}
