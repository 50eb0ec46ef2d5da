package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imgvault/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

const imageColumns = `id, filename, format, mime, width, height, orientation, tags,
	       original_key, original_size,
	       webp_state, webp_key, webp_size,
	       avif_state, avif_key, avif_size,
	       expire_at, created_at`

// Filter narrows random selection. Zero values mean "no predicate".
type Filter struct {
	Tags        []string
	Exclude     []string
	Orientation models.Orientation
}

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

func (r *ImageRepository) Save(ctx context.Context, image models.Image) error {
	const query = `
		INSERT INTO images (
			id, filename, format, mime, width, height, orientation, tags,
			original_key, original_size,
			webp_state, webp_key, webp_size,
			avif_state, avif_key, avif_size,
			expire_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.Filename,
		image.Format,
		image.MIME,
		image.Width,
		image.Height,
		image.Orientation,
		image.Tags,
		image.Original.Key,
		image.Original.Size,
		image.Webp.State,
		image.Webp.Key,
		image.Webp.Size,
		image.Avif.State,
		image.Avif.Key,
		image.Avif.Size,
		image.ExpireAt,
		image.CreatedAt,
	)
	return err
}

func (r *ImageRepository) Get(ctx context.Context, id string) (models.Image, error) {
	query := fmt.Sprintf(`SELECT %s FROM images WHERE id = $1`, imageColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// SelectRandom picks one record uniformly among those matching the filter.
func (r *ImageRepository) SelectRandom(ctx context.Context, filter Filter) (models.Image, error) {
	query, args := buildRandomQuery(filter)
	return r.scanOne(r.pool.QueryRow(ctx, query, args...))
}

// buildRandomQuery assembles the filtered random-selection statement.
func buildRandomQuery(filter Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		conds = append(conds, fmt.Sprintf("tags @> $%d", len(args)))
	}
	if len(filter.Exclude) > 0 {
		args = append(args, filter.Exclude)
		conds = append(conds, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}
	if filter.Orientation != "" {
		args = append(args, string(filter.Orientation))
		conds = append(conds, fmt.Sprintf("orientation = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM images`, imageColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY random() LIMIT 1"

	return query, args
}

func (r *ImageRepository) List(ctx context.Context, limit, offset int) ([]models.Image, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM images
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, imageColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListExpired returns every record whose expiry is at or before now.
func (r *ImageRepository) ListExpired(ctx context.Context, now time.Time) ([]models.Image, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM images
		WHERE expire_at IS NOT NULL AND expire_at <= $1
	`, imageColumns)

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (r *ImageRepository) scanOne(row pgx.Row) (models.Image, error) {
	var image models.Image
	if err := scanImage(row, &image); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}

func (r *ImageRepository) scanAll(rows pgx.Rows) ([]models.Image, error) {
	var images []models.Image
	for rows.Next() {
		var image models.Image
		if err := scanImage(rows, &image); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func scanImage(row pgx.Row, image *models.Image) error {
	err := row.Scan(
		&image.ID,
		&image.Filename,
		&image.Format,
		&image.MIME,
		&image.Width,
		&image.Height,
		&image.Orientation,
		&image.Tags,
		&image.Original.Key,
		&image.Original.Size,
		&image.Webp.State,
		&image.Webp.Key,
		&image.Webp.Size,
		&image.Avif.State,
		&image.Avif.Key,
		&image.Avif.Size,
		&image.ExpireAt,
		&image.CreatedAt,
	)
	if err != nil {
		return err
	}
	// the original slot is always concrete, only its key and size are stored
	image.Original.State = models.VariantConcrete
	return nil
}
