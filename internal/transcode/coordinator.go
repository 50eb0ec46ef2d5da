package transcode

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imgvault/internal/media/paths"
	"imgvault/internal/media/sniffer"
	"imgvault/internal/models"
)

// BlobStore is the slice of the object store the coordinator drives.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	DeleteMany(ctx context.Context, keys []string) error
}

type Job struct {
	Data     []byte
	Format   sniffer.Format
	Keys     paths.Set
	WantWebp bool
	WantAvif bool
}

// VariantSet is the outcome of one upload's storage work.
type VariantSet struct {
	Original models.Variant
	Webp     models.Variant
	Avif     models.Variant
}

// Coordinator decides per upload whether to transcode, runs the original
// write and the transcoder call concurrently, and resolves every wanted
// target into either a concrete stored variant or a deferred one.
type Coordinator struct {
	store         BlobStore
	transcoder    Transcoder
	maxInputBytes int64
	log           zerolog.Logger
}

// NewCoordinator wires the coordinator. transcoder may be nil, in which
// case every wanted target is deferred to serve-time transformation.
func NewCoordinator(store BlobStore, transcoder Transcoder, maxInputBytes int64, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:         store,
		transcoder:    transcoder,
		maxInputBytes: maxInputBytes,
		log:           log,
	}
}

// Process uploads the original and settles the webp/avif slots. Partial
// transcode failure is an expected outcome and falls back per slot; the
// only hard error is the original write failing.
func (c *Coordinator) Process(ctx context.Context, job Job) (VariantSet, error) {
	size := int64(len(job.Data))
	set := VariantSet{
		Original: models.ConcreteVariant(job.Keys.Original, size),
		Webp:     models.UnavailableVariant(),
		Avif:     models.UnavailableVariant(),
	}

	// Pass-through sources are never re-encoded. A webp or avif source
	// already is its own derived encoding, so that slot points at the
	// original bytes literally.
	switch job.Format {
	case sniffer.FormatGIF, sniffer.FormatWEBP, sniffer.FormatAVIF:
		if err := c.putOriginal(ctx, job); err != nil {
			return VariantSet{}, err
		}
		if job.Format == sniffer.FormatWEBP {
			set.Webp = models.ConcreteVariant(job.Keys.Original, size)
		}
		if job.Format == sniffer.FormatAVIF {
			set.Avif = models.ConcreteVariant(job.Keys.Original, size)
		}
		return set, nil
	}

	// Oversized input or no transcoder configured: skip transcoding and
	// defer every wanted target to the on-demand transform.
	if c.transcoder == nil || size > c.maxInputBytes {
		if err := c.putOriginal(ctx, job); err != nil {
			return VariantSet{}, err
		}
		if job.WantWebp {
			set.Webp = models.DeferredVariant()
		}
		if job.WantAvif {
			set.Avif = models.DeferredVariant()
		}
		return set, nil
	}

	// Normal path. The original write and the transcoder call run
	// concurrently; each derived write starts as soon as its bytes exist.
	// Wanted slots start deferred and are upgraded on successful writes.
	if job.WantWebp {
		set.Webp = models.DeferredVariant()
	}
	if job.WantAvif {
		set.Avif = models.DeferredVariant()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.putOriginal(gctx, job)
	})

	var mu sync.Mutex
	g.Go(func() error {
		result, err := c.transcoder.Transcode(gctx, job.Data, job.Format, Targets{Webp: job.WantWebp, Avif: job.WantAvif})
		if err != nil {
			c.log.Warn().Err(err).Msg("transcode failed, deferring variants")
			return nil
		}

		// the client contract is to honor Targets, but bytes for an
		// unwanted slot must never reach the store
		dg, dctx := errgroup.WithContext(gctx)
		if job.WantWebp && len(result.Webp) > 0 {
			dg.Go(func() error {
				if err := c.store.Put(dctx, job.Keys.Webp, result.Webp, "image/webp"); err != nil {
					c.log.Warn().Err(err).Str("key", job.Keys.Webp).Msg("webp upload failed, deferring")
					return nil
				}
				mu.Lock()
				set.Webp = models.ConcreteVariant(job.Keys.Webp, int64(len(result.Webp)))
				mu.Unlock()
				return nil
			})
		}
		if job.WantAvif && len(result.Avif) > 0 {
			dg.Go(func() error {
				if err := c.store.Put(dctx, job.Keys.Avif, result.Avif, "image/avif"); err != nil {
					c.log.Warn().Err(err).Str("key", job.Keys.Avif).Msg("avif upload failed, deferring")
					return nil
				}
				mu.Lock()
				set.Avif = models.ConcreteVariant(job.Keys.Avif, int64(len(result.Avif)))
				mu.Unlock()
				return nil
			})
		}
		return dg.Wait()
	})

	if err := g.Wait(); err != nil {
		// the original write failed: the upload is dead, reap any derived
		// objects written in the meantime
		orphans := make([]string, 0, 2)
		if set.Webp.State == models.VariantConcrete {
			orphans = append(orphans, set.Webp.Key)
		}
		if set.Avif.State == models.VariantConcrete {
			orphans = append(orphans, set.Avif.Key)
		}
		if len(orphans) > 0 {
			if derr := c.store.DeleteMany(context.WithoutCancel(ctx), orphans); derr != nil {
				c.log.Warn().Err(derr).Msg("orphaned variant cleanup failed")
			}
		}
		return VariantSet{}, err
	}

	return set, nil
}

func (c *Coordinator) putOriginal(ctx context.Context, job Job) error {
	if err := c.store.Put(ctx, job.Keys.Original, job.Data, job.Format.MIME()); err != nil {
		return fmt.Errorf("upload original: %w", err)
	}
	return nil
}
