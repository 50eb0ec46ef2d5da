package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imgvault/internal/config"
	"imgvault/internal/media/sniffer"
)

// Targets selects which derived encodings a transcode call should produce.
type Targets struct {
	Webp bool
	Avif bool
}

// Result carries the produced encodings. A nil slice means the target was
// not produced, whether because it was not requested, the service judged it
// not worth compressing, or the conversion failed.
type Result struct {
	Webp []byte
	Avif []byte
}

type Transcoder interface {
	Transcode(ctx context.Context, data []byte, source sniffer.Format, targets Targets) (Result, error)
}

// Client talks to the external transcoding service over HTTP, one request
// per target encoding.
type Client struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(cfg config.TranscoderConfig, log zerolog.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
}

// Transcode requests each wanted target concurrently. Per-target failures
// are logged and surface as omissions, not errors; the error return is
// reserved for cancellation.
func (c *Client) Transcode(ctx context.Context, data []byte, source sniffer.Format, targets Targets) (Result, error) {
	var result Result

	g, gctx := errgroup.WithContext(ctx)
	if targets.Webp {
		g.Go(func() error {
			out, err := c.convert(gctx, data, source, "webp")
			if err != nil {
				c.log.Warn().Err(err).Msg("webp conversion failed")
				return nil
			}
			result.Webp = out
			return nil
		})
	}
	if targets.Avif {
		g.Go(func() error {
			out, err := c.convert(gctx, data, source, "avif")
			if err != nil {
				c.log.Warn().Err(err).Msg("avif conversion failed")
				return nil
			}
			result.Avif = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return result, nil
}

func (c *Client) convert(ctx context.Context, data []byte, source sniffer.Format, target string) ([]byte, error) {
	url := fmt.Sprintf("%s/convert?to=%s", c.endpoint, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", source.MIME())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transcoder: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		out, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case http.StatusNoContent:
		// not worth compressing, the service declined
		return nil, nil
	default:
		return nil, fmt.Errorf("transcoder status %d", resp.StatusCode)
	}
}
