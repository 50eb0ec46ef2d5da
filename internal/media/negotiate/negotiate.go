package negotiate

import (
	"strings"

	"imgvault/internal/models"
)

// Mode says how the negotiated variant is served.
type Mode int

const (
	// ModeDirect streams the object straight from the object store.
	ModeDirect Mode = iota
	// ModeProxy fetches an on-demand transform of the original instead;
	// no concrete object exists for the negotiated encoding.
	ModeProxy
)

const (
	FormatOriginal = "original"
	FormatWebp     = "webp"
	FormatAvif     = "avif"
)

type Request struct {
	// Format is the caller's explicit choice, empty when absent.
	Format string
	// Accept is the raw Accept header.
	Accept string
}

type Decision struct {
	Format string
	MIME   string
	Mode   Mode
	// Key is the object to stream for ModeDirect, or the original's key
	// to transform for ModeProxy.
	Key string
}

// Negotiate picks the best servable variant for a request. gif sources are
// always served as-is. An explicit format request wins over the Accept
// header; availability falls back per slot: unavailable slots degrade to
// the original, deferred slots are proxied through the transform service.
func Negotiate(img models.Image, req Request, originalMIME string) Decision {
	original := Decision{
		Format: FormatOriginal,
		MIME:   originalMIME,
		Mode:   ModeDirect,
		Key:    img.Original.Key,
	}

	if img.Format == "gif" {
		return original
	}

	target := req.Format
	if target == "" {
		target = bestAccepted(req.Accept)
	}
	if target == FormatOriginal || target == "" {
		return original
	}

	slot := img.VariantFor(target)
	switch slot.State {
	case models.VariantConcrete:
		return Decision{
			Format: target,
			MIME:   "image/" + target,
			Mode:   ModeDirect,
			Key:    slot.Key,
		}
	case models.VariantDeferred:
		return Decision{
			Format: target,
			MIME:   "image/" + target,
			Mode:   ModeProxy,
			Key:    img.Original.Key,
		}
	default:
		return original
	}
}

// bestAccepted scans the Accept list for the preferred modern encoding.
// Wildcards do not count: a client has to name image/avif or image/webp to
// get one.
func bestAccepted(accept string) string {
	var webp bool
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(part)
		if idx := strings.Index(mediaType, ";"); idx >= 0 {
			mediaType = strings.TrimSpace(mediaType[:idx])
		}
		switch mediaType {
		case "image/avif":
			return FormatAvif
		case "image/webp":
			webp = true
		}
	}
	if webp {
		return FormatWebp
	}
	return FormatOriginal
}
