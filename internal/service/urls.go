package service

import (
	"fmt"
	"net/url"
	"strings"

	"imgvault/internal/models"
)

type PublicURLer interface {
	PublicURL(key string) string
}

// URLBuilder turns variant slots into client-facing URLs: direct object
// URLs for concrete slots, on-demand transform URLs for deferred ones.
type URLBuilder struct {
	store         PublicURLer
	transformBase string
}

func NewURLBuilder(store PublicURLer, transformBase string) *URLBuilder {
	return &URLBuilder{
		store:         store,
		transformBase: strings.TrimSuffix(transformBase, "/"),
	}
}

// TransformURL builds the proxy URL that converts the original to the given
// format at request time.
func (b *URLBuilder) TransformURL(originalKey, format string) string {
	source := b.store.PublicURL(originalKey)
	return fmt.Sprintf("%s/?url=%s&output=%s", b.transformBase, url.QueryEscape(source), format)
}

// ImageURLs maps each available encoding to the URL a client should fetch.
// Unavailable slots are omitted.
func (b *URLBuilder) ImageURLs(img models.Image) map[string]string {
	urls := map[string]string{
		"original": b.store.PublicURL(img.Original.Key),
	}
	for name, slot := range map[string]models.Variant{"webp": img.Webp, "avif": img.Avif} {
		switch slot.State {
		case models.VariantConcrete:
			urls[name] = b.store.PublicURL(slot.Key)
		case models.VariantDeferred:
			urls[name] = b.TransformURL(img.Original.Key, name)
		}
	}
	return urls
}
