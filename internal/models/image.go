package models

import "time"

type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// VariantState says what a variant slot actually holds. A slot is always in
// exactly one state; the key is only meaningful for concrete slots.
type VariantState string

const (
	// VariantConcrete: pre-encoded bytes exist at Key.
	VariantConcrete VariantState = "concrete"
	// VariantUnavailable: this encoding is never produced for the image.
	VariantUnavailable VariantState = "unavailable"
	// VariantDeferred: no pre-encoded bytes; derive from the original via
	// the on-demand transform service at serve time.
	VariantDeferred VariantState = "deferred"
)

type Variant struct {
	State VariantState
	Key   string
	Size  int64
}

func ConcreteVariant(key string, size int64) Variant {
	return Variant{State: VariantConcrete, Key: key, Size: size}
}

func UnavailableVariant() Variant {
	return Variant{State: VariantUnavailable}
}

func DeferredVariant() Variant {
	return Variant{State: VariantDeferred}
}

type Image struct {
	ID          string
	Filename    string
	Format      string
	MIME        string
	Width       int
	Height      int
	Orientation Orientation
	Tags        []string
	Original    Variant
	Webp        Variant
	Avif        Variant
	ExpireAt    *time.Time
	CreatedAt   time.Time
}

// VariantFor returns the slot for the given encoding name. Unknown names
// resolve to the original slot.
func (i Image) VariantFor(format string) Variant {
	switch format {
	case "webp":
		return i.Webp
	case "avif":
		return i.Avif
	default:
		return i.Original
	}
}

// ConcreteKeys lists every object-store key the record references.
func (i Image) ConcreteKeys() []string {
	keys := make([]string, 0, 3)
	for _, v := range []Variant{i.Original, i.Webp, i.Avif} {
		if v.State == VariantConcrete && v.Key != "" {
			keys = append(keys, v.Key)
		}
	}
	return keys
}
