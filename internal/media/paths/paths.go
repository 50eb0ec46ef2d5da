package paths

import (
	"fmt"

	"imgvault/internal/media/sniffer"
	"imgvault/internal/models"
)

// Set holds the storage keys allocated for one image. Webp and Avif are
// proposals; whether they are ever written is the coordinator's call.
type Set struct {
	Original string
	Webp     string
	Avif     string
}

// Allocate derives the object-store keys for an image. Pure and
// deterministic: identical inputs always map to identical keys, and distinct
// ids can never collide because the id is embedded in every key.
func Allocate(id string, orientation models.Orientation, format sniffer.Format) Set {
	return Set{
		Original: fmt.Sprintf("%s/%s.%s", orientation, id, format.Ext()),
		Webp:     fmt.Sprintf("%s/%s.webp", orientation, id),
		Avif:     fmt.Sprintf("%s/%s.avif", orientation, id),
	}
}
