package platform

import "github.com/maheshrc27/postflow-dispatch/internal/models"

// Capability describes what a destination accepts in a single post.
type Capability struct {
	MaxCaptionLength int
	MaxMediaCount    int
	SupportedFormats map[string]struct{}
}

func formats(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		m[ext] = struct{}{}
	}
	return m
}

var capabilities = map[models.Destination]Capability{
	models.DestinationFacebook: {
		MaxCaptionLength: 63206,
		MaxMediaCount:    10,
		SupportedFormats: formats("jpg", "png", "gif", "webp", "mp4", "mov"),
	},
	models.DestinationInstagram: {
		MaxCaptionLength: 2200,
		MaxMediaCount:    10,
		SupportedFormats: formats("jpg", "png", "mp4", "mov"),
	},
	models.DestinationTwitter: {
		MaxCaptionLength: 280,
		MaxMediaCount:    4,
		SupportedFormats: formats("jpg", "png", "gif", "webp", "mp4", "mov"),
	},
	models.DestinationLinkedIn: {
		MaxCaptionLength: 3000,
		MaxMediaCount:    9,
		SupportedFormats: formats("jpg", "png", "gif", "mp4"),
	},
	models.DestinationTiktok: {
		MaxCaptionLength: 2200,
		MaxMediaCount:    35,
		SupportedFormats: formats("jpg", "webp", "mp4", "mov", "webm"),
	},
	models.DestinationYoutube: {
		MaxCaptionLength: 5000,
		MaxMediaCount:    1,
		SupportedFormats: formats("mp4", "mov", "avi", "webm", "mkv", "wmv", "flv", "mpg"),
	},
	models.DestinationPinterest: {
		MaxCaptionLength: 500,
		MaxMediaCount:    1,
		SupportedFormats: formats("jpg", "png", "gif", "webp", "mp4", "mov"),
	},
	models.DestinationThreads: {
		MaxCaptionLength: 500,
		MaxMediaCount:    10,
		SupportedFormats: formats("jpg", "png", "mp4", "mov"),
	},
}

// CapabilityFor returns the static limits of a destination.
func CapabilityFor(d models.Destination) (Capability, bool) {
	c, ok := capabilities[d]
	return c, ok
}

// IsSupported reports whether d is a known destination.
func IsSupported(d models.Destination) bool {
	_, ok := capabilities[d]
	return ok
}

// Destinations lists every destination in the capability table.
func Destinations() []models.Destination {
	out := make([]models.Destination, 0, len(capabilities))
	for d := range capabilities {
		out = append(out, d)
	}
	return out
}
