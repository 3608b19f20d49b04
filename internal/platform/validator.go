package platform

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindUnknown MediaKind = "unknown"
)

var extensionAliases = map[string]string{
	"jpeg": "jpg",
	"jpe":  "jpg",
	"m4v":  "mp4",
	"qt":   "mov",
}

// ValidatePost checks a post against its destination's capability entry.
func ValidatePost(post *models.Post) error {
	c, ok := CapabilityFor(post.Destination)
	if !ok {
		return &models.ValidationError{Reason: fmt.Sprintf("unsupported destination %q", post.Destination)}
	}
	return Validate(post, c)
}

// Validate returns the first requirement the post violates, in order: caption length,
// media count, media formats.
func Validate(post *models.Post, c Capability) error {
	if n := utf8.RuneCountInString(post.Caption); n > c.MaxCaptionLength {
		return &models.ValidationError{
			Reason: fmt.Sprintf("caption is %d characters, %s allows %d", n, post.Destination, c.MaxCaptionLength),
		}
	}

	if len(post.Media) > c.MaxMediaCount {
		return &models.ValidationError{
			Reason: fmt.Sprintf("%d media items, %s allows %d", len(post.Media), post.Destination, c.MaxMediaCount),
		}
	}

	for i, m := range post.Media {
		format := MediaFormat(m.URL)
		if _, ok := c.SupportedFormats[format]; !ok {
			return &models.ValidationError{
				Reason: fmt.Sprintf("media %d has unsupported format %q for %s", i, format, post.Destination),
			}
		}
	}

	return nil
}

// MediaFormat derives the normalized file extension of a media URL.
func MediaFormat(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if alias, ok := extensionAliases[ext]; ok {
		return alias
	}
	return ext
}

// MediaKindOf classifies a media URL as image or video from its extension.
func MediaKindOf(rawURL string) MediaKind {
	t := filetype.GetType(MediaFormat(rawURL))
	if t == types.Unknown {
		return MediaKindUnknown
	}
	switch t.MIME.Type {
	case "image":
		return MediaKindImage
	case "video":
		return MediaKindVideo
	default:
		return MediaKindUnknown
	}
}
