// Package security validates user-supplied reference images before
// any backend call sees them.
package security

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// MaxReferenceBytes caps decoded reference image size at 4 MiB.
const MaxReferenceBytes = 4 << 20

var (
	ErrImageTooLarge        = fmt.Errorf("reference image exceeds %d bytes", MaxReferenceBytes)
	ErrUnsupportedImageType = fmt.Errorf("unsupported reference image type")
	ErrInvalidDataURL       = fmt.Errorf("invalid data URL")
	ErrEmptyImage           = fmt.Errorf("reference image is empty")
)

var allowedMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

var dataURLPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// AllowedMediaTypes lists the accepted reference image media types.
func AllowedMediaTypes() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/gif"}
}

// ValidateReference checks decoded size and media type.
func ValidateReference(data []byte, mediaType string) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if len(data) > MaxReferenceBytes {
		return fmt.Errorf("%w: got %d bytes", ErrImageTooLarge, len(data))
	}
	if !allowedMediaTypes[strings.ToLower(strings.TrimSpace(mediaType))] {
		return fmt.Errorf("%w: %s", ErrUnsupportedImageType, mediaType)
	}
	return nil
}

// ParseDataURL splits a browser FileReader data URL into its media
// type and decoded payload.
func ParseDataURL(s string) (string, []byte, error) {
	matches := dataURLPattern.FindStringSubmatch(s)
	if matches == nil {
		return "", nil, ErrInvalidDataURL
	}

	mediaType := strings.ToLower(matches[1])
	data, err := base64.StdEncoding.DecodeString(matches[2])
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidDataURL, err)
	}
	return mediaType, data, nil
}
