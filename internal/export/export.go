// Package export turns a card's stored base64 payload back into
// downloadable image bytes.
package export

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Image is a decoded card image ready to serve or save.
type Image struct {
	Data      []byte
	MediaType string
}

// Decode decodes a card's base64 payload and sniffs its media type.
func Decode(payload string) (*Image, error) {
	if payload == "" {
		return nil, fmt.Errorf("no image data available")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}

	return &Image{
		Data:      data,
		MediaType: http.DetectContentType(data),
	}, nil
}

// Ext maps the sniffed media type to a file extension, defaulting to
// png for anything unrecognized.
func (i *Image) Ext() string {
	switch i.MediaType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// Filename builds a download name for a card image.
func Filename(sessionID string, cardIndex int, img *Image) string {
	return FilenameWithTime(sessionID, cardIndex, img, time.Now())
}

func FilenameWithTime(sessionID string, cardIndex int, img *Image, t time.Time) string {
	timestamp := t.Format("20060102-150405")
	return fmt.Sprintf("cover-%s-%d-%s.%s", sessionID, cardIndex+1, timestamp, img.Ext())
}

// Save writes the image to path, creating parent directories.
func (i *Image) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, i.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
