package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeFunc decodes raw bytes into an image and reports the detected format.
type DecodeFunc func(data []byte) (image.Image, string, error)

// Decode decodes JPEG, PNG, GIF, WebP and BMP payloads.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.NewFormatError("undecodable image payload", "", err)
	}
	return img, format, nil
}

// Inspect reads only the image header and rejects payloads claiming more than
// maxPixels pixels, so the pixel buffer is never allocated for them.
// maxPixels <= 0 disables the limit.
func Inspect(data []byte, maxPixels int64) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", errors.NewFormatError("undecodable image header", "", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", errors.NewFormatError(
			fmt.Sprintf("invalid image dimensions %dx%d", cfg.Width, cfg.Height), format, nil)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return image.Config{}, "", errors.NewConstraintViolation(
			fmt.Sprintf("image too large: %dx%d", cfg.Width, cfg.Height), "max_pixels", pixels)
	}
	return cfg, format, nil
}
