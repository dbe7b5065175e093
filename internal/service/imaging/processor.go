package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

type Config struct {
	TargetSize     int
	Quality        int
	MinDimension   int
	MaxAspectRatio float64
	MinBytes       int64
	MaxBytes       int64
	MaxPixels      int64
}

func DefaultConfig() Config {
	return Config{
		TargetSize:     constants.ImageConfig.TargetSize,
		Quality:        constants.ImageConfig.JPEGQuality,
		MinDimension:   constants.ImageConfig.MinDimension,
		MaxAspectRatio: constants.ImageConfig.MaxAspectRatio,
		MinBytes:       constants.ImageConfig.MinBytes,
		MaxBytes:       constants.ImageConfig.MaxBytes,
		MaxPixels:      constants.ImageConfig.MaxPixels,
	}
}

// Processor downloads a candidate image, validates it and re-encodes it as a
// square JPEG. It never writes anywhere.
type Processor struct {
	fetcher ImageFetcher
	decode  DecodeFunc
	cfg     Config
	logger  *zap.Logger
}

func NewProcessor(fetcher ImageFetcher, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		fetcher: fetcher,
		decode:  Decode,
		cfg:     cfg,
		logger:  logger,
	}
}

// Acquire runs the full download-validate-normalize chain for one candidate.
// stem becomes the file name stem of the returned image.
func (p *Processor) Acquire(ctx context.Context, sourceURL, stem string) (*domain.NormalizedImage, error) {
	payload, err := p.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	size := int64(len(payload.Data))
	if size < p.cfg.MinBytes {
		return nil, errors.NewConstraintViolation(
			fmt.Sprintf("payload too small: %d bytes", size), "min_bytes", size)
	}
	if p.cfg.MaxBytes > 0 && size > p.cfg.MaxBytes {
		return nil, errors.NewConstraintViolation(
			fmt.Sprintf("payload too large: %d bytes", size), "max_bytes", size)
	}

	header, _, err := Inspect(payload.Data, p.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}
	if err := p.checkShape(image.Rect(0, 0, header.Width, header.Height)); err != nil {
		return nil, err
	}

	img, format, err := p.decode(payload.Data)
	if err != nil {
		return nil, err
	}

	data, err := p.Encode(p.Normalize(img))
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Candidate normalized",
		zap.String("url", sourceURL),
		zap.String("source_format", format),
		zap.Int("source_width", img.Bounds().Dx()),
		zap.Int("source_height", img.Bounds().Dy()),
		zap.Int("bytes", len(data)),
	)

	return &domain.NormalizedImage{
		Data:        data,
		Width:       p.cfg.TargetSize,
		Height:      p.cfg.TargetSize,
		Format:      "jpeg",
		Extension:   "jpg",
		ContentType: "image/jpeg",
		Stem:        stem,
		SourceURL:   sourceURL,
	}, nil
}

func (p *Processor) checkShape(bounds image.Rectangle) error {
	w, h := bounds.Dx(), bounds.Dy()
	if w < p.cfg.MinDimension || h < p.cfg.MinDimension {
		return errors.NewConstraintViolation(
			fmt.Sprintf("image too small: %dx%d", w, h), "min_dimension", fmt.Sprintf("%dx%d", w, h))
	}

	long, short := max(w, h), min(w, h)
	ratio := float64(long) / float64(short)
	if p.cfg.MaxAspectRatio > 0 && ratio > p.cfg.MaxAspectRatio {
		return errors.NewConstraintViolation(
			fmt.Sprintf("aspect ratio %.2f out of bounds", ratio), "max_aspect_ratio", ratio)
	}
	return nil
}

// Normalize flattens transparency onto white, crops the largest square and
// scales it to the target size.
func (p *Processor) Normalize(src image.Image) *image.RGBA {
	flat := Flatten(src)
	crop := SquareCrop(flat.Bounds())

	out := image.NewRGBA(image.Rect(0, 0, p.cfg.TargetSize, p.cfg.TargetSize))
	draw.CatmullRom.Scale(out, out.Bounds(), flat, crop, draw.Src, nil)
	return out
}

func (p *Processor) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Flatten composites src over an opaque white canvas anchored at the origin.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// SquareCrop returns the largest square inside bounds. Wide images are cut
// around the horizontal center; tall images keep the upper part, where
// portraits usually place the face.
func SquareCrop(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	side := min(w, h)
	x0 := bounds.Min.X + (w-side)/2
	y0 := bounds.Min.Y + (h-side)/3
	return image.Rect(x0, y0, x0+side, y0+side)
}
