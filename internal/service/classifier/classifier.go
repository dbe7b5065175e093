package classifier

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/internal/service/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Config holds the thresholds and keyword data behind the acceptability verdict.
type Config struct {
	AnalysisMaxDimension int
	MinUniqueColors      int
	MinBrightness        float64
	MaxBrightness        float64
	MaxPixels            int64
	PlaceholderKeywords  []string
	// TrustedHosts are hosts whose images are accepted once they pass the
	// pixel checks; the artifact public host belongs here.
	TrustedHosts []string
}

func DefaultConfig() Config {
	return Config{
		AnalysisMaxDimension: constants.ImageConfig.AnalysisMaxDimension,
		MinUniqueColors:      constants.ImageConfig.MinUniqueColors,
		MinBrightness:        constants.ImageConfig.MinBrightness,
		MaxBrightness:        constants.ImageConfig.MaxBrightness,
		MaxPixels:            constants.ImageConfig.MaxPixels,
		PlaceholderKeywords:  domain.DefaultPlaceholderKeywords,
	}
}

type Classifier struct {
	fetcher  imaging.ImageFetcher
	decode   imaging.DecodeFunc
	cfg      Config
	keywords TypeKeywords
	logger   *zap.Logger
}

func New(fetcher imaging.ImageFetcher, cfg Config, keywords TypeKeywords, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		fetcher:  fetcher,
		decode:   imaging.Decode,
		cfg:      cfg,
		keywords: keywords,
		logger:   logger,
	}
}

// Assess downloads the current avatar and judges whether it can stay.
func (c *Classifier) Assess(ctx context.Context, ref domain.AvatarReference) domain.Assessment {
	avatarURL, ok := domain.NormalizeAvatar(ref, c.cfg.PlaceholderKeywords)
	if !ok {
		return domain.Assessment{
			Verdict: domain.VerdictLikelyGeneric,
			Reason:  "avatar missing or placeholder URL",
		}
	}

	payload, err := c.fetcher.Fetch(ctx, avatarURL)
	if err != nil {
		return domain.Assessment{
			Verdict: domain.VerdictAnalysisFailed,
			Reason:  fmt.Sprintf("download failed: %v", err),
			URL:     avatarURL,
		}
	}

	if _, _, err := imaging.Inspect(payload.Data, c.cfg.MaxPixels); err != nil {
		return domain.Assessment{
			Verdict: domain.VerdictAnalysisFailed,
			Reason:  fmt.Sprintf("header rejected: %v", err),
			URL:     avatarURL,
		}
	}

	img, _, err := c.decode(payload.Data)
	if err != nil {
		return domain.Assessment{
			Verdict: domain.VerdictAnalysisFailed,
			Reason:  fmt.Sprintf("decode failed: %v", err),
			URL:     avatarURL,
		}
	}

	assessment := c.AnalyzeImage(img)
	assessment.URL = avatarURL

	if assessment.Verdict == domain.VerdictNeedsVerification && c.isTrustedHost(avatarURL) {
		assessment.Verdict = domain.VerdictAcceptable
		assessment.Reason = "passes pixel heuristics on trusted host"
	}

	c.logger.Debug("Avatar assessed",
		zap.String("url", avatarURL),
		zap.String("verdict", assessment.Verdict.String()),
		zap.Int("unique_colors", assessment.UniqueColors),
		zap.Float64("brightness", assessment.Brightness),
	)
	return assessment
}

// AnalyzeImage applies the pixel heuristics to img. It never returns
// Acceptable; that needs the host check in Assess.
func (c *Classifier) AnalyzeImage(img image.Image) domain.Assessment {
	sample := c.downsample(imaging.Flatten(img))
	unique, brightness := pixelStats(sample)

	result := domain.Assessment{
		UniqueColors: unique,
		Brightness:   brightness,
	}

	switch {
	case unique < c.cfg.MinUniqueColors:
		result.Verdict = domain.VerdictLikelyGeneric
		result.Reason = fmt.Sprintf("only %d distinct colors", unique)
	case brightness < c.cfg.MinBrightness || brightness > c.cfg.MaxBrightness:
		result.Verdict = domain.VerdictSuspiciousBrightness
		result.Reason = fmt.Sprintf("mean brightness %.1f outside [%.0f, %.0f]", brightness, c.cfg.MinBrightness, c.cfg.MaxBrightness)
	default:
		result.Verdict = domain.VerdictNeedsVerification
		result.Reason = "no generic signal; search for a better match"
	}
	return result
}

// InferType tags the persona for query selection.
func (c *Classifier) InferType(rec *domain.PersonaRecord) domain.PersonaType {
	return InferType(rec.SearchText(), c.keywords)
}

func (c *Classifier) downsample(src *image.RGBA) *image.RGBA {
	limit := c.cfg.AnalysisMaxDimension
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return src
	}

	scale := float64(limit) / float64(max(w, h))
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func pixelStats(img *image.RGBA) (int, float64) {
	b := img.Bounds()
	seen := make(map[uint32]struct{})
	var sum float64
	pixels := 0

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			seen[uint32(r)<<16|uint32(g)<<8|uint32(bl)] = struct{}{}
			sum += (float64(r) + float64(g) + float64(bl)) / 3
			pixels++
		}
	}

	if pixels == 0 {
		return 0, 0
	}
	return len(seen), sum / float64(pixels)
}

func (c *Classifier) isTrustedHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range c.cfg.TrustedHosts {
		trusted = strings.ToLower(strings.TrimSpace(trusted))
		if trusted == "" {
			continue
		}
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}
