package imaging

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// Payload is a downloaded image body.
type Payload struct {
	URL         string
	ContentType string
	Data        []byte
}

// ImageFetcher downloads image payloads.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Payload, error)
}

// Fetcher downloads arbitrary image URLs. Non-image responses are rejected from
// their headers alone; bodies larger than maxBytes are never fully buffered.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

func NewFetcher(timeout time.Duration, maxBytes int64, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = constants.ImageConfig.FetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = constants.ImageConfig.MaxBytes
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewTransportError("invalid image URL", rawURL, 0, err)
	}
	req.Header.Set("User-Agent", constants.APIConfig.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransportError("image download failed", rawURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewTransportError(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), rawURL, resp.StatusCode, nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if err := CheckContentType(contentType); err != nil {
		return nil, err
	}

	if resp.ContentLength > f.maxBytes {
		return nil, errors.NewConstraintViolation("payload too large", "max_bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.NewTransportError("failed to read image body", rawURL, resp.StatusCode, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.NewConstraintViolation("payload too large", "max_bytes", len(data))
	}

	f.logger.Debug("Image downloaded",
		zap.String("url", rawURL),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
	)

	return &Payload{
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// CheckContentType rejects responses that announce a non-image document. An
// absent or generic binary type is let through for the decoder to judge.
func CheckContentType(contentType string) error {
	if strings.TrimSpace(contentType) == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return errors.NewFormatError("malformed content type", contentType, err)
	}

	switch {
	case mediaType == "image/svg+xml":
		return errors.NewFormatError("vector images are not supported", contentType, nil)
	case strings.HasPrefix(mediaType, "image/"):
		return nil
	case mediaType == "application/octet-stream", mediaType == "binary/octet-stream":
		return nil
	default:
		return errors.NewFormatError("response is not an image", contentType, nil)
	}
}
