package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Custom Search returns at most 10 results per call.
const maxResultsPerCall = 10

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
	"quotaExceeded":         true,
}

type GoogleSearcher struct {
	service  *customsearch.Service
	engineID string
	logger   *zap.Logger
}

func NewGoogleSearcher(ctx context.Context, apiKey, engineID string, logger *zap.Logger, opts ...option.ClientOption) (*GoogleSearcher, error) {
	if apiKey == "" {
		return nil, errors.NewConfigurationError("Google search API key is required", "GOOGLE_SEARCH_API_KEY")
	}
	if engineID == "" {
		return nil, errors.NewConfigurationError("Google search engine id is required", "GOOGLE_SEARCH_CX")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}

	logger.Info("Image search service initialized", zap.String("engine_id", engineID))

	return &GoogleSearcher{
		service:  service,
		engineID: engineID,
		logger:   logger,
	}, nil
}

func (g *GoogleSearcher) SearchImages(ctx context.Context, q ImageQuery) ([]SearchHit, error) {
	count := q.Count
	if count <= 0 || count > maxResultsPerCall {
		count = maxResultsPerCall
	}

	call := g.service.Cse.List().
		Cx(g.engineID).
		Q(q.Query).
		SearchType("image").
		Num(count)
	if q.Safe != "" {
		call = call.Safe(q.Safe)
	}
	if q.ImageType != "" {
		call = call.ImgType(q.ImageType)
	}
	if q.ImageSize != "" {
		call = call.ImgSize(q.ImageSize)
	}

	response, err := call.Context(ctx).Do()
	if err != nil {
		if isQuotaError(err) {
			status := 0
			var apiErr *googleapi.Error
			if stderrors.As(err, &apiErr) {
				status = apiErr.Code
			}
			g.logger.Warn("Image search quota exceeded", zap.String("query", q.Query), zap.Int("status", status))
			return nil, errors.NewQuotaExceededError(q.Query, status, err)
		}
		return nil, errors.NewTransportError("image search failed", "customsearch", 0, err)
	}

	hits := make([]SearchHit, 0, len(response.Items))
	for _, item := range response.Items {
		if item == nil || item.Link == "" {
			continue
		}
		hits = append(hits, SearchHit{
			Link:        item.Link,
			Title:       item.Title,
			DisplayLink: item.DisplayLink,
		})
	}

	g.logger.Debug("Image search completed",
		zap.String("query", q.Query),
		zap.String("image_type", q.ImageType),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

// isQuotaError recognises quota exhaustion from the status code, the error
// reasons, or as a last resort the message text.
func isQuotaError(err error) bool {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return true
			}
		}
		if apiErr.Code == http.StatusForbidden && strings.Contains(strings.ToLower(apiErr.Message), "quota") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota exceeded")
}
