package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

var thumbWidthPattern = regexp.MustCompile(`/(\d+)px-`)

// WikiSource looks up the lead image of a persona's encyclopedia article.
type WikiSource struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewWikiSource(baseURL string, timeout time.Duration, logger *zap.Logger) *WikiSource {
	if baseURL == "" {
		baseURL = constants.SearchConfig.WikiBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WikiSource{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// Lookup returns the article's lead image URL, or "" when the article does not
// exist or has no image.
func (w *WikiSource) Lookup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	pageURL := w.baseURL + url.PathEscape(strings.ReplaceAll(name, " ", "_"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", constants.APIConfig.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransportError("wiki request failed", pageURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewTransportError("wiki returned unexpected status", pageURL, resp.StatusCode, nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse wiki page: %w", err)
	}

	src := ""
	if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		src = strings.TrimSpace(content)
	}
	if src == "" {
		if infobox, ok := doc.Find("table.infobox img").First().Attr("src"); ok {
			src = upscaleThumb(strings.TrimSpace(infobox))
		}
	}
	if src == "" {
		w.logger.Debug("Wiki page has no lead image", zap.String("name", name))
		return "", nil
	}

	resolved, err := resolveURL(pageURL, src)
	if err != nil {
		return "", nil
	}
	return resolved, nil
}

// Candidate wraps Lookup into a ranked candidate. It returns nil when nothing was found.
func (w *WikiSource) Candidate(ctx context.Context, name string, filters Filters) (*domain.AvatarCandidate, error) {
	imageURL, err := w.Lookup(ctx, name)
	if err != nil || imageURL == "" {
		return nil, err
	}

	hit := SearchHit{Link: imageURL, Title: name + " (encyclopedia lead image)"}
	if reason := filters.Rejection(hit); reason != "" {
		w.logger.Debug("Wiki image rejected", zap.String("url", imageURL), zap.String("reason", reason))
		return nil, nil
	}

	return &domain.AvatarCandidate{
		URL:      imageURL,
		Query:    "wiki:" + name,
		Title:    hit.Title,
		Priority: filters.Score(hit) + constants.SearchConfig.WikiPriorityBonus,
		Source:   domain.SourceWiki,
	}, nil
}

// upscaleThumb requests a larger rendition of a thumbnail so it clears the minimum dimension.
func upscaleThumb(src string) string {
	return thumbWidthPattern.ReplaceAllString(src, "/500px-")
}

func resolveURL(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
