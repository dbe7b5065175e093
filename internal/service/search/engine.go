package search

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

type EngineConfig struct {
	MaxCandidates   int
	MaxQueries      int
	ResultsPerQuery int64
	QueryDelay      time.Duration
	TextSuppression string
	SafeSearch      string
	ImageSize       string
	WikiFallback    bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxCandidates:   constants.SearchConfig.MaxCandidates,
		MaxQueries:      constants.SearchConfig.MaxQueries,
		ResultsPerQuery: constants.SearchConfig.ResultsPerQuery,
		QueryDelay:      constants.RateLimit.BetweenSearchQueries,
		TextSuppression: constants.SearchConfig.TextSuppression,
		SafeSearch:      constants.SearchConfig.SafeSearch,
		ImageSize:       constants.SearchConfig.DefaultImageSize,
		WikiFallback:    true,
	}
}

// Sleeper pauses between external calls. util.Sleep in production.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine turns a persona into a ranked list of replacement candidates.
type Engine struct {
	searcher  ImageSearcher
	cache     ResultCache
	wiki      *WikiSource
	filters   Filters
	templates QueryTemplates
	cfg       EngineConfig
	sleep     Sleeper
	logger    *zap.Logger
}

type EngineOption func(*Engine)

func WithCache(c ResultCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

func WithWiki(w *WikiSource) EngineOption {
	return func(e *Engine) { e.wiki = w }
}

func WithFilters(f Filters) EngineOption {
	return func(e *Engine) { e.filters = f }
}

func WithTemplates(t QueryTemplates) EngineOption {
	return func(e *Engine) { e.templates = t }
}

func WithSleeper(s Sleeper) EngineOption {
	return func(e *Engine) { e.sleep = s }
}

func NewEngine(searcher ImageSearcher, cfg EngineConfig, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		searcher:  searcher,
		filters:   DefaultFilters(),
		templates: DefaultQueryTemplates(),
		cfg:       cfg,
		sleep:     util.Sleep,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs the type-specific queries for req and returns admitted
// candidates sorted by descending priority, deduplicated by URL and capped at
// MaxCandidates. When the search quota runs out it stops issuing queries and
// returns what it collected together with the *errors.QuotaExceededError.
func (e *Engine) Search(ctx context.Context, req Request) ([]domain.AvatarCandidate, error) {
	queries := e.templates.BuildQueries(req, e.cfg.MaxQueries)
	imageType := ImageTypeFor(req.Type)

	candidates := make([]domain.AvatarCandidate, 0, e.cfg.MaxCandidates)
	seen := make(map[string]bool)
	var quotaErr error
	calledRemote := false

	for _, query := range queries {
		if e.cfg.MaxCandidates > 0 && len(candidates) >= e.cfg.MaxCandidates {
			break
		}

		iq := ImageQuery{
			Query:     strings.TrimSpace(query + " " + e.cfg.TextSuppression),
			ImageType: imageType,
			ImageSize: e.cfg.ImageSize,
			Safe:      e.cfg.SafeSearch,
			Count:     e.cfg.ResultsPerQuery,
		}

		hits, fromCache, err := e.lookup(ctx, iq, calledRemote)
		if !fromCache {
			calledRemote = true
		}
		if err != nil {
			if errors.IsQuota(err) {
				e.logger.Warn("Search quota exhausted, keeping collected candidates",
					zap.String("persona", req.Name),
					zap.Int("collected", len(candidates)),
				)
				quotaErr = err
				break
			}
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				return sortCandidates(candidates), err
			}
			e.logger.Warn("Search query failed", zap.String("query", query), zap.Error(err))
			continue
		}

		for _, hit := range hits {
			if seen[hit.Link] {
				continue
			}
			if reason := e.filters.Rejection(hit); reason != "" {
				e.logger.Debug("Search result rejected",
					zap.String("url", util.TruncateString(hit.Link, 120)),
					zap.String("reason", reason),
				)
				continue
			}
			seen[hit.Link] = true
			candidates = append(candidates, domain.AvatarCandidate{
				URL:      hit.Link,
				Query:    query,
				Title:    hit.Title,
				Priority: e.filters.Score(hit),
				Source:   domain.SourceImageSearch,
			})
			if e.cfg.MaxCandidates > 0 && len(candidates) >= e.cfg.MaxCandidates {
				break
			}
		}
	}

	if len(candidates) == 0 && e.wikiApplies(req.Type) {
		wikiCandidate, err := e.wiki.Candidate(ctx, req.Name, e.filters)
		if err != nil {
			e.logger.Warn("Wiki fallback failed", zap.String("persona", req.Name), zap.Error(err))
		} else if wikiCandidate != nil {
			candidates = append(candidates, *wikiCandidate)
		}
	}

	e.logger.Info("Candidate search finished",
		zap.String("persona", req.Name),
		zap.String("type", req.Type.String()),
		zap.Int("queries", len(queries)),
		zap.Int("candidates", len(candidates)),
		zap.Bool("quota_exhausted", quotaErr != nil),
	)

	return sortCandidates(candidates), quotaErr
}

// lookup serves a query from the cache or the searcher. Remote calls after the
// first are preceded by the configured delay; cache hits never wait.
func (e *Engine) lookup(ctx context.Context, q ImageQuery, delay bool) ([]SearchHit, bool, error) {
	key := CacheKey(q)
	if e.cache != nil {
		if hits, ok := e.cache.Get(ctx, key); ok {
			e.logger.Debug("Search cache hit", zap.String("query", q.Query))
			return hits, true, nil
		}
	}

	if delay && e.cfg.QueryDelay > 0 {
		if err := e.sleep(ctx, e.cfg.QueryDelay); err != nil {
			return nil, false, err
		}
	}

	hits, err := e.searcher.SearchImages(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, hits)
	}
	return hits, false, nil
}

func (e *Engine) wikiApplies(t domain.PersonaType) bool {
	if !e.cfg.WikiFallback || e.wiki == nil {
		return false
	}
	switch t {
	case domain.PersonaHistorical, domain.PersonaMythological, domain.PersonaFictional:
		return true
	default:
		return false
	}
}

func sortCandidates(candidates []domain.AvatarCandidate) []domain.AvatarCandidate {
	slices.SortStableFunc(candidates, func(a, b domain.AvatarCandidate) int {
		return b.Priority - a.Priority
	})
	return candidates
}
