package records

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Requester performs authenticated calls against the record store API.
type Requester interface {
	DoRequest(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error)
}

type ClientConfig struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// Client talks to the record store with bearer auth, retries with exponential
// backoff, and a circuit breaker shared across calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        ClientConfig
	breaker    *util.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.NewConfigurationError("record store base URL is required", "RECORDS_API_URL")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.NewConfigurationError("record store token is required", "RECORDS_API_TOKEN")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.APIConfig.RecordsTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = constants.RetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = constants.RetryConfig.BaseDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cfg:        cfg,
		breaker: util.NewCircuitBreaker("records",
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		),
		logger: logger,
	}, nil
}

func (c *Client) DoRequest(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	if !c.breaker.CanExecute() {
		retryAfter := c.breaker.RetryAfter()
		c.logger.Warn("Record store circuit breaker is open", zap.Duration("retry_after", retryAfter))
		return nil, errors.NewTransportError("record store circuit breaker open", reqURL, http.StatusServiceUnavailable, nil)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.computeDelay(attempt - 1)
			c.logger.Warn("Record store request failed, retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := util.Sleep(ctx, delay); err != nil {
				return nil, errors.NewTransportError("record store request cancelled", reqURL, 0, err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", constants.APIConfig.UserAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			lastErr = errors.NewTransportError("record store request failed", reqURL, 0, err)
			if !c.breaker.CanExecute() {
				break
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			lastErr = errors.NewTransportError("failed to read record store response", reqURL, resp.StatusCode, readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.NewTransportError("record store rate limited", reqURL, resp.StatusCode, nil)
			continue
		case resp.StatusCode >= 500:
			c.breaker.RecordFailure()
			lastErr = errors.NewTransportError(fmt.Sprintf("record store server error: %d", resp.StatusCode), reqURL, resp.StatusCode, nil)
			if !c.breaker.CanExecute() {
				return nil, lastErr
			}
			continue
		case resp.StatusCode >= 400:
			c.breaker.RecordSuccess()
			return nil, errors.NewTransportError(
				fmt.Sprintf("record store client error: %d: %s", resp.StatusCode, util.TruncateString(string(respBody), 200)),
				reqURL, resp.StatusCode, nil)
		}

		c.breaker.RecordSuccess()
		return respBody, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.NewTransportError("record store request failed", reqURL, 0, nil)
}

func (c *Client) computeDelay(attempt int) time.Duration {
	base := c.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if c.cfg.Jitter <= 0 {
		return base
	}
	jitter := time.Duration(rand.Float64() * float64(c.cfg.Jitter))
	return base + jitter
}
