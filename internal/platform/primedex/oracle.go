package primedex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/retry"
)

// OracleClientConfig holds the price oracle endpoint and retry schedule.
type OracleClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OracleClient fetches quotes from the price oracle with a bounded fixed-delay
// retry. Exhaustion yields domain.ErrPriceUnavailable; the error never
// propagates past the caller's skip-and-continue handling.
type OracleClient struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	sleeper    retry.Sleeper
	logger     *slog.Logger
}

// NewOracleClient creates an oracle client. Unset retry fields fall back to
// 3 attempts, 2 seconds apart.
func NewOracleClient(cfg OracleClientConfig, logger *slog.Logger) *OracleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &OracleClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Policy{MaxAttempts: attempts, BaseDelay: delay},
		sleeper:    retry.RealSleeper{},
		logger:     logger.With(slog.String("component", "oracle")),
	}
}

// SetSleeper replaces the inter-attempt sleeper. Tests use this to run the
// retry schedule without real delays.
func (c *OracleClient) SetSleeper(s retry.Sleeper) {
	c.sleeper = s
}

// FetchPrice returns the latest quote for asset. It retries transient
// failures on the configured schedule and wraps domain.ErrPriceUnavailable
// once attempts are exhausted.
func (c *OracleClient) FetchPrice(ctx context.Context, asset string) (float64, error) {
	var price float64

	err := retry.Do(ctx, c.policy, c.sleeper, func(ctx context.Context) error {
		body, err := doGet(ctx, c.httpClient, c.baseURL+"/quote/"+url.PathEscape(asset))
		if err != nil {
			c.logger.Warn("quote fetch failed, will retry",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
			return err
		}

		var resp apiQuoteResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode quote: %w", err)
		}
		if resp.PriceQuote <= 0 {
			return fmt.Errorf("non-positive quote %v", resp.PriceQuote)
		}
		price = resp.PriceQuote
		return nil
	})
	if err != nil {
		c.logger.Error("quote fetch exhausted retries",
			slog.String("asset", asset),
			slog.Int("attempts", c.policy.MaxAttempts),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("primedex: quote %s: %w: %v", asset, domain.ErrPriceUnavailable, err)
	}

	return price, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*OracleClient)(nil)
