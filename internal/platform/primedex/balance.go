package primedex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// BalanceClientConfig holds the balance service endpoint and the account the
// bot trades from.
type BalanceClientConfig struct {
	BaseURL string
	Account string
	Timeout time.Duration
}

// BalanceClient queries the balance service for available funds.
type BalanceClient struct {
	baseURL    string
	account    string
	httpClient *http.Client
}

// NewBalanceClient creates a balance client for the given endpoint/account.
func NewBalanceClient(cfg BalanceClientConfig) *BalanceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &BalanceClient{
		baseURL:    cfg.BaseURL,
		account:    cfg.Account,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Balance returns the available amount of asset in the configured account.
func (c *BalanceClient) Balance(ctx context.Context, asset string) (float64, error) {
	payload := apiBalanceRequest{Account: c.account, Asset: asset}

	body, err := doPost(ctx, c.httpClient, c.baseURL+"/balance", payload)
	if err != nil {
		return 0, fmt.Errorf("primedex: balance %s: %w", asset, err)
	}

	var resp apiBalanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("primedex: decode balance response: %w", err)
	}
	if resp.Status != statusSuccess {
		return 0, fmt.Errorf("primedex: balance %s rejected: status=%s error=%s", asset, resp.Status, resp.Error)
	}

	return resp.Amount, nil
}

// Compile-time interface check.
var _ domain.BalanceSource = (*BalanceClient)(nil)
