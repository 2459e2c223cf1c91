package primedex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// ExecClientConfig holds the execution API endpoint and the order parameters
// passed through on every submission.
type ExecClientConfig struct {
	BaseURL     string
	FeeHint     int64
	SlippageBps int
	Timeout     time.Duration
}

// ExecClient is the REST client for the execution API (order placement).
type ExecClient struct {
	baseURL     string
	feeHint     int64
	slippageBps int
	httpClient  *http.Client
}

// NewExecClient creates an execution client for the given endpoint.
func NewExecClient(cfg ExecClientConfig) *ExecClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ExecClient{
		baseURL:     cfg.BaseURL,
		feeHint:     cfg.FeeHint,
		slippageBps: cfg.SlippageBps,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Buy submits a buy order for amount of base currency and returns the fill.
func (c *ExecClient) Buy(ctx context.Context, asset string, amount float64) (domain.Fill, error) {
	payload := apiBuyRequest{
		Asset:         asset,
		Amount:        amount,
		FeeHint:       c.feeHint,
		SlippageBps:   c.slippageBps,
		ClientOrderID: uuid.New().String(),
	}

	body, err := doPost(ctx, c.httpClient, c.baseURL+"/buy", payload)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("primedex: buy %s: %w", asset, err)
	}

	var resp apiBuyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("primedex: decode buy response: %w", err)
	}
	if resp.Status != statusSuccess {
		return domain.Fill{}, fmt.Errorf("primedex: buy %s rejected: status=%s error=%s", asset, resp.Status, resp.Error)
	}
	if resp.Tokens <= 0 || resp.ExecutionPrice <= 0 {
		return domain.Fill{}, fmt.Errorf("primedex: buy %s returned invalid fill: tokens=%v price=%v", asset, resp.Tokens, resp.ExecutionPrice)
	}

	return domain.Fill{
		UnitsReceived:  resp.Tokens,
		ExecutionPrice: resp.ExecutionPrice,
		TxRef:          resp.TxRef,
	}, nil
}

// Sell submits a sell order for units of the asset and returns the proceeds.
func (c *ExecClient) Sell(ctx context.Context, asset string, units float64) (domain.SellReceipt, error) {
	payload := apiSellRequest{
		Asset:         asset,
		Amount:        units,
		FeeHint:       c.feeHint,
		SlippageBps:   c.slippageBps,
		ClientOrderID: uuid.New().String(),
	}

	body, err := doPost(ctx, c.httpClient, c.baseURL+"/sell", payload)
	if err != nil {
		return domain.SellReceipt{}, fmt.Errorf("primedex: sell %s: %w", asset, err)
	}

	var resp apiSellResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SellReceipt{}, fmt.Errorf("primedex: decode sell response: %w", err)
	}
	if resp.Status != statusSuccess {
		return domain.SellReceipt{}, fmt.Errorf("primedex: sell %s rejected: status=%s error=%s", asset, resp.Status, resp.Error)
	}

	return domain.SellReceipt{
		Proceeds: resp.Proceeds,
		TxRef:    resp.TxRef,
	}, nil
}

// Compile-time interface check.
var _ domain.ExecutionClient = (*ExecClient)(nil)
