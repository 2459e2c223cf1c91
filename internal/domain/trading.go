package domain

import "context"

// Fill is the result of a successful buy submission.
type Fill struct {
	UnitsReceived  float64
	ExecutionPrice float64
	TxRef          string
}

// SellReceipt is the result of a successful sell submission.
type SellReceipt struct {
	Proceeds float64
	TxRef    string
}

// Denomination selects how a sell amount is expressed.
type Denomination string

const (
	// DenomQuote sizes the sell in base-currency amount; the executor
	// converts to units at the live quote.
	DenomQuote Denomination = "quote"
	// DenomUnits sizes the sell directly in held asset units.
	DenomUnits Denomination = "units"
)

// SellRequest describes a sell to execute. Reason is carried through to logs
// and notifications ("take_profit", "stop_loss", "scheduled").
type SellRequest struct {
	Amount       float64
	Denomination Denomination
	Reason       string
}

// ExecutionClient submits orders to the execution API. Failures are generic
// and transient; callers own retry policy.
type ExecutionClient interface {
	Buy(ctx context.Context, asset string, amount float64) (Fill, error)
	Sell(ctx context.Context, asset string, units float64) (SellReceipt, error)
}

// PriceSource fetches the latest quote for an asset. Implementations bound
// their own retries and return ErrPriceUnavailable on exhaustion.
type PriceSource interface {
	FetchPrice(ctx context.Context, asset string) (float64, error)
}

// BalanceSource reports the available base-currency balance for the
// operator's account.
type BalanceSource interface {
	Balance(ctx context.Context, asset string) (float64, error)
}
