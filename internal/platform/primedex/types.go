package primedex

// apiBuyRequest is the wire form of a buy submission. Fee and slippage are
// opaque pass-through parameters for the execution venue; the client order ID
// lets the venue deduplicate resubmissions.
type apiBuyRequest struct {
	Asset         string  `json:"asset"`
	Amount        float64 `json:"amount"`
	FeeHint       int64   `json:"fee_hint"`
	SlippageBps   int     `json:"slippage_bps"`
	ClientOrderID string  `json:"client_order_id"`
}

// apiBuyResponse is the wire form of a buy result.
type apiBuyResponse struct {
	Status         string  `json:"status"`
	Tokens         float64 `json:"tokens"`
	ExecutionPrice float64 `json:"execution_price"`
	TxRef          string  `json:"tx_ref"`
	Error          string  `json:"error"`
}

// apiSellRequest is the wire form of a sell submission.
type apiSellRequest struct {
	Asset         string  `json:"asset"`
	Amount        float64 `json:"amount"`
	FeeHint       int64   `json:"fee_hint"`
	SlippageBps   int     `json:"slippage_bps"`
	ClientOrderID string  `json:"client_order_id"`
}

// apiSellResponse is the wire form of a sell result.
type apiSellResponse struct {
	Status   string  `json:"status"`
	Proceeds float64 `json:"proceeds"`
	TxRef    string  `json:"tx_ref"`
	Error    string  `json:"error"`
}

// apiQuoteResponse is the wire form of a price quote.
type apiQuoteResponse struct {
	PriceQuote float64 `json:"price_quote"`
}

// apiBalanceRequest is the wire form of a balance query.
type apiBalanceRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

// apiBalanceResponse is the wire form of a balance result.
type apiBalanceResponse struct {
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
	Error  string  `json:"error"`
}

const statusSuccess = "success"
