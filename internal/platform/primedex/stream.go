package primedex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10

	streamReconnectDelay    = 2 * time.Second
	streamMaxReconnectDelay = 60 * time.Second
)

// QuoteHandler receives streamed quotes.
type QuoteHandler func(ctx context.Context, asset string, price float64, ts time.Time)

// streamQuote is a single message on the oracle quote stream.
type streamQuote struct {
	Asset      string  `json:"asset"`
	PriceQuote float64 `json:"price_quote"`
}

// streamSubscribe is the subscription command sent after connecting.
type streamSubscribe struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
}

// QuoteStream subscribes to the oracle's WebSocket quote feed and forwards
// quotes to a handler. It is a warm-cache optimization only: position
// decisions always key off the polled quote, so the stream may drop, lag, or
// be disabled entirely without affecting correctness.
type QuoteStream struct {
	wsURL   string
	assets  []string
	handler QuoteHandler
	logger  *slog.Logger
}

// NewQuoteStream creates a stream client for the given endpoint and assets.
func NewQuoteStream(wsURL string, assets []string, handler QuoteHandler, logger *slog.Logger) *QuoteStream {
	return &QuoteStream{
		wsURL:   wsURL,
		assets:  assets,
		handler: handler,
		logger:  logger.With(slog.String("component", "quote_stream")),
	}
}

// Run connects and consumes the feed until ctx is cancelled, reconnecting
// with capped exponential backoff on any connection failure.
func (s *QuoteStream) Run(ctx context.Context) error {
	delay := streamReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > streamMaxReconnectDelay {
			delay = streamMaxReconnectDelay
		}
	}
}

// consume dials, subscribes, and reads quotes until the connection breaks.
func (s *QuoteStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("primedex: stream connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	sub := streamSubscribe{Type: "subscribe", Assets: s.assets}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("primedex: stream subscribe: %w", err)
	}

	// Close the connection when ctx ends so ReadMessage unblocks, and keep
	// the peer alive with pings.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingDone:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	s.logger.Info("stream connected", slog.Int("assets", len(s.assets)))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("primedex: stream read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var q streamQuote
		if err := json.Unmarshal(raw, &q); err != nil {
			s.logger.Warn("stream message malformed, skipping",
				slog.String("error", err.Error()),
			)
			continue
		}
		if q.Asset == "" || q.PriceQuote <= 0 {
			continue
		}

		s.handler(ctx, q.Asset, q.PriceQuote, time.Now().UTC())
	}
}
