package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moonbotlabs/moonbot/internal/config"
	"github.com/moonbotlabs/moonbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Trading.Asset = "MOON"
	cfg.Oracle.BaseURL = "http://oracle.local"
	cfg.Dex.BaseURL = "http://dex.local"
	cfg.Store.Path = filepath.Join(t.TempDir(), "positions.json")
	return &cfg
}

func TestRunRejectsTradeModeWithTradingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "trade"
	cfg.Trading.Enabled = false

	a := New(cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "turbo"

	a := New(cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}
