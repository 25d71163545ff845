package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/callbot/config"
	"github.com/alejandrodnm/callbot/internal/adapters/coinmarketcap"
	"github.com/alejandrodnm/callbot/internal/adapters/storage"
	"github.com/alejandrodnm/callbot/internal/application/catalog"
	"github.com/alejandrodnm/callbot/internal/application/ticker"
	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncFixture(t *testing.T) (*storage.SQLiteStorage, *catalog.Catalog) {
	t.Helper()
	data, err := os.ReadFile("../../testdata/fixtures/cmc_ticker.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := coinmarketcap.NewClient(coinmarketcap.Config{
		BaseURL: srv.URL, Timeout: time.Second, RatePerSec: 100, Burst: 10,
	})
	prices := ticker.New(client, ticker.Config{TTL: time.Minute})
	return store, catalog.New(store, client, prices)
}

func TestRunLoadCoins(t *testing.T) {
	store, cat := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, runLoadCoins(ctx, store, cat, 2))
	n, err := store.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, runLoadCoins(ctx, store, cat, 0))
	n, err = store.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRunReset(t *testing.T) {
	store, cat := newSyncFixture(t)
	ctx := context.Background()

	coin, err := store.InsertCoin(ctx, domain.Coin{Name: "Local", Symbol: "LOC", CatalogID: "local"})
	require.NoError(t, err)
	_, err = store.InsertCall(ctx, domain.Call{Coin: coin, ChannelID: "c", CallerID: "u", MadeAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, runReset(ctx, store, cat))

	_, ok, err := store.CoinByCatalogID(ctx, "local")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSetupLogger_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "callbot.log")
	closeLog := setupLogger(config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	slog.Debug("hello from test", "k", "v")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello from test"`)
}

func TestSetupLogger_CaseInsensitive(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "callbot.log")
	closeLog := setupLogger(config.LogConfig{Level: "DEBUG", Format: "JSON", File: path, MaxSizeMB: 1})
	slog.Debug("debug record", "k", "v")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug record"`)
}
