package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/callbot/internal/adapters/storage"
	"github.com/alejandrodnm/callbot/internal/domain"
	"github.com/alejandrodnm/callbot/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func insertCoin(t *testing.T, db *storage.SQLiteStorage, name, symbol, cmcID string) domain.Coin {
	t.Helper()
	c, err := db.InsertCoin(context.Background(), domain.Coin{Name: name, Symbol: symbol, CatalogID: cmcID})
	require.NoError(t, err)
	require.NotZero(t, c.ID)
	return c
}

func openCall(t *testing.T, db *storage.SQLiteStorage, coin domain.Coin, caller string, btc, usd decimal.NullDecimal) domain.Call {
	t.Helper()
	c, err := db.InsertCall(context.Background(), domain.Call{
		Coin:       coin,
		ChannelID:  "chan-1",
		CallerID:   caller,
		CallerName: "user-" + caller,
		Start:      domain.Quote{BTC: btc, USD: usd},
		MadeAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return c
}

func closeCall(t *testing.T, db *storage.SQLiteStorage, call domain.Call, btc, usd decimal.NullDecimal) domain.Call {
	t.Helper()
	require.NoError(t, call.Close(domain.Quote{BTC: btc, USD: usd}, time.Now()))
	require.NoError(t, db.SaveClose(context.Background(), call))
	return call
}

func TestSQLiteStorage_CoinLookups(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	btc := insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")
	btcx := insertCoin(t, db, "Bitcoin X", "BTCX", "bitcoin-x")
	insertCoin(t, db, "Ethereum", "ETH", "ethereum")

	got, ok, err := db.CoinByName(ctx, "Bitcoin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, btc, got)

	got, ok, err = db.CoinByCatalogID(ctx, "bitcoin-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, btcx, got)

	_, ok, err = db.CoinByName(ctx, "Dogecoin")
	require.NoError(t, err)
	assert.False(t, ok)

	exact, err := db.CoinsBySymbol(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, []domain.Coin{btc}, exact)

	prefix, err := db.CoinsBySymbolPrefix(ctx, "bt")
	require.NoError(t, err)
	assert.Equal(t, []domain.Coin{btc, btcx}, prefix)

	byName, err := db.CoinsByNameOrCatalogID(ctx, "coin x")
	require.NoError(t, err)
	assert.Equal(t, []domain.Coin{btcx}, byName)

	byID, err := db.CoinsByNameOrCatalogID(ctx, "ether")
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "ETH", byID[0].Symbol)

	n, err := db.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteStorage_LikeWildcardsAreLiteral(t *testing.T) {
	db := newDB(t)
	insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")

	coins, err := db.CoinsBySymbolPrefix(context.Background(), "%")
	require.NoError(t, err)
	assert.Empty(t, coins)

	coins, err = db.CoinsByNameOrCatalogID(context.Background(), "_")
	require.NoError(t, err)
	assert.Empty(t, coins)
}

func TestSQLiteStorage_DuplicateCatalogID(t *testing.T) {
	db := newDB(t)
	insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")

	_, err := db.InsertCoin(context.Background(), domain.Coin{Name: "Other", Symbol: "OTH", CatalogID: "bitcoin"})
	assert.Error(t, err)
}

func TestSQLiteStorage_CallLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	coin := insertCoin(t, db, "VeChain", "VEN", "vechain")

	call := openCall(t, db, coin, "u1", nd("0.0002"), nd("0.8"))

	got, ok, err := db.OpenCallFor(ctx, coin.ID, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, call.ID, got.ID)
	assert.Equal(t, coin, got.Coin)
	assert.Equal(t, "user-u1", got.CallerName)
	assert.False(t, got.Closed)
	assert.Nil(t, got.ClosedAt)
	assert.InDelta(t, 0.0002, got.Start.BTC.Decimal.InexactFloat64(), 1e-12)
	assert.InDelta(t, 0.8, got.Start.USD.Decimal.InexactFloat64(), 1e-9)
	assert.False(t, got.Final.BTC.Valid)

	closeCall(t, db, got, nd("0.0003"), nd("0.4"))

	_, ok, err = db.OpenCallFor(ctx, coin.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, ok, err := db.CallByID(ctx, call.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Closed)
	require.NotNil(t, stored.ClosedAt)
	assert.InDelta(t, 50.0, stored.ChangeBTC.Decimal.InexactFloat64(), 1e-6)
	assert.InDelta(t, -50.0, stored.ChangeUSD.Decimal.InexactFloat64(), 1e-6)

	// cerrar dos veces no vuelve a escribir
	err = db.SaveClose(ctx, stored)
	assert.ErrorIs(t, err, domain.ErrNoOpenCall)

	// tras cerrar se puede abrir otro call sobre la misma moneda
	openCall(t, db, coin, "u1", nd("0.0003"), nd("0.4"))
}

func TestSQLiteStorage_OneOpenCallPerCoinAndCaller(t *testing.T) {
	db := newDB(t)
	coin := insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")
	openCall(t, db, coin, "u1", nd("1"), nd("4000"))

	_, err := db.InsertCall(context.Background(), domain.Call{
		Coin: coin, ChannelID: "c", CallerID: "u1", MadeAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyOpen)

	// otro caller sí puede
	openCall(t, db, coin, "u2", nd("1"), nd("4000"))
}

func TestSQLiteStorage_NullStartPrices(t *testing.T) {
	db := newDB(t)
	coin := insertCoin(t, db, "Ghost", "GHST", "ghostcoin")
	call := openCall(t, db, coin, "u1", decimal.NullDecimal{}, decimal.NullDecimal{})

	got, ok, err := db.CallByID(context.Background(), call.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Start.BTC.Valid)
	assert.False(t, got.Start.USD.Valid)

	closed := closeCall(t, db, got, nd("1"), nd("1"))
	assert.False(t, closed.ChangeBTC.Valid)

	got, _, err = db.CallByID(context.Background(), call.ID)
	require.NoError(t, err)
	assert.False(t, got.ChangeBTC.Valid)
}

func TestSQLiteStorage_ListCalls(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	btc := insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")
	eth := insertCoin(t, db, "Ethereum", "ETH", "ethereum")

	c1 := openCall(t, db, btc, "u1", nd("1"), nd("4000"))
	c2 := openCall(t, db, eth, "u1", nd("0.07"), nd("300"))
	c3 := openCall(t, db, eth, "u2", nd("0.07"), nd("300"))
	closeCall(t, db, c2, nd("0.08"), nd("320"))

	open, err := db.ListCalls(ctx, domain.CallFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, c1.ID, open[0].ID)
	assert.Equal(t, c3.ID, open[1].ID)

	mine, err := db.ListCalls(ctx, domain.CallFilter{CallerID: "u1"}, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c1.ID, mine[0].ID)

	closed, err := db.ListCalls(ctx, domain.CallFilter{CallerID: "u1", Closed: true}, 0)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, c2.ID, closed[0].ID)

	byCoin, err := db.ListCalls(ctx, domain.CallFilter{CoinID: eth.ID}, 0)
	require.NoError(t, err)
	require.Len(t, byCoin, 1)
	assert.Equal(t, c3.ID, byCoin[0].ID)

	limited, err := db.ListCalls(ctx, domain.CallFilter{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStorage_BestClosed(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	coins := []domain.Coin{
		insertCoin(t, db, "A", "A", "a"),
		insertCoin(t, db, "B", "B", "b"),
		insertCoin(t, db, "C", "C", "c"),
		insertCoin(t, db, "D", "D", "d"),
	}

	// +10%, -5%, +20%, indefinido
	a := openCall(t, db, coins[0], "u1", nd("1"), nd("1"))
	b := openCall(t, db, coins[1], "u1", nd("1"), nd("1"))
	c := openCall(t, db, coins[2], "u1", nd("1"), nd("1"))
	d := openCall(t, db, coins[3], "u1", decimal.NullDecimal{}, nd("1"))
	closeCall(t, db, a, nd("1.1"), nd("1"))
	closeCall(t, db, b, nd("0.95"), nd("1"))
	closeCall(t, db, c, nd("1.2"), nd("1"))
	closeCall(t, db, d, nd("2"), nd("1"))

	best, err := db.BestClosed(ctx, "u1", domain.UnitBTC, 0)
	require.NoError(t, err)
	require.Len(t, best, 4)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID, d.ID},
		[]int64{best[0].ID, best[1].ID, best[2].ID, best[3].ID})

	top, err := db.BestClosed(ctx, "", domain.UnitBTC, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	other, err := db.BestClosed(ctx, "u2", domain.UnitBTC, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStorage_LastOpenAndCallerByName(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	btc := insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")
	eth := insertCoin(t, db, "Ethereum", "ETH", "ethereum")

	_, ok, err := db.LastOpen(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	openCall(t, db, btc, "u1", nd("1"), nd("1"))
	second := openCall(t, db, eth, "u1", nd("1"), nd("1"))
	third := openCall(t, db, btc, "u2", nd("1"), nd("1"))

	last, ok, err := db.LastOpen(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, last.ID)

	last, ok, err = db.LastOpen(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, third.ID, last.ID)

	id, ok, err := db.CallerByName(ctx, "USER-U2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u2", id)

	_, ok, err = db.CallerByName(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStorage_InTx(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx ports.Tx) error {
		_, err := tx.InsertCoin(ctx, domain.Coin{Name: "Bitcoin", Symbol: "BTC", CatalogID: "bitcoin"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rollback descarta el insert")

	err = db.InTx(ctx, func(tx ports.Tx) error {
		_, err := tx.InsertCoin(ctx, domain.Coin{Name: "Bitcoin", Symbol: "BTC", CatalogID: "bitcoin"})
		return err
	})
	require.NoError(t, err)

	n, err = db.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStorage_Reset(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	coin := insertCoin(t, db, "Bitcoin", "BTC", "bitcoin")
	openCall(t, db, coin, "u1", nd("1"), nd("1"))

	require.NoError(t, db.Reset(ctx))

	n, err := db.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	calls, err := db.ListCalls(ctx, domain.CallFilter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, calls)
}
