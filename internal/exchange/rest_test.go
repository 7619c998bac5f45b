package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
)

func TestGetFillsParsesReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/ex-42/fills", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fills":[
			{"fill_id":"f-1","side":"buy","quantity":"0.5","price":"30000","t":1750000000},
			{"fill_id":"f-2","side":"buy","quantity":"0.5","price":"30010","t":1750000060}
		]}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "key", "secret", time.Second)
	fills, err := c.GetFills(context.Background(), "BTC-USDT", "ex-42")
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, "f-1", fills[0].FillID)
	assert.Equal(t, "ex-42", fills[0].ExchangeID)
	assert.Equal(t, "BTC-USDT", fills[0].Symbol)
	assert.Equal(t, models.Buy, fills[0].Side)
	assert.True(t, fills[0].Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, fills[0].Price.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, time.Unix(1750000000, 0).UTC(), fills[0].Timestamp)
}

func TestGetFillsRejectsMalformedQuantity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fills":[{"fill_id":"f-1","side":"buy","quantity":"oops","price":"1","t":0}]}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "key", "secret", time.Second)
	_, err := c.GetFills(context.Background(), "BTC-USDT", "ex-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "f-1")
}
