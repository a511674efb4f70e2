package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClient_BaseRate(t *testing.T) {
	t.Run("parses the bid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/json/last/USD-BRL", r.URL.Path)
			w.Write([]byte(`{"USDBRL":{"code":"USD","codein":"BRL","bid":"5.6912"}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		rate, err := c.BaseRate(context.Background())
		assert.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("5.6912")))
	})

	t.Run("rejects a non-positive bid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"USDBRL":{"bid":"0"}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		_, err := c.BaseRate(context.Background())
		assert.ErrorIs(t, err, pkgerrors.ErrRateUnavailable)
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		_, err := c.BaseRate(context.Background())
		assert.ErrorIs(t, err, pkgerrors.ErrRateUnavailable)
		assert.Equal(t, 1, calls)
	})

	t.Run("5xx is retried", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"USDBRL":{"bid":"5.70"}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		rate, err := c.BaseRate(context.Background())
		assert.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("5.70")))
		assert.GreaterOrEqual(t, calls, 3)
	})
}

func TestClient_BTCUSDRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"bitcoin":{"usd":64123.55}}`))
	}))
	defer srv.Close()

	c := NewClient("", srv.URL, time.Second)
	rate, err := c.BTCUSDRate(context.Background())
	assert.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("64123.55")))
}
