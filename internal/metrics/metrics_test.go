package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New("memory")
	m.ObserveRequest(http.MethodGet, "GET /api/products", 200, 15*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "GET /api/products", 200, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "GET /api/products", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeMode.WithLabelValues("memory")))
}

func TestCheckoutAndStockCounters(t *testing.T) {
	m := New("postgres")
	m.Checkout(CheckoutPlaced)
	m.Checkout(CheckoutOutOfStock)
	m.Checkout(CheckoutPlaced)
	m.StockAdjusted("restock")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues(CheckoutPlaced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues(CheckoutOutOfStock)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockMoves.WithLabelValues("restock")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("memory")
	m.Checkout(CheckoutPlaced)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `techverse_checkouts_total{outcome="placed"} 1`)
	assert.Contains(t, string(body), `techverse_store_mode{mode="memory"} 1`)
}
