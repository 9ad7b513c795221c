package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricefeed_backend/services/cache"
	"pricefeed_backend/services/gateway"
	"pricefeed_backend/services/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newMarketRouter wires the market routes against an httptest upstream.
func newMarketRouter(t *testing.T, handler http.HandlerFunc) *gin.Engine {
	t.Helper()

	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	gw, err := gateway.New(gateway.Config{
		APIKey:  "test-key",
		BaseURL: upstream.URL,
	}, cache.New(), ratelimit.NewLimiter(1000, time.Minute))
	require.NoError(t, err)

	mc := NewMarketController(gw)
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/quote/:symbol", mc.GetQuote)
	v1.GET("/candles/:symbol", mc.GetCandles)
	v1.GET("/indicators/:symbol", mc.GetIndicator)
	v1.GET("/search", mc.SearchSymbols)
	v1.GET("/profile/:symbol", mc.GetProfile)
	return router
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestGetQuote(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":150.25,"d":1.5,"dp":1.0,"h":151,"l":149,"o":149.5,"pc":148.75,"t":1700000000}`))
	})

	w := doGet(router, "/api/v1/quote/aapl")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, 150.25, body["price"])
}

func TestGetQuote_UpstreamFailureMapsToBadGateway(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"API limit reached"}`))
	})

	w := doGet(router, "/api/v1/quote/AAPL")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "API limit reached")
}

func TestGetCandles_InvalidRange(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for an invalid range")
	})

	w := doGet(router, "/api/v1/candles/AAPL?from=2000&to=1000")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIndicator(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		// Five daily candles with closes 1..5.
		w.Write([]byte(`{"s":"ok","t":[1,2,3,4,5],"o":[1,2,3,4,5],"h":[1,2,3,4,5],"l":[1,2,3,4,5],"c":[1,2,3,4,5],"v":[1,1,1,1,1]}`))
	})

	w := doGet(router, "/api/v1/indicators/AAPL?type=sma&period=3")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Symbol string `json:"symbol"`
		Type   string `json:"type"`
		Series []struct {
			Time  int64   `json:"time"`
			Value float64 `json:"value"`
		} `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Equal(t, "sma", body.Type)
	require.Len(t, body.Series, 3)
	assert.Equal(t, 2.0, body.Series[0].Value)
	assert.Equal(t, 4.0, body.Series[2].Value)
}

func TestGetIndicator_InvalidParamsRejectedBeforeFetch(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for invalid indicator params")
	})

	w := doGet(router, "/api/v1/indicators/AAPL?type=rsi&period=1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "period")

	w = doGet(router, "/api/v1/indicators/AAPL?type=macd&fast_period=26&slow_period=12")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doGet(router, "/api/v1/indicators/AAPL?type=unknown")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchSymbols_BlankQuery(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for a blank query")
	})

	w := doGet(router, "/api/v1/search?q=%20%20")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Result []interface{} `json:"result"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Result)
	assert.Zero(t, body.Count)
}

func TestGetProfile(t *testing.T) {
	router := newMarketRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Apple Inc","ticker":"AAPL","exchange":"NASDAQ","finnhubIndustry":"Technology","currency":"USD"}`))
	})

	w := doGet(router, "/api/v1/profile/aapl")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Apple Inc", body["name"])
	assert.Equal(t, "AAPL", body["symbol"])
}
