package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricefeed_backend/services/gateway"
	"pricefeed_backend/services/indicators"

	"github.com/gin-gonic/gin"
)

// MarketController handles market data requests
type MarketController struct {
	gateway *gateway.Gateway
}

// NewMarketController creates a new market controller
func NewMarketController(gw *gateway.Gateway) *MarketController {
	return &MarketController{gateway: gw}
}

// upstreamStatus maps a gateway error to the HTTP status returned to clients.
func upstreamStatus(err error) int {
	var gwErr *gateway.GatewayError
	if errors.As(err, &gwErr) && gwErr.Status >= 400 {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// GetQuote returns the current quote for a symbol
// GET /api/v1/quote/:symbol
func (mc *MarketController) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	if strings.TrimSpace(symbol) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	quote, err := mc.gateway.Quote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, quote)
}

// GetCandles returns an OHLCV series for a symbol
// GET /api/v1/candles/:symbol?resolution=D&from=...&to=...
func (mc *MarketController) GetCandles(c *gin.Context) {
	symbol := c.Param("symbol")
	resolution := c.DefaultQuery("resolution", "D")

	now := time.Now().Unix()
	from, _ := strconv.ParseInt(c.DefaultQuery("from", strconv.FormatInt(now-90*86400, 10)), 10, 64)
	to, _ := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(now, 10)), 10, 64)

	if from >= to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time range"})
		return
	}

	candles, err := mc.gateway.Candles(c.Request.Context(), symbol, resolution, from, to)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     strings.ToUpper(symbol),
		"resolution": resolution,
		"candles":    candles,
		"count":      len(candles),
	})
}

// GetIndicator computes a technical indicator over a symbol's candles
// GET /api/v1/indicators/:symbol?type=sma&period=20&...
func (mc *MarketController) GetIndicator(c *gin.Context) {
	symbol := c.Param("symbol")
	indicatorType := strings.ToLower(c.DefaultQuery("type", indicators.TypeSMA))
	resolution := c.DefaultQuery("resolution", "D")

	params := indicators.DefaultParams(indicatorType)
	if v, err := strconv.Atoi(c.Query("period")); err == nil {
		params.Period = v
	}
	if v, err := strconv.Atoi(c.Query("fast_period")); err == nil {
		params.FastPeriod = v
	}
	if v, err := strconv.Atoi(c.Query("slow_period")); err == nil {
		params.SlowPeriod = v
	}
	if v, err := strconv.Atoi(c.Query("signal_period")); err == nil {
		params.SignalPeriod = v
	}
	if v, err := strconv.ParseFloat(c.Query("std_dev"), 64); err == nil {
		params.StdDev = v
	}

	// Reject bad parameters before any upstream fetch.
	if err := indicators.Validate(indicatorType, params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().Unix()
	from, _ := strconv.ParseInt(c.DefaultQuery("from", strconv.FormatInt(now-365*86400, 10)), 10, 64)
	to, _ := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(now, 10)), 10, 64)

	candles, err := mc.gateway.Candles(c.Request.Context(), symbol, resolution, from, to)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	series, err := indicators.Compute(indicatorType, candles, params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": strings.ToUpper(symbol),
		"type":   indicatorType,
		"params": params,
		"series": series,
	})
}

// SearchSymbols searches for symbols matching a query
// GET /api/v1/search?q=...
func (mc *MarketController) SearchSymbols(c *gin.Context) {
	matches, err := mc.gateway.SearchSymbols(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": matches,
		"count":  len(matches),
	})
}

// GetProfile returns the company profile for a symbol
// GET /api/v1/profile/:symbol
func (mc *MarketController) GetProfile(c *gin.Context) {
	symbol := c.Param("symbol")
	if strings.TrimSpace(symbol) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	profile, err := mc.gateway.CompanyProfile(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}
