// Package gateway fetches quotes, candles, symbol search and company profiles
// from the upstream REST provider. Every call is cache-first: a valid entry is
// returned without touching the rate limiter or the network, which gives an
// at-most-one-fetch-per-TTL-window guarantee per canonical request key.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pricefeed_backend/models"
	"pricefeed_backend/services/cache"
	"pricefeed_backend/services/ratelimit"

	"github.com/shopspring/decimal"
)

// DefaultRequestTimeout bounds every upstream network call.
const DefaultRequestTimeout = 10 * time.Second

// TTLConfig holds the cache TTL per endpoint class.
type TTLConfig struct {
	Quote   time.Duration // realtime quotes, short
	Candle  time.Duration // historical candles
	Search  time.Duration // symbol search, static
	Profile time.Duration // company profiles, static
}

// DefaultTTL returns the per-class TTLs used when config leaves them unset.
func DefaultTTL() TTLConfig {
	return TTLConfig{
		Quote:   60 * time.Second,
		Candle:  5 * time.Minute,
		Search:  30 * time.Minute,
		Profile: 60 * time.Minute,
	}
}

// Config configures a Gateway instance.
type Config struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	TTL            TTLConfig
}

// Gateway is the single entry point to the upstream provider. It owns no
// global state; multiple isolated instances can coexist (e.g. in tests).
type Gateway struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	ttl        TTLConfig
}

// New creates a gateway. Missing credentials fail fast with a ConfigError.
func New(cfg Config, store *cache.Cache, limiter *ratelimit.Limiter) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "api key"}
	}
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Field: "base URL"}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ttl := cfg.TTL
	def := DefaultTTL()
	if ttl.Quote <= 0 {
		ttl.Quote = def.Quote
	}
	if ttl.Candle <= 0 {
		ttl.Candle = def.Candle
	}
	if ttl.Search <= 0 {
		ttl.Search = def.Search
	}
	if ttl.Profile <= 0 {
		ttl.Profile = def.Profile
	}

	return &Gateway{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cache:      store,
		limiter:    limiter,
		ttl:        ttl,
	}, nil
}

// cacheKey builds the deterministic key for an endpoint and its params.
// url.Values.Encode sorts by key, so identical param sets always collide.
func cacheKey(endpoint string, params url.Values) string {
	return endpoint + "?" + params.Encode()
}

// fetch returns the raw response body for an endpoint, consulting the cache
// first and recording the result under the request key on success. Errors are
// never cached.
func (g *Gateway) fetch(ctx context.Context, endpoint string, params url.Values, ttl time.Duration) ([]byte, error) {
	key := cacheKey(endpoint, params)
	if cached, ok := g.cache.Get(key); ok {
		return cached.([]byte), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("token", g.apiKey)

	reqURL := g.baseURL + endpoint + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Upstream error: endpoint=%s status=%d body=%s", endpoint, resp.StatusCode, string(body))
		return nil, &GatewayError{Status: resp.StatusCode, Message: string(body)}
	}

	g.cache.Set(key, body, ttl)
	return body, nil
}

// quoteResponse mirrors the provider's quote payload.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote fetches the current quote for a symbol.
func (g *Gateway) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := g.fetch(ctx, "/quote", params, g.ttl.Quote)
	if err != nil {
		return nil, err
	}

	var raw quoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         raw.Current,
		Change:        round2(raw.Change),
		ChangePercent: round2(raw.ChangePercent),
		High:          raw.High,
		Low:           raw.Low,
		Open:          raw.Open,
		PrevClose:     raw.PrevClose,
		Timestamp:     raw.Timestamp,
	}, nil
}

// round2 rounds to two decimal places without the float drift of naive
// multiply-divide rounding.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// candleResponse mirrors the provider's column-oriented candle payload.
type candleResponse struct {
	Status  string    `json:"s"`
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
}

// Candles fetches an OHLCV series for a symbol between from and to (unix
// seconds) at the given resolution (e.g. "D", "60", "5").
func (g *Gateway) Candles(ctx context.Context, symbol, resolution string, from, to int64) ([]models.OHLCVPoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from, 10))
	params.Set("to", strconv.FormatInt(to, 10))

	body, err := g.fetch(ctx, "/stock/candle", params, g.ttl.Candle)
	if err != nil {
		return nil, err
	}

	var raw candleResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse candle response: %w", err)
	}
	if raw.Status == "no_data" {
		return []models.OHLCVPoint{}, nil
	}

	n := len(raw.Times)
	points := make([]models.OHLCVPoint, 0, n)
	for i := 0; i < n; i++ {
		p := models.OHLCVPoint{Time: raw.Times[i]}
		if i < len(raw.Opens) {
			p.Open = raw.Opens[i]
		}
		if i < len(raw.Highs) {
			p.High = raw.Highs[i]
		}
		if i < len(raw.Lows) {
			p.Low = raw.Lows[i]
		}
		if i < len(raw.Closes) {
			p.Close = raw.Closes[i]
		}
		if i < len(raw.Volumes) {
			p.Volume = raw.Volumes[i]
		}
		points = append(points, p)
	}
	return points, nil
}

// searchResponse mirrors the provider's symbol-search payload.
type searchResponse struct {
	Count  int `json:"count"`
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

// SearchSymbols looks up symbols matching a free-text query. Empty or
// whitespace queries short-circuit to an empty result without consulting the
// cache or the network.
func (g *Gateway) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SymbolMatch{}, nil
	}

	params := url.Values{}
	params.Set("q", query)

	body, err := g.fetch(ctx, "/search", params, g.ttl.Search)
	if err != nil {
		return nil, err
	}

	var raw searchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	matches := make([]models.SymbolMatch, 0, len(raw.Result))
	for _, r := range raw.Result {
		matches = append(matches, models.SymbolMatch{
			Symbol:      r.Symbol,
			Description: r.Description,
			Type:        r.Type,
		})
	}
	return matches, nil
}

// profileResponse mirrors the provider's company profile payload.
type profileResponse struct {
	Name              string  `json:"name"`
	Ticker            string  `json:"ticker"`
	Exchange          string  `json:"exchange"`
	Industry          string  `json:"finnhubIndustry"`
	Currency          string  `json:"currency"`
	MarketCap         float64 `json:"marketCapitalization"`
	SharesOutstanding float64 `json:"shareOutstanding"`
	IPO               string  `json:"ipo"`
	WebURL            string  `json:"weburl"`
	Logo              string  `json:"logo"`
}

// CompanyProfile fetches static company data for a symbol.
func (g *Gateway) CompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := g.fetch(ctx, "/stock/profile2", params, g.ttl.Profile)
	if err != nil {
		return nil, err
	}

	var raw profileResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	return &models.CompanyProfile{
		Symbol:            symbol,
		Name:              raw.Name,
		Exchange:          raw.Exchange,
		Industry:          raw.Industry,
		Currency:          raw.Currency,
		MarketCap:         raw.MarketCap,
		SharesOutstanding: raw.SharesOutstanding,
		IPODate:           raw.IPO,
		WebURL:            raw.WebURL,
		Logo:              raw.Logo,
	}, nil
}
