package models

import "time"

// Update sources for PriceUpdate events.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// OHLCVPoint is a single candle in a historical price series.
// Series are ordered by Time ascending with unique timestamps and are
// immutable once produced.
type OHLCVPoint struct {
	Time   int64   `json:"time"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Quote is a normalized realtime quote from the upstream provider.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PrevClose     float64 `json:"prev_close"`
	Volume        float64 `json:"volume"`
	Timestamp     int64   `json:"timestamp"` // unix seconds
}

// PriceUpdate is an ephemeral price event delivered to stream subscribers.
// It is a snapshot, not a delta; consumers that need strict ordering should
// key on Timestamp and discard updates older than the last one delivered.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
	Source        string  `json:"source"` // push or poll
}

// SymbolMatch is a single symbol-search result.
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// CompanyProfile holds static company data (long-TTL endpoint class).
type CompanyProfile struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Exchange          string  `json:"exchange"`
	Industry          string  `json:"industry"`
	Currency          string  `json:"currency"`
	MarketCap         float64 `json:"market_cap"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	IPODate           string  `json:"ipo_date"`
	WebURL            string  `json:"web_url"`
	Logo              string  `json:"logo"`
}

// QuoteFromUpdate converts a PriceUpdate back to its quote fields for clients
// that only track last values.
func QuoteFromUpdate(u PriceUpdate) Quote {
	return Quote{
		Symbol:        u.Symbol,
		Price:         u.Price,
		Change:        u.Change,
		ChangePercent: u.ChangePercent,
		Volume:        u.Volume,
		Timestamp:     u.Timestamp,
	}
}

// UpdateFromQuote builds a PriceUpdate event from a quote and a source tag.
func UpdateFromQuote(q *Quote, source string) PriceUpdate {
	ts := q.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return PriceUpdate{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Timestamp:     ts,
		Source:        source,
	}
}
