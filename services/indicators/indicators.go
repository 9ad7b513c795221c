// Package indicators derives technical indicator series from OHLCV data.
// All calculations are pure functions over an ascending, gap-tolerant series:
// no I/O, no mutation of the input. When the input is too short for the
// requested period the result is the empty series, not an error.
package indicators

import (
	"math"

	"pricefeed_backend/models"
)

// IndicatorPoint is a single {time, value} output point.
type IndicatorPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MACDPoint is a composite MACD output point.
type MACDPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerPoint is a composite Bollinger Bands output point.
type BollingerPoint struct {
	Time   int64   `json:"time"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

func closes(data []models.OHLCVPoint) []float64 {
	out := make([]float64, len(data))
	for i, p := range data {
		out[i] = p.Close
	}
	return out
}

// CalculateSMA returns the simple moving average of closes, one output per
// full window. The first valid output sits at input index period-1, so the
// result has max(0, len(data)-period+1) points.
func CalculateSMA(data []models.OHLCVPoint, period int) []IndicatorPoint {
	if period < 1 || len(data) < period {
		return []IndicatorPoint{}
	}

	out := make([]IndicatorPoint, 0, len(data)-period+1)
	sum := 0.0
	for i, p := range data {
		sum += p.Close
		if i >= period {
			sum -= data[i-period].Close
		}
		if i >= period-1 {
			out = append(out, IndicatorPoint{Time: p.Time, Value: sum / float64(period)})
		}
	}
	return out
}

// emaValues computes an EMA series over raw values. The seed is the SMA of
// the first period values; output length is len(values)-period+1, the first
// output corresponding to input index period-1.
func emaValues(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)

	ema := seed
	for _, v := range values[period:] {
		ema = v*alpha + ema*(1-alpha)
		out = append(out, ema)
	}
	return out
}

// CalculateEMA returns the exponential moving average of closes, seeded with
// the SMA of the first period closes. Output length matches CalculateSMA.
func CalculateEMA(data []models.OHLCVPoint, period int) []IndicatorPoint {
	values := emaValues(closes(data), period)
	if values == nil {
		return []IndicatorPoint{}
	}

	out := make([]IndicatorPoint, len(values))
	for i, v := range values {
		out[i] = IndicatorPoint{Time: data[period-1+i].Time, Value: v}
	}
	return out
}

// CalculateRSI returns the relative strength index using Wilder's smoothing.
// The seed averages are simple means of the first period gains and losses;
// subsequent averages use avg = (avg*(period-1) + new) / period. RSI is
// exactly 100 while the average loss is zero. The first output corresponds to
// input index period, so the result has max(0, len(data)-period) points.
func CalculateRSI(data []models.OHLCVPoint, period int) []IndicatorPoint {
	if period < 1 || len(data) < period+1 {
		return []IndicatorPoint{}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		delta := data[i].Close - data[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]IndicatorPoint, 0, len(data)-period)
	out = append(out, IndicatorPoint{Time: data[period].Time, Value: rsiValue(avgGain, avgLoss)})

	for i := period + 1; i < len(data); i++ {
		delta := data[i].Close - data[i-1].Close
		gain := 0.0
		loss := 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, IndicatorPoint{Time: data[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// CalculateMACD returns the MACD composite series. The macd line is the fast
// EMA minus the slow EMA aligned by time: the fast series is longer by
// slow-fast leading points, which are trimmed. The signal line is an EMA of
// the macd line and the histogram is their difference at every output index.
// Inputs shorter than slow+signal yield the empty series.
func CalculateMACD(data []models.OHLCVPoint, fast, slow, signal int) []MACDPoint {
	if fast < 1 || slow <= fast || signal < 1 || len(data) < slow+signal {
		return []MACDPoint{}
	}

	cls := closes(data)
	fastEMA := emaValues(cls, fast)
	slowEMA := emaValues(cls, slow)

	// Align the fast series to the slow series' first valid point.
	offset := slow - fast
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalLine := emaValues(macdLine, signal)
	if signalLine == nil {
		return []MACDPoint{}
	}

	// macdLine[i] corresponds to data index slow-1+i; the signal starts
	// signal-1 points into the macd line.
	out := make([]MACDPoint, 0, len(signalLine))
	for i, sig := range signalLine {
		mi := signal - 1 + i
		out = append(out, MACDPoint{
			Time:      data[slow-1+mi].Time,
			MACD:      macdLine[mi],
			Signal:    sig,
			Histogram: macdLine[mi] - sig,
		})
	}
	return out
}

// CalculateBollingerBands returns Bollinger Bands per rolling window: the
// middle band is the SMA, the upper and lower bands sit k population standard
// deviations away.
func CalculateBollingerBands(data []models.OHLCVPoint, period int, k float64) []BollingerPoint {
	if period < 1 || len(data) < period {
		return []BollingerPoint{}
	}

	out := make([]BollingerPoint, 0, len(data)-period+1)
	for i := period - 1; i < len(data); i++ {
		window := data[i-period+1 : i+1]

		mean := 0.0
		for _, p := range window {
			mean += p.Close
		}
		mean /= float64(period)

		variance := 0.0
		for _, p := range window {
			diff := p.Close - mean
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(period))

		out = append(out, BollingerPoint{
			Time:   data[i].Time,
			Upper:  mean + k*stdDev,
			Middle: mean,
			Lower:  mean - k*stdDev,
		})
	}
	return out
}

// CalculateOBV returns on-balance volume: a cumulative sum seeded at the
// first volume value, adding volume on rising closes, subtracting on falling
// ones and unchanged on ties.
func CalculateOBV(data []models.OHLCVPoint) []IndicatorPoint {
	if len(data) == 0 {
		return []IndicatorPoint{}
	}

	out := make([]IndicatorPoint, 0, len(data))
	obv := data[0].Volume
	out = append(out, IndicatorPoint{Time: data[0].Time, Value: obv})

	for i := 1; i < len(data); i++ {
		switch {
		case data[i].Close > data[i-1].Close:
			obv += data[i].Volume
		case data[i].Close < data[i-1].Close:
			obv -= data[i].Volume
		}
		out = append(out, IndicatorPoint{Time: data[i].Time, Value: obv})
	}
	return out
}
