package testutils

import "github.com/evdnx/tradebot/types"

// HourMs is one hour in epoch milliseconds.
const HourMs int64 = 3_600_000

// CandlesFromCloses builds well-formed hourly candles around the supplied
// closes, starting at startMs. Each bar opens at the previous close.
func CandlesFromCloses(startMs int64, closes ...float64) []types.Candle {
	out := make([]types.Candle, 0, len(closes))
	prev := 0.0
	for i, c := range closes {
		open := prev
		if i == 0 {
			open = c
		}
		hi, lo := open, c
		if c > open {
			hi, lo = c, open
		}
		out = append(out, types.Candle{
			Timestamp: startMs + int64(i)*HourMs,
			Open:      open,
			High:      hi + 0.5,
			Low:       lo - 0.5,
			Close:     c,
			Volume:    1000,
		})
		prev = c
	}
	return out
}

// VShape returns closes that fall by step for down bars from start, then
// gap up by jump and climb by rise for up bars.
func VShape(start, step float64, down int, jump, rise float64, up int) []float64 {
	out := make([]float64, 0, down+up)
	p := start
	for i := 0; i < down; i++ {
		out = append(out, p)
		p -= step
	}
	p += jump
	for i := 0; i < up; i++ {
		out = append(out, p)
		p += rise
	}
	return out
}
