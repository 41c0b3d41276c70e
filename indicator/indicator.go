// Package indicator exposes technical indicators as ordered numeric
// sequences: values in, warm-up-trimmed values out.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Source computes indicator sequences. Output is ordered like the input and
// shorter by the warm-up length; it is empty when the input is too short.
type Source interface {
	RSI(values []float64, period int) []float64
	EMA(values []float64, period int) []float64
}

// TALib is the default Source backed by go-talib.
type TALib struct{}

var _ Source = TALib{}

// RSI is Wilder's relative strength index. The first value needs period
// price changes, i.e. period+1 inputs.
func (TALib) RSI(values []float64, period int) []float64 {
	if period < 2 || len(values) < period+1 || !finite(values) {
		return nil
	}
	out := talib.Rsi(values, period)
	return trim(out, period)
}

// EMA is the exponential moving average seeded with the simple average of
// the first period values.
func (TALib) EMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period || !finite(values) {
		return nil
	}
	out := talib.Ema(values, period)
	return trim(out, period-1)
}

func trim(out []float64, lookback int) []float64 {
	if lookback >= len(out) {
		return nil
	}
	res := make([]float64, len(out)-lookback)
	copy(res, out[lookback:])
	return res
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LastTwo returns the final two values of a sequence. ok is false when the
// sequence is shorter than two or either value is NaN.
func LastTwo(seq []float64) (prev, cur float64, ok bool) {
	if len(seq) < 2 {
		return math.NaN(), math.NaN(), false
	}
	prev, cur = seq[len(seq)-2], seq[len(seq)-1]
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return prev, cur, false
	}
	return prev, cur, true
}
