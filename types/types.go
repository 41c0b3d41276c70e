package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side that flattens an order of this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// EntrySide is the order side that opens a position of this side.
func (p PositionSide) EntrySide() Side {
	if p == Short {
		return Sell
	}
	return Buy
}

// Opposite returns the other position side.
func (p PositionSide) Opposite() PositionSide {
	if p == Long {
		return Short
	}
	return Long
}

// ExitSide is the order side that closes a position of this side.
func (p PositionSide) ExitSide() Side {
	return p.EntrySide().Opposite()
}

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type OrderStatus string

const (
	StatusFilled OrderStatus = "filled"
)

// Intent records why a trade was placed.
type Intent string

const (
	IntentEntry      Intent = "entry"
	IntentExit       Intent = "exit"
	IntentStopLoss   Intent = "stop_loss"
	IntentTakeProfit Intent = "take_profit"
)

// IsEntry reports whether the intent opens a position.
func (i Intent) IsEntry() bool { return i == IntentEntry }

var ErrInvalidCandle = errors.New("invalid candle")

// Candle is one OHLCV bar. Timestamp is epoch milliseconds.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time converts the candle timestamp to a UTC time.
func (c Candle) Time() time.Time { return time.UnixMilli(c.Timestamp).UTC() }

// Validate enforces low <= min(open, close) and high >= max(open, close).
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: non-positive or non-finite price at %d", ErrInvalidCandle, c.Timestamp)
		}
	}
	if math.IsNaN(c.Volume) || c.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %d", ErrInvalidCandle, c.Timestamp)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("%w: low %.8f above body at %d", ErrInvalidCandle, c.Low, c.Timestamp)
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("%w: high %.8f below body at %d", ErrInvalidCandle, c.High, c.Timestamp)
	}
	return nil
}

// Position is a single open position tracked by the position monitor.
type Position struct {
	Symbol          string
	Side            PositionSide
	EntryPrice      float64
	Amount          float64
	StopLossPrice   float64
	TakeProfitPrice float64
	OpenedAt        int64
}

// Notional is the entry value of the position.
func (p Position) Notional() float64 { return p.EntryPrice * p.Amount }

type TradeMetadata struct {
	Strategy string
	Intent   Intent
}

// TradeRequest is what a strategy hands to an executor.
type TradeRequest struct {
	Symbol string
	Side   Side
	// Amount 0 asks the executor to size the trade through the risk gate.
	Amount float64
	Type   OrderType
	// Price 0 means fill at the current market price.
	Price    float64
	Metadata TradeMetadata
}

// Trade is a filled order as recorded in the trade log.
type Trade struct {
	ID        string
	Symbol    string
	Side      Side
	Type      OrderType
	Amount    float64
	Price     float64
	Status    OrderStatus
	Timestamp int64
	Fee       float64
	Metadata  TradeMetadata
}

// Notional is amount * price.
func (t Trade) Notional() float64 { return t.Amount * t.Price }

type EquityPoint struct {
	Timestamp int64
	Balance   float64
}

// SplitSymbol returns the base and quote asset of a trading pair. Pairs
// may be written "BTC/USD", "BTC-USD" or "BTCUSD"; the latter needs the
// quote suffix to match defaultQuote.
func SplitSymbol(symbol, defaultQuote string) (base, quote string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if i := strings.Index(s, sep); i > 0 && i < len(s)-1 {
			return s[:i], s[i+1:]
		}
	}
	q := strings.ToUpper(defaultQuote)
	if q != "" && strings.HasSuffix(s, q) && len(s) > len(q) {
		return strings.TrimSuffix(s, q), q
	}
	return s, q
}
