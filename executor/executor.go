package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/evdnx/tradebot/ledger"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/metrics"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/types"
)

var (
	ErrNoMarketPrice        = errors.New("no market price")
	ErrZeroAmount           = errors.New("resolved amount is not positive")
	ErrRiskRejected         = errors.New("rejected by risk gate")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// DefaultFeeRate is 0.1 % of notional.
const DefaultFeeRate = 0.001

// Executor turns trade requests into fills. A nil trade with a non-nil error
// is a no-op; the error says why.
type Executor interface {
	ExecuteTrade(ctx context.Context, req types.TradeRequest) (*types.Trade, error)
	// Equity is the quote-asset cash available for new trades.
	Equity() float64
}

type tick struct {
	price float64
	ts    int64
}

// PaperExecutor fills every order completely at the requested or current
// market price against an in-memory ledger. No slippage, no partial fills.
//
// It is owned by a single run and is not safe for concurrent use.
type PaperExecutor struct {
	ledger   *ledger.Ledger
	gate     *risk.Gate
	log      logger.Logger
	metrics  *metrics.Recorder
	quote    string
	feeRate  float64
	idPrefix string

	seq    uint64
	market map[string]tick
	trades []types.Trade
}

type Option func(*PaperExecutor)

// WithFeeRate overrides DefaultFeeRate.
func WithFeeRate(rate float64) Option { return func(p *PaperExecutor) { p.feeRate = rate } }

// WithIDPrefix sets the trade id prefix ("bt" by default).
func WithIDPrefix(prefix string) Option { return func(p *PaperExecutor) { p.idPrefix = prefix } }

func WithMetrics(m *metrics.Recorder) Option { return func(p *PaperExecutor) { p.metrics = m } }

func NewPaperExecutor(l *ledger.Ledger, gate *risk.Gate, quote string, log logger.Logger, opts ...Option) *PaperExecutor {
	p := &PaperExecutor{
		ledger:   l,
		gate:     gate,
		log:      log,
		quote:    strings.ToUpper(quote),
		feeRate:  DefaultFeeRate,
		idPrefix: "bt",
		market:   make(map[string]tick),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetMarketPrice records the latest price for symbol. Market orders fill at
// this price and every trade is stamped with ts.
func (p *PaperExecutor) SetMarketPrice(symbol string, price float64, ts int64) {
	p.market[symbol] = tick{price: price, ts: ts}
}

// ExecuteTrade resolves price and amount, checks balances and applies the
// fill to the ledger in one step.
func (p *PaperExecutor) ExecuteTrade(_ context.Context, req types.TradeRequest) (*types.Trade, error) {
	mkt, haveMkt := p.market[req.Symbol]

	price := req.Price
	if price <= 0 {
		if !haveMkt || mkt.price <= 0 {
			return nil, p.reject(req, "no_market_price", ErrNoMarketPrice)
		}
		price = mkt.price
	}

	base, quote := types.SplitSymbol(req.Symbol, p.quote)
	cash := p.ledger.Balance(quote)

	amount := req.Amount
	if amount <= 0 {
		amount = p.gate.CalculateLotSize(req.Symbol, price, cash, 0)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, p.reject(req, "zero_amount", ErrZeroAmount)
	}
	if req.Metadata.Intent.IsEntry() && !p.gate.ValidateTrade(req.Symbol, amount, price, cash) {
		return nil, p.reject(req, "risk_rejected",
			fmt.Errorf("%w: %.8f @ %.8f against %.2f", ErrRiskRejected, amount, price, cash))
	}

	notional := amount * price
	fee := notional * p.feeRate

	var deltas []ledger.Delta
	switch req.Side {
	case types.Buy:
		if cash < notional+fee {
			return nil, p.reject(req, "insufficient_funds",
				fmt.Errorf("%w: need %.2f %s, have %.2f", ErrInsufficientFunds, notional+fee, quote, cash))
		}
		deltas = []ledger.Delta{{Asset: quote, Amount: -(notional + fee)}, {Asset: base, Amount: amount}}
	case types.Sell:
		if held := p.ledger.Balance(base); held < amount {
			return nil, p.reject(req, "insufficient_holdings",
				fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientHoldings, amount, base, held))
		}
		deltas = []ledger.Delta{{Asset: base, Amount: -amount}, {Asset: quote, Amount: notional - fee}}
	default:
		return nil, fmt.Errorf("unknown side %q", req.Side)
	}
	if err := p.ledger.Apply(deltas...); err != nil {
		return nil, p.reject(req, "ledger_rejected", err)
	}

	p.seq++
	orderType := req.Type
	if orderType == "" {
		orderType = types.Market
	}
	tr := types.Trade{
		ID:        fmt.Sprintf("%s-%06d", p.idPrefix, p.seq),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      orderType,
		Amount:    amount,
		Price:     price,
		Status:    types.StatusFilled,
		Timestamp: mkt.ts,
		Fee:       fee,
		Metadata:  req.Metadata,
	}
	p.trades = append(p.trades, tr)

	p.log.Info("trade_executed",
		logger.String("id", tr.ID),
		logger.String("symbol", tr.Symbol),
		logger.String("side", string(tr.Side)),
		logger.Float64("amount", tr.Amount),
		logger.Float64("price", tr.Price),
		logger.Float64("fee", tr.Fee),
		logger.String("intent", string(tr.Metadata.Intent)),
		logger.Int64("ts", tr.Timestamp),
	)
	p.metrics.TradeExecuted(tr.Metadata.Strategy, string(tr.Metadata.Intent))
	return &tr, nil
}

func (p *PaperExecutor) reject(req types.TradeRequest, reason string, err error) error {
	p.log.Warn("trade_rejected",
		logger.String("symbol", req.Symbol),
		logger.String("side", string(req.Side)),
		logger.String("intent", string(req.Metadata.Intent)),
		logger.String("reason", reason),
		logger.Int64("ts", p.market[req.Symbol].ts),
		logger.Err(err),
	)
	p.metrics.TradeRejected(reason)
	return err
}

// Equity returns the quote-asset cash balance.
func (p *PaperExecutor) Equity() float64 { return p.ledger.Balance(p.quote) }

// Holdings returns the base-asset balance of symbol.
func (p *PaperExecutor) Holdings(symbol string) float64 {
	base, _ := types.SplitSymbol(symbol, p.quote)
	return p.ledger.Balance(base)
}

// Balances returns a copy of the non-zero ledger balances.
func (p *PaperExecutor) Balances() map[string]float64 { return p.ledger.Balances() }

// Trades returns a copy of the trade log.
func (p *PaperExecutor) Trades() []types.Trade {
	out := make([]types.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// MarkToMarket values every ledger balance at the latest known prices.
func (p *PaperExecutor) MarkToMarket() float64 {
	total := 0.0
	prices := make(map[string]float64, len(p.market))
	for sym, t := range p.market {
		base, _ := types.SplitSymbol(sym, p.quote)
		prices[base] = t.price
	}
	for asset, bal := range p.ledger.Balances() {
		if asset == p.quote {
			total += bal
			continue
		}
		total += bal * prices[asset]
	}
	return total
}
