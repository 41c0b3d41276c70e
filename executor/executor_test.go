package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/ledger"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/testutils"
	"github.com/evdnx/tradebot/types"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newPaper(cash float64, opts ...Option) (*PaperExecutor, *ledger.Ledger, *testutils.MockLogger) {
	l := ledger.New(map[string]float64{"USD": cash})
	log := testutils.NewMockLogger()
	return NewPaperExecutor(l, risk.NewGate(config.DefaultRisk()), "USD", log, opts...), l, log
}

func entry(side types.Side, amount, price float64) types.TradeRequest {
	return types.TradeRequest{
		Symbol:   "BTC/USD",
		Side:     side,
		Amount:   amount,
		Type:     types.Market,
		Price:    price,
		Metadata: types.TradeMetadata{Strategy: "test", Intent: types.IntentEntry},
	}
}

func TestPaperExecutor_BuySizedByRiskGate(t *testing.T) {
	ex, l, _ := newPaper(10_000)
	ex.SetMarketPrice("BTC/USD", 20_000, 1_700_000_000_000)

	tr, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0, 0))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	// 2 % of 10 000 at 20 000 = 0.01 BTC, fee 0.1 % of 200.
	if !approx(tr.Amount, 0.01) || tr.Price != 20_000 {
		t.Fatalf("unexpected fill: %+v", tr)
	}
	if !approx(tr.Fee, 0.2) {
		t.Fatalf("expected fee 0.2, got %v", tr.Fee)
	}
	if tr.Timestamp != 1_700_000_000_000 || tr.Status != types.StatusFilled {
		t.Fatalf("unexpected stamp/status: %+v", tr)
	}
	if !approx(l.Balance("USD"), 10_000-200-0.2) || !approx(l.Balance("BTC"), 0.01) {
		t.Fatalf("unexpected balances: %+v", l.Balances())
	}
	if !approx(ex.Equity(), 9_799.8) {
		t.Fatalf("unexpected equity %v", ex.Equity())
	}
}

func TestPaperExecutor_ExplicitPriceWins(t *testing.T) {
	ex, _, _ := newPaper(10_000)
	ex.SetMarketPrice("BTC/USD", 20_000, 1)
	tr, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0.005, 19_000))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Price != 19_000 || tr.Amount != 0.005 {
		t.Fatalf("explicit price/amount ignored: %+v", tr)
	}
}

func TestPaperExecutor_InsufficientCash(t *testing.T) {
	ex, l, log := newPaper(1000)
	ex.SetMarketPrice("ETH/USD", 2000, 1)
	req := entry(types.Buy, 1, 0)
	req.Symbol = "ETH/USD"
	req.Metadata.Intent = types.IntentExit // skip the per-trade risk cap

	tr, err := ex.ExecuteTrade(context.Background(), req)
	if tr != nil || !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %+v %v", tr, err)
	}
	if l.Balance("USD") != 1000 || l.Balance("ETH") != 0 {
		t.Fatalf("ledger must stay unchanged on insufficient cash: %+v", l.Balances())
	}
	if log.LastMessage() != "trade_rejected" {
		t.Fatalf("expected rejection to be logged, got %q", log.LastMessage())
	}
	if len(ex.Trades()) != 0 {
		t.Fatal("rejected trade must not be logged as filled")
	}
}

func TestPaperExecutor_SellNeedsHoldings(t *testing.T) {
	ex, l, _ := newPaper(10_000)
	ex.SetMarketPrice("BTC/USD", 20_000, 1)

	exit := entry(types.Sell, 0.01, 0)
	exit.Metadata.Intent = types.IntentExit
	if _, err := ex.ExecuteTrade(context.Background(), exit); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}

	if _, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0.01, 0)); err != nil {
		t.Fatal(err)
	}
	ex.SetMarketPrice("BTC/USD", 22_000, 2)
	tr, err := ex.ExecuteTrade(context.Background(), exit)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if tr.Timestamp != 2 || tr.Price != 22_000 {
		t.Fatalf("unexpected sell: %+v", tr)
	}
	// 10 000 - 200.2 + 220 - 0.22
	if !approx(l.Balance("USD"), 10_019.58) {
		t.Fatalf("unexpected cash %v", l.Balance("USD"))
	}
	if l.Balance("BTC") != 0 {
		t.Fatalf("expected flat BTC, got %v", l.Balance("BTC"))
	}
}

func TestPaperExecutor_ZeroAmountAndNoPrice(t *testing.T) {
	ex, _, _ := newPaper(50) // below the 100 minimum balance
	if _, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0, 0)); !errors.Is(err, ErrNoMarketPrice) {
		t.Fatalf("expected ErrNoMarketPrice, got %v", err)
	}
	ex.SetMarketPrice("BTC/USD", 20_000, 1)
	if _, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0, 0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestPaperExecutor_EntryRiskCap(t *testing.T) {
	ex, _, _ := newPaper(10_000)
	ex.SetMarketPrice("BTC/USD", 20_000, 1)
	// 0.1 BTC = 2000 = 20 % of cash, well over the 2 % cap.
	if _, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 0.1, 0)); !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("expected ErrRiskRejected, got %v", err)
	}
}

func TestPaperExecutor_UniqueSequentialIDs(t *testing.T) {
	ex, _, _ := newPaper(10_000, WithIDPrefix("run"), WithFeeRate(0))
	ex.SetMarketPrice("BTC/USD", 100, 1)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		tr, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 1, 0))
		if err != nil {
			t.Fatal(err)
		}
		if seen[tr.ID] {
			t.Fatalf("duplicate id %s", tr.ID)
		}
		seen[tr.ID] = true
		if tr.Fee != 0 {
			t.Fatalf("fee override ignored: %v", tr.Fee)
		}
	}
	if ex.Trades()[0].ID != "run-000001" || ex.Trades()[4].ID != "run-000005" {
		t.Fatalf("unexpected ids: %s .. %s", ex.Trades()[0].ID, ex.Trades()[4].ID)
	}
}

func TestPaperExecutor_MarkToMarket(t *testing.T) {
	ex, _, _ := newPaper(10_000, WithFeeRate(0))
	ex.SetMarketPrice("BTC/USD", 100, 1)
	if _, err := ex.ExecuteTrade(context.Background(), entry(types.Buy, 1, 0)); err != nil {
		t.Fatal(err)
	}
	ex.SetMarketPrice("BTC/USD", 150, 2)
	if got := ex.MarkToMarket(); !approx(got, 10_050) {
		t.Fatalf("expected 10050, got %v", got)
	}
	if got := ex.Holdings("BTC/USD"); got != 1 {
		t.Fatalf("expected 1 BTC, got %v", got)
	}
}
