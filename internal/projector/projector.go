// Package projector turns account snapshots into the flat, account-tagged
// positions, orders and trades rows the tables display.
package projector

import (
	"cmp"
	"math"
	"slices"
	"time"

	"algodesk/internal/models"
	"algodesk/internal/table"
)

// Projection is the full derived read model of a set of accounts.
type Projection struct {
	Positions []PositionRow
	Orders    []OrderRow
	Trades    []TradeRow
}

// Project recomputes every row from scratch. Row order follows account
// order, then key order within each account.
func Project(accounts []models.Account) Projection {
	var p Projection
	for _, acct := range accounts {
		stats := acct.Stats

		for _, key := range sortedKeys(stats.Positions) {
			p.Positions = append(p.Positions, projectPosition(acct, stats.Positions[key]))
		}
		for _, key := range sortedKeys(stats.Orders) {
			p.Orders = append(p.Orders, projectOrder(acct, stats.Orders[key]))
		}
		for _, key := range sortedKeys(stats.Trades) {
			p.Trades = append(p.Trades, projectTrade(acct, stats.Trades[key]))
		}
	}
	return p
}

func projectPosition(acct models.Account, pos models.Position) PositionRow {
	return PositionRow{
		AccountID:   acct.ID,
		ClientID:    acct.ClientID,
		Symbol:      pos.Symbol,
		ProductType: pos.ProductType,
		BuyQty:      pos.BuyQty.Int(),
		SellQty:     pos.SellQty.Int(),
		NetQty:      pos.NetQty(),
		Status:      pos.Status(),
		PnL:         pos.PnL,
		LTP:         pos.LTP.Float(),
		AvgNetPrice: pos.AvgNetPrice.Float(),
		Closable:    !pos.IsClosed(),
		Position:    pos,
	}
}

func projectOrder(acct models.Account, o models.Order) OrderRow {
	return OrderRow{
		AccountID:       acct.ID,
		ClientID:        acct.ClientID,
		OrderID:         o.OrderID,
		Symbol:          o.Symbol,
		TransactionType: o.TransactionType,
		Status:          o.Status,
		Quantity:        o.Quantity.Int(),
		FilledQuantity:  o.FilledQuantity.Int(),
		Price:           o.Price.Float(),
		ExchangeTime:    o.ExchangeTime,
		Cancellable:     !o.Status.IsTerminal(),
	}
}

func projectTrade(acct models.Account, t models.Trade) TradeRow {
	return TradeRow{
		AccountID:       acct.ID,
		ClientID:        acct.ClientID,
		FillID:          t.FillID,
		OrderID:         t.OrderID,
		Symbol:          t.Symbol,
		TransactionType: t.TransactionType,
		FillSize:        t.FillSize.Int(),
		FillPrice:       t.FillPrice.Float(),
		FillTime:        t.FillTime,
	}
}

// Aggregate sums margin and P&L across accounts and unions their positions,
// orders and trades, keyed "<clientId>:<key>" so members never collide.
func Aggregate(accounts []models.Account) models.Stats {
	out := models.NewStats()
	for _, acct := range accounts {
		prefix := acct.ClientID
		if prefix == "" {
			prefix = acct.ID
		}
		out.Margin = out.Margin.Add(acct.Stats.Margin)
		out.PnL = out.PnL.Add(acct.Stats.PnL)
		for k, v := range acct.Stats.Positions {
			out.Positions[prefix+":"+k] = v
		}
		for k, v := range acct.Stats.Orders {
			out.Orders[prefix+":"+k] = v
		}
		for k, v := range acct.Stats.Trades {
			out.Trades[prefix+":"+k] = v
		}
	}
	return out
}

// AccountSummary is the header line of one account.
type AccountSummary struct {
	AccountID      string       `json:"accountId"`
	ClientID       string       `json:"clientId"`
	Name           string       `json:"name"`
	TradingEnabled bool         `json:"tradingEnabled"`
	Margin         models.Money `json:"margin"`
	PnL            models.Money `json:"pnl"`
	OpenPositions  int          `json:"openPositions"`
	OpenOrders     int          `json:"openOrders"`
}

// Summarize returns one summary per account, in input order.
func Summarize(accounts []models.Account) []AccountSummary {
	out := make([]AccountSummary, 0, len(accounts))
	for _, acct := range accounts {
		s := AccountSummary{
			AccountID:      acct.ID,
			ClientID:       acct.ClientID,
			Name:           acct.Label(),
			TradingEnabled: acct.TradingEnabled,
			Margin:         acct.Stats.Margin,
			PnL:            acct.Stats.PnL,
		}
		for _, p := range acct.Stats.Positions {
			if !p.IsClosed() {
				s.OpenPositions++
			}
		}
		for _, o := range acct.Stats.Orders {
			if !o.Status.IsTerminal() {
				s.OpenOrders++
			}
		}
		out = append(out, s)
	}
	return out
}

// paiseScale converts the market channel's integer paise to rupees.
const paiseScale = 100

// ScaleTick converts a raw market tick to rupees. Only the tick price fields
// are scaled; account snapshot prices are already in rupees.
func ScaleTick(raw models.RawTick) models.Tick {
	t := models.Tick{
		Token: raw.Token,
		Index: raw.Index,
		LTP:   raw.LastTradedPrice.Float() / paiseScale,
		Open:  raw.OpenPriceDay.Float() / paiseScale,
		High:  raw.HighPriceDay.Float() / paiseScale,
		Low:   raw.LowPriceDay.Float() / paiseScale,
		Close: raw.ClosedPrice.Float() / paiseScale,
	}
	if t.Close != 0 {
		t.Change = roundPaise(t.LTP - t.Close)
		t.ChangePercent = roundPaise(t.Change / t.Close * 100)
	}
	if ts := raw.ExchangeTimestamp.Float(); ts > 0 {
		// Epoch milliseconds from the exchange; seconds from older feeds.
		if ts > 1e12 {
			t.Timestamp = time.UnixMilli(int64(ts))
		} else {
			t.Timestamp = time.Unix(int64(ts), 0)
		}
	}
	return t
}

// DefaultPositionOrder puts open positions before closed ones, then larger
// absolute net quantity first.
func DefaultPositionOrder(a, b PositionRow) int {
	aClosed, bClosed := a.NetQty == 0, b.NetQty == 0
	if aClosed != bClosed {
		if aClosed {
			return 1
		}
		return -1
	}
	return cmp.Compare(abs(b.NetQty), abs(a.NetQty))
}

// DefaultOrderOrder puts the most recent exchange time first.
func DefaultOrderOrder(a, b OrderRow) int {
	return newestFirst(a.ExchangeTime, b.ExchangeTime)
}

// DefaultTradeOrder puts the most recent fill first.
func DefaultTradeOrder(a, b TradeRow) int {
	return newestFirst(a.FillTime, b.FillTime)
}

// newestFirst orders parseable timestamps descending; unparseable ones sink.
func newestFirst(a, b string) int {
	ta, okA := table.ParseTime(a)
	tb, okB := table.ParseTime(b)
	switch {
	case okA && okB:
		return tb.Compare(ta)
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}

// NewPositionView returns a positions table with the default ordering.
func NewPositionView() *table.View[PositionRow] {
	return table.New[PositionRow](table.WithDefaultOrder(DefaultPositionOrder))
}

// NewOrderView returns an orders table with time-aware sorting.
func NewOrderView() *table.View[OrderRow] {
	return table.New[OrderRow](
		table.WithTimeFields[OrderRow](FieldExchangeTime),
		table.WithDefaultOrder(DefaultOrderOrder),
	)
}

// NewTradeView returns a trades table with time-aware sorting.
func NewTradeView() *table.View[TradeRow] {
	return table.New[TradeRow](
		table.WithTimeFields[TradeRow](FieldFillTime),
		table.WithDefaultOrder(DefaultTradeOrder),
	)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// roundPaise rounds a rupee amount to the nearest paisa.
func roundPaise(f float64) float64 {
	return math.Round(f*100) / 100
}
