package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Position is one open or closed position of a demat account.
type Position struct {
	Symbol      string `json:"tradingsymbol"`
	SymbolToken string `json:"symboltoken,omitempty"`
	Exchange    string `json:"exchange,omitempty"`
	ProductType string `json:"producttype"`
	BuyQty      Num    `json:"buyqty"`
	SellQty     Num    `json:"sellqty"`
	PnL         Money  `json:"pnl"`
	LTP         Num    `json:"ltp"`
	AvgNetPrice Num    `json:"avgnetprice"`
}

// Key identifies the position inside a Stats snapshot.
func (p Position) Key() string {
	if p.ProductType == "" {
		return p.Symbol
	}
	return p.Symbol + "/" + p.ProductType
}

// NetQty is buy quantity minus sell quantity.
func (p Position) NetQty() int64 {
	return p.BuyQty.Int() - p.SellQty.Int()
}

// Status labels the position by the sign of its net quantity.
func (p Position) Status() PositionStatus {
	switch n := p.NetQty(); {
	case n > 0:
		return PositionBuy
	case n < 0:
		return PositionSell
	default:
		return PositionClosed
	}
}

// IsClosed reports whether buy and sell quantities offset each other.
func (p Position) IsClosed() bool {
	return p.NetQty() == 0
}

// Order is a broker order as reported in an account snapshot.
type Order struct {
	OrderID         string      `json:"orderid"`
	Symbol          string      `json:"tradingsymbol"`
	SymbolToken     string      `json:"symboltoken,omitempty"`
	Exchange        string      `json:"exchange,omitempty"`
	TransactionType Side        `json:"transactiontype"`
	OrderType       string      `json:"ordertype,omitempty"`
	ProductType     string      `json:"producttype,omitempty"`
	Status          OrderStatus `json:"status"`
	Quantity        Num         `json:"quantity"`
	FilledQuantity  Num         `json:"filledshares"`
	Price           Num         `json:"price"`
	ExchangeTime    string      `json:"exchtime"`
	Text            string      `json:"text,omitempty"`
}

// Trade is an immutable fill.
type Trade struct {
	FillID          string `json:"fillid"`
	OrderID         string `json:"orderid"`
	Symbol          string `json:"tradingsymbol"`
	TransactionType Side   `json:"transactiontype"`
	FillSize        Num    `json:"fillsize"`
	FillPrice       Num    `json:"fillprice"`
	FillTime        string `json:"filltime"`
}

// Stats is a complete per-account (or aggregated per-group) snapshot. A new
// Stats always replaces the previous one wholesale.
type Stats struct {
	Margin    Money               `json:"margin"`
	PnL       Money               `json:"pnl"`
	Positions map[string]Position `json:"positions"`
	Orders    map[string]Order    `json:"orders"`
	Trades    map[string]Trade    `json:"trades"`
}

// NewStats returns an empty snapshot with initialized maps.
func NewStats() Stats {
	return Stats{
		Positions: make(map[string]Position),
		Orders:    make(map[string]Order),
		Trades:    make(map[string]Trade),
	}
}

type statsWire struct {
	Margin    Money           `json:"margin"`
	PnL       Money           `json:"pnl"`
	Positions json.RawMessage `json:"positions"`
	Orders    json.RawMessage `json:"orders"`
	Trades    json.RawMessage `json:"trades"`
}

// UnmarshalJSON accepts positions/orders/trades either as arrays (the broker
// shape) or as keyed objects, and re-keys them.
func (s *Stats) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = NewStats()
		return nil
	}
	var w statsWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := NewStats()
	out.Margin = w.Margin
	out.PnL = w.PnL

	positions, err := decodeList[Position](w.Positions)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	for _, p := range positions {
		out.Positions[p.Key()] = p
	}

	orders, err := decodeList[Order](w.Orders)
	if err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	for _, o := range orders {
		out.Orders[o.OrderID] = o
	}

	trades, err := decodeList[Trade](w.Trades)
	if err != nil {
		return fmt.Errorf("trades: %w", err)
	}
	for _, t := range trades {
		out.Trades[t.FillID] = t
	}

	*s = out
	return nil
}

// decodeList decodes a JSON array or object of T into a slice.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var keyed map[string]T
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
		list := make([]T, 0, len(keyed))
		for _, v := range keyed {
			list = append(list, v)
		}
		return list, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
