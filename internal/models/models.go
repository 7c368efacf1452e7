// Package models provides domain models for the trading console.
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Num is a numeric wire field. The upstream broker API sends numbers both as
// JSON numbers and as strings, sometimes empty or placeholder text like "NA";
// all of them decode to a float and anything unparseable becomes 0, never NaN.
type Num float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Num) UnmarshalJSON(b []byte) error {
	s, ok, err := scalarText(b)
	if err != nil {
		return err
	}
	if !ok {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	*n = Num(f)
	return nil
}

// Float returns the value as a float64.
func (n Num) Float() float64 {
	return float64(n)
}

// Int returns the value rounded to the nearest integer.
func (n Num) Int() int64 {
	return int64(math.Round(float64(n)))
}

// Money is a decimal amount (margin, P&L) with the same tolerant decoding as Num.
type Money struct {
	decimal.Decimal
}

// NewMoney creates Money from a float.
func NewMoney(f float64) Money {
	return Money{decimal.NewFromFloat(f)}
}

// MoneyFromString parses an amount; empty input is zero.
func MoneyFromString(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Money{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(b []byte) error {
	s, ok, err := scalarText(b)
	if err != nil {
		return err
	}
	if !ok {
		*m = Money{}
		return nil
	}
	parsed, err := MoneyFromString(s)
	if err != nil {
		*m = Money{}
		return nil
	}
	*m = parsed
	return nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

// Fixed renders the amount with two decimals.
func (m Money) Fixed() string {
	return m.Decimal.StringFixed(2)
}

// scalarText unwraps a JSON number or string into its text. ok is false for
// null, empty strings and "-".
func scalarText(b []byte) (string, bool, error) {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return "", false, nil
	}
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal([]byte(s), &unq); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(strings.ReplaceAll(unq, ",", ""))
	}
	if s == "" || s == "-" {
		return "", false, nil
	}
	return s, true, nil
}

// Side is the transaction side of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// UnmarshalJSON normalizes the side to upper case.
func (s *Side) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Side(strings.ToUpper(strings.TrimSpace(raw)))
	return nil
}

// Opposite returns the offsetting side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the broker order lifecycle status.
type OrderStatus string

const (
	OrderNew        OrderStatus = "new"
	OrderQueued     OrderStatus = "queued"
	OrderPending    OrderStatus = "pending"
	OrderComplete   OrderStatus = "complete"
	OrderRejected   OrderStatus = "rejected"
	OrderCancelled  OrderStatus = "cancelled"
	OrderCancelling OrderStatus = "cancelling"
)

// ParseOrderStatus maps broker spellings onto the status enum.
func ParseOrderStatus(s string) OrderStatus {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "canceled":
		return OrderCancelled
	case "open", "trigger pending", "open pending", "modified", "modify pending":
		return OrderPending
	case "validation pending", "put order req received", "after market order req received":
		return OrderQueued
	case "cancel pending":
		return OrderCancelling
	case "completed", "filled", "executed":
		return OrderComplete
	default:
		return OrderStatus(v)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OrderStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = ParseOrderStatus(raw)
	return nil
}

// IsTerminal reports whether no further action is allowed on the order.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderComplete, OrderRejected, OrderCancelled:
		return true
	}
	return false
}

// PositionStatus is the display label derived from net quantity.
type PositionStatus string

const (
	PositionBuy    PositionStatus = "BUY"
	PositionSell   PositionStatus = "SELL"
	PositionClosed PositionStatus = "CLOSED"
)
