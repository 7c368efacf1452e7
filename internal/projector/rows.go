package projector

import (
	"strconv"

	"algodesk/internal/models"
)

// Display placeholders for absent values.
const (
	missingText   = "-"
	missingNumber = "0"
)

// Field names shared by rows and table views. They match the wire names so
// a sort or search parameter can name them directly.
const (
	FieldClientID       = "clientId"
	FieldSymbol         = "tradingsymbol"
	FieldProductType    = "producttype"
	FieldBuyQty         = "buyqty"
	FieldSellQty        = "sellqty"
	FieldNetQty         = "netqty"
	FieldStatus         = "status"
	FieldPnL            = "pnl"
	FieldLTP            = "ltp"
	FieldAvgNetPrice    = "avgnetprice"
	FieldOrderID        = "orderid"
	FieldTransaction    = "transactiontype"
	FieldQuantity       = "quantity"
	FieldFilledQuantity = "filledshares"
	FieldPrice          = "price"
	FieldExchangeTime   = "exchtime"
	FieldFillID         = "fillid"
	FieldFillSize       = "fillsize"
	FieldFillPrice      = "fillprice"
	FieldFillTime       = "filltime"
)

// PositionRow is a position tagged with the account it belongs to.
type PositionRow struct {
	AccountID   string                `json:"accountId"`
	ClientID    string                `json:"clientId"`
	Symbol      string                `json:"tradingsymbol"`
	ProductType string                `json:"producttype"`
	BuyQty      int64                 `json:"buyqty"`
	SellQty     int64                 `json:"sellqty"`
	NetQty      int64                 `json:"netqty"`
	Status      models.PositionStatus `json:"status"`
	PnL         models.Money          `json:"pnl"`
	LTP         float64               `json:"ltp"`
	AvgNetPrice float64               `json:"avgnetprice"`
	Closable    bool                  `json:"closable"`
	InFlight    bool                  `json:"inFlight"`

	// Position is the source record, used for square-off.
	Position models.Position `json:"-"`
}

var positionFields = []string{
	FieldClientID, FieldSymbol, FieldProductType, FieldBuyQty, FieldSellQty,
	FieldNetQty, FieldStatus, FieldPnL, FieldLTP, FieldAvgNetPrice,
}

// PositionFields lists the columns of a positions table.
func PositionFields() []string { return positionFields }

// Fields implements table.Row.
func (r PositionRow) Fields() []string { return positionFields }

// Value implements table.Row.
func (r PositionRow) Value(field string) string {
	switch field {
	case FieldClientID:
		return text(r.ClientID)
	case FieldSymbol:
		return text(r.Symbol)
	case FieldProductType:
		return text(r.ProductType)
	case FieldBuyQty:
		return strconv.FormatInt(r.BuyQty, 10)
	case FieldSellQty:
		return strconv.FormatInt(r.SellQty, 10)
	case FieldNetQty:
		return strconv.FormatInt(r.NetQty, 10)
	case FieldStatus:
		return string(r.Status)
	case FieldPnL:
		return r.PnL.Fixed()
	case FieldLTP:
		return price(r.LTP)
	case FieldAvgNetPrice:
		return price(r.AvgNetPrice)
	}
	return missingText
}

// OrderRow is an order tagged with the account it belongs to.
type OrderRow struct {
	AccountID       string             `json:"accountId"`
	ClientID        string             `json:"clientId"`
	OrderID         string             `json:"orderid"`
	Symbol          string             `json:"tradingsymbol"`
	TransactionType models.Side        `json:"transactiontype"`
	Status          models.OrderStatus `json:"status"`
	Quantity        int64              `json:"quantity"`
	FilledQuantity  int64              `json:"filledshares"`
	Price           float64            `json:"price"`
	ExchangeTime    string             `json:"exchtime"`
	Cancellable     bool               `json:"cancellable"`
	InFlight        bool               `json:"inFlight"`
}

var orderFields = []string{
	FieldClientID, FieldOrderID, FieldSymbol, FieldTransaction, FieldStatus,
	FieldQuantity, FieldFilledQuantity, FieldPrice, FieldExchangeTime,
}

// OrderFields lists the columns of an orders table.
func OrderFields() []string { return orderFields }

// Fields implements table.Row.
func (r OrderRow) Fields() []string { return orderFields }

// Value implements table.Row.
func (r OrderRow) Value(field string) string {
	switch field {
	case FieldClientID:
		return text(r.ClientID)
	case FieldOrderID:
		return text(r.OrderID)
	case FieldSymbol:
		return text(r.Symbol)
	case FieldTransaction:
		return text(string(r.TransactionType))
	case FieldStatus:
		return text(string(r.Status))
	case FieldQuantity:
		return strconv.FormatInt(r.Quantity, 10)
	case FieldFilledQuantity:
		return strconv.FormatInt(r.FilledQuantity, 10)
	case FieldPrice:
		return price(r.Price)
	case FieldExchangeTime:
		return text(r.ExchangeTime)
	}
	return missingText
}

// TradeRow is a fill tagged with the account it belongs to.
type TradeRow struct {
	AccountID       string      `json:"accountId"`
	ClientID        string      `json:"clientId"`
	FillID          string      `json:"fillid"`
	OrderID         string      `json:"orderid"`
	Symbol          string      `json:"tradingsymbol"`
	TransactionType models.Side `json:"transactiontype"`
	FillSize        int64       `json:"fillsize"`
	FillPrice       float64     `json:"fillprice"`
	FillTime        string      `json:"filltime"`
}

var tradeFields = []string{
	FieldClientID, FieldFillID, FieldOrderID, FieldSymbol, FieldTransaction,
	FieldFillSize, FieldFillPrice, FieldFillTime,
}

// TradeFields lists the columns of a trades table.
func TradeFields() []string { return tradeFields }

// Fields implements table.Row.
func (r TradeRow) Fields() []string { return tradeFields }

// Value implements table.Row.
func (r TradeRow) Value(field string) string {
	switch field {
	case FieldClientID:
		return text(r.ClientID)
	case FieldFillID:
		return text(r.FillID)
	case FieldOrderID:
		return text(r.OrderID)
	case FieldSymbol:
		return text(r.Symbol)
	case FieldTransaction:
		return text(string(r.TransactionType))
	case FieldFillSize:
		return strconv.FormatInt(r.FillSize, 10)
	case FieldFillPrice:
		return price(r.FillPrice)
	case FieldFillTime:
		return text(r.FillTime)
	}
	return missingText
}

func text(s string) string {
	if s == "" {
		return missingText
	}
	return s
}

func price(f float64) string {
	if f == 0 {
		return missingNumber
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
