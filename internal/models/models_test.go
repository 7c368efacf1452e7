package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumAcceptsStringsAndNumbers(t *testing.T) {
	var v struct {
		A Num `json:"a"`
		B Num `json:"b"`
		C Num `json:"c"`
		D Num `json:"d"`
		E Num `json:"e"`
		F Num `json:"f"`
	}
	err := json.Unmarshal([]byte(`{"a": 75, "b": "120.5", "c": "", "d": null, "e": "1,250.25", "f": "-"}`), &v)
	require.NoError(t, err)

	assert.Equal(t, 75.0, v.A.Float())
	assert.Equal(t, 120.5, v.B.Float())
	assert.Equal(t, 0.0, v.C.Float())
	assert.Equal(t, 0.0, v.D.Float())
	assert.Equal(t, 1250.25, v.E.Float())
	assert.Equal(t, 0.0, v.F.Float())
}

func TestNumPlaceholderTextIsZero(t *testing.T) {
	for _, raw := range []string{`"abc"`, `"NA"`, `"N/A"`, `"--"`} {
		n := Num(42)
		require.NoError(t, json.Unmarshal([]byte(raw), &n), raw)
		assert.Equal(t, 0.0, n.Float(), raw)
	}
}

func TestMoneyPlaceholderTextIsZero(t *testing.T) {
	m := NewMoney(10)
	require.NoError(t, json.Unmarshal([]byte(`"NA"`), &m))
	assert.True(t, m.IsZero())
}

func TestStatsKeepsPositionWithPlaceholderLTP(t *testing.T) {
	payload := `{
		"margin": "NA",
		"positions": [
			{"tradingsymbol": "BANKNIFTY24AUGFUT", "producttype": "INTRADAY", "buyqty": "30", "sellqty": "0", "ltp": "NA", "pnl": "NA"}
		]
	}`
	var s Stats
	require.NoError(t, json.Unmarshal([]byte(payload), &s))

	require.Len(t, s.Positions, 1)
	pos := s.Positions["BANKNIFTY24AUGFUT/INTRADAY"]
	assert.Equal(t, int64(30), pos.NetQty())
	assert.Equal(t, 0.0, pos.LTP.Float())
	assert.True(t, s.Margin.IsZero())
}

func TestMoneyDecoding(t *testing.T) {
	var v struct {
		Margin Money `json:"margin"`
		PnL    Money `json:"pnl"`
		Empty  Money `json:"empty"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"margin": "100000.10", "pnl": 120.5, "empty": ""}`), &v))

	assert.Equal(t, "100000.10", v.Margin.Fixed())
	assert.Equal(t, "120.50", v.PnL.Fixed())
	assert.True(t, v.Empty.IsZero())
	assert.Equal(t, "100120.60", v.Margin.Add(v.PnL).Fixed())
}

func TestStatsDecodesArraysAndMaps(t *testing.T) {
	payload := `{
		"margin": "5000",
		"pnl": "-12.5",
		"positions": [
			{"tradingsymbol": "NIFTY24AUGFUT", "producttype": "CARRYFORWARD", "buyqty": "75", "sellqty": "0", "pnl": 120.5}
		],
		"orders": {"x": {"orderid": "O1", "tradingsymbol": "NIFTY24AUGFUT", "transactiontype": "buy", "status": "Canceled"}},
		"trades": [{"fillid": "F1", "orderid": "O1", "fillsize": "75", "fillprice": "22010.5", "filltime": "09:15:02"}]
	}`
	var s Stats
	require.NoError(t, json.Unmarshal([]byte(payload), &s))

	require.Len(t, s.Positions, 1)
	pos := s.Positions["NIFTY24AUGFUT/CARRYFORWARD"]
	assert.Equal(t, int64(75), pos.NetQty())
	assert.Equal(t, PositionBuy, pos.Status())

	require.Contains(t, s.Orders, "O1")
	assert.Equal(t, OrderCancelled, s.Orders["O1"].Status)
	assert.Equal(t, SideBuy, s.Orders["O1"].TransactionType)
	assert.True(t, s.Orders["O1"].Status.IsTerminal())

	require.Contains(t, s.Trades, "F1")
	assert.Equal(t, 22010.5, s.Trades["F1"].FillPrice.Float())
	assert.Equal(t, "-12.50", s.PnL.Fixed())
}

func TestStatsNullIsEmpty(t *testing.T) {
	var a Account
	require.NoError(t, json.Unmarshal([]byte(`{"id": "a1", "stats": null}`), &a))
	assert.NotNil(t, a.Stats.Positions)
	assert.Empty(t, a.Stats.Orders)
}

func TestPositionStatus(t *testing.T) {
	tests := []struct {
		buy, sell Num
		want      PositionStatus
	}{
		{75, 0, PositionBuy},
		{0, 50, PositionSell},
		{25, 25, PositionClosed},
		{0, 0, PositionClosed},
	}
	for _, tt := range tests {
		p := Position{BuyQty: tt.buy, SellQty: tt.sell}
		assert.Equal(t, tt.want, p.Status())
		assert.Equal(t, tt.want == PositionClosed, p.IsClosed())
	}
}

func TestParseOrderStatus(t *testing.T) {
	assert.Equal(t, OrderPending, ParseOrderStatus("open"))
	assert.Equal(t, OrderPending, ParseOrderStatus("trigger pending"))
	assert.Equal(t, OrderComplete, ParseOrderStatus("COMPLETE"))
	assert.Equal(t, OrderCancelled, ParseOrderStatus("canceled"))
	assert.Equal(t, OrderCancelling, ParseOrderStatus("cancel pending"))
	assert.False(t, OrderQueued.IsTerminal())
	assert.False(t, OrderCancelling.IsTerminal())
	assert.True(t, OrderRejected.IsTerminal())
}

func TestGroupValidate(t *testing.T) {
	master := "a1"
	g := Group{ID: "g1", MemberAccountIDs: []string{"a1", "a2"}, MasterAccountID: &master}
	assert.NoError(t, g.Validate())
	assert.True(t, g.IsMaster("a1"))
	assert.False(t, g.IsMaster("a2"))

	outsider := "a9"
	g.MasterAccountID = &outsider
	assert.Error(t, g.Validate())

	g.MasterAccountID = nil
	assert.NoError(t, g.Validate())
}

func TestParams(t *testing.T) {
	var s Strategy
	require.NoError(t, json.Unmarshal([]byte(`{"parameters": {"minContractPrice": 100, "maxContractPrice": "150", "useStopLoss": true, "stopLossPoints": null, "interval": "5m"}}`), &s))

	min, ok := s.Parameters.Number(ParamMinContractPrice)
	assert.True(t, ok)
	assert.Equal(t, 100.0, min)

	max, ok := s.Parameters.Number(ParamMaxContractPrice)
	assert.True(t, ok)
	assert.Equal(t, 150.0, max)

	assert.True(t, s.Parameters.Bool(ParamUseStopLoss))
	assert.False(t, s.Parameters.Present(ParamStopLossPoints))
	assert.Equal(t, "5m", s.Parameters.Text(ParamInterval))
}
