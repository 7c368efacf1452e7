package models

import "time"

// RawTick is a market-data snapshot as pushed by the market channel. Price
// fields are integer paise.
type RawTick struct {
	Token             string `json:"token"`
	Index             string `json:"index"`
	LastTradedPrice   Num    `json:"last_traded_price"`
	OpenPriceDay      Num    `json:"open_price_day"`
	HighPriceDay      Num    `json:"high_price_day"`
	LowPriceDay       Num    `json:"low_price_day"`
	ClosedPrice       Num    `json:"closed_price"`
	ExchangeTimestamp Num    `json:"exchange_timestamp"`
}

// Tick is a market-data snapshot in rupees.
type Tick struct {
	Token         string
	Index         string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Change        float64
	ChangePercent float64
	Timestamp     time.Time
}
