package utils

import (
	"time"
)

// IndiaLocation is the timezone of the Indian exchanges.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MarketSession is the NSE equity/F&O trading phase.
type MarketSession string

const (
	SessionClosed        MarketSession = "CLOSED"
	SessionPreOpen       MarketSession = "PRE_OPEN"
	SessionOpen          MarketSession = "OPEN"
	SessionSquareOffWarn MarketSession = "SQUAREOFF_WARNING"
)

// SessionAt returns the market session at t. Exchange holidays are not
// known here and read as open.
func SessionAt(t time.Time) MarketSession {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return SessionClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 9*60 && minutes < 9*60+15:
		return SessionPreOpen
	case minutes >= 15*60 && minutes < 15*60+15:
		// Intraday positions are squared off by brokers from 15:15.
		return SessionSquareOffWarn
	case minutes >= 9*60+15 && minutes < 15*60+30:
		return SessionOpen
	}
	return SessionClosed
}

// IsOpen reports whether orders can trade in the continuous session.
func (s MarketSession) IsOpen() bool {
	return s == SessionOpen || s == SessionSquareOffWarn
}

// TradingDay returns midnight IST of the day containing t. Job listings are
// filtered by this date.
func TradingDay(t time.Time) time.Time {
	d := t.In(IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IndiaLocation)
}

// NextOpen returns the next 09:15 IST on a weekday after t.
func NextOpen(t time.Time) time.Time {
	now := t.In(IndiaLocation)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
