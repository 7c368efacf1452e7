// Package utils provides display formatting and small helpers shared by the
// console's commands.
package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FormatIndianCurrency formats an amount in rupees with Indian digit
// grouping (1,00,000 rather than 100,000).
func FormatIndianCurrency(amount float64) string {
	return formatRupees(decimal.NewFromFloat(amount))
}

// FormatAmount formats a decimal amount like FormatIndianCurrency without a
// round trip through float64.
func FormatAmount(amount decimal.Decimal) string {
	return formatRupees(amount)
}

func formatRupees(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := "₹" + formatIndianNumber(intPart) + "." + decPart
	if negative && strings.Trim(str, "0.") != "" {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string as 3 digits then pairs:
// 1,00,00,000 is one crore.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}
	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a P&L amount with an explicit + for gains.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatAmount(pnl)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a quantity with Indian grouping.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + formatIndianNumber(fmt.Sprintf("%d", -qty))
	}
	return formatIndianNumber(fmt.Sprintf("%d", qty))
}

// FormatCompact formats large amounts in lakhs (L) or crores (Cr).
func FormatCompact(amount float64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e7:
		return fmt.Sprintf("%.2f Cr", amount/1e7)
	case abs >= 1e5:
		return fmt.Sprintf("%.2f L", amount/1e5)
	}
	return FormatIndianCurrency(amount)
}

// FormatPrice formats a price with two decimals; zero renders as "0".
func FormatPrice(price float64) string {
	if price == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", price)
}

// FormatChange formats an absolute and percentage change.
func FormatChange(change, changePct float64) string {
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f (%s%.2f%%)", sign, change, sign, changePct)
}

// Default display layouts.
const (
	DefaultDateLayout = "02-Jan-2006"
	DefaultTimeLayout = "15:04:05"
)

var (
	layoutMu   sync.RWMutex
	dateLayout = DefaultDateLayout
	timeLayout = DefaultTimeLayout
)

// SetLayouts replaces the date and time layouts used by FormatDate,
// FormatTime and FormatDateTime. An empty layout restores its default.
func SetLayouts(date, clock string) {
	if date == "" {
		date = DefaultDateLayout
	}
	if clock == "" {
		clock = DefaultTimeLayout
	}
	layoutMu.Lock()
	dateLayout, timeLayout = date, clock
	layoutMu.Unlock()
}

func layouts() (string, string) {
	layoutMu.RLock()
	defer layoutMu.RUnlock()
	return dateLayout, timeLayout
}

// FormatDate formats a calendar date in IST.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	date, _ := layouts()
	return t.In(IndiaLocation).Format(date)
}

// FormatTime formats a time of day in IST.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	_, clock := layouts()
	return t.In(IndiaLocation).Format(clock)
}

// FormatDateTime formats a timestamp in IST.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	date, clock := layouts()
	return t.In(IndiaLocation).Format(date + " " + clock)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

// Truncate shortens s to maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
