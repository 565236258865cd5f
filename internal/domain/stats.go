// internal/domain/stats.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StatsPeriod string

const (
	StatsPeriodDay       StatsPeriod = "day"
	StatsPeriodYesterday StatsPeriod = "yesterday"
	StatsPeriodWeek      StatsPeriod = "week"
	StatsPeriodMonth     StatsPeriod = "month"
	StatsPeriodYear      StatsPeriod = "year"
)

// ParseStatsPeriod maps an empty string to the current day.
func ParseStatsPeriod(s string) (StatsPeriod, bool) {
	switch p := StatsPeriod(s); p {
	case "":
		return StatsPeriodDay, true
	case StatsPeriodDay, StatsPeriodYesterday, StatsPeriodWeek, StatsPeriodMonth, StatsPeriodYear:
		return p, true
	}
	return "", false
}

// Range returns [from, to) for the period relative to now in now's location.
// Unknown periods fall back to the current day.
func (p StatsPeriod) Range(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := today.AddDate(0, 0, 1)

	switch p {
	case StatsPeriodYesterday:
		return today.AddDate(0, 0, -1), today
	case StatsPeriodWeek:
		offset := (int(now.Weekday()) + 6) % 7 // monday start
		return today.AddDate(0, 0, -offset), end
	case StatsPeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), end
	case StatsPeriodYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc), end
	default:
		return today, end
	}
}

type RechargeStats struct {
	Period           StatsPeriod                  `json:"period"`
	From             time.Time                    `json:"from"`
	To               time.Time                    `json:"to"`
	CompletedOrders  int64                        `json:"completed_orders"`
	RechargeOrders   int64                        `json:"recharge_orders"`
	VIPOrders        int64                        `json:"vip_orders"`
	AmountByCurrency map[Currency]decimal.Decimal `json:"amount_by_currency"`
	TotalCredits     decimal.Decimal              `json:"total_credits"`
}
