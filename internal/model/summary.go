package model

import "github.com/shopspring/decimal"

// CarCost is the distance cost of the record at the given rate.
func (r Record) CarCost(s Settings) decimal.Decimal {
	return r.KmDriven.Mul(s.CostPerKm)
}

// NetProfit is totalEarnings minus additional costs minus the distance cost.
func (r Record) NetProfit(s Settings) decimal.Decimal {
	net := r.TotalEarnings.Sub(r.CarCost(s))
	if r.AdditionalCosts.Valid {
		net = net.Sub(r.AdditionalCosts.Decimal)
	}
	return net
}

// Summary aggregates a list of records.
type Summary struct {
	Days          int
	TotalEarnings decimal.Decimal
	TotalKm       decimal.Decimal
	TotalHours    decimal.Decimal
	TotalCosts    decimal.Decimal // additional costs + distance cost
	NetProfit     decimal.Decimal
}

// Summarize totals records using the cost rate from s.
func Summarize(records []Record, s Settings) Summary {
	var sum Summary
	for _, r := range records {
		sum.Days++
		sum.TotalEarnings = sum.TotalEarnings.Add(r.TotalEarnings)
		sum.TotalKm = sum.TotalKm.Add(r.KmDriven)
		if r.HoursWorked.Valid {
			sum.TotalHours = sum.TotalHours.Add(r.HoursWorked.Decimal)
		}
		sum.TotalCosts = sum.TotalCosts.Add(r.CarCost(s))
		if r.AdditionalCosts.Valid {
			sum.TotalCosts = sum.TotalCosts.Add(r.AdditionalCosts.Decimal)
		}
		sum.NetProfit = sum.NetProfit.Add(r.NetProfit(s))
	}
	return sum
}
