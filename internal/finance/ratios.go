// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package finance

import "github.com/shopspring/decimal"

const (
	moneyPlaces = 2
	ratioPlaces = 4
)

// Ratio is a derived ratio. Defined is false when the denominator was zero,
// in which case Value is zero.
type Ratio struct {
	Value   decimal.Decimal `json:"value"`
	Defined bool            `json:"defined"`
}

func ratio(num, den decimal.Decimal) Ratio {
	if den.IsZero() {
		return Ratio{Value: decimal.Zero}
	}
	return Ratio{Value: num.Div(den).Round(ratioPlaces), Defined: true}
}

// Snapshot is everything the ratios are computed from.
type Snapshot struct {
	Assets      []Asset
	Liabilities []Liability
	Income      []Income
	Expenses    []Expense
}

// Summary is the derived financial position of one user. Monthly figures
// normalize every frequency to a month.
type Summary struct {
	TotalAssets        decimal.Decimal `json:"total_assets"`
	LiquidAssets       decimal.Decimal `json:"liquid_assets"`
	TotalLiabilities   decimal.Decimal `json:"total_liabilities"`
	NetWorth           decimal.Decimal `json:"net_worth"`
	MonthlyIncome      decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses    decimal.Decimal `json:"monthly_expenses"`
	MonthlyDebtService decimal.Decimal `json:"monthly_debt_service"`
	MonthlyCashFlow    decimal.Decimal `json:"monthly_cash_flow"`

	DebtToIncome Ratio `json:"debt_to_income"`
	SavingsRate  Ratio `json:"savings_rate"`
	// Liquidity is months of expenses covered by liquid assets.
	Liquidity   Ratio `json:"liquidity"`
	DebtToAsset Ratio `json:"debt_to_asset"`
}

// Summarize computes the summary for s.
func Summarize(s Snapshot) Summary {
	var sum Summary
	for _, a := range s.Assets {
		sum.TotalAssets = sum.TotalAssets.Add(a.Value)
		if a.Liquid {
			sum.LiquidAssets = sum.LiquidAssets.Add(a.Value)
		}
	}
	for _, l := range s.Liabilities {
		sum.TotalLiabilities = sum.TotalLiabilities.Add(l.Balance)
		sum.MonthlyDebtService = sum.MonthlyDebtService.Add(l.MonthlyPayment)
	}
	for _, i := range s.Income {
		sum.MonthlyIncome = sum.MonthlyIncome.Add(ToMonthly(i.Amount, i.Frequency))
	}
	for _, e := range s.Expenses {
		sum.MonthlyExpenses = sum.MonthlyExpenses.Add(ToMonthly(e.Amount, e.Frequency))
	}

	sum.NetWorth = sum.TotalAssets.Sub(sum.TotalLiabilities)
	sum.MonthlyCashFlow = sum.MonthlyIncome.Sub(sum.MonthlyExpenses)

	sum.DebtToIncome = ratio(sum.MonthlyDebtService, sum.MonthlyIncome)
	sum.SavingsRate = ratio(sum.MonthlyCashFlow, sum.MonthlyIncome)
	sum.Liquidity = ratio(sum.LiquidAssets, sum.MonthlyExpenses)
	sum.DebtToAsset = ratio(sum.TotalLiabilities, sum.TotalAssets)

	for _, d := range []*decimal.Decimal{
		&sum.TotalAssets, &sum.LiquidAssets, &sum.TotalLiabilities, &sum.NetWorth,
		&sum.MonthlyIncome, &sum.MonthlyExpenses, &sum.MonthlyDebtService, &sum.MonthlyCashFlow,
	} {
		*d = d.Round(moneyPlaces)
	}
	return sum
}
