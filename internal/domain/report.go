package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportBucket — агрегат по одному измерению отчёта.
type ReportBucket struct {
	SalesCount int   `json:"sales_count"`
	TotalMinor int64 `json:"total_minor"`
}

// SalesReport — сводка продаж за период.
type SalesReport struct {
	From             time.Time                      `json:"from"`
	To               time.Time                      `json:"to"`
	LocationID       string                         `json:"location_id,omitempty"`
	SalesCount       int                            `json:"sales_count"`
	UnitsSold        int64                          `json:"units_sold"`
	SubtotalMinor    int64                          `json:"subtotal_minor"`
	DiscountMinor    int64                          `json:"discount_minor"`
	TotalMinor       int64                          `json:"total_minor"`
	CostMinor        int64                          `json:"cost_minor"`
	GrossMarginMinor int64                          `json:"gross_margin_minor"`
	GrossMarginPct   decimal.Decimal                `json:"gross_margin_pct"`
	ByPaymentMethod  map[PaymentMethod]ReportBucket `json:"by_payment_method"`
	ByChannel        map[Channel]ReportBucket       `json:"by_channel"`
}

// BuildSalesReport агрегирует продажи в отчёт.
func BuildSalesReport(sales []Sale, from, to time.Time, locationID string) SalesReport {
	report := SalesReport{
		From:            from,
		To:              to,
		LocationID:      locationID,
		ByPaymentMethod: make(map[PaymentMethod]ReportBucket),
		ByChannel:       make(map[Channel]ReportBucket),
	}

	for i := range sales {
		sale := &sales[i]
		report.SalesCount++
		report.UnitsSold += sale.UnitsSold()
		report.SubtotalMinor += sale.SubtotalMinor
		report.DiscountMinor += sale.DiscountMinor
		report.TotalMinor += sale.TotalMinor
		report.CostMinor += sale.CostMinor()

		byMethod := report.ByPaymentMethod[sale.PaymentMethod]
		byMethod.SalesCount++
		byMethod.TotalMinor += sale.TotalMinor
		report.ByPaymentMethod[sale.PaymentMethod] = byMethod

		byChannel := report.ByChannel[sale.Channel]
		byChannel.SalesCount++
		byChannel.TotalMinor += sale.TotalMinor
		report.ByChannel[sale.Channel] = byChannel
	}
	report.GrossMarginMinor = report.TotalMinor - report.CostMinor
	if report.TotalMinor > 0 {
		// Доля маржи в выручке, в процентах с двумя знаками.
		report.GrossMarginPct = decimal.NewFromInt(report.GrossMarginMinor).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(report.TotalMinor), 2)
	}

	return report
}
