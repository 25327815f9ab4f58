package lowstock

import (
	"testing"
	"time"

	"ratanastock/backend/internal/domain"
)

func TestReportFlagsOnlyProductsAtOrBelowThreshold(t *testing.T) {
	now, _ := time.Parse("2006-01-02", "2026-08-28")
	advisor := NewAdvisor(30, 14)

	products := []domain.Product{
		{ID: "low", Name: "Low", Stock: 4, LowStockThreshold: 10, PurchasePriceCents: 900},
		{ID: "ok", Name: "OK", Stock: 50, LowStockThreshold: 10},
		{ID: "default-threshold", Name: "Default", Stock: 5, LowStockThreshold: 0},
	}

	report := advisor.Report(now, products, nil)
	if len(report.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(report.Alerts), report.Alerts)
	}
	// "low" is 6 under threshold, "default-threshold" is exactly at the
	// fallback threshold of 5, so "low" sorts first.
	if report.Alerts[0].ProductID != "low" {
		t.Fatalf("expected deepest shortfall first, got %s", report.Alerts[0].ProductID)
	}
	if report.Alerts[1].Threshold != domain.DefaultLowStockThreshold {
		t.Fatalf("zero threshold must fall back to default, got %d", report.Alerts[1].Threshold)
	}
}

func TestReportSizesReorderFromSalesRate(t *testing.T) {
	now, _ := time.Parse("2006-01-02", "2026-08-28")
	advisor := NewAdvisor(30, 14)

	products := []domain.Product{
		{ID: "p1", Name: "Bottle", Stock: 2, LowStockThreshold: 10, PurchasePriceCents: 900},
	}
	// 60 units sold in the lookback window: 2/day.
	sales := []domain.Transaction{
		{Type: domain.TxTypeSale, Date: "2026-08-20", Items: []domain.TransactionItem{{ProductID: "p1", Quantity: 45}}},
		{Type: domain.TxTypeSale, Date: "2026-08-25", Items: []domain.TransactionItem{{ProductID: "p1", Quantity: 15}}},
		// Outside the window and wrong type, both ignored.
		{Type: domain.TxTypeSale, Date: "2026-06-01", Items: []domain.TransactionItem{{ProductID: "p1", Quantity: 500}}},
		{Type: domain.TxTypePurchase, Date: "2026-08-26", Items: []domain.TransactionItem{{ProductID: "p1", Quantity: 500}}},
	}

	report := advisor.Report(now, products, sales)
	if len(report.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(report.Alerts))
	}
	alert := report.Alerts[0]
	if alert.DailySalesRate != 2 {
		t.Fatalf("expected rate 2/day, got %v", alert.DailySalesRate)
	}
	// ceil(2*14) + threshold 10 - stock 2 = 36.
	if alert.RecommendedQty != 36 {
		t.Fatalf("expected recommended 36, got %d", alert.RecommendedQty)
	}
	if alert.EstimatedCostCents != 36*900 {
		t.Fatalf("expected cost %d, got %d", 36*900, alert.EstimatedCostCents)
	}
}

func TestReportMinimumReorderOfOne(t *testing.T) {
	now, _ := time.Parse("2006-01-02", "2026-08-28")
	advisor := NewAdvisor(30, 14)

	// No sales history and stock already above zero shortfall math.
	products := []domain.Product{
		{ID: "p1", Name: "Slow Mover", Stock: 5, LowStockThreshold: 5},
	}

	report := advisor.Report(now, products, nil)
	if len(report.Alerts) != 1 || report.Alerts[0].RecommendedQty != 1 {
		t.Fatalf("expected minimum reorder of 1, got %+v", report.Alerts)
	}
}
