// Package lowstock builds reorder advice from the catalog and recent sale
// velocity. The advisor is pure over its inputs; callers fetch products and
// transactions and may cache the serialized report.
package lowstock

import (
	"math"
	"sort"
	"time"

	"ratanastock/backend/internal/domain"
)

type Advisor struct {
	lookbackDays int
	coverDays    int
}

func NewAdvisor(lookbackDays int, coverDays int) *Advisor {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if coverDays <= 0 {
		coverDays = 14
	}
	return &Advisor{lookbackDays: lookbackDays, coverDays: coverDays}
}

// LookbackDays tells callers how far back the sale window must reach.
func (a *Advisor) LookbackDays() int {
	return a.lookbackDays
}

// Report flags every product at or below its threshold and sizes a reorder to
// cover the configured window at the observed daily sales rate. Transactions
// other than sales are ignored; quantities for the same product accumulate.
func (a *Advisor) Report(now time.Time, products []domain.Product, recentSales []domain.Transaction) domain.LowStockReport {
	soldQty := make(map[string]int)
	cutoff := now.AddDate(0, 0, -a.lookbackDays)
	for _, tx := range recentSales {
		if tx.Type != domain.TxTypeSale {
			continue
		}
		day, err := time.Parse("2006-01-02", tx.Date)
		if err != nil || day.Before(cutoff) {
			continue
		}
		for _, item := range tx.Items {
			if item.ProductID == "" || item.Quantity <= 0 {
				continue
			}
			soldQty[item.ProductID] += item.Quantity
		}
	}

	alerts := make([]domain.LowStockAlert, 0)
	for _, p := range products {
		threshold := p.LowStockThreshold
		if threshold <= 0 {
			threshold = domain.DefaultLowStockThreshold
		}
		if p.Stock > threshold {
			continue
		}

		rate := float64(soldQty[p.ID]) / float64(a.lookbackDays)
		recommended := int(math.Ceil(rate*float64(a.coverDays))) + threshold - p.Stock
		if recommended < 1 {
			recommended = 1
		}

		alerts = append(alerts, domain.LowStockAlert{
			ProductID:          p.ID,
			Name:               p.Name,
			SKU:                p.SKU,
			Stock:              p.Stock,
			Threshold:          threshold,
			DailySalesRate:     math.Round(rate*100) / 100,
			RecommendedQty:     recommended,
			EstimatedCostCents: int64(recommended) * p.PurchasePriceCents,
		})
	}

	// Most urgent first: deepest shortfall relative to threshold.
	sort.Slice(alerts, func(i, j int) bool {
		di := alerts[i].Stock - alerts[i].Threshold
		dj := alerts[j].Stock - alerts[j].Threshold
		if di == dj {
			return alerts[i].Name < alerts[j].Name
		}
		return di < dj
	})

	return domain.LowStockReport{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Alerts:      alerts,
	}
}
