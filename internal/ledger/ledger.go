// Package ledger holds the stock-mutation arithmetic: the per-product deltas
// a transaction applies to the catalog, their reversal, and the net delta of
// an edit. Everything here is pure; applying deltas to stored stock is the
// repository's job.
package ledger

import (
	"math"

	"ratanastock/backend/internal/domain"
)

// direction is the sign a transaction type applies to stock. Purchase orders
// record intent only and never move stock.
func direction(t domain.TransactionType) int {
	switch t {
	case domain.TxTypePurchase:
		return 1
	case domain.TxTypeSale, domain.TxTypeOtherOut:
		return -1
	default:
		return 0
	}
}

// Deltas computes the per-product stock change created by tx. Quantities for
// the same product across multiple line items accumulate. An empty map means
// the transaction does not touch stock.
func Deltas(tx domain.Transaction) map[string]int {
	sign := direction(tx.Type)
	if sign == 0 {
		return map[string]int{}
	}

	deltas := make(map[string]int, len(tx.Items))
	for _, item := range tx.Items {
		if item.ProductID == "" || item.Quantity == 0 {
			continue
		}
		deltas[item.ProductID] += sign * item.Quantity
	}
	return deltas
}

// ReverseDeltas is the exact inverse of Deltas: applying both to the same
// catalog is a no-op.
func ReverseDeltas(tx domain.Transaction) map[string]int {
	deltas := Deltas(tx)
	for id, delta := range deltas {
		deltas[id] = -delta
	}
	return deltas
}

// NetDeltas folds the reversal of oldTx and the application of newTx into a
// single delta map so a product referenced by both receives its net change in
// one pass. Each phase checks its own transaction's type, so edits that flip
// to or from purchase_order skip or include stock movement correctly.
func NetDeltas(oldTx domain.Transaction, newTx domain.Transaction) map[string]int {
	net := ReverseDeltas(oldTx)
	for id, delta := range Deltas(newTx) {
		net[id] += delta
	}
	for id, delta := range net {
		if delta == 0 {
			delete(net, id)
		}
	}
	return net
}

// Totals is the money arithmetic of a transaction.
type Totals struct {
	SubtotalCents       int64
	DiscountAmountCents int64
	TaxAmountCents      int64
	TotalCents          int64
}

// ComputeTotals resolves the discount (percentage of the subtotal or a fixed
// cent amount), clamps the discounted base at zero, and adds tax on the
// clamped base: total = max(0, subtotal - discount) + tax.
func ComputeTotals(items []domain.TransactionItem, discountType domain.DiscountType, discountValue float64, taxRatePercent float64) Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.UnitPriceCents
	}

	var discount int64
	switch discountType {
	case domain.DiscountPercentage:
		discount = int64(math.Round(float64(subtotal) * discountValue / 100))
	case domain.DiscountFixed:
		discount = int64(math.Round(discountValue))
	}

	base := subtotal - discount
	if base < 0 {
		base = 0
	}
	tax := int64(math.Round(float64(base) * taxRatePercent / 100))

	return Totals{
		SubtotalCents:       subtotal,
		DiscountAmountCents: discount,
		TaxAmountCents:      tax,
		TotalCents:          base + tax,
	}
}
