package ledger

import (
	"testing"

	"ratanastock/backend/internal/domain"
)

func saleOf(productID string, qty int) domain.Transaction {
	return domain.Transaction{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItem{{ProductID: productID, Quantity: qty, UnitPriceCents: 500}},
	}
}

func applyTo(stock map[string]int, deltas map[string]int) {
	for id, delta := range deltas {
		if _, exists := stock[id]; !exists {
			// Products missing from the catalog are skipped, never created.
			continue
		}
		stock[id] += delta
	}
}

func TestDeltasPerType(t *testing.T) {
	items := []domain.TransactionItem{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 2},
		{ProductID: "p1", Quantity: 1},
	}

	purchase := Deltas(domain.Transaction{Type: domain.TxTypePurchase, Items: items})
	if purchase["p1"] != 4 || purchase["p2"] != 2 {
		t.Fatalf("purchase deltas wrong: %v", purchase)
	}

	sale := Deltas(domain.Transaction{Type: domain.TxTypeSale, Items: items})
	if sale["p1"] != -4 || sale["p2"] != -2 {
		t.Fatalf("sale deltas wrong: %v", sale)
	}

	otherOut := Deltas(domain.Transaction{Type: domain.TxTypeOtherOut, Items: items})
	if otherOut["p1"] != -4 || otherOut["p2"] != -2 {
		t.Fatalf("other_out deltas wrong: %v", otherOut)
	}
}

func TestPurchaseOrderNeverMovesStock(t *testing.T) {
	po := domain.Transaction{
		Type:   domain.TxTypePurchaseOrder,
		Status: domain.POStatusPending,
		Items:  []domain.TransactionItem{{ProductID: "p1", Quantity: 100}},
	}

	if got := Deltas(po); len(got) != 0 {
		t.Fatalf("expected no deltas for purchase order, got %v", got)
	}
	if got := ReverseDeltas(po); len(got) != 0 {
		t.Fatalf("expected no reverse deltas for purchase order, got %v", got)
	}
}

func TestReverseDeltasCancelsDeltas(t *testing.T) {
	tx := domain.Transaction{
		Type: domain.TxTypeSale,
		Items: []domain.TransactionItem{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 7},
		},
	}

	stock := map[string]int{"p1": 10, "p2": 10}
	applyTo(stock, Deltas(tx))
	applyTo(stock, ReverseDeltas(tx))

	if stock["p1"] != 10 || stock["p2"] != 10 {
		t.Fatalf("apply+reverse should be identity, got %v", stock)
	}
}

func TestNetDeltasNoOpEdit(t *testing.T) {
	tx := saleOf("p1", 3)
	if net := NetDeltas(tx, tx); len(net) != 0 {
		t.Fatalf("editing a transaction to itself must yield no deltas, got %v", net)
	}
}

func TestNetDeltasOverlappingProducts(t *testing.T) {
	oldTx := saleOf("p1", 3)
	newTx := saleOf("p1", 5)

	net := NetDeltas(oldTx, newTx)
	if net["p1"] != -2 {
		t.Fatalf("expected net -2 for p1, got %v", net)
	}
}

func TestNetDeltasTypeChangeToPurchaseOrder(t *testing.T) {
	oldTx := saleOf("p1", 3)
	newTx := oldTx
	newTx.Type = domain.TxTypePurchaseOrder

	// Old sale reversed (+3), new PO applies nothing.
	net := NetDeltas(oldTx, newTx)
	if net["p1"] != 3 {
		t.Fatalf("expected +3 when sale becomes purchase order, got %v", net)
	}

	// And the other way around: PO realized as a purchase.
	net = NetDeltas(newTx, domain.Transaction{
		Type:  domain.TxTypePurchase,
		Items: newTx.Items,
	})
	if net["p1"] != 3 {
		t.Fatalf("expected +3 when purchase order becomes purchase, got %v", net)
	}
}

// Stock must equal its initial value plus the sum over all currently present
// transactions, no matter which create/edit/delete path produced them.
func TestConservationAcrossOperationOrders(t *testing.T) {
	stock := map[string]int{"P": 10}

	sale := saleOf("P", 3)
	applyTo(stock, Deltas(sale))
	if stock["P"] != 7 {
		t.Fatalf("after sale of 3 expected 7, got %d", stock["P"])
	}

	edited := saleOf("P", 5)
	applyTo(stock, NetDeltas(sale, edited))
	if stock["P"] != 5 {
		t.Fatalf("after edit to 5 expected 5, got %d", stock["P"])
	}

	applyTo(stock, ReverseDeltas(edited))
	if stock["P"] != 10 {
		t.Fatalf("after delete expected 10, got %d", stock["P"])
	}
}

func TestDeleteThenRecreateIdentity(t *testing.T) {
	stock := map[string]int{"P": 10}
	tx := saleOf("P", 4)

	applyTo(stock, Deltas(tx))
	afterCreate := stock["P"]

	applyTo(stock, ReverseDeltas(tx))
	applyTo(stock, Deltas(tx))

	if stock["P"] != afterCreate {
		t.Fatalf("delete+recreate should restore net effect, got %d want %d", stock["P"], afterCreate)
	}
}

func TestMissingProductSkippedWithoutSideEffects(t *testing.T) {
	stock := map[string]int{"present": 10}
	tx := domain.Transaction{
		Type: domain.TxTypeSale,
		Items: []domain.TransactionItem{
			{ProductID: "present", Quantity: 2},
			{ProductID: "deleted-product", Quantity: 99},
		},
	}

	applyTo(stock, Deltas(tx))
	if stock["present"] != 8 {
		t.Fatalf("present product should drop to 8, got %d", stock["present"])
	}
	if _, exists := stock["deleted-product"]; exists {
		t.Fatalf("missing product must not be created")
	}

	applyTo(stock, ReverseDeltas(tx))
	if stock["present"] != 10 {
		t.Fatalf("reversal should restore 10, got %d", stock["present"])
	}
}

func TestStockMayGoNegative(t *testing.T) {
	stock := map[string]int{"P": 2}
	applyTo(stock, Deltas(saleOf("P", 5)))
	if stock["P"] != -3 {
		t.Fatalf("negative stock is permitted, expected -3 got %d", stock["P"])
	}
}

func TestScenarioPurchaseOtherOutDeletePurchase(t *testing.T) {
	stock := map[string]int{"P": 10}

	purchase := domain.Transaction{
		Type:  domain.TxTypePurchase,
		Items: []domain.TransactionItem{{ProductID: "P", Quantity: 20}},
	}
	applyTo(stock, Deltas(purchase))
	if stock["P"] != 30 {
		t.Fatalf("after purchase expected 30, got %d", stock["P"])
	}

	damaged := domain.Transaction{
		Type:  domain.TxTypeOtherOut,
		Items: []domain.TransactionItem{{ProductID: "P", Quantity: 5}},
	}
	applyTo(stock, Deltas(damaged))
	if stock["P"] != 25 {
		t.Fatalf("after damage write-off expected 25, got %d", stock["P"])
	}

	applyTo(stock, ReverseDeltas(purchase))
	if stock["P"] != 5 {
		t.Fatalf("after deleting the purchase expected 5, got %d", stock["P"])
	}
}

func TestComputeTotalsPercentageDiscount(t *testing.T) {
	items := []domain.TransactionItem{
		{ProductID: "p1", Quantity: 2, UnitPriceCents: 1500},
		{ProductID: "p2", Quantity: 1, UnitPriceCents: 1000},
	}

	totals := ComputeTotals(items, domain.DiscountPercentage, 10, 5)
	if totals.SubtotalCents != 4000 {
		t.Fatalf("subtotal expected 4000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountAmountCents != 400 {
		t.Fatalf("discount expected 400, got %d", totals.DiscountAmountCents)
	}
	if totals.TaxAmountCents != 180 {
		t.Fatalf("tax expected 180, got %d", totals.TaxAmountCents)
	}
	if totals.TotalCents != 3780 {
		t.Fatalf("total expected 3780, got %d", totals.TotalCents)
	}
}

func TestComputeTotalsFixedDiscountClampsAtZero(t *testing.T) {
	items := []domain.TransactionItem{{ProductID: "p1", Quantity: 1, UnitPriceCents: 1000}}

	totals := ComputeTotals(items, domain.DiscountFixed, 2500, 10)
	if totals.TotalCents != 0 {
		t.Fatalf("over-discounted total must clamp to zero, got %d", totals.TotalCents)
	}
	if totals.TaxAmountCents != 0 {
		t.Fatalf("tax on a clamped base must be zero, got %d", totals.TaxAmountCents)
	}
}

func TestComputeTotalsNoDiscountNoTax(t *testing.T) {
	items := []domain.TransactionItem{{ProductID: "p1", Quantity: 3, UnitPriceCents: 333}}

	totals := ComputeTotals(items, "", 0, 0)
	if totals.TotalCents != 999 || totals.DiscountAmountCents != 0 || totals.TaxAmountCents != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
