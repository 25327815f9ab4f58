package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ratanastock/backend/internal/domain"
	"ratanastock/backend/internal/lowstock"
	"ratanastock/backend/internal/store"
	"ratanastock/backend/internal/store/memory"
)

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:       "user-admin",
		Username: "admin",
		FullName: "General Manager",
		Role:     domain.RoleAdmin,
	})
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	if _, err := repo.CreateUser(context.Background(), domain.UserAccount{
		ID:        "user-admin",
		Username:  "admin",
		FullName:  "General Manager",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	svc := New(repo, nil, lowstock.NewAdvisor(30, 14), time.Minute)
	return svc, repo
}

func seedProduct(t *testing.T, repo *memory.Store, id string, stock int) {
	t.Helper()
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		ID:                 id,
		Name:               "Bottle 500ml",
		Category:           "bottle",
		SKU:                "SKU-" + id,
		Stock:              stock,
		PurchasePriceCents: 900,
		SalePriceCents:     1500,
		Unit:               "pcs",
		LowStockThreshold:  5,
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func productStock(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	p, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Stock
}

func TestCreateTransactionMovesStockPerType(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	purchase, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:             domain.TxTypePurchase,
		Items:            []domain.TransactionItemInput{{ProductID: "p1", Quantity: 20, UnitPriceCents: 900}},
		CounterpartyName: "Acme Plastics",
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if got := productStock(t, repo, "p1"); got != 30 {
		t.Fatalf("after purchase expected stock 30, got %d", got)
	}
	if purchase.TotalCents != 20*900 {
		t.Fatalf("purchase total expected %d, got %d", 20*900, purchase.TotalCents)
	}
	if purchase.CreatedBy != "General Manager" {
		t.Fatalf("expected created_by to carry the display name, got %q", purchase.CreatedBy)
	}

	_, err = svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeOtherOut,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 5}},
		Note:  "damaged in transit",
	})
	if err != nil {
		t.Fatalf("create other_out: %v", err)
	}
	if got := productStock(t, repo, "p1"); got != 25 {
		t.Fatalf("after write-off expected stock 25, got %d", got)
	}

	if err := svc.DeleteTransaction(ctx, purchase.ID); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}
	if got := productStock(t, repo, "p1"); got != 5 {
		t.Fatalf("after deleting the purchase expected stock 5, got %d", got)
	}
}

func TestPurchaseOrderRecordsIntentOnly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	po, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:             domain.TxTypePurchaseOrder,
		Items:            []domain.TransactionItemInput{{ProductID: "p1", Quantity: 100, UnitPriceCents: 900}},
		CounterpartyName: "Acme Plastics",
		DueDate:          "2026-09-30",
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}
	if po.Status != domain.POStatusPending {
		t.Fatalf("new purchase order must be pending, got %s", po.Status)
	}
	if got := productStock(t, repo, "p1"); got != 10 {
		t.Fatalf("purchase order must not move stock, got %d", got)
	}

	received, err := svc.UpdatePurchaseOrderStatus(ctx, po.ID, domain.POStatusReceived)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if received.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", received.Status)
	}
	if got := productStock(t, repo, "p1"); got != 10 {
		t.Fatalf("status change must not move stock, got %d", got)
	}
}

func TestUpdateTransactionAppliesNetDelta(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	sale, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := productStock(t, repo, "p1"); got != 7 {
		t.Fatalf("after sale of 3 expected 7, got %d", got)
	}

	edited, err := svc.UpdateTransaction(ctx, sale.ID, domain.TransactionUpdateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 5, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if got := productStock(t, repo, "p1"); got != 5 {
		t.Fatalf("after edit to 5 expected 5, got %d", got)
	}
	if edited.ID != sale.ID || edited.CreatedBy != sale.CreatedBy {
		t.Fatalf("edit must keep identity, got %+v", edited)
	}
	if edited.TotalCents != 5*1500 {
		t.Fatalf("edited total expected %d, got %d", 5*1500, edited.TotalCents)
	}
}

func TestUpdateTransactionReannotatesActingUser(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "p1", 10)

	sale, err := svc.CreateTransaction(adminCtx(), domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.CreatedBy != "General Manager" {
		t.Fatalf("expected creator display name, got %q", sale.CreatedBy)
	}

	clerk := domain.UserAccount{
		ID:          "user-clerk",
		Username:    "clerk",
		FullName:    "Floor Supervisor",
		Role:        domain.RoleStaff,
		Active:      true,
		Permissions: domain.Permissions{StockOut: true},
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := repo.CreateUser(context.Background(), clerk); err != nil {
		t.Fatalf("seed clerk: %v", err)
	}
	clerkCtx := WithActor(context.Background(), domain.Actor{
		ID: clerk.ID, Username: clerk.Username, FullName: clerk.FullName, Role: domain.RoleStaff,
	})

	edited, err := svc.UpdateTransaction(clerkCtx, sale.ID, domain.TransactionUpdateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 4, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if edited.CreatedBy != "Floor Supervisor" {
		t.Fatalf("edit must carry the editing user's display name, got %q", edited.CreatedBy)
	}

	stored, err := repo.GetTransactionByID(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if stored.CreatedBy != "Floor Supervisor" {
		t.Fatalf("stored record must carry the editing user's display name, got %q", stored.CreatedBy)
	}
}

func TestDeleteAbsentTransactionIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.DeleteTransaction(adminCtx(), "txn-does-not-exist"); err != nil {
		t.Fatalf("deleting an absent transaction must be a no-op, got %v", err)
	}
}

func TestTransactionWithDeletedProductSkipsStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "present", 10)

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type: domain.TxTypeSale,
		Items: []domain.TransactionItemInput{
			{ProductID: "present", Quantity: 2, UnitPriceCents: 1500},
			{ProductID: "ghost", Quantity: 99, UnitPriceCents: 1500},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if got := productStock(t, repo, "present"); got != 8 {
		t.Fatalf("present product expected 8, got %d", got)
	}
	if _, err := repo.GetProductByID(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing product must not be created, got %v", err)
	}
}

func TestPurchasePropagatesBatchAndExpiry(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 0)

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type: domain.TxTypePurchase,
		Items: []domain.TransactionItemInput{{
			ProductID:      "p1",
			Quantity:       10,
			UnitPriceCents: 900,
			BatchNumber:    "B-2026-08",
			ExpiryDate:     "2027-02-01",
		}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	p, err := repo.GetProductByID(ctx, "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.BatchNumber != "B-2026-08" || p.ExpiryDate != "2027-02-01" {
		t.Fatalf("lot info not propagated, got %q %q", p.BatchNumber, p.ExpiryDate)
	}
}

func TestStaffPermissionsGateTransactionTypes(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "p1", 10)

	staff := domain.UserAccount{
		ID:       "user-staff",
		Username: "staff",
		FullName: "Clerk",
		Role:     domain.RoleStaff,
		Active:   true,
		Permissions: domain.Permissions{
			StockOut: true,
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := repo.CreateUser(context.Background(), staff); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	ctx := WithActor(context.Background(), domain.Actor{
		ID: staff.ID, Username: staff.Username, Role: domain.RoleStaff,
	})

	// Sale allowed.
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: 1500}},
	}); err != nil {
		t.Fatalf("sale should be allowed for stock_out permission: %v", err)
	}

	// Purchase denied.
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypePurchase,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: 900}},
	}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("purchase should be denied, got %v", err)
	}

	// Users module is admin only.
	if _, err := svc.ListUsers(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("user listing should be denied for staff, got %v", err)
	}
}

func TestInactiveStaffIsDenied(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "p1", 10)

	staff := domain.UserAccount{
		ID:          "user-gone",
		Username:    "gone",
		Role:        domain.RoleStaff,
		Active:      false,
		Permissions: domain.AllPermissions(),
	}
	if _, err := repo.CreateUser(context.Background(), staff); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	ctx := WithActor(context.Background(), domain.Actor{ID: staff.ID, Username: staff.Username, Role: domain.RoleStaff})

	if _, err := svc.ListProducts(ctx, "", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("inactive account must be denied, got %v", err)
	}
}

func TestAdminCannotDeleteOwnAccount(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.DeleteUser(adminCtx(), "user-admin"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("self deletion must be rejected, got %v", err)
	}
}

func TestDeactivatedAdminLosesAccess(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	admin, err := repo.GetUserByID(context.Background(), "user-admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	deactivated := *admin
	deactivated.Active = false
	if _, err := repo.UpdateUser(context.Background(), deactivated); err != nil {
		t.Fatalf("deactivate admin: %v", err)
	}

	// The token is still valid; the stored account is not.
	if _, err := svc.ListUsers(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("deactivated admin must lose user management, got %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: 1500}},
	}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("deactivated admin must lose transactions, got %v", err)
	}
}

func TestDeletedAdminLosesAccess(t *testing.T) {
	svc, repo := newTestService(t)

	other := domain.UserAccount{
		ID:        "user-owner",
		Username:  "owner",
		FullName:  "Owner",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := repo.CreateUser(context.Background(), other); err != nil {
		t.Fatalf("seed second admin: %v", err)
	}
	if err := svc.DeleteUser(adminCtx(), other.ID); err != nil {
		t.Fatalf("delete second admin: %v", err)
	}

	goneCtx := WithActor(context.Background(), domain.Actor{
		ID: other.ID, Username: other.Username, Role: domain.RoleAdmin,
	})
	if _, err := svc.ListUsers(goneCtx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("deleted admin account must be denied, got %v", err)
	}
}

func TestTransactionValidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	cases := []domain.TransactionCreateRequest{
		{Type: "bogus", Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}},
		{Type: domain.TxTypeSale},
		{Type: domain.TxTypeSale, Items: []domain.TransactionItemInput{{ProductID: "", Quantity: 1}}},
		{Type: domain.TxTypeSale, Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 0}}},
		{Type: domain.TxTypeSale, Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: -1}}},
		{Type: domain.TxTypeSale, Date: "31-12-2026", Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}},
		{Type: domain.TxTypeSale, DiscountType: "half-off", Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}},
		{Type: domain.TxTypeSale, DiscountType: domain.DiscountPercentage, DiscountValue: 150, Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}},
	}
	for i, req := range cases {
		if _, err := svc.CreateTransaction(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	if got := productStock(t, repo, "p1"); got != 10 {
		t.Fatalf("rejected transactions must not move stock, got %d", got)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	created, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Electricity bill",
		Category:    "utilities",
		AmountCents: 25000,
		Date:        "2026-08-15",
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	newAmount := int64(27500)
	updated, err := svc.UpdateExpense(ctx, created.ID, domain.ExpenseUpdateRequest{AmountCents: &newAmount})
	if err != nil {
		t.Fatalf("update expense: %v", err)
	}
	if updated.AmountCents != 27500 {
		t.Fatalf("expected 27500, got %d", updated.AmountCents)
	}

	if err := svc.DeleteExpense(ctx, created.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if err := svc.DeleteExpense(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: 1500}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, domain.ModuleTransactions, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "create" || logs[0].ActorName != "admin" {
		t.Fatalf("unexpected audit trail %+v", logs)
	}
}

func TestDashboardSummaryReflectsLedger(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 10)

	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 2, UnitPriceCents: 1500}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	summary, err := svc.GetDashboardSummary(ctx)
	if err != nil {
		t.Fatalf("dashboard summary: %v", err)
	}
	if summary.SalesCents != 3000 {
		t.Fatalf("expected sales 3000, got %d", summary.SalesCents)
	}
	if summary.TotalStockUnits != 8 {
		t.Fatalf("expected 8 units on hand, got %d", summary.TotalStockUnits)
	}
}

func TestLowStockReportFlagsShortfall(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 6)

	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1500}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	report, err := svc.GetLowStockReport(ctx)
	if err != nil {
		t.Fatalf("low stock report: %v", err)
	}
	if len(report.Alerts) != 1 || report.Alerts[0].ProductID != "p1" {
		t.Fatalf("expected p1 flagged, got %+v", report.Alerts)
	}
}

func TestLowStockRateCoversConfiguredLookback(t *testing.T) {
	repo := memory.New()
	if _, err := repo.CreateUser(context.Background(), domain.UserAccount{
		ID:        "user-admin",
		Username:  "admin",
		FullName:  "General Manager",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	svc := New(repo, nil, lowstock.NewAdvisor(60, 14), time.Minute)
	ctx := adminCtx()
	seedProduct(t, repo, "p1", 2)

	// A sale 45 days back sits inside a 60-day lookback and must count
	// toward the daily rate.
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Type:  domain.TxTypeSale,
		Date:  time.Now().UTC().AddDate(0, 0, -45).Format("2006-01-02"),
		Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 9, UnitPriceCents: 1500}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	report, err := svc.GetLowStockReport(ctx)
	if err != nil {
		t.Fatalf("low stock report: %v", err)
	}
	if len(report.Alerts) != 1 {
		t.Fatalf("expected one alert, got %+v", report.Alerts)
	}
	if got := report.Alerts[0].DailySalesRate; got != 0.15 {
		t.Fatalf("expected rate 9/60 = 0.15, got %v", got)
	}
}
