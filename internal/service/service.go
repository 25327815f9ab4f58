package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ratanastock/backend/internal/cache"
	"ratanastock/backend/internal/domain"
	"ratanastock/backend/internal/ledger"
	"ratanastock/backend/internal/lowstock"
	"ratanastock/backend/internal/store"
	"ratanastock/backend/internal/xid"
)

// ErrPermissionDenied marks an operation the authenticated user's module
// permissions do not cover. The HTTP layer maps it to 403.
var ErrPermissionDenied = errors.New("permission denied")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	cacheKeyDashboard = "report:dashboard"
	cacheKeyLowStock  = "report:lowstock"
)

type Service struct {
	repo        store.Repository
	reportCache cache.ReportCache
	advisor     *lowstock.Advisor
	cacheTTL    time.Duration
}

func New(repo store.Repository, reportCache cache.ReportCache, advisor *lowstock.Advisor, cacheTTL time.Duration) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if advisor == nil {
		advisor = lowstock.NewAdvisor(0, 0)
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:        repo,
		reportCache: reportCache,
		advisor:     advisor,
		cacheTTL:    cacheTTL,
	}
}

// effectivePermissions resolves the caller's module grants from the stored
// account, never from token claims alone, so a permission edit, demotion, or
// deactivation takes effect without waiting for the token to expire.
func (s *Service) effectivePermissions(ctx context.Context) (domain.Permissions, domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Permissions{}, domain.Actor{}, ErrPermissionDenied
	}

	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Permissions{}, actor, ErrPermissionDenied
		}
		return domain.Permissions{}, actor, err
	}
	if !user.Active {
		return domain.Permissions{}, actor, ErrPermissionDenied
	}
	return user.EffectivePermissions(), actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrPermissionDenied
	}

	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, ErrPermissionDenied
		}
		return domain.Actor{}, err
	}
	if !user.Active || user.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrPermissionDenied
	}
	return actor, nil
}

func (s *Service) requireModule(ctx context.Context, allowed func(domain.Permissions) bool) (domain.Actor, error) {
	perms, actor, err := s.effectivePermissions(ctx)
	if err != nil {
		return actor, err
	}
	if !allowed(perms) {
		return actor, ErrPermissionDenied
	}
	return actor, nil
}

func transactionPermission(t domain.TransactionType) func(domain.Permissions) bool {
	switch t {
	case domain.TxTypePurchase, domain.TxTypePurchaseOrder:
		return func(p domain.Permissions) bool { return p.StockIn }
	case domain.TxTypeSale:
		return func(p domain.Permissions) bool { return p.StockOut }
	case domain.TxTypeOtherOut:
		return func(p domain.Permissions) bool { return p.OtherStockOut }
	default:
		return func(domain.Permissions) bool { return false }
	}
}

func (s *Service) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Inventory || p.Dashboard }); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, search, category)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Inventory || p.Dashboard }); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Inventory }); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PurchasePriceCents < 0 || req.SalePriceCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	threshold := domain.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		threshold = *req.LowStockThreshold
	}

	product := domain.Product{
		ID:                 xid.New("prod"),
		Name:               req.Name,
		Category:           req.Category,
		SKU:                req.SKU,
		Stock:              req.InitialStock,
		PurchasePriceCents: req.PurchasePriceCents,
		SalePriceCents:     req.SalePriceCents,
		Unit:               strings.TrimSpace(req.Unit),
		LowStockThreshold:  threshold,
		BatchNumber:        strings.TrimSpace(req.BatchNumber),
		ExpiryDate:         strings.TrimSpace(req.ExpiryDate),
		CreatedAt:          time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "create", domain.ModuleInventory, fmt.Sprintf("product %s (%s) initial stock %d", created.Name, created.ID, created.Stock))
	s.invalidateReportCache(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Inventory }); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.SalePriceCents != nil {
		if *req.SalePriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.BatchNumber != nil {
		updated.BatchNumber = strings.TrimSpace(*req.BatchNumber)
	}
	if req.ExpiryDate != nil {
		updated.ExpiryDate = strings.TrimSpace(*req.ExpiryDate)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "update", domain.ModuleInventory, fmt.Sprintf("product %s (%s)", saved.Name, saved.ID))
	s.invalidateReportCache(ctx)
	return *saved, nil
}

// DeleteProduct removes the catalog entry only. Transactions that reference
// the product keep their line items; the ledger skips the missing id from
// then on.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Inventory }); err != nil {
		return err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "delete", domain.ModuleInventory, fmt.Sprintf("product %s (%s)", existing.Name, existing.ID))
	s.invalidateReportCache(ctx)
	return nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool {
		return p.StockIn || p.StockOut || p.OtherStockOut || p.Dashboard || p.Reports
	}); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool {
		return p.StockIn || p.StockOut || p.OtherStockOut || p.Dashboard || p.Reports
	}); err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// buildTransaction validates the request and assembles the full record with
// computed totals. Line items keep their product id even when the product no
// longer exists; stock application skips those ids later.
func (s *Service) buildTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	switch req.Type {
	case domain.TxTypePurchase, domain.TxTypeSale, domain.TxTypeOtherOut, domain.TxTypePurchaseOrder:
	default:
		return domain.Transaction{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	dueDate := strings.TrimSpace(req.DueDate)
	if dueDate != "" {
		if _, err := time.Parse("2006-01-02", dueDate); err != nil {
			return domain.Transaction{}, store.ErrInvalidInput
		}
	}

	switch req.DiscountType {
	case "", domain.DiscountPercentage, domain.DiscountFixed:
	default:
		return domain.Transaction{}, store.ErrInvalidInput
	}
	if req.DiscountValue < 0 || req.TaxRatePercent < 0 {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	if req.DiscountType == domain.DiscountPercentage && req.DiscountValue > 100 {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	items := make([]domain.TransactionItem, 0, len(req.Items))
	for _, input := range req.Items {
		if strings.TrimSpace(input.ProductID) == "" || input.Quantity < 1 || input.UnitPriceCents < 0 {
			return domain.Transaction{}, store.ErrInvalidInput
		}
		item := domain.TransactionItem{
			ProductID:      strings.TrimSpace(input.ProductID),
			Quantity:       input.Quantity,
			UnitPriceCents: input.UnitPriceCents,
			BatchNumber:    strings.TrimSpace(input.BatchNumber),
			ExpiryDate:     strings.TrimSpace(input.ExpiryDate),
		}
		if product, err := s.repo.GetProductByID(ctx, item.ProductID); err == nil {
			item.ProductName = product.Name
		}
		items = append(items, item)
	}

	totals := ledger.ComputeTotals(items, req.DiscountType, req.DiscountValue, req.TaxRatePercent)

	tx := domain.Transaction{
		ID:                  xid.New("txn"),
		Type:                req.Type,
		Date:                date,
		DueDate:             dueDate,
		Items:               items,
		SubtotalCents:       totals.SubtotalCents,
		DiscountType:        req.DiscountType,
		DiscountValue:       req.DiscountValue,
		DiscountAmountCents: totals.DiscountAmountCents,
		TaxRatePercent:      req.TaxRatePercent,
		TaxAmountCents:      totals.TaxAmountCents,
		TotalCents:          totals.TotalCents,
		CounterpartyName:    strings.TrimSpace(req.CounterpartyName),
		Note:                strings.TrimSpace(req.Note),
		CreatedAt:           time.Now().UTC(),
	}
	if tx.Type == domain.TxTypePurchaseOrder {
		tx.Status = domain.POStatusPending
	}
	return tx, nil
}

func validTransactionType(t domain.TransactionType) bool {
	switch t {
	case domain.TxTypePurchase, domain.TxTypeSale, domain.TxTypeOtherOut, domain.TxTypePurchaseOrder:
		return true
	}
	return false
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	if !validTransactionType(req.Type) {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	actor, err := s.requireModule(ctx, transactionPermission(req.Type))
	if err != nil {
		return domain.Transaction{}, err
	}

	tx, err := s.buildTransaction(ctx, req)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.CreatedBy = actor.DisplayName()

	// The store writes the record and applies its stock deltas as one unit.
	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	if created.Type == domain.TxTypePurchase {
		s.propagateLotInfo(ctx, created.Items)
	}

	s.logAudit(ctx, "create", domain.ModuleTransactions, fmt.Sprintf("%s %s total %d", created.Type, created.ID, created.TotalCents))
	s.invalidateReportCache(ctx)
	return *created, nil
}

// propagateLotInfo copies batch and expiry from received purchase line items
// onto the products. Missing products are skipped like everywhere else in the
// ledger.
func (s *Service) propagateLotInfo(ctx context.Context, items []domain.TransactionItem) {
	for _, item := range items {
		if item.BatchNumber == "" && item.ExpiryDate == "" {
			continue
		}
		err := s.repo.UpdateProductLot(ctx, item.ProductID, item.BatchNumber, item.ExpiryDate)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to update lot info for product %s: %v", item.ProductID, err)
		}
	}
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest) (domain.Transaction, error) {
	if !validTransactionType(req.Type) {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	old, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}

	// Editing needs the permission for both the stored type and the new one;
	// a stock-out clerk must not rewrite a purchase into a sale.
	if _, err := s.requireModule(ctx, transactionPermission(old.Type)); err != nil {
		return domain.Transaction{}, err
	}
	actor, err := s.requireModule(ctx, transactionPermission(req.Type))
	if err != nil {
		return domain.Transaction{}, err
	}

	updated, err := s.buildTransaction(ctx, req)
	if err != nil {
		return domain.Transaction{}, err
	}
	updated.ID = old.ID
	updated.CreatedBy = actor.DisplayName()
	updated.CreatedAt = old.CreatedAt
	if updated.Type == domain.TxTypePurchaseOrder && old.Type == domain.TxTypePurchaseOrder && old.Status != "" {
		updated.Status = old.Status
	}

	// The store swaps the record and nets the stored record's reversal against
	// the replacement in one unit, so stock never passes through a half-edited
	// state even when two edits race.
	replaced, err := s.repo.ReplaceTransaction(ctx, updated)
	if err != nil {
		return domain.Transaction{}, err
	}

	if replaced.Type == domain.TxTypePurchase {
		s.propagateLotInfo(ctx, replaced.Items)
	}

	s.logAudit(ctx, "update", domain.ModuleTransactions, fmt.Sprintf("%s %s total %d", replaced.Type, replaced.ID, replaced.TotalCents))
	s.invalidateReportCache(ctx)
	return *replaced, nil
}

// DeleteTransaction reverses the stock the record applied and removes it.
// Deleting an id that does not exist is a no-op.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	old, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.requireModule(ctx, transactionPermission(old.Type)); err != nil {
		return err
	}

	// Removal and the stock reversal are one store operation.
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	s.logAudit(ctx, "delete", domain.ModuleTransactions, fmt.Sprintf("%s %s total %d", old.Type, old.ID, old.TotalCents))
	s.invalidateReportCache(ctx)
	return nil
}

// UpdatePurchaseOrderStatus moves a purchase order through its lifecycle.
// Status is bookkeeping only; receiving goods is recorded as a separate
// purchase transaction, which is what moves stock.
func (s *Service) UpdatePurchaseOrderStatus(ctx context.Context, id string, status domain.PurchaseOrderStatus) (domain.Transaction, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.StockIn }); err != nil {
		return domain.Transaction{}, err
	}

	switch status {
	case domain.POStatusPending, domain.POStatusReceived, domain.POStatusCancelled:
	default:
		return domain.Transaction{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateTransactionStatus(ctx, id, status)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "update", domain.ModuleTransactions, fmt.Sprintf("purchase order %s status %s", updated.ID, status))
	return *updated, nil
}

func (s *Service) ListExpenses(ctx context.Context, from time.Time, to time.Time, category string, limit int) ([]domain.Expense, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Expenses || p.Reports || p.Dashboard }); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, from, to, category, limit)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Expenses }); err != nil {
		return domain.Expense{}, err
	}

	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if req.Description == "" || req.Category == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.Expense{}, store.ErrInvalidInput
	}

	expense := domain.Expense{
		ID:            xid.New("exp"),
		Description:   req.Description,
		Category:      req.Category,
		AmountCents:   req.AmountCents,
		Date:          date,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "create", domain.ModuleExpenses, fmt.Sprintf("expense %s amount %d", created.ID, created.AmountCents))
	s.invalidateReportCache(ctx)
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Expenses }); err != nil {
		return domain.Expense{}, err
	}

	existing, err := s.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}

	updated := *existing
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if desc == "" {
			return domain.Expense{}, store.ErrInvalidInput
		}
		updated.Description = desc
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Expense{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.AmountCents != nil {
		if *req.AmountCents < 1 {
			return domain.Expense{}, store.ErrInvalidInput
		}
		updated.AmountCents = *req.AmountCents
	}
	if req.Date != nil {
		date := strings.TrimSpace(*req.Date)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return domain.Expense{}, store.ErrInvalidInput
		}
		updated.Date = date
	}
	if req.InvoiceNumber != nil {
		updated.InvoiceNumber = strings.TrimSpace(*req.InvoiceNumber)
	}
	if req.Note != nil {
		updated.Note = strings.TrimSpace(*req.Note)
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "update", domain.ModuleExpenses, fmt.Sprintf("expense %s amount %d", saved.ID, saved.AmountCents))
	s.invalidateReportCache(ctx)
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Expenses }); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "delete", domain.ModuleExpenses, fmt.Sprintf("expense %s", id))
	s.invalidateReportCache(ctx)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.UserAccount{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.FullName == "" {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleStaff {
		return domain.UserAccount{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	user := domain.UserAccount{
		ID:           xid.New("user"),
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		Permissions:  req.Permissions,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, "create", domain.ModuleUsers, fmt.Sprintf("user %s role %s", created.Username, created.Role))
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.UserAccount, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserAccount{}, err
	}

	updated := *existing
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserAccount{}, err
		}
		updated.PasswordHash = string(hash)
	}
	if req.FullName != nil {
		fullName := strings.TrimSpace(*req.FullName)
		if fullName == "" {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		updated.FullName = fullName
	}
	if req.Role != nil {
		if *req.Role != domain.RoleAdmin && *req.Role != domain.RoleStaff {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		// Admins cannot demote themselves; that would strand the account
		// mid-session with admin-only routes.
		if existing.ID == actor.ID && *req.Role != domain.RoleAdmin {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		updated.Role = *req.Role
	}
	if req.Active != nil {
		if existing.ID == actor.ID && !*req.Active {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		updated.Active = *req.Active
	}
	if req.Permissions != nil {
		updated.Permissions = *req.Permissions
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, "update", domain.ModuleUsers, fmt.Sprintf("user %s active=%t role=%s", saved.Username, saved.Active, saved.Role))
	return *saved, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if actor.ID == id {
		return store.ErrInvalidInput
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "delete", domain.ModuleUsers, fmt.Sprintf("user %s", existing.Username))
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, module string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, module, limit)
}

func (s *Service) GetBusinessInfo(ctx context.Context) (domain.BusinessInfo, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.BusinessInfo{}, ErrPermissionDenied
	}
	info, err := s.repo.GetBusinessInfo(ctx)
	if err != nil {
		return domain.BusinessInfo{}, err
	}
	return *info, nil
}

func (s *Service) SaveBusinessInfo(ctx context.Context, info domain.BusinessInfo) (domain.BusinessInfo, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.BusinessInfo{}, err
	}

	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return domain.BusinessInfo{}, store.ErrInvalidInput
	}
	if info.CurrencySymbol == "" {
		info.CurrencySymbol = "$"
	}
	if info.CurrencyPosition != domain.CurrencySuffix {
		info.CurrencyPosition = domain.CurrencyPrefix
	}

	saved, err := s.repo.SaveBusinessInfo(ctx, info)
	if err != nil {
		return domain.BusinessInfo{}, err
	}

	s.logAudit(ctx, "update", domain.ModuleSettings, "business info")
	return *saved, nil
}

func (s *Service) GetReportSummary(ctx context.Context, from time.Time, to time.Time) (domain.ReportSummary, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Reports }); err != nil {
		return domain.ReportSummary{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return domain.ReportSummary{}, store.ErrInvalidInput
	}
	return s.repo.GetReportSummary(ctx, from, to)
}

func (s *Service) GetDashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Dashboard || p.Reports }); err != nil {
		return domain.DashboardSummary{}, err
	}

	if payload, ok, err := s.reportCache.Get(ctx, cacheKeyDashboard); err == nil && ok {
		var cached domain.DashboardSummary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	summary, err := s.repo.GetDashboardSummary(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.reportCache.Set(ctx, cacheKeyDashboard, payload, s.cacheTTL); err != nil {
			log.Printf("[service] WARN: failed to cache dashboard summary: %v", err)
		}
	}
	return summary, nil
}

func (s *Service) GetLowStockReport(ctx context.Context) (domain.LowStockReport, error) {
	if _, err := s.requireModule(ctx, func(p domain.Permissions) bool { return p.Dashboard || p.Inventory || p.Reports }); err != nil {
		return domain.LowStockReport{}, err
	}

	if payload, ok, err := s.reportCache.Get(ctx, cacheKeyLowStock); err == nil && ok {
		var cached domain.LowStockReport
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	products, err := s.repo.ListProducts(ctx, "", "")
	if err != nil {
		return domain.LowStockReport{}, err
	}
	sales, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		Types: []domain.TransactionType{domain.TxTypeSale},
		From:  time.Now().UTC().AddDate(0, 0, -s.advisor.LookbackDays()),
	})
	if err != nil {
		return domain.LowStockReport{}, err
	}

	report := s.advisor.Report(time.Now().UTC(), products, sales)

	if payload, err := json.Marshal(report); err == nil {
		if err := s.reportCache.Set(ctx, cacheKeyLowStock, payload, s.cacheTTL); err != nil {
			log.Printf("[service] WARN: failed to cache low stock report: %v", err)
		}
	}
	return report, nil
}

func (s *Service) invalidateReportCache(ctx context.Context) {
	if err := s.reportCache.Invalidate(ctx, cacheKeyDashboard, cacheKeyLowStock); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, module string, details string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", FullName: "System"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:        xid.New("audit"),
		ActorID:   actor.ID,
		ActorName: actor.Username,
		Action:    action,
		Details:   details,
		Module:    module,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s module=%s: %v", action, module, err)
	}
}
