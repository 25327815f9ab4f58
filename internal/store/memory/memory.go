// Package memory is the in-memory Repository used for development and tests.
// All mutations go through a single RWMutex; reads hand out copies so callers
// never share slices with the store.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ratanastock/backend/internal/domain"
	"ratanastock/backend/internal/ledger"
	"ratanastock/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	productsByID map[string]domain.Product
	productOrder []string
	transactions map[string]domain.Transaction
	txOrder      []string
	expensesByID map[string]domain.Expense
	expenseOrder []string
	usersByID    map[string]domain.UserAccount
	auditLogs    []domain.AuditLog
	businessInfo domain.BusinessInfo
}

func New() *Store {
	return &Store{
		productsByID: make(map[string]domain.Product),
		transactions: make(map[string]domain.Transaction),
		expensesByID: make(map[string]domain.Expense),
		usersByID:    make(map[string]domain.UserAccount),
		auditLogs:    make([]domain.AuditLog, 0, 128),
		businessInfo: domain.BusinessInfo{
			Name:             "Ratana Bottle & Plastic",
			CurrencySymbol:   "$",
			CurrencyPosition: domain.CurrencyPrefix,
		},
	}
}

// NewSeeded returns a store with a demo catalog and the bootstrap admin and
// staff accounts. Seed credentials come from SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD; hardcoded dev defaults are used otherwise with a
// warning. Production deployments run against PostgreSQL instead.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-bottle-500", Name: "Bottle 500ml", Category: "bottle", SKU: "BTL-500", Stock: 240, PurchasePriceCents: 900, SalePriceCents: 1500, Unit: "pcs", LowStockThreshold: 50, CreatedAt: now},
		{ID: "prod-bottle-1000", Name: "Bottle 1L", Category: "bottle", SKU: "BTL-1000", Stock: 160, PurchasePriceCents: 1400, SalePriceCents: 2200, Unit: "pcs", LowStockThreshold: 40, CreatedAt: now},
		{ID: "prod-cap-28", Name: "Cap 28mm", Category: "cap", SKU: "CAP-28", Stock: 1200, PurchasePriceCents: 60, SalePriceCents: 120, Unit: "pcs", LowStockThreshold: 200, CreatedAt: now},
		{ID: "prod-preform-20g", Name: "Preform 20g", Category: "raw", SKU: "PRF-20", Stock: 800, PurchasePriceCents: 300, SalePriceCents: 520, Unit: "pcs", LowStockThreshold: 150, CreatedAt: now},
		{ID: "prod-label-roll", Name: "Label Roll", Category: "packaging", SKU: "LBL-01", Stock: 35, PurchasePriceCents: 4200, SalePriceCents: 6800, Unit: "roll", LowStockThreshold: 10, CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	for _, u := range seedUsers() {
		s.usersByID[u.ID] = u
	}
	return s
}

func seedUsers() []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, seed := range []struct {
		id       string
		username string
		password string
		fullName string
		role     domain.Role
		perms    domain.Permissions
	}{
		{"user-admin", "admin", adminPwd, "General Manager", domain.RoleAdmin, domain.AllPermissions()},
		{"user-staff", "staff", staffPwd, "Warehouse Staff", domain.RoleStaff, domain.Permissions{Inventory: true, StockIn: true, StockOut: true}},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", seed.username, err)
		}
		users = append(users, domain.UserAccount{
			ID:           seed.id,
			Username:     seed.username,
			PasswordHash: string(hash),
			FullName:     seed.fullName,
			Role:         seed.role,
			Active:       true,
			Permissions:  seed.perms,
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context, search string, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	category = strings.TrimSpace(category)

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.productsByID[id]
		if category != "" && p.Category != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[product.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, id := range s.productOrder {
		if strings.EqualFold(s.productsByID[id].SKU, product.SKU) && product.SKU != "" {
			return nil, store.ErrConflict
		}
	}

	s.productsByID[product.ID] = product
	s.productOrder = append([]string{product.ID}, s.productOrder...)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Stock belongs to the ledger; a catalog edit never changes it.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, deltas map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDeltas(deltas)
	return nil
}

// applyDeltas moves stock; the caller holds the write lock.
func (s *Store) applyDeltas(deltas map[string]int) {
	for id, delta := range deltas {
		p, ok := s.productsByID[id]
		if !ok {
			// Deleted products are skipped, mirroring create-time behavior.
			continue
		}
		p.Stock += delta
		s.productsByID[id] = p
	}
}

func (s *Store) UpdateProductLot(_ context.Context, id string, batchNumber string, expiryDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.productsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if batchNumber != "" {
		p.BatchNumber = batchNumber
	}
	if expiryDate != "" {
		p.ExpiryDate = expiryDate
	}
	s.productsByID[id] = p
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if !matchesFilter(tx, filter) {
			continue
		}
		result = append(result, cloneTransaction(tx))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesFilter(tx domain.Transaction, filter domain.TransactionFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if tx.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		day, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			return false
		}
		if !filter.From.IsZero() && day.Before(filter.From) {
			return false
		}
		if !filter.To.IsZero() && !day.Before(filter.To) {
			return false
		}
	}
	return true
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneTransaction(tx)
	return &copied, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	s.txOrder = append([]string{tx.ID}, s.txOrder...)
	s.applyDeltas(ledger.Deltas(tx))
	created := cloneTransaction(tx)
	return &created, nil
}

// ReplaceTransaction swaps the stored record for the replacement and moves
// stock by the net of the two, all under one lock. Netting against the record
// as stored, not as the caller last saw it, keeps concurrent edits from
// reversing the same deltas twice.
func (s *Store) ReplaceTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.transactions[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	s.applyDeltas(ledger.NetDeltas(old, tx))
	replaced := cloneTransaction(tx)
	return &replaced, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	for i, tid := range s.txOrder {
		if tid == id {
			s.txOrder = append(s.txOrder[:i], s.txOrder[i+1:]...)
			break
		}
	}
	s.applyDeltas(ledger.ReverseDeltas(old))
	return nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id string, status domain.PurchaseOrderStatus) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Type != domain.TxTypePurchaseOrder {
		return nil, store.ErrInvalidInput
	}
	tx.Status = status
	s.transactions[id] = tx
	updated := cloneTransaction(tx)
	return &updated, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time, category string, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category = strings.TrimSpace(category)
	result := make([]domain.Expense, 0, len(s.expenseOrder))
	for _, id := range s.expenseOrder {
		e := s.expensesByID[id]
		if category != "" && e.Category != category {
			continue
		}
		if !from.IsZero() || !to.IsZero() {
			day, err := time.Parse("2006-01-02", e.Date)
			if err != nil {
				continue
			}
			if !from.IsZero() && day.Before(from) {
				continue
			}
			if !to.IsZero() && !day.Before(to) {
				continue
			}
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetExpenseByID(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expensesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := e
	return &copied, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesByID[expense.ID]; exists {
		return nil, store.ErrConflict
	}
	s.expensesByID[expense.ID] = expense
	s.expenseOrder = append([]string{expense.ID}, s.expenseOrder...)
	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expensesByID[expense.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	s.expensesByID[expense.ID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	for i, eid := range s.expenseOrder {
		if eid == id {
			s.expenseOrder = append(s.expenseOrder[:i], s.expenseOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, u := range s.usersByID {
		if strings.ToLower(u.Username) == username {
			copied := u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.usersByID {
		if strings.EqualFold(u.Username, user.Username) {
			return nil, store.ErrConflict
		}
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.Username = existing.Username
	user.CreatedAt = existing.CreatedAt
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append([]domain.AuditLog{entry}, s.auditLogs...)
	if len(s.auditLogs) > store.AuditLogRetention {
		s.auditLogs = s.auditLogs[:store.AuditLogRetention]
	}
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, module string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	module = strings.TrimSpace(module)
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if module != "" && entry.Module != module {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetBusinessInfo(_ context.Context) (*domain.BusinessInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := s.businessInfo
	return &info, nil
}

func (s *Store) SaveBusinessInfo(_ context.Context, info domain.BusinessInfo) (*domain.BusinessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.businessInfo = info
	saved := info
	return &saved, nil
}

func (s *Store) GetReportSummary(_ context.Context, from time.Time, to time.Time) (domain.ReportSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.ReportSummary{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}

	byDay := make(map[string]*domain.DailySales)
	suppliers := make(map[string]int64)

	for _, id := range s.txOrder {
		tx := s.transactions[id]
		day, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			continue
		}
		inRange := (from.IsZero() || !day.Before(from)) && (to.IsZero() || day.Before(to))

		if tx.Type == domain.TxTypePurchaseOrder {
			// Purchase orders are reported on regardless of range bounds the
			// way the dashboard shows them: counts over the filtered window.
			if !inRange {
				continue
			}
			switch tx.Status {
			case domain.POStatusReceived:
				summary.PurchaseOrders.Received++
			case domain.POStatusCancelled:
				summary.PurchaseOrders.Cancelled++
			default:
				summary.PurchaseOrders.Pending++
			}
			summary.PurchaseOrders.TotalCents += tx.TotalCents
			continue
		}
		if !inRange {
			continue
		}

		summary.TransactionCount++
		bucket, ok := byDay[tx.Date]
		if !ok {
			bucket = &domain.DailySales{Date: tx.Date}
			byDay[tx.Date] = bucket
		}

		switch tx.Type {
		case domain.TxTypeSale:
			summary.SalesCents += tx.TotalCents
			bucket.SalesCents += tx.TotalCents
		case domain.TxTypePurchase:
			summary.PurchasesCents += tx.TotalCents
			bucket.PurchasesCents += tx.TotalCents
			suppliers[tx.CounterpartyName] += tx.TotalCents
		case domain.TxTypeOtherOut:
			summary.OtherOutCents += tx.TotalCents
		}
	}

	for _, id := range s.expenseOrder {
		e := s.expensesByID[id]
		day, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			continue
		}
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && !day.Before(to) {
			continue
		}
		summary.ExpensesCents += e.AmountCents
		found := false
		for i := range summary.ExpensesByCategory {
			if summary.ExpensesByCategory[i].Category == e.Category {
				summary.ExpensesByCategory[i].AmountCents += e.AmountCents
				found = true
				break
			}
		}
		if !found {
			summary.ExpensesByCategory = append(summary.ExpensesByCategory, domain.CategoryExpense{
				Category:    e.Category,
				AmountCents: e.AmountCents,
			})
		}
	}

	summary.NetProfitCents = summary.SalesCents - summary.PurchasesCents - summary.ExpensesCents

	summary.SalesByDay = make([]domain.DailySales, 0, len(byDay))
	for _, bucket := range byDay {
		summary.SalesByDay = append(summary.SalesByDay, *bucket)
	}
	sort.Slice(summary.SalesByDay, func(i, j int) bool {
		return summary.SalesByDay[i].Date < summary.SalesByDay[j].Date
	})

	summary.TopSuppliers = make([]domain.SupplierPurchase, 0, len(suppliers))
	for name, amount := range suppliers {
		summary.TopSuppliers = append(summary.TopSuppliers, domain.SupplierPurchase{Name: name, AmountCents: amount})
	}
	sort.Slice(summary.TopSuppliers, func(i, j int) bool {
		if summary.TopSuppliers[i].AmountCents == summary.TopSuppliers[j].AmountCents {
			return summary.TopSuppliers[i].Name < summary.TopSuppliers[j].Name
		}
		return summary.TopSuppliers[i].AmountCents > summary.TopSuppliers[j].AmountCents
	})
	if len(summary.TopSuppliers) > 5 {
		summary.TopSuppliers = summary.TopSuppliers[:5]
	}

	sort.Slice(summary.ExpensesByCategory, func(i, j int) bool {
		return summary.ExpensesByCategory[i].AmountCents > summary.ExpensesByCategory[j].AmountCents
	})

	return summary, nil
}

func (s *Store) GetDashboardSummary(_ context.Context) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.DashboardSummary
	summary.ProductCount = len(s.productsByID)
	for _, p := range s.productsByID {
		summary.TotalStockUnits += p.Stock
		summary.StockValueCents += int64(p.Stock) * p.PurchasePriceCents
		threshold := p.LowStockThreshold
		if threshold <= 0 {
			threshold = domain.DefaultLowStockThreshold
		}
		if p.Stock <= threshold {
			summary.LowStockCount++
		}
	}

	for _, tx := range s.transactions {
		switch tx.Type {
		case domain.TxTypeSale:
			summary.SalesCents += tx.TotalCents
		case domain.TxTypePurchase:
			summary.PurchasesCents += tx.TotalCents
		}
	}
	for _, e := range s.expensesByID {
		summary.ExpensesCents += e.AmountCents
	}
	summary.NetCents = summary.SalesCents - summary.PurchasesCents - summary.ExpensesCents

	return summary, nil
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	copied := src
	copied.Items = make([]domain.TransactionItem, len(src.Items))
	copy(copied.Items, src.Items)
	return copied
}
