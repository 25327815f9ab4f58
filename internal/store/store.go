package store

import (
	"context"
	"errors"
	"time"

	"ratanastock/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// AuditLogRetention caps the audit trail; implementations discard the oldest
// entries past this count.
const AuditLogRetention = 1000

// Repository is the single mutation boundary for all persisted state. Reads
// return snapshots.
type Repository interface {
	ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock applies per-product deltas. Unknown product ids are
	// silently skipped and stock is allowed to go negative.
	AdjustStock(ctx context.Context, deltas map[string]int) error
	// UpdateProductLot sets the batch/expiry carried by a received purchase
	// line item onto the product. Empty arguments leave the field unchanged.
	UpdateProductLot(ctx context.Context, id string, batchNumber string, expiryDate string) error

	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	// CreateTransaction writes the record and applies its ledger deltas as
	// one atomic operation.
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// ReplaceTransaction swaps the stored record for tx and applies the net
	// of the stored record's reversal and tx's deltas atomically. The net is
	// computed against the record as stored at swap time, not the caller's
	// last read, so concurrent edits cannot double-reverse.
	ReplaceTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// DeleteTransaction removes the record and reverses its ledger deltas
	// atomically.
	DeleteTransaction(ctx context.Context, id string) error
	UpdateTransactionStatus(ctx context.Context, id string, status domain.PurchaseOrderStatus) (*domain.Transaction, error)

	ListExpenses(ctx context.Context, from time.Time, to time.Time, category string, limit int) ([]domain.Expense, error)
	GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, module string, limit int) ([]domain.AuditLog, error)

	GetBusinessInfo(ctx context.Context) (*domain.BusinessInfo, error)
	SaveBusinessInfo(ctx context.Context, info domain.BusinessInfo) (*domain.BusinessInfo, error)

	GetReportSummary(ctx context.Context, from time.Time, to time.Time) (domain.ReportSummary, error)
	GetDashboardSummary(ctx context.Context) (domain.DashboardSummary, error)
}
