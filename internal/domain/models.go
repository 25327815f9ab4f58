package domain

import (
	"fmt"
	"time"
)

type TransactionType string

const (
	TxTypePurchase      TransactionType = "purchase"
	TxTypeSale          TransactionType = "sale"
	TxTypeOtherOut      TransactionType = "other_out"
	TxTypePurchaseOrder TransactionType = "purchase_order"
)

// PurchaseOrderStatus is set only on purchase_order transactions. A purchase
// order never moves stock regardless of status; receiving one is recorded as
// a separate purchase transaction.
type PurchaseOrderStatus string

const (
	POStatusPending   PurchaseOrderStatus = "pending"
	POStatusReceived  PurchaseOrderStatus = "received"
	POStatusCancelled PurchaseOrderStatus = "cancelled"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

const (
	ModuleInventory    = "inventory"
	ModuleTransactions = "transactions"
	ModuleExpenses     = "expenses"
	ModuleUsers        = "users"
	ModuleSettings     = "settings"
)

const DefaultLowStockThreshold = 5

type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	SKU                string    `json:"sku"`
	Stock              int       `json:"stock"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SalePriceCents     int64     `json:"sale_price_cents"`
	Unit               string    `json:"unit"`
	LowStockThreshold  int       `json:"low_stock_threshold"`
	BatchNumber        string    `json:"batch_number,omitempty"`
	ExpiryDate         string    `json:"expiry_date,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name               string `json:"name"`
	Category           string `json:"category"`
	SKU                string `json:"sku"`
	InitialStock       int    `json:"initial_stock"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	SalePriceCents     int64  `json:"sale_price_cents"`
	Unit               string `json:"unit"`
	LowStockThreshold  *int   `json:"low_stock_threshold,omitempty"`
	BatchNumber        string `json:"batch_number,omitempty"`
	ExpiryDate         string `json:"expiry_date,omitempty"`
}

// ProductUpdateRequest edits catalog fields only. Stock is mutated solely by
// the transaction ledger.
type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Category           *string `json:"category,omitempty"`
	SKU                *string `json:"sku,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	SalePriceCents     *int64  `json:"sale_price_cents,omitempty"`
	Unit               *string `json:"unit,omitempty"`
	LowStockThreshold  *int    `json:"low_stock_threshold,omitempty"`
	BatchNumber        *string `json:"batch_number,omitempty"`
	ExpiryDate         *string `json:"expiry_date,omitempty"`
}

type TransactionItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	BatchNumber    string `json:"batch_number,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
}

type Transaction struct {
	ID                  string              `json:"id"`
	Type                TransactionType     `json:"type"`
	Status              PurchaseOrderStatus `json:"status,omitempty"`
	Date                string              `json:"date"`
	DueDate             string              `json:"due_date,omitempty"`
	Items               []TransactionItem   `json:"items"`
	SubtotalCents       int64               `json:"subtotal_cents"`
	DiscountType        DiscountType        `json:"discount_type,omitempty"`
	DiscountValue       float64             `json:"discount_value,omitempty"`
	DiscountAmountCents int64               `json:"discount_amount_cents"`
	TaxRatePercent      float64             `json:"tax_rate_percent,omitempty"`
	TaxAmountCents      int64               `json:"tax_amount_cents"`
	TotalCents          int64               `json:"total_cents"`
	CounterpartyName    string              `json:"counterparty_name"`
	Note                string              `json:"note,omitempty"`
	CreatedBy           string              `json:"created_by,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

type TransactionItemInput struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	BatchNumber    string `json:"batch_number,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
}

type TransactionCreateRequest struct {
	Type             TransactionType        `json:"type"`
	Date             string                 `json:"date"`
	DueDate          string                 `json:"due_date,omitempty"`
	Items            []TransactionItemInput `json:"items"`
	DiscountType     DiscountType           `json:"discount_type,omitempty"`
	DiscountValue    float64                `json:"discount_value,omitempty"`
	TaxRatePercent   float64                `json:"tax_rate_percent,omitempty"`
	CounterpartyName string                 `json:"counterparty_name"`
	Note             string                 `json:"note,omitempty"`
}

// TransactionUpdateRequest replaces the whole transaction; the ledger
// reverses the stored record and applies the replacement as one net delta.
type TransactionUpdateRequest = TransactionCreateRequest

type TransactionStatusRequest struct {
	Status PurchaseOrderStatus `json:"status"`
}

type TransactionFilter struct {
	Types []TransactionType
	From  time.Time
	To    time.Time
	Limit int
}

type Expense struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	AmountCents   int64     `json:"amount_cents"`
	Date          string    `json:"date"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Description   string `json:"description"`
	Category      string `json:"category"`
	AmountCents   int64  `json:"amount_cents"`
	Date          string `json:"date"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Note          string `json:"note,omitempty"`
}

type ExpenseUpdateRequest struct {
	Description   *string `json:"description,omitempty"`
	Category      *string `json:"category,omitempty"`
	AmountCents   *int64  `json:"amount_cents,omitempty"`
	Date          *string `json:"date,omitempty"`
	InvoiceNumber *string `json:"invoice_number,omitempty"`
	Note          *string `json:"note,omitempty"`
}

type Permissions struct {
	Dashboard     bool `json:"dashboard"`
	Inventory     bool `json:"inventory"`
	StockIn       bool `json:"stock_in"`
	StockOut      bool `json:"stock_out"`
	OtherStockOut bool `json:"other_stock_out"`
	Expenses      bool `json:"expenses"`
	Reports       bool `json:"reports"`
}

func AllPermissions() Permissions {
	return Permissions{
		Dashboard:     true,
		Inventory:     true,
		StockIn:       true,
		StockOut:      true,
		OtherStockOut: true,
		Expenses:      true,
		Reports:       true,
	}
}

type UserAccount struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	FullName     string      `json:"full_name"`
	Role         Role        `json:"role"`
	Active       bool        `json:"active"`
	Permissions  Permissions `json:"permissions"`
	CreatedAt    time.Time   `json:"created_at"`
}

// EffectivePermissions resolves the permission set in one place instead of
// scattering the admin special case across call sites. Admin grants every
// module no matter what the stored flags say.
func (u UserAccount) EffectivePermissions() Permissions {
	if u.Role == RoleAdmin {
		return AllPermissions()
	}
	return u.Permissions
}

type UserCreateRequest struct {
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	FullName    string      `json:"full_name"`
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions"`
}

type UserUpdateRequest struct {
	Password    *string      `json:"password,omitempty"`
	FullName    *string      `json:"full_name,omitempty"`
	Role        *Role        `json:"role,omitempty"`
	Active      *bool        `json:"active,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Module    string    `json:"module"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CurrencyPrefix = "prefix"
	CurrencySuffix = "suffix"
)

// BusinessInfo is a singleton settings record used for invoice and report
// rendering.
type BusinessInfo struct {
	Name             string `json:"name"`
	Address          string `json:"address"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	LogoURL          string `json:"logo_url,omitempty"`
	CurrencySymbol   string `json:"currency_symbol"`
	CurrencyPosition string `json:"currency_position"`
}

// FormatAmount renders integer cents with the configured currency symbol on
// the configured side.
func (b BusinessInfo) FormatAmount(cents int64) string {
	value := fmt.Sprintf("%.2f", float64(cents)/100)
	if b.CurrencyPosition == CurrencySuffix {
		return value + b.CurrencySymbol
	}
	return b.CurrencySymbol + value
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	Role        Role        `json:"role"`
	FullName    string      `json:"full_name"`
	Permissions Permissions `json:"permissions"`
	ExpiresAt   string      `json:"expires_at"`
}

type Actor struct {
	ID       string
	Username string
	FullName string
	Role     Role
}

// DisplayName is what mutation records carry as the acting user; accounts
// without a full name fall back to the login name.
func (a Actor) DisplayName() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Username
}

type DailySales struct {
	Date           string `json:"date"`
	SalesCents     int64  `json:"sales_cents"`
	PurchasesCents int64  `json:"purchases_cents"`
}

type CategoryExpense struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

type SupplierPurchase struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

type PurchaseOrderStats struct {
	Pending    int   `json:"pending"`
	Received   int   `json:"received"`
	Cancelled  int   `json:"cancelled"`
	TotalCents int64 `json:"total_cents"`
}

type ReportSummary struct {
	From               string             `json:"from"`
	To                 string             `json:"to"`
	SalesCents         int64              `json:"sales_cents"`
	PurchasesCents     int64              `json:"purchases_cents"`
	OtherOutCents      int64              `json:"other_out_cents"`
	ExpensesCents      int64              `json:"expenses_cents"`
	NetProfitCents     int64              `json:"net_profit_cents"`
	TransactionCount   int64              `json:"transaction_count"`
	SalesByDay         []DailySales       `json:"sales_by_day"`
	ExpensesByCategory []CategoryExpense  `json:"expenses_by_category"`
	TopSuppliers       []SupplierPurchase `json:"top_suppliers"`
	PurchaseOrders     PurchaseOrderStats `json:"purchase_orders"`
}

type DashboardSummary struct {
	ProductCount    int   `json:"product_count"`
	TotalStockUnits int   `json:"total_stock_units"`
	StockValueCents int64 `json:"stock_value_cents"`
	SalesCents      int64 `json:"sales_cents"`
	PurchasesCents  int64 `json:"purchases_cents"`
	ExpensesCents   int64 `json:"expenses_cents"`
	NetCents        int64 `json:"net_cents"`
	LowStockCount   int   `json:"low_stock_count"`
}

type LowStockAlert struct {
	ProductID          string  `json:"product_id"`
	Name               string  `json:"name"`
	SKU                string  `json:"sku"`
	Stock              int     `json:"stock"`
	Threshold          int     `json:"threshold"`
	DailySalesRate     float64 `json:"daily_sales_rate"`
	RecommendedQty     int     `json:"recommended_qty"`
	EstimatedCostCents int64   `json:"estimated_cost_cents"`
}

type LowStockReport struct {
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}
