package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ratanastock/backend/internal/domain"
	"ratanastock/backend/internal/ledger"
	"ratanastock/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	search = strings.TrimSpace(search)
	category = strings.TrimSpace(category)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, sku, stock, purchase_price_cents, sale_price_cents,
			unit, low_stock_threshold, batch_number, expiry_date, created_at
		FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
			AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC
	`, search, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var batch sql.NullString
	var expiry sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.SKU, &p.Stock, &p.PurchasePriceCents,
		&p.SalePriceCents, &p.Unit, &p.LowStockThreshold, &batch, &expiry, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if batch.Valid {
		p.BatchNumber = batch.String
	}
	if expiry.Valid {
		p.ExpiryDate = expiry.Time.UTC().Format("2006-01-02")
	}
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, sku, stock, purchase_price_cents, sale_price_cents,
			unit, low_stock_threshold, batch_number, expiry_date, created_at
		FROM products
		WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, category, sku, stock, purchase_price_cents, sale_price_cents,
			unit, low_stock_threshold, batch_number, expiry_date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Name, product.Category, product.SKU, product.Stock,
		product.PurchasePriceCents, product.SalePriceCents, product.Unit,
		product.LowStockThreshold, nullIfEmpty(product.BatchNumber),
		nullDateString(product.ExpiryDate), product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	// Stock is deliberately absent from the SET list; only AdjustStock moves it.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, sku = $4, purchase_price_cents = $5,
			sale_price_cents = $6, unit = $7, low_stock_threshold = $8,
			batch_number = $9, expiry_date = $10
		WHERE id = $1
		RETURNING id, name, category, sku, stock, purchase_price_cents, sale_price_cents,
			unit, low_stock_threshold, batch_number, expiry_date, created_at
	`, product.ID, product.Name, product.Category, product.SKU,
		product.PurchasePriceCents, product.SalePriceCents, product.Unit,
		product.LowStockThreshold, nullIfEmpty(product.BatchNumber),
		nullDateString(product.ExpiryDate))

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyDeltas(ctx, tx, deltas); err != nil {
		return err
	}
	return tx.Commit()
}

func applyDeltas(ctx context.Context, tx *sql.Tx, deltas map[string]int) error {
	for id, delta := range deltas {
		if delta == 0 {
			continue
		}
		// Unknown ids affect zero rows, which is the skip behavior we want.
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2 WHERE id = $1
		`, id, delta)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateProductLot(ctx context.Context, id string, batchNumber string, expiryDate string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET batch_number = COALESCE(NULLIF($2, ''), batch_number),
			expiry_date = COALESCE($3, expiry_date)
		WHERE id = $1
	`, id, batchNumber, nullDateString(expiryDate))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, status, date, due_date, items, subtotal_cents, discount_type,
			discount_value, discount_amount_cents, tax_rate_percent, tax_amount_cents,
			total_cents, counterparty_name, note, created_by, created_at
		FROM transactions
		WHERE (cardinality($1::text[]) = 0 OR type = ANY($1))
			AND ($2::date IS NULL OR date >= $2)
			AND ($3::date IS NULL OR date < $3)
		ORDER BY date DESC, created_at DESC
		LIMIT $4
	`, types, nullZeroTime(filter.From), nullZeroTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var status, discountType, note, createdBy sql.NullString
	var date, dueDate sql.NullTime
	var itemsRaw []byte

	err := row.Scan(&tx.ID, &tx.Type, &status, &date, &dueDate, &itemsRaw,
		&tx.SubtotalCents, &discountType, &tx.DiscountValue, &tx.DiscountAmountCents,
		&tx.TaxRatePercent, &tx.TaxAmountCents, &tx.TotalCents,
		&tx.CounterpartyName, &note, &createdBy, &tx.CreatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.CreatedAt = tx.CreatedAt.UTC()
	if status.Valid {
		tx.Status = domain.PurchaseOrderStatus(status.String)
	}
	if discountType.Valid {
		tx.DiscountType = domain.DiscountType(discountType.String)
	}
	if note.Valid {
		tx.Note = note.String
	}
	if createdBy.Valid {
		tx.CreatedBy = createdBy.String
	}
	if date.Valid {
		tx.Date = date.Time.UTC().Format("2006-01-02")
	}
	if dueDate.Valid {
		tx.DueDate = dueDate.Time.UTC().Format("2006-01-02")
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &tx.Items); err != nil {
			return domain.Transaction{}, err
		}
	}
	return tx, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, date, due_date, items, subtotal_cents, discount_type,
			discount_value, discount_amount_cents, tax_rate_percent, tax_amount_cents,
			total_cents, counterparty_name, note, created_by, created_at
		FROM transactions
		WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}

	dbtx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, type, status, date, due_date, items, subtotal_cents, discount_type,
			discount_value, discount_amount_cents, tax_rate_percent, tax_amount_cents,
			total_cents, counterparty_name, note, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, tx.ID, tx.Type, nullIfEmpty(string(tx.Status)), nullDateString(tx.Date),
		nullDateString(tx.DueDate), itemsJSON, tx.SubtotalCents,
		nullIfEmpty(string(tx.DiscountType)), tx.DiscountValue, tx.DiscountAmountCents,
		tx.TaxRatePercent, tx.TaxAmountCents, tx.TotalCents, tx.CounterpartyName,
		nullIfEmpty(tx.Note), nullIfEmpty(tx.CreatedBy), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	// Record and stock effect commit together; a crash leaves neither.
	if err := applyDeltas(ctx, dbtx, ledger.Deltas(tx)); err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

// lockTransactionRow reads a transaction inside dbtx with FOR UPDATE so
// concurrent replace and delete calls on the same record serialize.
func lockTransactionRow(ctx context.Context, dbtx *sql.Tx, id string) (domain.Transaction, error) {
	row := dbtx.QueryRowContext(ctx, `
		SELECT id, type, status, date, due_date, items, subtotal_cents, discount_type,
			discount_value, discount_amount_cents, tax_rate_percent, tax_amount_cents,
			total_cents, counterparty_name, note, created_by, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id)

	old, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, store.ErrNotFound
		}
		return domain.Transaction{}, err
	}
	return old, nil
}

// ReplaceTransaction swaps the stored record and nets its reversal against the
// replacement's deltas in one database transaction. The old record is read
// under a row lock, so a racing edit nets against what the first edit wrote
// rather than against a stale copy.
func (s *Store) ReplaceTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}

	dbtx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	old, err := lockTransactionRow(ctx, dbtx, tx.ID)
	if err != nil {
		return nil, err
	}

	_, err = dbtx.ExecContext(ctx, `
		UPDATE transactions
		SET type = $2, status = $3, date = $4, due_date = $5, items = $6,
			subtotal_cents = $7, discount_type = $8, discount_value = $9,
			discount_amount_cents = $10, tax_rate_percent = $11, tax_amount_cents = $12,
			total_cents = $13, counterparty_name = $14, note = $15, created_by = $16
		WHERE id = $1
	`, tx.ID, tx.Type, nullIfEmpty(string(tx.Status)), nullDateString(tx.Date),
		nullDateString(tx.DueDate), itemsJSON, tx.SubtotalCents,
		nullIfEmpty(string(tx.DiscountType)), tx.DiscountValue, tx.DiscountAmountCents,
		tx.TaxRatePercent, tx.TaxAmountCents, tx.TotalCents, tx.CounterpartyName,
		nullIfEmpty(tx.Note), nullIfEmpty(tx.CreatedBy))
	if err != nil {
		return nil, err
	}

	if err := applyDeltas(ctx, dbtx, ledger.NetDeltas(old, tx)); err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, err
	}

	replaced := tx
	return &replaced, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	dbtx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = dbtx.Rollback() }()

	old, err := lockTransactionRow(ctx, dbtx, id)
	if err != nil {
		return err
	}

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return err
	}
	if err := applyDeltas(ctx, dbtx, ledger.ReverseDeltas(old)); err != nil {
		return err
	}
	return dbtx.Commit()
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status domain.PurchaseOrderStatus) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2 WHERE id = $1 AND type = $3
	`, id, status, domain.TxTypePurchaseOrder)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing row from a transaction of the wrong type.
		if _, err := s.GetTransactionByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}
	return s.GetTransactionByID(ctx, id)
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time, category string, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 200
	}
	category = strings.TrimSpace(category)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, category, amount_cents, date, invoice_number, note, created_at
		FROM expenses
		WHERE ($1 = '' OR category = $1)
			AND ($2::date IS NULL OR date >= $2)
			AND ($3::date IS NULL OR date < $3)
		ORDER BY date DESC, created_at DESC
		LIMIT $4
	`, category, nullZeroTime(from), nullZeroTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, limit)
	for rows.Next() {
		var e domain.Expense
		var date sql.NullTime
		var invoice, note sql.NullString
		if err := rows.Scan(&e.ID, &e.Description, &e.Category, &e.AmountCents, &date, &invoice, &note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		if date.Valid {
			e.Date = date.Time.UTC().Format("2006-01-02")
		}
		if invoice.Valid {
			e.InvoiceNumber = invoice.String
		}
		if note.Valid {
			e.Note = note.String
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	var date sql.NullTime
	var invoice, note sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, category, amount_cents, date, invoice_number, note, created_at
		FROM expenses
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Description, &e.Category, &e.AmountCents, &date, &invoice, &note, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if date.Valid {
		e.Date = date.Time.UTC().Format("2006-01-02")
	}
	if invoice.Valid {
		e.InvoiceNumber = invoice.String
	}
	if note.Valid {
		e.Note = note.String
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, description, category, amount_cents, date, invoice_number, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, expense.ID, expense.Description, expense.Category, expense.AmountCents,
		nullDateString(expense.Date), nullIfEmpty(expense.InvoiceNumber),
		nullIfEmpty(expense.Note), expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET description = $2, category = $3, amount_cents = $4, date = $5,
			invoice_number = $6, note = $7
		WHERE id = $1
	`, expense.ID, expense.Description, expense.Category, expense.AmountCents,
		nullDateString(expense.Date), nullIfEmpty(expense.InvoiceNumber),
		nullIfEmpty(expense.Note))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, full_name, role, active, permissions, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	var permsRaw []byte
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Active, &permsRaw, &u.CreatedAt)
	if err != nil {
		return domain.UserAccount{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	if len(permsRaw) > 0 {
		if err := json.Unmarshal(permsRaw, &u.Permissions); err != nil {
			return domain.UserAccount{}, err
		}
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, full_name, role, active, permissions, created_at
		FROM users
		WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, full_name, role, active, permissions, created_at
		FROM users
		WHERE lower(username) = lower($1)
	`, strings.TrimSpace(username))

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	permsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, full_name, role, active, permissions, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Username, user.PasswordHash, user.FullName, user.Role, user.Active, permsJSON, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	permsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, full_name = $3, role = $4, active = $5, permissions = $6
		WHERE id = $1
	`, user.ID, user.PasswordHash, user.FullName, user.Role, user.Active, permsJSON)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_name, action, details, module, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ActorID, entry.ActorName, entry.Action, entry.Details, entry.Module, entry.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM audit_logs
		WHERE id NOT IN (
			SELECT id FROM audit_logs ORDER BY created_at DESC LIMIT $1
		)
	`, store.AuditLogRetention)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListAuditLogs(ctx context.Context, module string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > store.AuditLogRetention {
		limit = store.AuditLogRetention
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, action, details, module, created_at
		FROM audit_logs
		WHERE ($1 = '' OR module = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, strings.TrimSpace(module), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorName, &entry.Action, &entry.Details, &entry.Module, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetBusinessInfo(ctx context.Context) (*domain.BusinessInfo, error) {
	var info domain.BusinessInfo
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, address, phone, email, logo_url, currency_symbol, currency_position
		FROM business_info
		WHERE id = 1
	`).Scan(&info.Name, &info.Address, &info.Phone, &info.Email, &logo, &info.CurrencySymbol, &info.CurrencyPosition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.BusinessInfo{CurrencySymbol: "$", CurrencyPosition: domain.CurrencyPrefix}, nil
		}
		return nil, err
	}
	if logo.Valid {
		info.LogoURL = logo.String
	}
	return &info, nil
}

func (s *Store) SaveBusinessInfo(ctx context.Context, info domain.BusinessInfo) (*domain.BusinessInfo, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO business_info (id, name, address, phone, email, logo_url, currency_symbol, currency_position)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone,
			email = EXCLUDED.email, logo_url = EXCLUDED.logo_url,
			currency_symbol = EXCLUDED.currency_symbol, currency_position = EXCLUDED.currency_position
	`, info.Name, info.Address, info.Phone, info.Email, nullIfEmpty(info.LogoURL), info.CurrencySymbol, info.CurrencyPosition)
	if err != nil {
		return nil, err
	}

	saved := info
	return &saved, nil
}

func (s *Store) GetReportSummary(ctx context.Context, from time.Time, to time.Time) (domain.ReportSummary, error) {
	summary := domain.ReportSummary{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}
	fromArg := nullZeroTime(from)
	toArg := nullZeroTime(to)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'purchase'), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'other_out'), 0),
			COUNT(*) FILTER (WHERE type <> 'purchase_order')
		FROM transactions
		WHERE ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
	`, fromArg, toArg).Scan(&summary.SalesCents, &summary.PurchasesCents, &summary.OtherOutCents, &summary.TransactionCount)
	if err != nil {
		return domain.ReportSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending' OR status IS NULL),
			COUNT(*) FILTER (WHERE status = 'received'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(total_cents), 0)
		FROM transactions
		WHERE type = 'purchase_order'
			AND ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
	`, fromArg, toArg).Scan(&summary.PurchaseOrders.Pending, &summary.PurchaseOrders.Received,
		&summary.PurchaseOrders.Cancelled, &summary.PurchaseOrders.TotalCents)
	if err != nil {
		return domain.ReportSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM expenses
		WHERE ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
	`, fromArg, toArg).Scan(&summary.ExpensesCents)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	summary.NetProfitCents = summary.SalesCents - summary.PurchasesCents - summary.ExpensesCents

	rows, err := s.db.QueryContext(ctx, `
		SELECT date,
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'purchase'), 0)
		FROM transactions
		WHERE type IN ('sale', 'purchase')
			AND ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
		GROUP BY date
		ORDER BY date
	`, fromArg, toArg)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var day domain.DailySales
		var date time.Time
		if err := rows.Scan(&date, &day.SalesCents, &day.PurchasesCents); err != nil {
			return domain.ReportSummary{}, err
		}
		day.Date = date.UTC().Format("2006-01-02")
		summary.SalesByDay = append(summary.SalesByDay, day)
	}
	if err := rows.Err(); err != nil {
		return domain.ReportSummary{}, err
	}

	catRows, err := s.db.QueryContext(ctx, `
		SELECT category, COALESCE(SUM(amount_cents), 0)
		FROM expenses
		WHERE ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
		GROUP BY category
		ORDER BY 2 DESC
	`, fromArg, toArg)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var cat domain.CategoryExpense
		if err := catRows.Scan(&cat.Category, &cat.AmountCents); err != nil {
			return domain.ReportSummary{}, err
		}
		summary.ExpensesByCategory = append(summary.ExpensesByCategory, cat)
	}
	if err := catRows.Err(); err != nil {
		return domain.ReportSummary{}, err
	}

	supRows, err := s.db.QueryContext(ctx, `
		SELECT counterparty_name, COALESCE(SUM(total_cents), 0) AS amount
		FROM transactions
		WHERE type = 'purchase'
			AND ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date < $2)
		GROUP BY counterparty_name
		ORDER BY amount DESC, counterparty_name
		LIMIT 5
	`, fromArg, toArg)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	defer supRows.Close()
	for supRows.Next() {
		var sup domain.SupplierPurchase
		if err := supRows.Scan(&sup.Name, &sup.AmountCents); err != nil {
			return domain.ReportSummary{}, err
		}
		summary.TopSuppliers = append(summary.TopSuppliers, sup)
	}
	if err := supRows.Err(); err != nil {
		return domain.ReportSummary{}, err
	}

	return summary, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	var summary domain.DashboardSummary

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(stock), 0),
			COALESCE(SUM(stock::bigint * purchase_price_cents), 0),
			COUNT(*) FILTER (WHERE stock <= GREATEST(low_stock_threshold, CASE WHEN low_stock_threshold <= 0 THEN $1 ELSE 0 END))
		FROM products
	`, domain.DefaultLowStockThreshold).Scan(&summary.ProductCount, &summary.TotalStockUnits, &summary.StockValueCents, &summary.LowStockCount)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'sale'), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE type = 'purchase'), 0)
		FROM transactions
	`).Scan(&summary.SalesCents, &summary.PurchasesCents)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
	`).Scan(&summary.ExpensesCents)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	summary.NetCents = summary.SalesCents - summary.PurchasesCents - summary.ExpensesCents

	return summary, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDateString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
