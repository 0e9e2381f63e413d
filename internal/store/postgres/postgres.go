package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

// txTimeout bounds every read-modify-write transaction so a stalled lock
// wait aborts instead of blocking indefinitely.
const txTimeout = 5 * time.Second

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

func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, context.Context, context.CancelFunc, error) {
	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		cancel()
		return nil, nil, nil, mapTxError(err)
	}
	return tx, txCtx, cancel, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ShopID == "" || product.Name == "" || product.PriceCents < 1 || product.CostPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, stock, price_cents, cost_price_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.ShopID, product.Name, product.Stock, product.PriceCents, product.CostPriceCents, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, shopID string, productID string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, stock, price_cents, cost_price_cents, created_at, updated_at
		FROM products
		WHERE shop_id = $1 AND id = $2
	`, shopID, productID).Scan(
		&product.ID,
		&product.ShopID,
		&product.Name,
		&product.Stock,
		&product.PriceCents,
		&product.CostPriceCents,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, stock, price_cents, cost_price_cents, created_at, updated_at
		FROM products
		WHERE shop_id = $1
		ORDER BY name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.Stock, &p.PriceCents, &p.CostPriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// applyStockDelta is the single writer of product stock. It locks the
// product row, applies the delta within the caller's transaction, and
// enforces the floor check only when the policy demands it.
func applyStockDelta(ctx context.Context, tx *sql.Tx, shopID string, productID string, delta int, policy store.StockPolicy) (*domain.Product, error) {
	var product domain.Product
	err := tx.QueryRowContext(ctx, `
		SELECT id, shop_id, name, stock, price_cents, cost_price_cents, created_at, updated_at
		FROM products
		WHERE shop_id = $1 AND id = $2
		FOR UPDATE
	`, shopID, productID).Scan(
		&product.ID,
		&product.ShopID,
		&product.Name,
		&product.Stock,
		&product.PriceCents,
		&product.CostPriceCents,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if policy == store.StockPolicyRejectNegative && product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $3, updated_at = now()
		WHERE shop_id = $1 AND id = $2
	`, shopID, productID, delta)
	if err != nil {
		return nil, err
	}

	product.Stock += delta
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = time.Now().UTC()
	return &product, nil
}

func (s *Store) AdjustStock(ctx context.Context, shopID string, productID string, delta int, policy store.StockPolicy) (*domain.Product, error) {
	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	product, err := applyStockDelta(txCtx, tx, shopID, productID, delta, policy)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return product, nil
}

func (s *Store) LowStockProducts(ctx context.Context, shopID string, threshold int) ([]domain.LowStockProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE shop_id = $1 AND stock <= $2
		ORDER BY stock ASC, name ASC
	`, shopID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.LowStockProduct, 0, 32)
	for rows.Next() {
		var p domain.LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.ShopID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, shop_id, name, phone, total_spent_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.ShopID, customer.Name, nullIfEmpty(customer.Phone), customer.TotalSpentCents, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := customer
	created.LoyaltyPoints = domain.LoyaltyPointsFor(created.TotalSpentCents)
	created.LoyaltyTier = domain.LoyaltyTierFor(created.LoyaltyPoints)
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, shopID string, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, phone, total_spent_cents, created_at
		FROM customers
		WHERE shop_id = $1 AND id = $2
	`, shopID, customerID).Scan(
		&customer.ID,
		&customer.ShopID,
		&customer.Name,
		&phone,
		&customer.TotalSpentCents,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		customer.Phone = phone.String
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	customer.LoyaltyPoints = domain.LoyaltyPointsFor(customer.TotalSpentCents)
	customer.LoyaltyTier = domain.LoyaltyTierFor(customer.LoyaltyPoints)
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, phone, total_spent_cents, created_at
		FROM customers
		WHERE shop_id = $1
		ORDER BY name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var customer domain.Customer
		var phone sql.NullString
		if err := rows.Scan(&customer.ID, &customer.ShopID, &customer.Name, &phone, &customer.TotalSpentCents, &customer.CreatedAt); err != nil {
			return nil, err
		}
		if phone.Valid {
			customer.Phone = phone.String
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customer.LoyaltyPoints = domain.LoyaltyPointsFor(customer.TotalSpentCents)
		customer.LoyaltyTier = domain.LoyaltyTierFor(customer.LoyaltyPoints)
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) ApplyCustomerSpend(ctx context.Context, shopID string, customerID string, deltaCents int64) (*domain.Customer, error) {
	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	var customer domain.Customer
	var phone sql.NullString
	err = tx.QueryRowContext(txCtx, `
		SELECT id, shop_id, name, phone, total_spent_cents, created_at
		FROM customers
		WHERE shop_id = $1 AND id = $2
		FOR UPDATE
	`, shopID, customerID).Scan(
		&customer.ID,
		&customer.ShopID,
		&customer.Name,
		&phone,
		&customer.TotalSpentCents,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE customers
		SET total_spent_cents = total_spent_cents + $3
		WHERE shop_id = $1 AND id = $2
	`, shopID, customerID, deltaCents)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	if phone.Valid {
		customer.Phone = phone.String
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	customer.TotalSpentCents += deltaCents
	customer.LoyaltyPoints = domain.LoyaltyPointsFor(customer.TotalSpentCents)
	customer.LoyaltyTier = domain.LoyaltyTierFor(customer.LoyaltyPoints)
	return &customer, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.ShopID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, shop_id, name, phone, total_orders, total_spent_cents, last_order_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, supplier.ID, supplier.ShopID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.TotalOrders, supplier.TotalSpentCents, nullTime(supplier.LastOrderAt), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) GetSupplier(ctx context.Context, shopID string, supplierID string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	var phone sql.NullString
	var lastOrderAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, phone, total_orders, total_spent_cents, last_order_at, created_at
		FROM suppliers
		WHERE shop_id = $1 AND id = $2
	`, shopID, supplierID).Scan(
		&supplier.ID,
		&supplier.ShopID,
		&supplier.Name,
		&phone,
		&supplier.TotalOrders,
		&supplier.TotalSpentCents,
		&lastOrderAt,
		&supplier.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		supplier.Phone = phone.String
	}
	if lastOrderAt.Valid {
		at := lastOrderAt.Time.UTC()
		supplier.LastOrderAt = &at
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context, shopID string) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, phone, total_orders, total_spent_cents, last_order_at, created_at
		FROM suppliers
		WHERE shop_id = $1
		ORDER BY created_at ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var supplier domain.Supplier
		var phone sql.NullString
		var lastOrderAt sql.NullTime
		if err := rows.Scan(&supplier.ID, &supplier.ShopID, &supplier.Name, &phone, &supplier.TotalOrders, &supplier.TotalSpentCents, &lastOrderAt, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		if phone.Valid {
			supplier.Phone = phone.String
		}
		if lastOrderAt.Valid {
			at := lastOrderAt.Time.UTC()
			supplier.LastOrderAt = &at
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) RecordSale(ctx context.Context, sale domain.Sale, policy store.StockPolicy) (*domain.Sale, error) {
	return s.recordSaleTx(ctx, sale, policy, "")
}

func (s *Store) RecordOfflineSale(ctx context.Context, sale domain.Sale, clientTempID string) (*domain.Sale, error) {
	clientTempID = strings.TrimSpace(clientTempID)
	if clientTempID == "" {
		return nil, store.ErrInvalidInput
	}
	// Stock may go negative here: the physical sale already happened while
	// the client was offline, so the ledger must follow reality.
	return s.recordSaleTx(ctx, sale, store.StockPolicyAllowNegative, clientTempID)
}

// recordSaleTx creates the sale, its items, its installments, and the stock
// decrements as one atomic unit. When clientTempID is set, the offline-sync
// mapping row commits in the same transaction so a replayed batch can never
// observe a sale without its idempotency marker.
func (s *Store) recordSaleTx(ctx context.Context, sale domain.Sale, policy store.StockPolicy, clientTempID string) (*domain.Sale, error) {
	if sale.ShopID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range sale.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.DiscountPercent < 0 || item.DiscountPercent > 100 {
			return nil, store.ErrInvalidInput
		}
	}
	if sale.AmountPaidCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.OrderID == "" {
		sale.OrderID = xid.OrderCode()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	if sale.CustomerID != "" {
		var one int
		err := tx.QueryRowContext(txCtx, `
			SELECT 1 FROM customers WHERE shop_id = $1 AND id = $2
		`, sale.ShopID, sale.CustomerID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows) && policy == store.StockPolicyAllowNegative:
			// The customer was deleted while the client was offline. The
			// sale still happened, so drop the reference and keep the sale.
			sale.CustomerID = ""
		case errors.Is(err, sql.ErrNoRows):
			return nil, store.ErrNotFound
		case err != nil:
			return nil, mapTxError(err)
		}
	}

	// Lock products in a stable order so concurrent sales over the same
	// basket cannot deadlock.
	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	totalCents := int64(0)
	for idx, item := range items {
		product, err := applyStockDelta(txCtx, tx, sale.ShopID, item.ProductID, -item.Quantity, policy)
		if err != nil {
			return nil, mapTxError(err)
		}
		items[idx].UnitPriceCents = product.PriceCents
		items[idx].CostPriceCents = product.CostPriceCents
		totalCents += lineTotalCents(product.PriceCents, item.Quantity, item.DiscountPercent)
	}

	sale.Items = items
	sale.TotalCents = totalCents
	if sale.AmountPaidCents > totalCents {
		return nil, store.ErrInvalidInput
	}
	sale.OutstandingCents = totalCents - sale.AmountPaidCents
	if sale.OutstandingCents > 0 {
		sale.PaymentStatus = domain.PaymentStatusPending
	} else {
		sale.PaymentStatus = domain.PaymentStatusCompleted
	}
	if sale.PaymentType == "" {
		sale.PaymentType = domain.PaymentTypeFull
	}

	_, err = tx.ExecContext(txCtx, `
		INSERT INTO sales (
			id, order_id, shop_id, staff_id, customer_id, total_cents,
			amount_paid_cents, outstanding_cents, payment_status, payment_type, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.OrderID, sale.ShopID, sale.StaffID, nullIfEmpty(sale.CustomerID), sale.TotalCents,
		sale.AmountPaidCents, sale.OutstandingCents, sale.PaymentStatus, sale.PaymentType, sale.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(txCtx, `
			INSERT INTO sale_items (sale_id, product_id, qty, unit_price_cents, cost_price_cents, discount_percent)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPriceCents, item.CostPriceCents, item.DiscountPercent)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	installments := make([]domain.Installment, 0, len(sale.Installments))
	if sale.AmountPaidCents > 0 {
		for _, inst := range sale.Installments {
			if inst.ID == "" {
				inst.ID = xid.New("ins")
			}
			inst.SaleID = sale.ID
			if inst.CreatedAt.IsZero() {
				inst.CreatedAt = sale.CreatedAt
			}
			_, err := tx.ExecContext(txCtx, `
				INSERT INTO installments (id, sale_id, amount_cents, payment_method, bank_name, bank_reference, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, inst.ID, inst.SaleID, inst.AmountCents, inst.PaymentMethod, nullIfEmpty(inst.BankName), nullIfEmpty(inst.BankReference), inst.CreatedAt)
			if err != nil {
				return nil, mapTxError(err)
			}
			installments = append(installments, inst)
		}
	}
	sale.Installments = installments

	if clientTempID != "" {
		_, err := tx.ExecContext(txCtx, `
			INSERT INTO offline_sale_syncs (shop_id, client_temp_id, sale_id, created_at)
			VALUES ($1,$2,$3,$4)
		`, sale.ShopID, clientTempID, sale.ID, sale.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				// A concurrent replay won the race; surface its sale instead.
				_ = tx.Rollback()
				return s.FindOfflineSale(ctx, sale.ShopID, clientTempID)
			}
			return nil, mapTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, shopID string, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, shop_id, staff_id, customer_id, total_cents,
			amount_paid_cents, outstanding_cents, payment_status, payment_type, created_at
		FROM sales
		WHERE shop_id = $1 AND id = $2
	`, shopID, saleID).Scan(
		&sale.ID,
		&sale.OrderID,
		&sale.ShopID,
		&sale.StaffID,
		&customerID,
		&sale.TotalCents,
		&sale.AmountPaidCents,
		&sale.OutstandingCents,
		&sale.PaymentStatus,
		&sale.PaymentType,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	items, err := s.saleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	installments, err := s.saleInstallments(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Installments = installments

	return &sale, nil
}

func (s *Store) saleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty, unit_price_cents, cost_price_cents, discount_percent
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.CostPriceCents, &item.DiscountPercent); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) saleInstallments(ctx context.Context, saleID string) ([]domain.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount_cents, payment_method, bank_name, bank_reference, created_at
		FROM installments
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := make([]domain.Installment, 0, 4)
	for rows.Next() {
		var inst domain.Installment
		var bankName sql.NullString
		var bankReference sql.NullString
		if err := rows.Scan(&inst.ID, &inst.SaleID, &inst.AmountCents, &inst.PaymentMethod, &bankName, &bankReference, &inst.CreatedAt); err != nil {
			return nil, err
		}
		if bankName.Valid {
			inst.BankName = bankName.String
		}
		if bankReference.Valid {
			inst.BankReference = bankReference.String
		}
		inst.CreatedAt = inst.CreatedAt.UTC()
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return installments, nil
}

func (s *Store) ListSales(ctx context.Context, shopID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, shop_id, staff_id, customer_id, total_cents,
			amount_paid_cents, outstanding_cents, payment_status, payment_type, created_at
		FROM sales
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var customerID sql.NullString
		if err := rows.Scan(
			&sale.ID,
			&sale.OrderID,
			&sale.ShopID,
			&sale.StaffID,
			&customerID,
			&sale.TotalCents,
			&sale.AmountPaidCents,
			&sale.OutstandingCents,
			&sale.PaymentStatus,
			&sale.PaymentType,
			&sale.CreatedAt,
		); err != nil {
			return nil, err
		}
		if customerID.Valid {
			sale.CustomerID = customerID.String
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ApplyPayment(ctx context.Context, shopID string, installment domain.Installment) (*domain.Sale, error) {
	if installment.SaleID == "" || installment.AmountCents < 1 || installment.PaymentMethod == "" {
		return nil, store.ErrInvalidInput
	}
	if installment.ID == "" {
		installment.ID = xid.New("ins")
	}
	if installment.CreatedAt.IsZero() {
		installment.CreatedAt = time.Now().UTC()
	}

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	var totalCents int64
	var amountPaidCents int64
	var paymentStatus string
	err = tx.QueryRowContext(txCtx, `
		SELECT total_cents, amount_paid_cents, payment_status
		FROM sales
		WHERE shop_id = $1 AND id = $2
		FOR UPDATE
	`, shopID, installment.SaleID).Scan(&totalCents, &amountPaidCents, &paymentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	if paymentStatus == domain.PaymentStatusCompleted {
		return nil, store.ErrAlreadySettled
	}

	// Recompute the balance from the locked row, never from a stale read.
	outstanding := totalCents - amountPaidCents
	if installment.AmountCents > outstanding {
		return nil, store.ErrExceedsBalance
	}

	_, err = tx.ExecContext(txCtx, `
		INSERT INTO installments (id, sale_id, amount_cents, payment_method, bank_name, bank_reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, installment.ID, installment.SaleID, installment.AmountCents, installment.PaymentMethod,
		nullIfEmpty(installment.BankName), nullIfEmpty(installment.BankReference), installment.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	newPaid := amountPaidCents + installment.AmountCents
	newOutstanding := totalCents - newPaid
	newStatus := domain.PaymentStatusPending
	if newOutstanding <= 0 {
		newOutstanding = 0
		newStatus = domain.PaymentStatusCompleted
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE sales
		SET amount_paid_cents = $3, outstanding_cents = $4, payment_status = $5
		WHERE shop_id = $1 AND id = $2
	`, shopID, installment.SaleID, newPaid, newOutstanding, newStatus)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return s.GetSaleByID(ctx, shopID, installment.SaleID)
}

func (s *Store) FindOfflineSale(ctx context.Context, shopID string, clientTempID string) (*domain.Sale, error) {
	var saleID string
	err := s.db.QueryRowContext(ctx, `
		SELECT sale_id
		FROM offline_sale_syncs
		WHERE shop_id = $1 AND client_temp_id = $2
	`, shopID, clientTempID).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetSaleByID(ctx, shopID, saleID)
}

func lineTotalCents(unitPriceCents int64, qty int, discountPercent float64) int64 {
	gross := unitPriceCents * int64(qty)
	if discountPercent <= 0 {
		return gross
	}
	discounted := math.Round(float64(gross) * (100 - discountPercent) / 100)
	if discounted < 0 {
		return 0
	}
	return int64(discounted)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// mapTxError converts storage-level serialization failures into the
// retryable conflict sentinel. SQLSTATE 40001 is serialization_failure,
// 40P01 is deadlock_detected.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Code)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
