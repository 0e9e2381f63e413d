package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ShopID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range po.Items {
		if item.ProductID == "" || item.QtyOrdered < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.PONumber == "" {
		po.PONumber = xid.PONumber()
	}
	po.Status = domain.POStatusDraft
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(txCtx, `
		SELECT 1 FROM suppliers WHERE shop_id = $1 AND id = $2
	`, po.ShopID, po.SupplierID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	items, totalCents, err := resolveItemCosts(txCtx, tx, po.ShopID, po.Items)
	if err != nil {
		return nil, mapTxError(err)
	}
	po.Items = items
	po.TotalCents = totalCents

	_, err = tx.ExecContext(txCtx, `
		INSERT INTO purchase_orders (id, po_number, shop_id, supplier_id, status, total_cents, sent_at, received_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,NULL,$7)
	`, po.ID, po.PONumber, po.ShopID, po.SupplierID, po.Status, po.TotalCents, po.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	if err := insertPOItems(txCtx, tx, po.ID, po.Items); err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	saved := po
	return &saved, nil
}

// resolveItemCosts fills in unit costs left at zero from the current
// product price and computes the order total. Products are read inside
// the caller's transaction so a concurrent price change cannot split
// the snapshot.
func resolveItemCosts(ctx context.Context, tx *sql.Tx, shopID string, items []domain.PurchaseOrderItem) ([]domain.PurchaseOrderItem, int64, error) {
	resolved := make([]domain.PurchaseOrderItem, len(items))
	copy(resolved, items)
	totalCents := int64(0)
	for idx, item := range resolved {
		if item.UnitCostCents == 0 {
			var priceCents int64
			err := tx.QueryRowContext(ctx, `
				SELECT price_cents FROM products WHERE shop_id = $1 AND id = $2
			`, shopID, item.ProductID).Scan(&priceCents)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, 0, store.ErrNotFound
				}
				return nil, 0, err
			}
			resolved[idx].UnitCostCents = priceCents
		} else {
			var one int
			err := tx.QueryRowContext(ctx, `
				SELECT 1 FROM products WHERE shop_id = $1 AND id = $2
			`, shopID, item.ProductID).Scan(&one)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, 0, store.ErrNotFound
				}
				return nil, 0, err
			}
		}
		totalCents += resolved[idx].UnitCostCents * int64(resolved[idx].QtyOrdered)
	}
	return resolved, totalCents, nil
}

func insertPOItems(ctx context.Context, tx *sql.Tx, poID string, items []domain.PurchaseOrderItem) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, qty_ordered, qty_received, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, poID, item.ProductID, item.QtyOrdered, item.QtyReceived, item.UnitCostCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, shopID string, poID string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT id, po_number, shop_id, supplier_id, status, total_cents, sent_at, received_at, created_at
		FROM purchase_orders
		WHERE shop_id = $1 AND id = $2
	`, shopID, poID))
	if err != nil {
		return nil, err
	}

	items, err := s.poItems(ctx, po.ID)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return po, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var sentAt sql.NullTime
	var receivedAt sql.NullTime
	err := row.Scan(
		&po.ID,
		&po.PONumber,
		&po.ShopID,
		&po.SupplierID,
		&po.Status,
		&po.TotalCents,
		&sentAt,
		&receivedAt,
		&po.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sentAt.Valid {
		at := sentAt.Time.UTC()
		po.SentAt = &at
	}
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	po.CreatedAt = po.CreatedAt.UTC()
	return &po, nil
}

func (s *Store) poItems(ctx context.Context, poID string) ([]domain.PurchaseOrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty_ordered, qty_received, unit_cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ProductID, &item.QtyOrdered, &item.QtyReceived, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, shopID string, status domain.POStatus) ([]domain.PurchaseOrder, error) {
	query := `
		SELECT id, po_number, shop_id, supplier_id, status, total_cents, sent_at, received_at, created_at
		FROM purchase_orders
		WHERE shop_id = $1
		ORDER BY created_at DESC
	`
	args := []any{shopID}
	if status != "" {
		query = `
		SELECT id, po_number, shop_id, supplier_id, status, total_cents, sent_at, received_at, created_at
		FROM purchase_orders
		WHERE shop_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, 32)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ReplacePurchaseOrderItems(ctx context.Context, shopID string, poID string, items []domain.PurchaseOrderItem) (*domain.PurchaseOrder, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range items {
		if item.ProductID == "" || item.QtyOrdered < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	po, err := lockPurchaseOrder(txCtx, tx, shopID, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	// Only a draft's line items are mutable.
	if po.Status != domain.POStatusDraft {
		return nil, store.ErrInvalidTransition
	}

	resolved, totalCents, err := resolveItemCosts(txCtx, tx, shopID, items)
	if err != nil {
		return nil, mapTxError(err)
	}

	_, err = tx.ExecContext(txCtx, `
		DELETE FROM purchase_order_items WHERE purchase_order_id = $1
	`, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := insertPOItems(txCtx, tx, poID, resolved); err != nil {
		return nil, mapTxError(err)
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE purchase_orders SET total_cents = $3 WHERE shop_id = $1 AND id = $2
	`, shopID, poID, totalCents)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	po.TotalCents = totalCents
	po.Items = resolved
	return po, nil
}

func lockPurchaseOrder(ctx context.Context, tx *sql.Tx, shopID string, poID string) (*domain.PurchaseOrder, error) {
	return scanPurchaseOrder(tx.QueryRowContext(ctx, `
		SELECT id, po_number, shop_id, supplier_id, status, total_cents, sent_at, received_at, created_at
		FROM purchase_orders
		WHERE shop_id = $1 AND id = $2
		FOR UPDATE
	`, shopID, poID))
}

func (s *Store) SendPurchaseOrder(ctx context.Context, shopID string, poID string, at time.Time) (*domain.PurchaseOrder, error) {
	at = at.UTC()

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	po, err := lockPurchaseOrder(txCtx, tx, shopID, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if !domain.CanTransition(po.Status, domain.POStatusSent) {
		return nil, store.ErrInvalidTransition
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE purchase_orders SET status = $3, sent_at = $4 WHERE shop_id = $1 AND id = $2
	`, shopID, poID, domain.POStatusSent, at)
	if err != nil {
		return nil, mapTxError(err)
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE suppliers
		SET total_orders = total_orders + 1, last_order_at = $3
		WHERE shop_id = $1 AND id = $2
	`, shopID, po.SupplierID, at)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return s.GetPurchaseOrderByID(ctx, shopID, poID)
}

func (s *Store) CancelPurchaseOrder(ctx context.Context, shopID string, poID string) (*domain.PurchaseOrder, error) {
	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	po, err := lockPurchaseOrder(txCtx, tx, shopID, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if !domain.CanTransition(po.Status, domain.POStatusCancelled) {
		return nil, store.ErrInvalidTransition
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE purchase_orders SET status = $3 WHERE shop_id = $1 AND id = $2
	`, shopID, poID, domain.POStatusCancelled)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return s.GetPurchaseOrderByID(ctx, shopID, poID)
}

// ReceivePurchaseOrder books a delivery against a sent or partial order.
// An empty lines slice receives the full remaining quantity of every
// item. Stock increments, received counters, order status, and the
// supplier's spend total all move in one transaction.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, shopID string, poID string, lines []domain.POReceiveLine, at time.Time) (*domain.PurchaseOrder, error) {
	at = at.UTC()
	for _, line := range lines {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	tx, txCtx, cancel, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	po, err := lockPurchaseOrder(txCtx, tx, shopID, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if po.Status != domain.POStatusSent && po.Status != domain.POStatusPartial {
		return nil, store.ErrInvalidTransition
	}

	items, err := lockPOItems(txCtx, tx, poID)
	if err != nil {
		return nil, mapTxError(err)
	}
	byProduct := make(map[string]*domain.PurchaseOrderItem, len(items))
	for idx := range items {
		byProduct[items[idx].ProductID] = &items[idx]
	}

	if len(lines) == 0 {
		for _, item := range items {
			if remaining := item.Remaining(); remaining > 0 {
				lines = append(lines, domain.POReceiveLine{ProductID: item.ProductID, Qty: remaining})
			}
		}
		if len(lines) == 0 {
			return nil, store.ErrAlreadySettled
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	receivedValueCents := int64(0)
	for _, line := range lines {
		item, ok := byProduct[line.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if line.Qty > item.Remaining() {
			return nil, store.ErrRemainingExceeded
		}

		// Goods received into the warehouse never fail the floor check.
		if _, err := applyStockDelta(txCtx, tx, shopID, line.ProductID, line.Qty, store.StockPolicyAllowNegative); err != nil {
			return nil, mapTxError(err)
		}

		item.QtyReceived += line.Qty
		receivedValueCents += item.UnitCostCents * int64(line.Qty)

		_, err := tx.ExecContext(txCtx, `
			UPDATE purchase_order_items
			SET qty_received = qty_received + $3
			WHERE purchase_order_id = $1 AND product_id = $2
		`, poID, line.ProductID, line.Qty)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	po.Items = items
	newStatus := domain.POStatusPartial
	var receivedAt any
	if po.FullyReceived() {
		newStatus = domain.POStatusReceived
		receivedAt = at
	}

	_, err = tx.ExecContext(txCtx, `
		UPDATE purchase_orders SET status = $3, received_at = COALESCE($4, received_at) WHERE shop_id = $1 AND id = $2
	`, shopID, poID, newStatus, receivedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	// Supplier spend grows by the value delivered now, not the order total,
	// so partial deliveries accumulate without double counting.
	_, err = tx.ExecContext(txCtx, `
		UPDATE suppliers
		SET total_spent_cents = total_spent_cents + $3
		WHERE shop_id = $1 AND id = $2
	`, shopID, po.SupplierID, receivedValueCents)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return s.GetPurchaseOrderByID(ctx, shopID, poID)
}

func lockPOItems(ctx context.Context, tx *sql.Tx, poID string) ([]domain.PurchaseOrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, qty_ordered, qty_received, unit_cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY product_id ASC
		FOR UPDATE
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ProductID, &item.QtyOrdered, &item.QtyReceived, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetDailySummary(ctx context.Context, shopID string, day time.Time) (*domain.DailySummary, error) {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := domain.DailySummary{
		ShopID: shopID,
		Date:   dayStart.Format("2006-01-02"),
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_cents), 0),
			COALESCE(SUM(amount_paid_cents), 0),
			COALESCE(SUM(outstanding_cents), 0)
		FROM sales
		WHERE shop_id = $1 AND created_at >= $2 AND created_at < $3
	`, shopID, dayStart, dayEnd).Scan(
		&summary.Sales,
		&summary.RevenueCents,
		&summary.CollectedCents,
		&summary.OutstandingCents,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ShopID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entityID sql.NullString
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ShopID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if entityID.Valid {
			entry.EntityID = entityID.String
		}
		if detail.Valid {
			entry.Detail = detail.String
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" || user.Role == "" || user.ShopID == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, shop_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Role, user.ShopID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, shop_id, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.ShopID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET password_hash = $2 WHERE username = $1
	`, username, passwordHash)
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
