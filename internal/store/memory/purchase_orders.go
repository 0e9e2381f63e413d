package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ShopID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range po.Items {
		if item.ProductID == "" || item.QtyOrdered < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[memKey(po.ShopID, po.SupplierID)]; !ok {
		return nil, store.ErrNotFound
	}

	items, totalCents, err := s.resolveItemCostsLocked(po.ShopID, po.Items)
	if err != nil {
		return nil, err
	}

	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.PONumber == "" {
		po.PONumber = xid.PONumber()
	}
	po.Status = domain.POStatusDraft
	po.Items = items
	po.TotalCents = totalCents
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}

	saved := po
	s.purchaseOrders[po.ID] = &saved
	return clonePO(&saved), nil
}

func (s *Store) resolveItemCostsLocked(shopID string, items []domain.PurchaseOrderItem) ([]domain.PurchaseOrderItem, int64, error) {
	resolved := make([]domain.PurchaseOrderItem, len(items))
	copy(resolved, items)
	totalCents := int64(0)
	for idx, item := range resolved {
		product, ok := s.products[memKey(shopID, item.ProductID)]
		if !ok {
			return nil, 0, store.ErrNotFound
		}
		if item.UnitCostCents == 0 {
			resolved[idx].UnitCostCents = product.PriceCents
		}
		totalCents += resolved[idx].UnitCostCents * int64(resolved[idx].QtyOrdered)
	}
	return resolved, totalCents, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, shopID string, poID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[poID]
	if !ok || po.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	return clonePO(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, shopID string, status domain.POStatus) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if po.ShopID != shopID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		orders = append(orders, *clonePO(po))
	}
	slices.SortFunc(orders, func(a, b domain.PurchaseOrder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return orders, nil
}

func (s *Store) ReplacePurchaseOrderItems(_ context.Context, shopID string, poID string, items []domain.PurchaseOrderItem) (*domain.PurchaseOrder, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range items {
		if item.ProductID == "" || item.QtyOrdered < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[poID]
	if !ok || po.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusDraft {
		return nil, store.ErrInvalidTransition
	}

	resolved, totalCents, err := s.resolveItemCostsLocked(shopID, items)
	if err != nil {
		return nil, err
	}
	po.Items = resolved
	po.TotalCents = totalCents
	return clonePO(po), nil
}

func (s *Store) SendPurchaseOrder(_ context.Context, shopID string, poID string, at time.Time) (*domain.PurchaseOrder, error) {
	at = at.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[poID]
	if !ok || po.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransition(po.Status, domain.POStatusSent) {
		return nil, store.ErrInvalidTransition
	}

	po.Status = domain.POStatusSent
	po.SentAt = &at

	supplier := s.suppliers[memKey(shopID, po.SupplierID)]
	supplier.TotalOrders++
	supplier.LastOrderAt = &at
	s.suppliers[memKey(shopID, po.SupplierID)] = supplier

	return clonePO(po), nil
}

func (s *Store) CancelPurchaseOrder(_ context.Context, shopID string, poID string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[poID]
	if !ok || po.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransition(po.Status, domain.POStatusCancelled) {
		return nil, store.ErrInvalidTransition
	}
	po.Status = domain.POStatusCancelled
	return clonePO(po), nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, shopID string, poID string, lines []domain.POReceiveLine, at time.Time) (*domain.PurchaseOrder, error) {
	at = at.UTC()
	for _, line := range lines {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[poID]
	if !ok || po.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusSent && po.Status != domain.POStatusPartial {
		return nil, store.ErrInvalidTransition
	}

	byProduct := make(map[string]*domain.PurchaseOrderItem, len(po.Items))
	for idx := range po.Items {
		byProduct[po.Items[idx].ProductID] = &po.Items[idx]
	}

	if len(lines) == 0 {
		for _, item := range po.Items {
			if remaining := item.Remaining(); remaining > 0 {
				lines = append(lines, domain.POReceiveLine{ProductID: item.ProductID, Qty: remaining})
			}
		}
		if len(lines) == 0 {
			return nil, store.ErrAlreadySettled
		}
	}

	// Validate every line first so a rejected delivery touches nothing.
	for _, line := range lines {
		item, ok := byProduct[line.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if line.Qty > item.Remaining() {
			return nil, store.ErrRemainingExceeded
		}
	}

	receivedValueCents := int64(0)
	for _, line := range lines {
		item := byProduct[line.ProductID]
		if _, err := s.applyStockDeltaLocked(shopID, line.ProductID, line.Qty, store.StockPolicyAllowNegative); err != nil {
			return nil, err
		}
		item.QtyReceived += line.Qty
		receivedValueCents += item.UnitCostCents * int64(line.Qty)
	}

	if po.FullyReceived() {
		po.Status = domain.POStatusReceived
		po.ReceivedAt = &at
	} else {
		po.Status = domain.POStatusPartial
	}

	supplier := s.suppliers[memKey(shopID, po.SupplierID)]
	supplier.TotalSpentCents += receivedValueCents
	s.suppliers[memKey(shopID, po.SupplierID)] = supplier

	return clonePO(po), nil
}

func clonePO(po *domain.PurchaseOrder) *domain.PurchaseOrder {
	out := *po
	out.Items = slices.Clone(po.Items)
	return &out
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.auditLogs[i].ShopID != shopID {
			continue
		}
		logs = append(logs, s.auditLogs[i])
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" || user.Role == "" || user.ShopID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = passwordHash
	s.usersByUsername[username] = user
	return nil
}
