package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("owner role required")
	}

	shopID := s.shopFor(ctx, req.ShopID)
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	items, err := normalizePOItems(req.Items)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if req.SupplierID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}

	created, err := withConflictRetry(ctx, func() (*domain.PurchaseOrder, error) {
		return s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
			ShopID:     shopID,
			SupplierID: req.SupplierID,
			Items:      items,
		})
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, shopID, "purchase_order_create", "purchase_order", created.ID,
		fmt.Sprintf("po=%s,supplier=%s,items=%d,total=%d", created.PONumber, created.SupplierID, len(created.Items), created.TotalCents))

	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, shopID string, poID string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, s.shopFor(ctx, shopID), poID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, shopID string, status string) (domain.PurchaseOrderListResponse, error) {
	poStatus := domain.POStatus(strings.TrimSpace(status))
	if poStatus != "" && !poStatus.Valid() {
		return domain.PurchaseOrderListResponse{}, store.ErrInvalidInput
	}

	orders, err := s.repo.ListPurchaseOrders(ctx, s.shopFor(ctx, shopID), poStatus)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

// UpdatePurchaseOrder replaces a draft's line items. Anything past draft
// is immutable apart from its lifecycle transitions.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, shopID string, poID string, req domain.PurchaseOrderUpdateRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("owner role required")
	}
	shopID = s.shopFor(ctx, shopID)

	items, err := normalizePOItems(req.Items)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	updated, err := withConflictRetry(ctx, func() (*domain.PurchaseOrder, error) {
		return s.repo.ReplacePurchaseOrderItems(ctx, shopID, poID, items)
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, shopID, "purchase_order_update", "purchase_order", poID,
		fmt.Sprintf("items=%d,total=%d", len(updated.Items), updated.TotalCents))

	return domain.PurchaseOrderResponse{PurchaseOrder: *updated}, nil
}

func (s *Service) SendPurchaseOrder(ctx context.Context, shopID string, poID string) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("owner role required")
	}
	shopID = s.shopFor(ctx, shopID)

	sent, err := withConflictRetry(ctx, func() (*domain.PurchaseOrder, error) {
		return s.repo.SendPurchaseOrder(ctx, shopID, poID, time.Now().UTC())
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, shopID, "purchase_order_send", "purchase_order", poID, fmt.Sprintf("po=%s", sent.PONumber))
	return domain.PurchaseOrderResponse{PurchaseOrder: *sent}, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, shopID string, poID string) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("owner role required")
	}
	shopID = s.shopFor(ctx, shopID)

	cancelled, err := withConflictRetry(ctx, func() (*domain.PurchaseOrder, error) {
		return s.repo.CancelPurchaseOrder(ctx, shopID, poID)
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, shopID, "purchase_order_cancel", "purchase_order", poID, fmt.Sprintf("po=%s", cancelled.PONumber))
	return domain.PurchaseOrderResponse{PurchaseOrder: *cancelled}, nil
}

// ReceivePurchaseOrder books a delivery. An empty item list receives every
// outstanding line in full.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, shopID string, poID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("authenticated actor required")
	}
	shopID = s.shopFor(ctx, shopID)

	for _, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" || line.Qty < 1 {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
		}
	}

	received, err := withConflictRetry(ctx, func() (*domain.PurchaseOrder, error) {
		return s.repo.ReceivePurchaseOrder(ctx, shopID, poID, req.Items, time.Now().UTC())
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, shopID, "purchase_order_receive", "purchase_order", poID,
		fmt.Sprintf("po=%s,status=%s", received.PONumber, received.Status))

	products := make([]domain.Product, 0, len(received.Items))
	for _, item := range received.Items {
		product, err := s.repo.GetProduct(ctx, shopID, item.ProductID)
		if err != nil {
			continue
		}
		products = append(products, *product)
	}
	s.afterStockChange(ctx, shopID, products...)

	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

func normalizePOItems(inputs []domain.POItemInput) ([]domain.PurchaseOrderItem, error) {
	if len(inputs) == 0 {
		return nil, store.ErrInvalidInput
	}

	seen := make(map[string]bool, len(inputs))
	items := make([]domain.PurchaseOrderItem, 0, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" || input.Qty < 1 || input.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
		if seen[productID] {
			return nil, store.ErrInvalidInput
		}
		seen[productID] = true
		items = append(items, domain.PurchaseOrderItem{
			ProductID:     productID,
			QtyOrdered:    input.Qty,
			UnitCostCents: input.UnitCostCents,
		})
	}
	return items, nil
}
