package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
)

// RecordSale books a point-of-sale transaction. Stock must cover every
// line; a basket that would take any product negative is rejected whole.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, fmt.Errorf("authenticated actor required")
	}
	shopID := s.shopFor(ctx, req.ShopID)

	items, err := normalizeItems(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	amountPaid, paymentType, installments, err := buildPayment(req.Payment)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	sale := domain.Sale{
		ShopID:          shopID,
		StaffID:         actor.Username,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		AmountPaidCents: amountPaid,
		PaymentType:     paymentType,
		Items:           items,
		Installments:    installments,
	}

	created, err := withConflictRetry(ctx, func() (*domain.Sale, error) {
		return s.repo.RecordSale(ctx, sale, store.StockPolicyRejectNegative)
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.afterSale(ctx, *created)
	s.logAudit(ctx, shopID, "sale_record", "sale", created.ID,
		fmt.Sprintf("order=%s,total=%d,paid=%d,status=%s", created.OrderID, created.TotalCents, created.AmountPaidCents, created.PaymentStatus))

	return domain.SaleResponse{Sale: *created}, nil
}

// afterSale applies the post-commit side effects: the customer's lifetime
// spend and any low-stock alerts. A failure here is logged, not surfaced,
// since the sale itself is already durable.
func (s *Service) afterSale(ctx context.Context, sale domain.Sale) {
	if sale.CustomerID != "" {
		if _, err := s.repo.ApplyCustomerSpend(ctx, sale.ShopID, sale.CustomerID, sale.TotalCents); err != nil {
			log.Printf("[service] WARN: failed to update customer spend sale=%s customer=%s: %v", sale.ID, sale.CustomerID, err)
		}
	}

	products := make([]domain.Product, 0, len(sale.Items))
	for _, item := range sale.Items {
		product, err := s.repo.GetProduct(ctx, sale.ShopID, item.ProductID)
		if err != nil {
			continue
		}
		products = append(products, *product)
	}
	s.afterStockChange(ctx, sale.ShopID, products...)
	s.invalidateDailySummary(ctx, sale.ShopID, sale.CreatedAt)
}

// invalidateDailySummary drops the cached summary for the day a sale or
// payment landed on, so the report reflects it on the next read.
func (s *Service) invalidateDailySummary(ctx context.Context, shopID string, day time.Time) {
	key := shopID + ":" + day.UTC().Format("2006-01-02")
	if err := s.reports.InvalidateDailySummary(ctx, key); err != nil {
		log.Printf("[service] WARN: failed to invalidate daily summary cache shop=%s: %v", shopID, err)
	}
}

func (s *Service) GetSale(ctx context.Context, shopID string, saleID string) (domain.SaleResponse, error) {
	sale, err := s.repo.GetSaleByID(ctx, s.shopFor(ctx, shopID), saleID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) ListSales(ctx context.Context, shopID string, limit int) (domain.SaleListResponse, error) {
	sales, err := s.repo.ListSales(ctx, s.shopFor(ctx, shopID), limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

// ApplyPayment records an installment against a sale's outstanding
// balance. Overpayment is rejected rather than clamped so a fat-fingered
// amount surfaces instead of silently shrinking.
func (s *Service) ApplyPayment(ctx context.Context, shopID string, saleID string, req domain.ApplyPaymentRequest) (domain.SaleResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SaleResponse{}, fmt.Errorf("authenticated actor required")
	}
	shopID = s.shopFor(ctx, shopID)

	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if saleID == "" || req.AmountCents < 1 || req.PaymentMethod == "" {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	installment := domain.Installment{
		SaleID:        saleID,
		AmountCents:   req.AmountCents,
		PaymentMethod: req.PaymentMethod,
		BankName:      strings.TrimSpace(req.BankName),
		BankReference: strings.TrimSpace(req.BankReference),
	}

	sale, err := withConflictRetry(ctx, func() (*domain.Sale, error) {
		return s.repo.ApplyPayment(ctx, shopID, installment)
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.invalidateDailySummary(ctx, shopID, sale.CreatedAt)
	s.logAudit(ctx, shopID, "payment_apply", "sale", saleID,
		fmt.Sprintf("amount=%d,method=%s,outstanding=%d", req.AmountCents, req.PaymentMethod, sale.OutstandingCents))

	return domain.SaleResponse{Sale: *sale}, nil
}

// SyncOfflineSales replays a batch of sales recorded while the client was
// disconnected. Each entry succeeds or fails on its own; a duplicate
// client_temp_id returns the previously created sale unchanged. Stock may
// go negative because the goods already left the shelf.
func (s *Service) SyncOfflineSales(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.OfflineSyncResponse{}, fmt.Errorf("authenticated actor required")
	}
	if len(req.Sales) == 0 {
		return domain.OfflineSyncResponse{}, store.ErrInvalidInput
	}
	shopID := s.shopFor(ctx, req.ShopID)

	statuses := make([]domain.OfflineSyncStatus, 0, len(req.Sales))
	for _, input := range req.Sales {
		statuses = append(statuses, s.replayOfflineSale(ctx, shopID, actor, input))
	}

	s.logAudit(ctx, shopID, "offline_sync", "sale_batch", "",
		fmt.Sprintf("entries=%d", len(req.Sales)))

	return domain.OfflineSyncResponse{Statuses: statuses}, nil
}

func (s *Service) replayOfflineSale(ctx context.Context, shopID string, actor domain.Actor, input domain.OfflineSaleInput) domain.OfflineSyncStatus {
	status := domain.OfflineSyncStatus{ClientTempID: strings.TrimSpace(input.ClientTempID)}
	if status.ClientTempID == "" {
		status.Status = domain.SyncStatusFailed
		status.Error = "client_temp_id is required"
		return status
	}

	if existing, err := s.repo.FindOfflineSale(ctx, shopID, status.ClientTempID); err == nil {
		status.Status = domain.SyncStatusExisting
		status.SaleID = existing.ID
		status.OrderID = existing.OrderID
		return status
	} else if !errors.Is(err, store.ErrNotFound) {
		status.Status = domain.SyncStatusFailed
		status.Error = err.Error()
		return status
	}

	items, err := normalizeItems(input.Items)
	if err != nil {
		status.Status = domain.SyncStatusFailed
		status.Error = err.Error()
		return status
	}
	amountPaid, paymentType, installments, err := buildPayment(input.Payment)
	if err != nil {
		status.Status = domain.SyncStatusFailed
		status.Error = err.Error()
		return status
	}

	sale := domain.Sale{
		ShopID:          shopID,
		StaffID:         actor.Username,
		CustomerID:      strings.TrimSpace(input.CustomerID),
		AmountPaidCents: amountPaid,
		PaymentType:     paymentType,
		Items:           items,
		Installments:    installments,
	}

	created, err := withConflictRetry(ctx, func() (*domain.Sale, error) {
		return s.repo.RecordOfflineSale(ctx, sale, status.ClientTempID)
	})
	if err != nil {
		status.Status = domain.SyncStatusFailed
		status.Error = err.Error()
		return status
	}

	status.Status = domain.SyncStatusSynced
	status.SaleID = created.ID
	status.OrderID = created.OrderID

	s.afterSale(ctx, *created)
	return status
}

// normalizeItems validates sale lines and merges duplicate product IDs so
// the store locks each product row exactly once, in a stable order.
func normalizeItems(inputs []domain.SaleItemInput) ([]domain.SaleItem, error) {
	if len(inputs) == 0 {
		return nil, store.ErrInvalidInput
	}

	merged := make(map[string]*domain.SaleItem, len(inputs))
	order := make([]string, 0, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" || input.Quantity < 1 || input.DiscountPercent < 0 || input.DiscountPercent > 100 {
			return nil, store.ErrInvalidInput
		}
		if existing, ok := merged[productID]; ok {
			if existing.DiscountPercent != input.DiscountPercent {
				return nil, store.ErrInvalidInput
			}
			existing.Quantity += input.Quantity
			continue
		}
		merged[productID] = &domain.SaleItem{
			ProductID:       productID,
			Quantity:        input.Quantity,
			DiscountPercent: input.DiscountPercent,
		}
		order = append(order, productID)
	}

	sort.Strings(order)
	items := make([]domain.SaleItem, 0, len(order))
	for _, productID := range order {
		items = append(items, *merged[productID])
	}
	return items, nil
}

// buildPayment turns a payment spec into the paid amount, payment type,
// and installment rows to persist alongside the sale.
func buildPayment(spec domain.PaymentSpec) (int64, string, []domain.Installment, error) {
	paymentType := strings.TrimSpace(spec.Type)
	if paymentType == "" {
		paymentType = domain.PaymentTypeFull
	}
	if paymentType != domain.PaymentTypeFull && paymentType != domain.PaymentTypeInstallment {
		return 0, "", nil, store.ErrInvalidInput
	}

	if paymentType == domain.PaymentTypeInstallment && len(spec.Installments) > 0 {
		total := int64(0)
		installments := make([]domain.Installment, 0, len(spec.Installments))
		for _, input := range spec.Installments {
			method := strings.TrimSpace(input.PaymentMethod)
			if input.AmountCents < 1 || method == "" {
				return 0, "", nil, store.ErrInvalidInput
			}
			total += input.AmountCents
			installments = append(installments, domain.Installment{
				AmountCents:   input.AmountCents,
				PaymentMethod: method,
				BankName:      strings.TrimSpace(input.BankName),
				BankReference: strings.TrimSpace(input.BankReference),
			})
		}
		return total, paymentType, installments, nil
	}

	if spec.AmountCents < 0 {
		return 0, "", nil, store.ErrInvalidInput
	}
	if spec.AmountCents == 0 {
		if paymentType == domain.PaymentTypeFull {
			return 0, "", nil, store.ErrInvalidInput
		}
		return 0, paymentType, nil, nil
	}

	method := strings.TrimSpace(spec.PaymentMethod)
	if method == "" {
		method = "cash"
	}
	installments := []domain.Installment{{
		AmountCents:   spec.AmountCents,
		PaymentMethod: method,
		BankName:      strings.TrimSpace(spec.BankName),
		BankReference: strings.TrimSpace(spec.BankReference),
	}}
	return spec.AmountCents, paymentType, installments, nil
}
