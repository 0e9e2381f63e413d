package memory

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

func (s *Store) RecordSale(_ context.Context, sale domain.Sale, policy store.StockPolicy) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordSaleLocked(sale, policy)
}

func (s *Store) RecordOfflineSale(_ context.Context, sale domain.Sale, clientTempID string) (*domain.Sale, error) {
	clientTempID = strings.TrimSpace(clientTempID)
	if clientTempID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if saleID, ok := s.offlineSyncs[memKey(sale.ShopID, clientTempID)]; ok {
		existing := cloneSale(s.salesByID[saleID])
		return existing, nil
	}

	created, err := s.recordSaleLocked(sale, store.StockPolicyAllowNegative)
	if err != nil {
		return nil, err
	}
	s.offlineSyncs[memKey(sale.ShopID, clientTempID)] = created.ID
	return created, nil
}

func (s *Store) recordSaleLocked(sale domain.Sale, policy store.StockPolicy) (*domain.Sale, error) {
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
	if sale.CustomerID != "" {
		if _, ok := s.customers[memKey(sale.ShopID, sale.CustomerID)]; !ok {
			if policy == store.StockPolicyRejectNegative {
				return nil, store.ErrNotFound
			}
			// The customer was deleted while the client was offline. The
			// sale still happened, so drop the reference and keep the sale.
			sale.CustomerID = ""
		}
	}

	// Check every line and total the basket before touching stock so a
	// rejected sale leaves no partial decrement behind.
	totalCents := int64(0)
	for _, item := range sale.Items {
		product, ok := s.products[memKey(sale.ShopID, item.ProductID)]
		if !ok {
			return nil, store.ErrNotFound
		}
		if policy == store.StockPolicyRejectNegative && product.Stock-item.Quantity < 0 {
			return nil, store.ErrInsufficientStock
		}
		totalCents += lineTotalCents(product.PriceCents, item.Quantity, item.DiscountPercent)
	}
	if sale.AmountPaidCents > totalCents {
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

	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	for idx, item := range items {
		product, _ := s.applyStockDeltaLocked(sale.ShopID, item.ProductID, -item.Quantity, policy)
		items[idx].UnitPriceCents = product.PriceCents
		items[idx].CostPriceCents = product.CostPriceCents
	}

	sale.Items = items
	sale.TotalCents = totalCents
	sale.OutstandingCents = totalCents - sale.AmountPaidCents
	if sale.OutstandingCents > 0 {
		sale.PaymentStatus = domain.PaymentStatusPending
	} else {
		sale.PaymentStatus = domain.PaymentStatusCompleted
	}
	if sale.PaymentType == "" {
		sale.PaymentType = domain.PaymentTypeFull
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
			installments = append(installments, inst)
		}
	}
	sale.Installments = installments

	saved := sale
	s.salesByID[sale.ID] = &saved
	return cloneSale(&saved), nil
}

func (s *Store) GetSaleByID(_ context.Context, shopID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, shopID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.ShopID != shopID {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ApplyPayment(_ context.Context, shopID string, installment domain.Installment) (*domain.Sale, error) {
	if installment.SaleID == "" || installment.AmountCents < 1 || installment.PaymentMethod == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[installment.SaleID]
	if !ok || sale.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	if sale.PaymentStatus == domain.PaymentStatusCompleted {
		return nil, store.ErrAlreadySettled
	}

	outstanding := sale.TotalCents - sale.AmountPaidCents
	if installment.AmountCents > outstanding {
		return nil, store.ErrExceedsBalance
	}

	if installment.ID == "" {
		installment.ID = xid.New("ins")
	}
	if installment.CreatedAt.IsZero() {
		installment.CreatedAt = time.Now().UTC()
	}

	sale.Installments = append(sale.Installments, installment)
	sale.AmountPaidCents += installment.AmountCents
	sale.OutstandingCents = sale.TotalCents - sale.AmountPaidCents
	if sale.OutstandingCents <= 0 {
		sale.OutstandingCents = 0
		sale.PaymentStatus = domain.PaymentStatusCompleted
	}

	return cloneSale(sale), nil
}

func (s *Store) FindOfflineSale(_ context.Context, shopID string, clientTempID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saleID, ok := s.offlineSyncs[memKey(shopID, clientTempID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetDailySummary(_ context.Context, shopID string, day time.Time) (*domain.DailySummary, error) {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{
		ShopID: shopID,
		Date:   dayStart.Format("2006-01-02"),
	}
	for _, sale := range s.salesByID {
		if sale.ShopID != shopID {
			continue
		}
		at := sale.CreatedAt.UTC()
		if at.Before(dayStart) || !at.Before(dayEnd) {
			continue
		}
		summary.Sales++
		summary.RevenueCents += sale.TotalCents
		summary.CollectedCents += sale.AmountPaidCents
		summary.OutstandingCents += sale.OutstandingCents
	}
	return &summary, nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	out := *sale
	out.Items = slices.Clone(sale.Items)
	out.Installments = slices.Clone(sale.Installments)
	return &out
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
