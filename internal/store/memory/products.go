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

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ShopID == "" || product.Name == "" || product.PriceCents < 1 || product.CostPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[memKey(product.ShopID, product.ID)]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[memKey(product.ShopID, product.ID)] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, shopID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[memKey(shopID, productID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) ListProducts(_ context.Context, shopID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.ShopID != shopID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) AdjustStock(_ context.Context, shopID string, productID string, delta int, policy store.StockPolicy) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyStockDeltaLocked(shopID, productID, delta, policy)
}

// applyStockDeltaLocked mirrors the SQL store's single-writer stock rule.
// Callers must hold s.mu.
func (s *Store) applyStockDeltaLocked(shopID string, productID string, delta int, policy store.StockPolicy) (*domain.Product, error) {
	product, ok := s.products[memKey(shopID, productID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	if policy == store.StockPolicyRejectNegative && product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[memKey(shopID, productID)] = product

	updated := product
	return &updated, nil
}

func (s *Store) LowStockProducts(_ context.Context, shopID string, threshold int) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.LowStockProduct, 0, 16)
	for _, p := range s.products {
		if p.ShopID != shopID || p.Stock > threshold {
			continue
		}
		low = append(low, domain.LowStockProduct{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
	}
	slices.SortFunc(low, func(a, b domain.LowStockProduct) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return low, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.ShopID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[memKey(customer.ShopID, customer.ID)]; exists {
		return nil, store.ErrInvalidInput
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[memKey(customer.ShopID, customer.ID)] = customer

	created := customer
	decorateLoyalty(&created)
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, shopID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[memKey(shopID, customerID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := customer
	decorateLoyalty(&found)
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context, shopID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.ShopID != shopID {
			continue
		}
		decorateLoyalty(&c)
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) ApplyCustomerSpend(_ context.Context, shopID string, customerID string, deltaCents int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[memKey(shopID, customerID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.TotalSpentCents += deltaCents
	s.customers[memKey(shopID, customerID)] = customer

	updated := customer
	decorateLoyalty(&updated)
	return &updated, nil
}

func decorateLoyalty(c *domain.Customer) {
	c.LoyaltyPoints = domain.LoyaltyPointsFor(c.TotalSpentCents)
	c.LoyaltyTier = domain.LoyaltyTierFor(c.LoyaltyPoints)
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.ShopID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliers[memKey(supplier.ShopID, supplier.ID)]; exists {
		return nil, store.ErrInvalidInput
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[memKey(supplier.ShopID, supplier.ID)] = supplier

	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, shopID string, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[memKey(shopID, supplierID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := supplier
	return &found, nil
}

func (s *Store) ListSuppliers(_ context.Context, shopID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if sup.ShopID != shopID {
			continue
		}
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return suppliers, nil
}
