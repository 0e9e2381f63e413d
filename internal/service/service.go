package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokoledger/backend/internal/cache"
	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/notify"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultLowStockThreshold = 10
	reportCacheTTL           = 5 * time.Minute

	conflictRetries      = 3
	conflictRetryBackoff = 25 * time.Millisecond
)

type Service struct {
	repo              store.Repository
	reports           cache.ReportCache
	notifier          notify.Notifier
	defaultShopID     string
	lowStockThreshold int
}

func New(repo store.Repository, reports cache.ReportCache, notifier notify.Notifier, defaultShopID string, lowStockThreshold int) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if defaultShopID == "" {
		defaultShopID = "main-shop"
	}
	if lowStockThreshold < 0 {
		lowStockThreshold = defaultLowStockThreshold
	}

	return &Service{
		repo:              repo,
		reports:           reports,
		notifier:          notifier,
		defaultShopID:     defaultShopID,
		lowStockThreshold: lowStockThreshold,
	}
}

// withConflictRetry reruns fn when the store reports a serialization
// conflict. Retries are bounded; other errors pass through untouched.
func withConflictRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var out T
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		out, err = fn()
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return out, err
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(conflictRetryBackoff * time.Duration(attempt+1)):
		}
	}
	return out, err
}

func (s *Service) shopFor(ctx context.Context, requested string) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.ShopID != "" {
		return actor.ShopID
	}
	if requested != "" {
		return requested
	}
	return s.defaultShopID
}

func (s *Service) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.shopFor(ctx, shopID))
}

func (s *Service) GetProduct(ctx context.Context, shopID string, productID string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, s.shopFor(ctx, shopID), productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.Product{}, fmt.Errorf("owner role required")
	}

	shopID := s.shopFor(ctx, req.ShopID)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 1 || req.CostPriceCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ShopID:         shopID,
		Name:           req.Name,
		Stock:          req.InitialStock,
		PriceCents:     req.PriceCents,
		CostPriceCents: req.CostPriceCents,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, shopID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) AdjustStock(ctx context.Context, shopID string, productID string, delta int) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.Product{}, fmt.Errorf("owner role required")
	}
	if delta == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	shopID = s.shopFor(ctx, shopID)

	product, err := withConflictRetry(ctx, func() (*domain.Product, error) {
		return s.repo.AdjustStock(ctx, shopID, productID, delta, store.StockPolicyRejectNegative)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, shopID, "stock_adjust", "product", productID, fmt.Sprintf("delta=%d,stock=%d", delta, product.Stock))
	s.afterStockChange(ctx, shopID, *product)
	return *product, nil
}

// afterStockChange raises low-stock alerts and drops the cached low-stock
// view. The write already committed, so failures here only get logged.
func (s *Service) afterStockChange(ctx context.Context, shopID string, products ...domain.Product) {
	for _, product := range products {
		if product.Stock <= s.lowStockThreshold {
			s.notifier.LowStock(ctx, shopID, product.ID, product.Name, product.Stock, s.lowStockThreshold)
		}
	}
	if err := s.reports.InvalidateLowStock(ctx, shopID); err != nil {
		log.Printf("[service] WARN: failed to invalidate low-stock cache shop=%s: %v", shopID, err)
	}
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	shopID := s.shopFor(ctx, req.ShopID)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ShopID: shopID,
		Name:   req.Name,
		Phone:  strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, shopID, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, shopID string, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, s.shopFor(ctx, shopID), customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, s.shopFor(ctx, shopID))
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return domain.Supplier{}, fmt.Errorf("owner role required")
	}

	shopID := s.shopFor(ctx, req.ShopID)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ShopID: shopID,
		Name:   req.Name,
		Phone:  strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, shopID, "supplier_create", "supplier", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetSupplier(ctx context.Context, shopID string, supplierID string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, s.shopFor(ctx, shopID), supplierID)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context, shopID string) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, s.shopFor(ctx, shopID))
}

func (s *Service) LowStockReport(ctx context.Context, shopID string) (domain.LowStockResponse, error) {
	shopID = s.shopFor(ctx, shopID)

	if cached, ok, err := s.reports.GetLowStock(ctx, shopID); err != nil {
		log.Printf("[service] WARN: low-stock cache read failed shop=%s: %v", shopID, err)
	} else if ok {
		return *cached, nil
	}

	products, err := s.repo.LowStockProducts(ctx, shopID, s.lowStockThreshold)
	if err != nil {
		return domain.LowStockResponse{}, err
	}

	resp := domain.LowStockResponse{
		ShopID:    shopID,
		Threshold: s.lowStockThreshold,
		Products:  products,
	}
	if err := s.reports.SetLowStock(ctx, shopID, &resp, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: low-stock cache write failed shop=%s: %v", shopID, err)
	}
	return resp, nil
}

func (s *Service) DailySummary(ctx context.Context, shopID string, date string) (domain.DailySummary, error) {
	shopID = s.shopFor(ctx, shopID)

	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.DailySummary{}, store.ErrInvalidInput
		}
		day = parsed
	}

	cacheKey := shopID + ":" + day.Format("2006-01-02")
	if cached, ok, err := s.reports.GetDailySummary(ctx, cacheKey); err != nil {
		log.Printf("[service] WARN: daily summary cache read failed shop=%s: %v", shopID, err)
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.GetDailySummary(ctx, shopID, day)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if err := s.reports.SetDailySummary(ctx, cacheKey, summary, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: daily summary cache write failed shop=%s: %v", shopID, err)
	}
	return *summary, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "owner" {
		return nil, fmt.Errorf("owner role required")
	}
	return s.repo.ListAuditLogs(ctx, s.shopFor(ctx, shopID), limit)
}

func (s *Service) logAudit(ctx context.Context, shopID string, action string, entityType string, entityID string, detail string) {
	if shopID == "" {
		shopID = s.defaultShopID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ShopID:        shopID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
