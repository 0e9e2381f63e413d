package store

import (
	"context"
	"errors"
	"time"

	"tokoledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExceedsBalance    = errors.New("amount exceeds outstanding balance")
	ErrAlreadySettled    = errors.New("sale already settled")
	ErrInvalidTransition = errors.New("invalid purchase order transition")
	ErrRemainingExceeded = errors.New("receipt exceeds remaining quantity")
	// ErrConflict is a storage-level serialization failure; the operation is
	// safe to retry.
	ErrConflict = errors.New("serialization conflict")
)

// StockPolicy decides whether a stock decrement may drive the counter below
// zero. Point-of-sale checkout rejects insufficient stock; offline replay
// accepts it unconditionally because the physical sale already happened.
type StockPolicy int

const (
	StockPolicyRejectNegative StockPolicy = iota
	StockPolicyAllowNegative
)

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, shopID string, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, shopID string) ([]domain.Product, error)
	AdjustStock(ctx context.Context, shopID string, productID string, delta int, policy StockPolicy) (*domain.Product, error)
	LowStockProducts(ctx context.Context, shopID string, threshold int) ([]domain.LowStockProduct, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, shopID string, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error)
	ApplyCustomerSpend(ctx context.Context, shopID string, customerID string, deltaCents int64) (*domain.Customer, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, shopID string, supplierID string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, shopID string) ([]domain.Supplier, error)

	RecordSale(ctx context.Context, sale domain.Sale, policy StockPolicy) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, shopID string, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, shopID string, limit int) ([]domain.Sale, error)
	ApplyPayment(ctx context.Context, shopID string, installment domain.Installment) (*domain.Sale, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, shopID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, shopID string, status domain.POStatus) ([]domain.PurchaseOrder, error)
	ReplacePurchaseOrderItems(ctx context.Context, shopID string, purchaseOrderID string, items []domain.PurchaseOrderItem) (*domain.PurchaseOrder, error)
	SendPurchaseOrder(ctx context.Context, shopID string, purchaseOrderID string, at time.Time) (*domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, shopID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, shopID string, purchaseOrderID string, lines []domain.POReceiveLine, at time.Time) (*domain.PurchaseOrder, error)

	FindOfflineSale(ctx context.Context, shopID string, clientTempID string) (*domain.Sale, error)
	RecordOfflineSale(ctx context.Context, sale domain.Sale, clientTempID string) (*domain.Sale, error)

	GetDailySummary(ctx context.Context, shopID string, day time.Time) (*domain.DailySummary, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
