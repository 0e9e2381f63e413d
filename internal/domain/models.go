package domain

import "time"

type Product struct {
	ID             string    `json:"id"`
	ShopID         string    `json:"shop_id"`
	Name           string    `json:"name"`
	Stock          int       `json:"stock"`
	PriceCents     int64     `json:"price_cents"`
	CostPriceCents int64     `json:"cost_price_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	ShopID         string `json:"shop_id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	InitialStock   int    `json:"initial_stock"`
}

type Customer struct {
	ID              string    `json:"id"`
	ShopID          string    `json:"shop_id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	LoyaltyPoints   int64     `json:"loyalty_points"`
	LoyaltyTier     string    `json:"loyalty_tier"`
	CreatedAt       time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	ShopID string `json:"shop_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

type Supplier struct {
	ID              string     `json:"id"`
	ShopID          string     `json:"shop_id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	TotalOrders     int        `json:"total_orders"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	LastOrderAt     *time.Time `json:"last_order_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SupplierCreateRequest struct {
	ShopID string `json:"shop_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	PaymentTypeFull        = "full"
	PaymentTypeInstallment = "installment"
)

type Sale struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	ShopID           string        `json:"shop_id"`
	StaffID          string        `json:"staff_id"`
	CustomerID       string        `json:"customer_id,omitempty"`
	TotalCents       int64         `json:"total_cents"`
	AmountPaidCents  int64         `json:"amount_paid_cents"`
	OutstandingCents int64         `json:"outstanding_cents"`
	PaymentStatus    string        `json:"payment_status"`
	PaymentType      string        `json:"payment_type"`
	CreatedAt        time.Time     `json:"created_at"`
	Items            []SaleItem    `json:"items"`
	Installments     []Installment `json:"installments,omitempty"`
}

type SaleItem struct {
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	CostPriceCents  int64   `json:"cost_price_cents"`
	DiscountPercent float64 `json:"discount_percent"`
}

type Installment struct {
	ID            string    `json:"id"`
	SaleID        string    `json:"sale_id"`
	AmountCents   int64     `json:"amount_cents"`
	PaymentMethod string    `json:"payment_method"`
	BankName      string    `json:"bank_name,omitempty"`
	BankReference string    `json:"bank_reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SaleItemInput struct {
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	DiscountPercent float64 `json:"discount_percent"`
}

type InstallmentInput struct {
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
	BankName      string `json:"bank_name,omitempty"`
	BankReference string `json:"bank_reference,omitempty"`
}

// PaymentSpec describes how a sale is paid at creation time: either a single
// amount (full or partial), or a list of installments whose amounts are summed.
type PaymentSpec struct {
	Type          string             `json:"type"`
	AmountCents   int64              `json:"amount_cents"`
	PaymentMethod string             `json:"payment_method"`
	BankName      string             `json:"bank_name,omitempty"`
	BankReference string             `json:"bank_reference,omitempty"`
	Installments  []InstallmentInput `json:"installments,omitempty"`
}

type RecordSaleRequest struct {
	ShopID     string          `json:"shop_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Items      []SaleItemInput `json:"items"`
	Payment    PaymentSpec     `json:"payment"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type ApplyPaymentRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
	BankName      string `json:"bank_name,omitempty"`
	BankReference string `json:"bank_reference,omitempty"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	PONumber   string              `json:"po_number"`
	ShopID     string              `json:"shop_id"`
	SupplierID string              `json:"supplier_id"`
	Status     POStatus            `json:"status"`
	TotalCents int64               `json:"total_cents"`
	SentAt     *time.Time          `json:"sent_at,omitempty"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItem struct {
	ProductID     string `json:"product_id"`
	QtyOrdered    int    `json:"qty_ordered"`
	QtyReceived   int    `json:"qty_received"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type POItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	// UnitCostCents defaults to the product's current price when zero.
	UnitCostCents int64 `json:"unit_cost_cents,omitempty"`
}

type PurchaseOrderCreateRequest struct {
	ShopID     string        `json:"shop_id"`
	SupplierID string        `json:"supplier_id"`
	Items      []POItemInput `json:"items"`
}

type PurchaseOrderUpdateRequest struct {
	Items []POItemInput `json:"items"`
}

type POReceiveLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// PurchaseOrderReceiveRequest with no items means "receive the full remaining
// quantity of every line".
type PurchaseOrderReceiveRequest struct {
	Items []POReceiveLine `json:"items,omitempty"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type OfflineSaleInput struct {
	ClientTempID string          `json:"client_temp_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	Items        []SaleItemInput `json:"items"`
	Payment      PaymentSpec     `json:"payment"`
}

type OfflineSyncRequest struct {
	ShopID string             `json:"shop_id"`
	Sales  []OfflineSaleInput `json:"sales"`
}

const (
	SyncStatusSynced   = "synced"
	SyncStatusExisting = "existing"
	SyncStatusFailed   = "failed"
)

type OfflineSyncStatus struct {
	ClientTempID string `json:"client_temp_id"`
	Status       string `json:"status"`
	SaleID       string `json:"sale_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

type OfflineSyncResponse struct {
	Statuses []OfflineSyncStatus `json:"statuses"`
}

type LowStockProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

type LowStockResponse struct {
	ShopID    string            `json:"shop_id"`
	Threshold int               `json:"threshold"`
	Products  []LowStockProduct `json:"products"`
}

type DailySummary struct {
	ShopID           string `json:"shop_id"`
	Date             string `json:"date"`
	Sales            int64  `json:"sales"`
	RevenueCents     int64  `json:"revenue_cents"`
	CollectedCents   int64  `json:"collected_cents"`
	OutstandingCents int64  `json:"outstanding_cents"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shop_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ShopID      string `json:"shop_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	ShopID   string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	ShopID    string
	Active    bool
	CreatedAt time.Time
}
