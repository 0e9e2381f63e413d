package memory

import (
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoledger/backend/internal/domain"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	suppliers       map[string]domain.Supplier
	salesByID       map[string]*domain.Sale
	offlineSyncs    map[string]string
	purchaseOrders  map[string]*domain.PurchaseOrder
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, "owner"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			ShopID:    "main-shop",
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-beras-01", Name: "Beras 5kg", Stock: 40, PriceCents: 7200000, CostPriceCents: 6500000},
		{ID: "prd-minyak-01", Name: "Minyak Goreng 2L", Stock: 55, PriceCents: 3400000, CostPriceCents: 2950000},
		{ID: "prd-gula-01", Name: "Gula 1kg", Stock: 80, PriceCents: 1740000, CostPriceCents: 1520000},
		{ID: "prd-kopi-01", Name: "Kopi Bubuk 200g", Stock: 65, PriceCents: 1850000, CostPriceCents: 1480000},
		{ID: "prd-teh-01", Name: "Teh Celup", Stock: 90, PriceCents: 980000, CostPriceCents: 760000},
		{ID: "prd-sabun-01", Name: "Sabun Mandi", Stock: 120, PriceCents: 740000, CostPriceCents: 530000},
		{ID: "prd-mie-01", Name: "Mie Instan Dus", Stock: 30, PriceCents: 9800000, CostPriceCents: 8700000},
		{ID: "prd-telur-01", Name: "Telur 1kg", Stock: 25, PriceCents: 2650000, CostPriceCents: 2350000},
	}

	customers := []domain.Customer{
		{ID: "cus-ibu-sari", Name: "Ibu Sari", Phone: "+62-812-1111-2222", TotalSpentCents: 4200000},
		{ID: "cus-pak-budi", Name: "Pak Budi", Phone: "+62-813-3333-4444", TotalSpentCents: 52100000},
	}

	suppliers := []domain.Supplier{
		{ID: "sup-grosir-jaya", Name: "Grosir Jaya", Phone: "+62-21-555-0101"},
		{ID: "sup-distributor-makmur", Name: "Distributor Makmur", Phone: "+62-21-555-0202"},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.ShopID = "main-shop"
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[memKey(p.ShopID, p.ID)] = p
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		c.ShopID = "main-shop"
		c.CreatedAt = now
		customerMap[memKey(c.ShopID, c.ID)] = c
	}
	supplierMap := make(map[string]domain.Supplier, len(suppliers))
	for _, s := range suppliers {
		s.ShopID = "main-shop"
		s.CreatedAt = now
		supplierMap[memKey(s.ShopID, s.ID)] = s
	}

	return &Store{
		products:        productMap,
		customers:       customerMap,
		suppliers:       supplierMap,
		salesByID:       make(map[string]*domain.Sale),
		offlineSyncs:    make(map[string]string),
		purchaseOrders:  make(map[string]*domain.PurchaseOrder),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func memKey(shopID, id string) string {
	return shopID + "/" + id
}
