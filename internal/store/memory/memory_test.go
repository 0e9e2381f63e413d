package memory

import (
	"context"
	"errors"
	"testing"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
)

func TestSeededStoreHasWorkingCredentials(t *testing.T) {
	s := NewSeeded()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	roles := map[string]string{}
	for _, user := range users {
		roles[user.Username] = user.Role
		if user.ShopID != "main-shop" || !user.Active {
			t.Fatalf("unexpected seeded user: %+v", user)
		}
	}
	if roles["owner"] != "owner" || roles["staff"] != "staff" {
		t.Fatalf("unexpected seeded roles: %+v", roles)
	}
}

func TestReturnedSalesAreDetachedCopies(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.RecordSale(ctx, domain.Sale{
		ShopID:          "main-shop",
		StaffID:         "staff",
		AmountPaidCents: 980000,
		PaymentType:     domain.PaymentTypeFull,
		Items:           []domain.SaleItem{{ProductID: "prd-teh-01", Quantity: 1}},
	}, store.StockPolicyRejectNegative)
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	// Mutating the returned value must not leak into the store.
	created.TotalCents = -1
	created.Items[0].Quantity = 99

	reloaded, err := s.GetSaleByID(ctx, "main-shop", created.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if reloaded.TotalCents != 980000 || reloaded.Items[0].Quantity != 1 {
		t.Fatalf("store state mutated through returned copy: %+v", reloaded)
	}
}

func TestStockFloorPolicy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := domain.Sale{
		ShopID:          "main-shop",
		StaffID:         "staff",
		AmountPaidCents: 0,
		PaymentType:     domain.PaymentTypeFull,
		Items:           []domain.SaleItem{{ProductID: "prd-telur-01", Quantity: 26}},
	}

	if _, err := s.RecordSale(ctx, sale, store.StockPolicyRejectNegative); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	created, err := s.RecordOfflineSale(ctx, sale, "tablet-floor-test")
	if err != nil {
		t.Fatalf("offline sale: %v", err)
	}
	if created == nil {
		t.Fatalf("expected sale")
	}

	product, err := s.GetProduct(ctx, "main-shop", "prd-telur-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != -1 {
		t.Fatalf("expected stock -1, got %d", product.Stock)
	}
}
