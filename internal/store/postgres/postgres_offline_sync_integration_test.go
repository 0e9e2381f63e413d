package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tokoledger/backend/internal/domain"
)

func TestOfflineSaleReplayIsIdempotent(t *testing.T) {
	databaseURL := os.Getenv("TOKOLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-sync-it-%d", stamp)
	clientTempID := fmt.Sprintf("tablet-it-%d", stamp)
	shopID := "main-shop"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `
			DELETE FROM installments WHERE sale_id IN
				(SELECT sale_id FROM offline_sale_syncs WHERE shop_id = $1 AND client_temp_id = $2)
		`, shopID, clientTempID)
		_, _ = s.db.ExecContext(ctx, `
			DELETE FROM sale_items WHERE sale_id IN
				(SELECT sale_id FROM offline_sale_syncs WHERE shop_id = $1 AND client_temp_id = $2)
		`, shopID, clientTempID)
		var saleID string
		_ = s.db.QueryRowContext(ctx, `
			SELECT sale_id FROM offline_sale_syncs WHERE shop_id = $1 AND client_temp_id = $2
		`, shopID, clientTempID).Scan(&saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM offline_sale_syncs WHERE shop_id = $1 AND client_temp_id = $2`, shopID, clientTempID)
		if saleID != "" {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE shop_id = $1 AND id = $2`, shopID, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, stock, price_cents, cost_price_cents, created_at, updated_at)
		VALUES ($1, $2, 'Produk Sync IT', 2, 500000, 380000, now(), now())
	`, productID, shopID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	sale := domain.Sale{
		ShopID:          shopID,
		StaffID:         "staff",
		AmountPaidCents: 2500000,
		PaymentType:     domain.PaymentTypeFull,
		Items: []domain.SaleItem{
			{ProductID: productID, Quantity: 5},
		},
	}

	first, err := s.RecordOfflineSale(ctx, sale, clientTempID)
	if err != nil {
		t.Fatalf("first replay: %v", err)
	}
	if first.TotalCents != 2500000 {
		t.Fatalf("expected total 2500000, got %d", first.TotalCents)
	}

	// Same client_temp_id again must return the original sale untouched.
	second, err := s.RecordOfflineSale(ctx, sale, clientTempID)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same sale id, got %s and %s", first.ID, second.ID)
	}

	// Stock went negative exactly once: 2 on hand, 5 sold offline.
	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock
		FROM products
		WHERE shop_id = $1 AND id = $2
	`, shopID, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != -3 {
		t.Fatalf("expected stock -3 after single replay, got %d", stock)
	}

	found, err := s.FindOfflineSale(ctx, shopID, clientTempID)
	if err != nil {
		t.Fatalf("find offline sale: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("expected lookup to return %s, got %s", first.ID, found.ID)
	}
}
