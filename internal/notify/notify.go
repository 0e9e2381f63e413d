package notify

import (
	"context"
	"log"
)

// Notifier receives stock alerts raised after a sale commits. Delivery is
// best effort; a failed notification never fails the sale.
type Notifier interface {
	LowStock(ctx context.Context, shopID string, productID string, name string, stock int, threshold int)
}

// LogNotifier writes alerts to the process log. It stands in for a real
// channel (WhatsApp, email) in dev and test setups.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) LowStock(_ context.Context, shopID string, productID string, name string, stock int, threshold int) {
	log.Printf("[notify] low stock shop=%s product=%s name=%q stock=%d threshold=%d", shopID, productID, name, stock, threshold)
}

// NopNotifier discards all alerts.
type NopNotifier struct{}

func (NopNotifier) LowStock(context.Context, string, string, string, int, int) {}
