package domain

// POStatus is the purchase-order lifecycle state. Transitions are validated
// by CanTransition; POStatusReceived and POStatusCancelled are terminal.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusPartial   POStatus = "partial"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

func (s POStatus) Valid() bool {
	switch s {
	case POStatusDraft, POStatusSent, POStatusPartial, POStatusReceived, POStatusCancelled:
		return true
	}
	return false
}

func (s POStatus) Terminal() bool {
	return s == POStatusReceived || s == POStatusCancelled
}

var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:   {POStatusSent, POStatusCancelled},
	POStatusSent:    {POStatusPartial, POStatusReceived, POStatusCancelled},
	POStatusPartial: {POStatusPartial, POStatusReceived},
}

// CanTransition reports whether a purchase order may move from one status to
// another. Every mutation of PO status must go through this check so no
// handler can quietly permit an edge the lifecycle forbids.
func CanTransition(from POStatus, to POStatus) bool {
	for _, allowed := range poTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Remaining returns the quantity of an order line still to be received.
func (i PurchaseOrderItem) Remaining() int {
	remaining := i.QtyOrdered - i.QtyReceived
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FullyReceived reports whether every line of the order has been received in
// full, which is the condition for the terminal received status.
func (p PurchaseOrder) FullyReceived() bool {
	if len(p.Items) == 0 {
		return false
	}
	for _, item := range p.Items {
		if item.QtyReceived < item.QtyOrdered {
			return false
		}
	}
	return true
}
