package domain

import "testing"

func TestPOTransitions(t *testing.T) {
	cases := []struct {
		from POStatus
		to   POStatus
		ok   bool
	}{
		{POStatusDraft, POStatusSent, true},
		{POStatusDraft, POStatusCancelled, true},
		{POStatusDraft, POStatusReceived, false},
		{POStatusSent, POStatusPartial, true},
		{POStatusSent, POStatusReceived, true},
		{POStatusSent, POStatusCancelled, true},
		{POStatusSent, POStatusDraft, false},
		{POStatusPartial, POStatusPartial, true},
		{POStatusPartial, POStatusReceived, true},
		{POStatusPartial, POStatusCancelled, false},
		{POStatusReceived, POStatusCancelled, false},
		{POStatusCancelled, POStatusSent, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %t, want %t", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestPOTerminalStates(t *testing.T) {
	if !POStatusReceived.Terminal() {
		t.Fatalf("received should be terminal")
	}
	if !POStatusCancelled.Terminal() {
		t.Fatalf("cancelled should be terminal")
	}
	for _, status := range []POStatus{POStatusDraft, POStatusSent, POStatusPartial} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestFullyReceived(t *testing.T) {
	po := PurchaseOrder{Items: []PurchaseOrderItem{
		{ProductID: "a", QtyOrdered: 10, QtyReceived: 10},
		{ProductID: "b", QtyOrdered: 5, QtyReceived: 3},
	}}
	if po.FullyReceived() {
		t.Fatalf("expected not fully received with outstanding items")
	}
	po.Items[1].QtyReceived = 5
	if !po.FullyReceived() {
		t.Fatalf("expected fully received")
	}
	if got := po.Items[0].Remaining(); got != 0 {
		t.Fatalf("expected remaining 0, got %d", got)
	}
}

func TestLoyaltyPointsAndTiers(t *testing.T) {
	if got := LoyaltyPointsFor(9999); got != 0 {
		t.Fatalf("expected 0 points below one full unit, got %d", got)
	}
	if got := LoyaltyPointsFor(250000); got != 25 {
		t.Fatalf("expected 25 points, got %d", got)
	}

	cases := []struct {
		points int64
		tier   string
	}{
		{0, LoyaltyTierBronze},
		{999, LoyaltyTierBronze},
		{1000, LoyaltyTierSilver},
		{4999, LoyaltyTierSilver},
		{5000, LoyaltyTierGold},
		{9999, LoyaltyTierGold},
		{10000, LoyaltyTierPlatinum},
	}
	for _, tc := range cases {
		if got := LoyaltyTierFor(tc.points); got != tc.tier {
			t.Errorf("LoyaltyTierFor(%d) = %s, want %s", tc.points, got, tc.tier)
		}
	}
}
