package domain

const (
	LoyaltyTierBronze   = "bronze"
	LoyaltyTierSilver   = "silver"
	LoyaltyTierGold     = "gold"
	LoyaltyTierPlatinum = "platinum"
)

// LoyaltyPointsFor converts lifetime spend into points: 1 point per 100
// currency units, floor-divided.
func LoyaltyPointsFor(totalSpentCents int64) int64 {
	if totalSpentCents < 0 {
		return 0
	}
	return totalSpentCents / 10000
}

// LoyaltyTierFor derives the tier from cumulative points.
func LoyaltyTierFor(points int64) string {
	switch {
	case points >= 10000:
		return LoyaltyTierPlatinum
	case points >= 5000:
		return LoyaltyTierGold
	case points >= 1000:
		return LoyaltyTierSilver
	default:
		return LoyaltyTierBronze
	}
}
