package priority

import "parkcore/internal/entities"

// Tier base weights. The gap between adjacent tiers is wider than the
// auction-bonus cap, so a premium can reorder bookings inside a tier but
// never across one: a handicapped booking always outranks any paid bid
// from a lower tier.
const (
	weightWalkIn      = 100
	weightStandard    = 200
	weightMember      = 300
	weightHandicapped = 500

	// auctionBonusCap must stay below the smallest inter-tier gap.
	auctionBonusCap = 99
)

// Input carries everything the scorer looks at. DemandHint is the optional
// pricing/priority feed value for the booking's zone; zero is neutral.
type Input struct {
	Tier                entities.Tier
	AuctionPremiumCents int64
	DemandHint          int
}

// Score computes the booking's priority. It is pure: identical inputs give
// identical scores, so waitlist reordering is just a re-insert with the
// recomputed value.
func Score(in Input) int {
	score := baseWeight(in.Tier)
	score += auctionBonus(in.AuctionPremiumCents)
	score += in.DemandHint
	return score
}

func baseWeight(t entities.Tier) int {
	switch t {
	case entities.TierHandicapped:
		return weightHandicapped
	case entities.TierMember:
		return weightMember
	case entities.TierStandard:
		return weightStandard
	default:
		return weightWalkIn
	}
}

// auctionBonus is monotonic in the premium amount and saturates at the cap.
func auctionBonus(premiumCents int64) int {
	if premiumCents <= 0 {
		return 0
	}
	bonus := int(premiumCents / 100)
	if bonus > auctionBonusCap {
		return auctionBonusCap
	}
	return bonus
}
