package vcoin

import "context"

// VerificationTierService resolves a user's tier from their total active
// stake. The tier's multiplier feeds into reward allocation.
type VerificationTierService struct {
	tiers []TierSpec
}

// NewVerificationTierService builds the service from the configured tier table.
func NewVerificationTierService(config Config) VerificationTierService {
	return VerificationTierService{tiers: config.Tiers}
}

// TierFor returns the highest tier whose stake threshold the user meets.
// The table is validated non-empty and ascending, and the first threshold is
// zero, so there is always a match.
func (service VerificationTierService) TierFor(ctx context.Context, store Store, userID UserID) (TierSpec, error) {
	staked, err := store.SumActiveStakes(ctx, userID)
	if err != nil {
		return TierSpec{}, err
	}
	return service.TierForStaked(staked), nil
}

// TierForStaked resolves the tier for a known staked total.
func (service VerificationTierService) TierForStaked(staked AmountMicro) TierSpec {
	matched := service.tiers[0]
	for _, tier := range service.tiers[1:] {
		if staked < tier.MinStakedMicro {
			break
		}
		matched = tier
	}
	return matched
}
