package vcoin

import (
	"context"
	"math"
	"time"
)

// RewardPoolAllocator converts admitted activity into a bounded VCN reward.
//
// The points-to-VCN rate is fixed per config (daily pool / daily points
// budget). Two clamps keep the emission bounded: a per-user daily ceiling
// expressed in USD, and a global per-day pool counter that guarantees the
// aggregate of all rewards never exceeds the daily pool. Both counters live
// in the store and are updated atomically within the caller's transaction.
type RewardPoolAllocator struct {
	config   Config
	points   ActivityPointCalculator
	enforcer DailyCapEnforcer
	tiers    VerificationTierService
}

// NewRewardPoolAllocator wires the allocator and its leaf components.
func NewRewardPoolAllocator(config Config) RewardPoolAllocator {
	return RewardPoolAllocator{
		config:   config,
		points:   NewActivityPointCalculator(config),
		enforcer: NewDailyCapEnforcer(config),
		tiers:    NewVerificationTierService(config),
	}
}

// ComputeReward admits the action against the daily cap and returns the final
// reward amount. A rejected action reports admitted=false; an admitted action
// with exhausted budgets reports admitted=true and a zero reward. It mutates
// only the activity and budget counters; the ledger entry is the caller's
// responsibility (see RewardService.RecordActivity).
func (allocator RewardPoolAllocator) ComputeReward(ctx context.Context, store Store, userID UserID, action ActionType, at time.Time) (bool, AmountMicro, error) {
	points := allocator.points.PointsFor(action)

	admitted, err := allocator.enforcer.TryAdmit(ctx, store, userID, action, at)
	if err != nil {
		return false, 0, err
	}
	if !admitted {
		return false, 0, nil
	}

	tier, err := allocator.tiers.TierFor(ctx, store, userID)
	if err != nil {
		return true, 0, err
	}
	candidate := AmountMicro(math.Round(float64(points) * float64(allocator.config.VCNPerPointMicro()) * tier.RewardMultiplier))
	if candidate <= 0 {
		return true, 0, nil
	}

	dayKey := DayKey(at)
	granted, err := store.AddPoolUsageWithin(ctx, dayKey, candidate, allocator.config.DailyRewardPoolMicro())
	if err != nil {
		return true, 0, err
	}
	if granted <= 0 {
		return true, 0, nil
	}

	granted, err = store.AddRewardWithin(ctx, userID, dayKey, granted, allocator.config.MaxDailyRewardMicro())
	if err != nil {
		return true, 0, err
	}
	if granted < 0 {
		granted = 0
	}
	return true, granted, nil
}
