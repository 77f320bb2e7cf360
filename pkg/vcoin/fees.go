package vcoin

import (
	"context"
	"math"
)

// FeeDistributor splits transaction fees into burn, treasury, and rewards-pool
// shares. The burn share is removed from circulating supply (tracked by a
// durable counter, no ledger entry); the treasury and rewards shares are
// credited to system-owned accounts through the same entry path as user
// balances, keeping one accounting substrate.
type FeeDistributor struct {
	burnRate     float64
	treasuryRate float64
}

// NewFeeDistributor builds a distributor from the validated config rates.
func NewFeeDistributor(config Config) *FeeDistributor {
	return &FeeDistributor{
		burnRate:     config.BurnRate,
		treasuryRate: config.TreasuryRate,
	}
}

// Split computes the three shares. The rewards share absorbs the rounding
// remainder so the shares always sum exactly to the fee.
func (distributor *FeeDistributor) Split(fee AmountMicro) FeeShares {
	if fee <= 0 {
		return FeeShares{}
	}
	burn := AmountMicro(math.Round(float64(fee) * distributor.burnRate))
	treasury := AmountMicro(math.Round(float64(fee) * distributor.treasuryRate))
	return FeeShares{
		BurnMicro:     burn,
		TreasuryMicro: treasury,
		RewardsMicro:  fee - burn - treasury,
	}
}

// Distribute applies a split within the caller's transaction: increments the
// burned-total counter and credits the system accounts.
func (distributor *FeeDistributor) Distribute(ctx context.Context, store Store, now Clock, fee AmountMicro) (FeeShares, error) {
	shares := distributor.Split(fee)
	if fee <= 0 {
		return shares, nil
	}
	if shares.BurnMicro > 0 {
		if err := store.AddBurned(ctx, shares.BurnMicro); err != nil {
			return FeeShares{}, WrapError(operationDistributeFee, "burn", "add", err)
		}
	}
	if shares.TreasuryMicro > 0 {
		if _, err := insertEntry(ctx, store, now, TreasuryAccount, Entry{
			Type:        EntryEarn,
			AmountMicro: shares.TreasuryMicro,
		}); err != nil {
			return FeeShares{}, WrapError(operationDistributeFee, "treasury", "credit", err)
		}
	}
	if shares.RewardsMicro > 0 {
		if _, err := insertEntry(ctx, store, now, RewardsPoolAccount, Entry{
			Type:        EntryEarn,
			AmountMicro: shares.RewardsMicro,
		}); err != nil {
			return FeeShares{}, WrapError(operationDistributeFee, "rewards_pool", "credit", err)
		}
	}
	return shares, nil
}
