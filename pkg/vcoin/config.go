package vcoin

import (
	"fmt"
	"math"
)

const feeRateSumTolerance = 1e-9

// TierSpec pairs a minimum active stake with the reward multiplier it unlocks.
type TierSpec struct {
	Name             string
	MinStakedMicro   AmountMicro
	RewardMultiplier float64
}

// Config holds the token-economy parameters. It is built once at process
// start, validated, and passed explicitly; nothing in this package mutates it.
type Config struct {
	// Emission.
	TotalSupply                   int64
	MonthlyEmission               int64
	DailyRewardAllocationFraction float64
	// DailyPointsBudget is the expected total admitted points per day across
	// all users; it fixes the points-to-VCN rate (see VCNPerPointMicro).
	DailyPointsBudget int64

	// Per-user daily reward ceiling in USD, converted via VCNPriceUSD.
	MaxDailyRewardUSD float64
	VCNPriceUSD       float64

	// Activity weights and caps, keyed by action type.
	ActivityPoints map[ActionType]int64
	DailyCaps      map[ActionType]int64

	// Fee handling. TransactionFeeRate applies to transfers; the three split
	// rates must sum to 1.
	TransactionFeeRate float64
	BurnRate           float64
	TreasuryRate       float64
	RewardsRate        float64

	// Staking.
	MinStakeMicro     AmountMicro
	StakingAPYPercent map[int]float64 // durationDays -> APY

	// Verification tiers, ascending by MinStakedMicro.
	Tiers []TierSpec
}

// DefaultConfig returns the production parameter set. Deployments override
// individual fields through the environment (see cmd/vcoind).
func DefaultConfig() Config {
	return Config{
		TotalSupply:                   1_000_000_000,
		MonthlyEmission:               5_833_333,
		DailyRewardAllocationFraction: 0.8,
		DailyPointsBudget:             2_000_000,
		MaxDailyRewardUSD:             10,
		VCNPriceUSD:                   0.10,
		ActivityPoints: map[ActionType]int64{
			ActionPost:    50,
			ActionLike:    5,
			ActionComment: 15,
			ActionShare:   25,
			ActionRepost:  20,
			ActionFollow:  10,
		},
		DailyCaps: map[ActionType]int64{
			ActionPost:    10,
			ActionLike:    100,
			ActionComment: 50,
			ActionShare:   20,
			ActionRepost:  20,
			ActionFollow:  30,
		},
		TransactionFeeRate: 0.05,
		BurnRate:           0.2,
		TreasuryRate:       0.5,
		RewardsRate:        0.3,
		MinStakeMicro:      VCN(100),
		StakingAPYPercent: map[int]float64{
			30:  6,
			90:  12,
			180: 18,
		},
		Tiers: []TierSpec{
			{Name: "basic", MinStakedMicro: 0, RewardMultiplier: 1.0},
			{Name: "silver", MinStakedMicro: VCN(1_000), RewardMultiplier: 1.1},
			{Name: "gold", MinStakedMicro: VCN(10_000), RewardMultiplier: 1.25},
			{Name: "platinum", MinStakedMicro: VCN(50_000), RewardMultiplier: 1.5},
		},
	}
}

// Validate checks the config at startup. Any error here is fatal to the
// process; request paths assume a validated config.
func (config Config) Validate() error {
	if config.TotalSupply <= 0 {
		return fmt.Errorf("%w: total supply must be positive", ErrInvalidConfig)
	}
	if config.MonthlyEmission <= 0 {
		return fmt.Errorf("%w: monthly emission must be positive", ErrInvalidConfig)
	}
	if config.DailyRewardAllocationFraction <= 0 || config.DailyRewardAllocationFraction > 1 {
		return fmt.Errorf("%w: daily reward allocation fraction must be in (0,1]", ErrInvalidConfig)
	}
	if config.DailyPointsBudget <= 0 {
		return fmt.Errorf("%w: daily points budget must be positive", ErrInvalidConfig)
	}
	if config.MaxDailyRewardUSD < 0 {
		return fmt.Errorf("%w: max daily reward usd must not be negative", ErrInvalidConfig)
	}
	if config.VCNPriceUSD <= 0 {
		return fmt.Errorf("%w: vcn price usd must be positive", ErrInvalidConfig)
	}
	if len(config.ActivityPoints) == 0 {
		return fmt.Errorf("%w: activity points table is empty", ErrInvalidConfig)
	}
	for action, points := range config.ActivityPoints {
		if points < 0 {
			return fmt.Errorf("%w: negative points for action %s", ErrInvalidConfig, action)
		}
		if _, ok := config.DailyCaps[action]; !ok {
			return fmt.Errorf("%w: missing daily cap for action %s", ErrInvalidConfig, action)
		}
	}
	for action, cap := range config.DailyCaps {
		if cap < 0 {
			return fmt.Errorf("%w: negative daily cap for action %s", ErrInvalidConfig, action)
		}
	}
	if config.TransactionFeeRate < 0 || config.TransactionFeeRate >= 1 {
		return fmt.Errorf("%w: transaction fee rate must be in [0,1)", ErrInvalidConfig)
	}
	if config.BurnRate < 0 || config.TreasuryRate < 0 || config.RewardsRate < 0 {
		return fmt.Errorf("%w: fee split rates must not be negative", ErrInvalidConfig)
	}
	rateSum := config.BurnRate + config.TreasuryRate + config.RewardsRate
	if math.Abs(rateSum-1) > feeRateSumTolerance {
		return fmt.Errorf("%w: fee split rates sum to %v, want 1", ErrInvalidConfig, rateSum)
	}
	if config.MinStakeMicro <= 0 {
		return fmt.Errorf("%w: minimum stake must be positive", ErrInvalidConfig)
	}
	if len(config.StakingAPYPercent) == 0 {
		return fmt.Errorf("%w: staking apy table is empty", ErrInvalidConfig)
	}
	for durationDays, apy := range config.StakingAPYPercent {
		if durationDays <= 0 {
			return fmt.Errorf("%w: non-positive stake duration %d", ErrInvalidConfig, durationDays)
		}
		if apy <= 0 {
			return fmt.Errorf("%w: non-positive apy for duration %d", ErrInvalidConfig, durationDays)
		}
	}
	if len(config.Tiers) == 0 {
		return fmt.Errorf("%w: tier table is empty", ErrInvalidConfig)
	}
	previousThreshold := AmountMicro(-1)
	for _, tier := range config.Tiers {
		if tier.RewardMultiplier <= 0 {
			return fmt.Errorf("%w: non-positive multiplier for tier %s", ErrInvalidConfig, tier.Name)
		}
		if tier.MinStakedMicro <= previousThreshold {
			return fmt.Errorf("%w: tier thresholds must be strictly ascending", ErrInvalidConfig)
		}
		previousThreshold = tier.MinStakedMicro
	}
	return nil
}

// DailyRewardPoolMicro derives the daily distribution budget from the
// emission schedule. Recomputed on demand, never persisted.
func (config Config) DailyRewardPoolMicro() AmountMicro {
	pool := math.Round(float64(config.MonthlyEmission) * config.DailyRewardAllocationFraction / 30)
	return AmountMicro(int64(pool) * MicroPerVCN)
}

// VCNPerPointMicro is the fixed points-to-VCN exchange rate: the daily pool
// divided by the expected daily points budget.
func (config Config) VCNPerPointMicro() AmountMicro {
	return config.DailyRewardPoolMicro() / AmountMicro(config.DailyPointsBudget)
}

// MaxDailyRewardMicro converts the per-user USD ceiling into micro-VCN at the
// configured price.
func (config Config) MaxDailyRewardMicro() AmountMicro {
	return AmountMicro(math.Round(config.MaxDailyRewardUSD / config.VCNPriceUSD * MicroPerVCN))
}
