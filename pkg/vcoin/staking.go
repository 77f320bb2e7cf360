package vcoin

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// StakingEngine governs the stake lifecycle: lock principal for a fixed
// duration at a duration-dependent APY, then return principal plus rewards
// once matured. There is deliberately no early or partial withdrawal path.
type StakingEngine struct {
	store       Store
	nowFn       Clock
	config      Config
	logger      OperationLogger
	invalidator CacheInvalidator
}

// StakingOption configures a StakingEngine.
type StakingOption func(*StakingEngine)

// WithStakingOperationLogger wires a logger for stake and unstake operations.
func WithStakingOperationLogger(logger OperationLogger) StakingOption {
	return func(engine *StakingEngine) {
		engine.logger = logger
	}
}

// WithStakingCacheInvalidator wires the balance-cache hook.
func WithStakingCacheInvalidator(invalidator CacheInvalidator) StakingOption {
	return func(engine *StakingEngine) {
		engine.invalidator = invalidator
	}
}

// NewStakingEngine wires a StakingEngine.
func NewStakingEngine(store Store, now Clock, config Config, options ...StakingOption) (*StakingEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceInit)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceInit)
	}
	engine := &StakingEngine{store: store, nowFn: now, config: config}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// Stake locks amount for durationDays. The principal leaves the spendable
// balance through a stake debit entry in the same transaction that creates
// the stake record.
func (engine *StakingEngine) Stake(ctx context.Context, userID UserID, amount AmountMicro, durationDays int) (Stake, error) {
	var stake Stake
	operationError := func() error {
		if amount <= 0 {
			return fmt.Errorf("%w: stake amount must be positive", ErrInvalidAmount)
		}
		if amount < engine.config.MinStakeMicro {
			return ErrBelowMinimumStake
		}
		apy, ok := engine.config.StakingAPYPercent[durationDays]
		if !ok {
			return ErrInvalidDuration
		}
		return engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			accountID, err := lockAndCheckBalance(ctx, transactionStore, userID, amount)
			if err != nil {
				return err
			}
			startDate := engine.nowFn().UTC()
			stake = Stake{
				StakeID:      uuid.NewString(),
				UserID:       userID.String(),
				AmountMicro:  amount,
				DurationDays: durationDays,
				APYPercent:   apy,
				StartDate:    startDate,
				EndDate:      startDate.AddDate(0, 0, durationDays),
				Status:       StakeStatusActive,
			}
			if err := transactionStore.CreateStake(ctx, stake); err != nil {
				return err
			}
			_, err = insertEntryForAccount(ctx, transactionStore, engine.nowFn, accountID, Entry{
				Type:        EntryStake,
				AmountMicro: amount.Negated(),
				StakeID:     stake.StakeID,
			})
			return err
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation: operationStake,
		UserID:    userID,
		StakeID:   stake.StakeID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Stake{}, operationError
	}
	engine.invalidate(ctx, userID)
	return stake, nil
}

// Unstake returns principal plus fully matured rewards once the lock has
// expired. The status flip is a conditional update, so a second call cannot
// double-pay: it fails with ErrAlreadyUnstaked.
func (engine *StakingEngine) Unstake(ctx context.Context, stakeID string, userID UserID) (AmountMicro, error) {
	var payout AmountMicro
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		stake, err := transactionStore.GetStake(ctx, stakeID)
		if err != nil {
			return err
		}
		if stake.UserID != userID.String() {
			return ErrForbidden
		}
		if stake.Status != StakeStatusActive {
			return ErrAlreadyUnstaked
		}
		if engine.nowFn().UTC().Before(stake.EndDate) {
			return ErrNotYetMatured
		}
		if err := transactionStore.MarkStakeUnstaked(ctx, stakeID); err != nil {
			return err
		}
		earned := maturedRewards(stake)
		payout = stake.AmountMicro + earned
		_, err = insertEntry(ctx, transactionStore, engine.nowFn, userID, Entry{
			Type:        EntryUnstake,
			AmountMicro: payout,
			StakeID:     stake.StakeID,
		})
		return err
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationUnstake,
		UserID:    userID,
		StakeID:   stakeID,
		Amount:    payout,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	engine.invalidate(ctx, userID)
	return payout, nil
}

// StakeView is a stake with its rewards accrued as of now.
type StakeView struct {
	Stake
	EarnedRewardsMicro AmountMicro
}

// Stakes lists the user's stakes with current accrual.
func (engine *StakingEngine) Stakes(ctx context.Context, userID UserID) ([]StakeView, error) {
	stakes, err := engine.store.ListStakes(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := engine.nowFn().UTC()
	views := make([]StakeView, 0, len(stakes))
	for _, stake := range stakes {
		views = append(views, StakeView{
			Stake:              stake,
			EarnedRewardsMicro: AccruedRewards(stake, now),
		})
	}
	return views, nil
}

// AccruedRewards computes amount * apy * elapsedDays / (365 * 100), with
// elapsedDays clamped to the stake duration once matured. Monotonic in time
// and deterministic for a given clock.
func AccruedRewards(stake Stake, at time.Time) AmountMicro {
	if stake.Status != StakeStatusActive {
		return maturedRewards(stake)
	}
	elapsedDays := int(at.Sub(stake.StartDate).Hours() / 24)
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	if elapsedDays > stake.DurationDays {
		elapsedDays = stake.DurationDays
	}
	return rewardFor(stake.AmountMicro, stake.APYPercent, elapsedDays)
}

func maturedRewards(stake Stake) AmountMicro {
	return rewardFor(stake.AmountMicro, stake.APYPercent, stake.DurationDays)
}

func rewardFor(amount AmountMicro, apyPercent float64, days int) AmountMicro {
	return AmountMicro(math.Round(float64(amount) * apyPercent * float64(days) / (daysPerYear * 100)))
}

func (engine *StakingEngine) logOperation(ctx context.Context, entry OperationLog) {
	if engine.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	engine.logger.LogOperation(ctx, entry)
}

func (engine *StakingEngine) invalidate(ctx context.Context, userID UserID) {
	if engine.invalidator == nil {
		return
	}
	if err := engine.invalidator.InvalidateBalance(ctx, userID); err != nil {
		engine.logOperation(ctx, OperationLog{
			Operation: operationInvalidateCache,
			UserID:    userID,
			Error:     err,
		})
	}
}
