package vcoin

import (
	"context"
	"fmt"
)

// RewardService is the caller-facing entry point for rewarded activity: it
// admits the action against the daily cap, allocates a bounded reward, and
// appends the reward entry, all in one transaction. The social action itself
// (the post, the like) is recorded by the caller regardless of the outcome
// here; a capped action simply earns nothing.
type RewardService struct {
	store       Store
	nowFn       Clock
	allocator   RewardPoolAllocator
	logger      OperationLogger
	invalidator CacheInvalidator
}

// RewardOption configures a RewardService.
type RewardOption func(*RewardService)

// WithRewardOperationLogger wires a logger for reward operations.
func WithRewardOperationLogger(logger OperationLogger) RewardOption {
	return func(service *RewardService) {
		service.logger = logger
	}
}

// WithRewardCacheInvalidator wires the balance-cache hook.
func WithRewardCacheInvalidator(invalidator CacheInvalidator) RewardOption {
	return func(service *RewardService) {
		service.invalidator = invalidator
	}
}

// NewRewardService wires a RewardService.
func NewRewardService(store Store, now Clock, config Config, options ...RewardOption) (*RewardService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceInit)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceInit)
	}
	service := &RewardService{
		store:     store,
		nowFn:     now,
		allocator: NewRewardPoolAllocator(config),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// RewardOutcome reports the result of one rewarded action.
type RewardOutcome struct {
	Admitted    bool
	RewardMicro AmountMicro
	Entry       Entry
}

// RecordActivity processes one user action. Admitted zero-reward outcomes
// (budget exhausted) append no entry.
func (service *RewardService) RecordActivity(ctx context.Context, userID UserID, action ActionType, postID string) (RewardOutcome, error) {
	now := service.nowFn().UTC()
	var outcome RewardOutcome
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		admitted, reward, err := service.allocator.ComputeReward(ctx, transactionStore, userID, action, now)
		if err != nil {
			return err
		}
		outcome = RewardOutcome{Admitted: admitted, RewardMicro: reward}
		if reward <= 0 {
			return nil
		}
		entry, err := insertEntry(ctx, transactionStore, service.nowFn, userID, Entry{
			Type:        EntryReward,
			AmountMicro: reward,
			PostID:      postID,
		})
		if err != nil {
			return err
		}
		outcome.Entry = entry
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRecordActivity,
		UserID:    userID,
		Action:    action,
		Amount:    outcome.RewardMicro,
		Error:     operationError,
	})
	if operationError != nil {
		return RewardOutcome{}, operationError
	}
	if outcome.RewardMicro > 0 {
		service.invalidate(ctx, userID)
	}
	return outcome, nil
}

func (service *RewardService) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *RewardService) invalidate(ctx context.Context, userID UserID) {
	if service.invalidator == nil {
		return
	}
	if err := service.invalidator.InvalidateBalance(ctx, userID); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationInvalidateCache,
			UserID:    userID,
			Error:     err,
		})
	}
}
