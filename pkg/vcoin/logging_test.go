package vcoin

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestLedgerLogsCreditOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recorderLogger{}
	ledger := mustLedger(test, store, time.Now, testConfig(test), WithOperationLogger(logger))
	userID := mustUserID(test, "logged-user")

	if _, err := ledger.Credit(context.Background(), userID, EntryEarn, VCN(10), "", MetadataJSON{}); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationCredit || entry.UserID != userID || entry.Amount != VCN(10) {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestLedgerLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.failOnInsert = 1
	store.failInsertError = errors.New("boom")
	logger := &recorderLogger{}
	ledger := mustLedger(test, store, time.Now, testConfig(test), WithOperationLogger(logger))
	userID := mustUserID(test, "logged-user")

	if _, err := ledger.Credit(context.Background(), userID, EntryEarn, VCN(10), "", MetadataJSON{}); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Status != operationStatusError || entry.Error == nil {
		test.Fatalf("expected error log entry, got %+v", entry)
	}
}

func TestStakingLogsUnstakeOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }
	config := testConfig(test)
	logger := &recorderLogger{}
	ledger := mustLedger(test, store, clock, config)
	engine := mustStaking(test, store, clock, config, WithStakingOperationLogger(logger))
	userID := mustUserID(test, "logged-staker")

	if _, err := ledger.Credit(context.Background(), userID, EntryEarn, VCN(1_000), "", MetadataJSON{}); err != nil {
		test.Fatalf("credit: %v", err)
	}
	stake, err := engine.Stake(context.Background(), userID, VCN(1_000), 30)
	if err != nil {
		test.Fatalf("stake: %v", err)
	}
	at = at.AddDate(0, 0, 30)
	if _, err := engine.Unstake(context.Background(), stake.StakeID, userID); err != nil {
		test.Fatalf("unstake: %v", err)
	}

	if len(logger.entries) != 2 {
		test.Fatalf("expected stake and unstake log entries, got %d", len(logger.entries))
	}
	unstakeEntry := logger.entries[1]
	if unstakeEntry.Operation != operationUnstake || unstakeEntry.StakeID != stake.StakeID {
		test.Fatalf("unexpected unstake log entry: %+v", unstakeEntry)
	}
}

type recorderInvalidator struct {
	invalidated []string
}

func (invalidator *recorderInvalidator) InvalidateBalance(_ context.Context, userID UserID) error {
	invalidator.invalidated = append(invalidator.invalidated, userID.String())
	return nil
}

func TestTransferInvalidatesAllTouchedBalances(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	invalidator := &recorderInvalidator{}
	ledger := mustLedger(test, store, time.Now, testConfig(test), WithCacheInvalidator(invalidator))
	sender := mustUserID(test, "cache-from")
	recipient := mustUserID(test, "cache-to")

	if _, err := ledger.Credit(context.Background(), sender, EntryEarn, VCN(200), "", MetadataJSON{}); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := ledger.Transfer(context.Background(), sender, recipient, VCN(100), MetadataJSON{}); err != nil {
		test.Fatalf("transfer: %v", err)
	}

	want := []string{
		sender.String(), // seed credit
		sender.String(),
		recipient.String(),
		TreasuryAccount.String(),
		RewardsPoolAccount.String(),
	}
	if len(invalidator.invalidated) != len(want) {
		test.Fatalf("expected %d invalidations, got %v", len(want), invalidator.invalidated)
	}
	for index, userID := range want {
		if invalidator.invalidated[index] != userID {
			test.Fatalf("expected invalidation %d for %s, got %s", index, userID, invalidator.invalidated[index])
		}
	}
}
