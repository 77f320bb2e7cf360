package vcoin

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRecordActivityRewardsAdmittedAction(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)
	userID := mustUserID(test, "poster")

	outcome, err := service.RecordActivity(context.Background(), userID, ActionPost, "post-42")
	if err != nil {
		test.Fatalf("record activity: %v", err)
	}
	if !outcome.Admitted {
		test.Fatal("expected action admitted")
	}
	// 50 points at 77_778 micro per point, basic tier multiplier 1.
	expected := AmountMicro(50 * 77_778)
	if outcome.RewardMicro != expected {
		test.Fatalf("expected reward %d, got %d", expected, outcome.RewardMicro)
	}
	if outcome.Entry.Type != EntryReward {
		test.Fatalf("expected reward entry, got %s", outcome.Entry.Type)
	}
	if outcome.Entry.PostID != "post-42" {
		test.Fatalf("expected post id on entry, got %q", outcome.Entry.PostID)
	}
	entries := store.entriesForUser(test, userID)
	if len(entries) != 1 || entries[0].AmountMicro != expected {
		test.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestRecordActivityStopsRewardingAtDailyCap(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)
	userID := mustUserID(test, "prolific-poster")

	cap := config.DailyCaps[ActionPost]
	for index := int64(0); index < cap; index++ {
		outcome, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
		if err != nil {
			test.Fatalf("record %d: %v", index, err)
		}
		if !outcome.Admitted {
			test.Fatalf("expected admission below cap, rejected at %d", index)
		}
	}

	outcome, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
	if err != nil {
		test.Fatalf("record over cap: %v", err)
	}
	if outcome.Admitted {
		test.Fatal("expected rejection above cap")
	}
	if outcome.RewardMicro != 0 {
		test.Fatalf("expected zero reward above cap, got %d", outcome.RewardMicro)
	}
	if got := int64(len(store.entriesForUser(test, userID))); got != cap {
		test.Fatalf("expected %d reward entries, got %d", cap, got)
	}
}

func TestRecordActivityCapResetsOnNextDay(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	at := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	clock := func() time.Time { return at }
	service := mustRewards(test, store, clock, config)
	userID := mustUserID(test, "midnight-poster")

	for index := int64(0); index < config.DailyCaps[ActionPost]; index++ {
		if _, err := service.RecordActivity(context.Background(), userID, ActionPost, ""); err != nil {
			test.Fatalf("record %d: %v", index, err)
		}
	}

	at = at.Add(time.Hour) // crosses the UTC day boundary
	outcome, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
	if err != nil {
		test.Fatalf("record next day: %v", err)
	}
	if !outcome.Admitted || outcome.RewardMicro == 0 {
		test.Fatalf("expected fresh cap after midnight, got %+v", outcome)
	}
}

func TestRecordActivityClampsToPerUserDailyMaximum(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	// Per-user ceiling below a single post reward (50 * 77_778 micro).
	config.MaxDailyRewardUSD = 0.30
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)
	userID := mustUserID(test, "capped-earner")

	first, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
	if err != nil {
		test.Fatalf("first record: %v", err)
	}
	if first.RewardMicro != VCN(3) {
		test.Fatalf("expected reward clamped to %d, got %d", VCN(3), first.RewardMicro)
	}

	second, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
	if err != nil {
		test.Fatalf("second record: %v", err)
	}
	if !second.Admitted {
		test.Fatal("expected admission, ceiling only zeroes the reward")
	}
	if second.RewardMicro != 0 {
		test.Fatalf("expected zero reward once ceiling is spent, got %d", second.RewardMicro)
	}
	if len(store.entriesForUser(test, userID)) != 1 {
		test.Fatal("expected no entry for a zero reward")
	}
}

func TestRecordActivityClampsToDailyPool(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	// Shrink the pool to less than two post rewards.
	config.MonthlyEmission = 225 // pool = round(225*0.8/30) = 6 VCN/day
	config.DailyPointsBudget = 100
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)

	// 50 points * 60_000 micro/point = 3 VCN for the first poster.
	first, err := service.RecordActivity(context.Background(), mustUserID(test, "pool-user-1"), ActionPost, "")
	if err != nil {
		test.Fatalf("first record: %v", err)
	}
	if first.RewardMicro != VCN(3) {
		test.Fatalf("expected full reward %d, got %d", VCN(3), first.RewardMicro)
	}

	second, err := service.RecordActivity(context.Background(), mustUserID(test, "pool-user-2"), ActionPost, "")
	if err != nil {
		test.Fatalf("second record: %v", err)
	}
	if second.RewardMicro != VCN(3) {
		test.Fatalf("expected remaining pool %d, got %d", VCN(3), second.RewardMicro)
	}

	third, err := service.RecordActivity(context.Background(), mustUserID(test, "pool-user-3"), ActionPost, "")
	if err != nil {
		test.Fatalf("third record: %v", err)
	}
	if !third.Admitted {
		test.Fatal("expected admission, empty pool only zeroes the reward")
	}
	if third.RewardMicro != 0 {
		test.Fatalf("expected empty pool to grant nothing, got %d", third.RewardMicro)
	}
}

func TestRecordActivityAppliesTierMultiplier(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)
	userID := mustUserID(test, "gold-member")

	store.mu.Lock()
	store.state.stakes["stake-gold"] = Stake{
		StakeID:      "stake-gold",
		UserID:       userID.String(),
		AmountMicro:  VCN(10_000),
		DurationDays: 90,
		APYPercent:   12,
		StartDate:    at.AddDate(0, 0, -10),
		EndDate:      at.AddDate(0, 0, 80),
		Status:       StakeStatusActive,
	}
	store.mu.Unlock()

	outcome, err := service.RecordActivity(context.Background(), userID, ActionLike, "")
	if err != nil {
		test.Fatalf("record activity: %v", err)
	}
	// 5 points * 77_778 micro * 1.25 gold multiplier.
	expected := AmountMicro(486_113)
	if outcome.RewardMicro != expected {
		test.Fatalf("expected reward %d, got %d", expected, outcome.RewardMicro)
	}
}

func TestConcurrentActivityAdmitsExactlyCap(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	config := testConfig(test)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := mustRewards(test, store, fixedClock(at), config)
	userID := mustUserID(test, "burst-poster")

	const attempts = 40
	cap := config.DailyCaps[ActionPost]

	var waitGroup sync.WaitGroup
	admissions := make(chan bool, attempts)
	for index := 0; index < attempts; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			outcome, err := service.RecordActivity(context.Background(), userID, ActionPost, "")
			if err != nil {
				test.Errorf("record activity: %v", err)
				return
			}
			admissions <- outcome.Admitted
		}()
	}
	waitGroup.Wait()
	close(admissions)

	var admitted int64
	for wasAdmitted := range admissions {
		if wasAdmitted {
			admitted++
		}
	}
	if admitted != cap {
		test.Fatalf("expected exactly %d admissions, got %d", cap, admitted)
	}
}
