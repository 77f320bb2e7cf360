package vcoin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// stubState is the cloneable backing data of stubStore.
type stubState struct {
	accounts map[string]string
	entries  []Entry
	stakes   map[string]Stake
	activity map[string]int64
	rewards  map[string]int64
	pool     map[string]int64
	burned   int64
	nextID   int
}

func (state stubState) clone() stubState {
	cloned := stubState{
		accounts: make(map[string]string, len(state.accounts)),
		entries:  append([]Entry(nil), state.entries...),
		stakes:   make(map[string]Stake, len(state.stakes)),
		activity: make(map[string]int64, len(state.activity)),
		rewards:  make(map[string]int64, len(state.rewards)),
		pool:     make(map[string]int64, len(state.pool)),
		burned:   state.burned,
		nextID:   state.nextID,
	}
	for key, value := range state.accounts {
		cloned.accounts[key] = value
	}
	for key, value := range state.stakes {
		cloned.stakes[key] = value
	}
	for key, value := range state.activity {
		cloned.activity[key] = value
	}
	for key, value := range state.rewards {
		cloned.rewards[key] = value
	}
	for key, value := range state.pool {
		cloned.pool[key] = value
	}
	return cloned
}

// stubStore is an in-memory Store honoring the same atomic contracts as
// gormstore: transactions roll back on error, and the counters perform
// increment-and-check under the store lock.
type stubStore struct {
	mu sync.Mutex

	state stubState

	// failOnInsert makes the Nth InsertEntry call fail with failInsertError.
	failOnInsert    int
	failInsertError error
	insertCalls     int
}

func newStubStore() *stubStore {
	return &stubStore{
		state: stubState{
			accounts: map[string]string{},
			stakes:   map[string]Stake{},
			activity: map[string]int64{},
			rewards:  map[string]int64{},
			pool:     map[string]int64{},
		},
	}
}

// stubTxView exposes the unsynchronized operations while WithTx holds the lock.
type stubTxView struct {
	store *stubStore
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	backup := store.state.clone()
	if err := fn(ctx, stubTxView{store: store}); err != nil {
		store.state = backup
		return err
	}
	return nil
}

func (store *stubStore) GetOrCreateAccountID(ctx context.Context, userID UserID) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.getOrCreateAccountID(userID)
}

func (store *stubStore) LockAccount(ctx context.Context, accountID string) error {
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.insertEntry(entry)
}

func (store *stubStore) SumEntries(ctx context.Context, accountID string) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.sumEntries(accountID), nil
}

func (store *stubStore) ListEntries(ctx context.Context, accountID string, cursor HistoryCursor, limit int) ([]Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.listEntries(accountID, cursor, limit), nil
}

func (store *stubStore) IncrementActivity(ctx context.Context, userID UserID, action ActionType, dayKey string, cap int64) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.incrementActivity(userID, action, dayKey, cap), nil
}

func (store *stubStore) AddRewardWithin(ctx context.Context, userID UserID, dayKey string, want AmountMicro, dailyMax AmountMicro) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.addClamped(store.state.rewards, userID.String()+"|"+dayKey, want, dailyMax), nil
}

func (store *stubStore) AddPoolUsageWithin(ctx context.Context, dayKey string, want AmountMicro, dailyPool AmountMicro) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.addClamped(store.state.pool, dayKey, want, dailyPool), nil
}

func (store *stubStore) PoolUsage(ctx context.Context, dayKey string) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return AmountMicro(store.state.pool[dayKey]), nil
}

func (store *stubStore) CreateStake(ctx context.Context, stake Stake) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.createStake(stake)
}

func (store *stubStore) GetStake(ctx context.Context, stakeID string) (Stake, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.getStake(stakeID)
}

func (store *stubStore) MarkStakeUnstaked(ctx context.Context, stakeID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.markStakeUnstaked(stakeID)
}

func (store *stubStore) ListStakes(ctx context.Context, userID UserID) ([]Stake, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.listStakes(userID), nil
}

func (store *stubStore) SumActiveStakes(ctx context.Context, userID UserID) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.sumActiveStakes(userID), nil
}

func (store *stubStore) AddBurned(ctx context.Context, delta AmountMicro) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.burned += delta.Int64()
	return nil
}

func (store *stubStore) BurnedTotal(ctx context.Context) (AmountMicro, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return AmountMicro(store.state.burned), nil
}

// stubTxView delegates to the unsynchronized implementations: WithTx already
// holds the lock.

func (view stubTxView) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, view)
}

func (view stubTxView) GetOrCreateAccountID(ctx context.Context, userID UserID) (string, error) {
	return view.store.getOrCreateAccountID(userID)
}

func (view stubTxView) LockAccount(ctx context.Context, accountID string) error {
	return nil
}

func (view stubTxView) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	return view.store.insertEntry(entry)
}

func (view stubTxView) SumEntries(ctx context.Context, accountID string) (AmountMicro, error) {
	return view.store.sumEntries(accountID), nil
}

func (view stubTxView) ListEntries(ctx context.Context, accountID string, cursor HistoryCursor, limit int) ([]Entry, error) {
	return view.store.listEntries(accountID, cursor, limit), nil
}

func (view stubTxView) IncrementActivity(ctx context.Context, userID UserID, action ActionType, dayKey string, cap int64) (bool, error) {
	return view.store.incrementActivity(userID, action, dayKey, cap), nil
}

func (view stubTxView) AddRewardWithin(ctx context.Context, userID UserID, dayKey string, want AmountMicro, dailyMax AmountMicro) (AmountMicro, error) {
	return view.store.addClamped(view.store.state.rewards, userID.String()+"|"+dayKey, want, dailyMax), nil
}

func (view stubTxView) AddPoolUsageWithin(ctx context.Context, dayKey string, want AmountMicro, dailyPool AmountMicro) (AmountMicro, error) {
	return view.store.addClamped(view.store.state.pool, dayKey, want, dailyPool), nil
}

func (view stubTxView) PoolUsage(ctx context.Context, dayKey string) (AmountMicro, error) {
	return AmountMicro(view.store.state.pool[dayKey]), nil
}

func (view stubTxView) CreateStake(ctx context.Context, stake Stake) error {
	return view.store.createStake(stake)
}

func (view stubTxView) GetStake(ctx context.Context, stakeID string) (Stake, error) {
	return view.store.getStake(stakeID)
}

func (view stubTxView) MarkStakeUnstaked(ctx context.Context, stakeID string) error {
	return view.store.markStakeUnstaked(stakeID)
}

func (view stubTxView) ListStakes(ctx context.Context, userID UserID) ([]Stake, error) {
	return view.store.listStakes(userID), nil
}

func (view stubTxView) SumActiveStakes(ctx context.Context, userID UserID) (AmountMicro, error) {
	return view.store.sumActiveStakes(userID), nil
}

func (view stubTxView) AddBurned(ctx context.Context, delta AmountMicro) error {
	view.store.state.burned += delta.Int64()
	return nil
}

func (view stubTxView) BurnedTotal(ctx context.Context) (AmountMicro, error) {
	return AmountMicro(view.store.state.burned), nil
}

func (store *stubStore) getOrCreateAccountID(userID UserID) (string, error) {
	if accountID, ok := store.state.accounts[userID.String()]; ok {
		return accountID, nil
	}
	store.state.nextID++
	accountID := fmt.Sprintf("account-%d", store.state.nextID)
	store.state.accounts[userID.String()] = accountID
	return accountID, nil
}

func (store *stubStore) insertEntry(entry Entry) (Entry, error) {
	store.insertCalls++
	if store.failOnInsert > 0 && store.insertCalls >= store.failOnInsert {
		return Entry{}, store.failInsertError
	}
	store.state.nextID++
	entry.EntryID = fmt.Sprintf("entry-%04d", store.state.nextID)
	store.state.entries = append(store.state.entries, entry)
	return entry, nil
}

func (store *stubStore) sumEntries(accountID string) AmountMicro {
	var total AmountMicro
	for _, entry := range store.state.entries {
		if entry.AccountID == accountID {
			total += entry.AmountMicro
		}
	}
	return total
}

func (store *stubStore) listEntries(accountID string, cursor HistoryCursor, limit int) []Entry {
	var matched []Entry
	for _, entry := range store.state.entries {
		if entry.AccountID != accountID {
			continue
		}
		if !cursor.Zero() {
			if entry.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if entry.CreatedAt.Equal(cursor.CreatedAt) && entry.EntryID >= cursor.EntryID {
				continue
			}
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].EntryID > matched[j].EntryID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (store *stubStore) incrementActivity(userID UserID, action ActionType, dayKey string, cap int64) bool {
	key := userID.String() + "|" + action.String() + "|" + dayKey
	if store.state.activity[key] >= cap {
		return false
	}
	store.state.activity[key]++
	return true
}

func (store *stubStore) addClamped(counters map[string]int64, key string, want AmountMicro, limit AmountMicro) AmountMicro {
	if want <= 0 {
		return 0
	}
	remaining := limit.Int64() - counters[key]
	if remaining <= 0 {
		return 0
	}
	granted := want.Int64()
	if granted > remaining {
		granted = remaining
	}
	counters[key] += granted
	return AmountMicro(granted)
}

func (store *stubStore) createStake(stake Stake) error {
	if _, exists := store.state.stakes[stake.StakeID]; exists {
		return errors.New("duplicate stake id")
	}
	store.state.stakes[stake.StakeID] = stake
	return nil
}

func (store *stubStore) getStake(stakeID string) (Stake, error) {
	stake, ok := store.state.stakes[stakeID]
	if !ok {
		return Stake{}, ErrStakeNotFound
	}
	return stake, nil
}

func (store *stubStore) markStakeUnstaked(stakeID string) error {
	stake, ok := store.state.stakes[stakeID]
	if !ok {
		return ErrStakeNotFound
	}
	if stake.Status != StakeStatusActive {
		return ErrAlreadyUnstaked
	}
	stake.Status = StakeStatusUnstaked
	store.state.stakes[stakeID] = stake
	return nil
}

func (store *stubStore) listStakes(userID UserID) []Stake {
	var stakes []Stake
	for _, stake := range store.state.stakes {
		if stake.UserID == userID.String() {
			stakes = append(stakes, stake)
		}
	}
	sort.Slice(stakes, func(i, j int) bool { return stakes[i].StakeID < stakes[j].StakeID })
	return stakes
}

func (store *stubStore) sumActiveStakes(userID UserID) AmountMicro {
	var total AmountMicro
	for _, stake := range store.state.stakes {
		if stake.UserID == userID.String() && stake.Status == StakeStatusActive {
			total += stake.AmountMicro
		}
	}
	return total
}

func (store *stubStore) entriesForUser(test *testing.T, userID UserID) []Entry {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	accountID, ok := store.state.accounts[userID.String()]
	if !ok {
		return nil
	}
	var entries []Entry
	for _, entry := range store.state.entries {
		if entry.AccountID == accountID {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Shared test helpers.

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return metadata
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func testConfig(test *testing.T) Config {
	test.Helper()
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		test.Fatalf("default config invalid: %v", err)
	}
	return config
}

func mustLedger(test *testing.T, store Store, clock Clock, config Config, options ...LedgerOption) *Ledger {
	test.Helper()
	ledger, err := NewLedger(store, clock, config, options...)
	if err != nil {
		test.Fatalf("ledger init: %v", err)
	}
	return ledger
}

func mustStaking(test *testing.T, store Store, clock Clock, config Config, options ...StakingOption) *StakingEngine {
	test.Helper()
	engine, err := NewStakingEngine(store, clock, config, options...)
	if err != nil {
		test.Fatalf("staking init: %v", err)
	}
	return engine
}

func mustRewards(test *testing.T, store Store, clock Clock, config Config, options ...RewardOption) *RewardService {
	test.Helper()
	service, err := NewRewardService(store, clock, config, options...)
	if err != nil {
		test.Fatalf("rewards init: %v", err)
	}
	return service
}
