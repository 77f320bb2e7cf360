package vcoin

import (
	"context"
	"fmt"
	"math"
)

// Ledger is the authority for balances: an append-only record of
// balance-affecting events, with balance always equal to the sum of a user's
// entries. Debits serialize on the account row so a concurrent reward credit
// and spend to the same user cannot race past the balance check.
type Ledger struct {
	store       Store
	nowFn       Clock
	config      Config
	fees        *FeeDistributor
	logger      OperationLogger
	invalidator CacheInvalidator
}

// LedgerOption configures a Ledger instance.
type LedgerOption func(*Ledger)

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) LedgerOption {
	return func(ledger *Ledger) {
		ledger.logger = logger
	}
}

// WithCacheInvalidator wires the hook fired after committed balance writes.
func WithCacheInvalidator(invalidator CacheInvalidator) LedgerOption {
	return func(ledger *Ledger) {
		ledger.invalidator = invalidator
	}
}

// NewLedger wires a Ledger.
func NewLedger(store Store, now Clock, config Config, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceInit)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceInit)
	}
	ledger := &Ledger{store: store, nowFn: now, config: config}
	ledger.fees = NewFeeDistributor(config)
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// FeeShares reports how a transaction fee was split.
type FeeShares struct {
	BurnMicro     AmountMicro
	TreasuryMicro AmountMicro
	RewardsMicro  AmountMicro
}

// Total returns the distributed fee.
func (shares FeeShares) Total() AmountMicro {
	return shares.BurnMicro + shares.TreasuryMicro + shares.RewardsMicro
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	DebitEntry  Entry
	CreditEntry Entry
	FeeMicro    AmountMicro
	FeeShares   FeeShares
}

// Credit appends a positive entry of a credit-only type (earn, reward).
func (ledger *Ledger) Credit(ctx context.Context, userID UserID, entryType EntryType, amount AmountMicro, postID string, metadata MetadataJSON) (Entry, error) {
	var stored Entry
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		stored, err = insertEntry(ctx, transactionStore, ledger.nowFn, userID, Entry{
			Type:         entryType,
			AmountMicro:  amount,
			PostID:       postID,
			MetadataJSON: metadata.String(),
		})
		return err
	})
	ledger.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		UserID:    userID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	ledger.invalidate(ctx, userID)
	return stored, nil
}

// Spend appends a negative spend entry if the balance covers it.
func (ledger *Ledger) Spend(ctx context.Context, userID UserID, amount AmountMicro, metadata MetadataJSON) (Entry, error) {
	if amount <= 0 {
		return Entry{}, fmt.Errorf("%w: spend amount must be positive", ErrInvalidAmount)
	}
	var stored Entry
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := lockAndCheckBalance(ctx, transactionStore, userID, amount)
		if err != nil {
			return err
		}
		stored, err = insertEntryForAccount(ctx, transactionStore, ledger.nowFn, accountID, Entry{
			Type:         EntrySpend,
			AmountMicro:  amount.Negated(),
			MetadataJSON: metadata.String(),
		})
		return err
	})
	ledger.logOperation(ctx, OperationLog{
		Operation: operationSpend,
		UserID:    userID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	ledger.invalidate(ctx, userID)
	return stored, nil
}

// Transfer moves amount from one user to another, charging the configured
// fee on top of the amount. The paired debit and credit entries and the fee
// distribution commit in one transaction or not at all.
func (ledger *Ledger) Transfer(ctx context.Context, fromUserID UserID, toUserID UserID, amount AmountMicro, metadata MetadataJSON) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidAmount)
	}
	if fromUserID == toUserID {
		return TransferResult{}, fmt.Errorf("%w: transfer to self", ErrInvalidUserID)
	}
	fee := AmountMicro(math.Round(float64(amount) * ledger.config.TransactionFeeRate))
	var result TransferResult
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		senderAccountID, err := lockAndCheckBalance(ctx, transactionStore, fromUserID, amount+fee)
		if err != nil {
			return err
		}
		debit, err := insertEntryForAccount(ctx, transactionStore, ledger.nowFn, senderAccountID, Entry{
			Type:               EntryTransfer,
			AmountMicro:        (amount + fee).Negated(),
			CounterpartyUserID: toUserID.String(),
			MetadataJSON:       metadata.String(),
		})
		if err != nil {
			return err
		}
		credit, err := insertEntry(ctx, transactionStore, ledger.nowFn, toUserID, Entry{
			Type:               EntryTransfer,
			AmountMicro:        amount,
			CounterpartyUserID: fromUserID.String(),
			MetadataJSON:       metadata.String(),
		})
		if err != nil {
			return err
		}
		shares, err := ledger.fees.Distribute(ctx, transactionStore, ledger.nowFn, fee)
		if err != nil {
			return err
		}
		result = TransferResult{
			DebitEntry:  debit,
			CreditEntry: credit,
			FeeMicro:    fee,
			FeeShares:   shares,
		}
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation: operationTransfer,
		UserID:    fromUserID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return TransferResult{}, operationError
	}
	ledger.invalidate(ctx, fromUserID, toUserID, TreasuryAccount, RewardsPoolAccount)
	return result, nil
}

// Balance returns the sum of the user's entries. Never negative: every debit
// path checks the balance under an account lock before inserting.
func (ledger *Ledger) Balance(ctx context.Context, userID UserID) (AmountMicro, error) {
	accountID, err := ledger.store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return ledger.store.SumEntries(ctx, accountID)
}

// History lists the user's entries newest first. The returned cursor resumes
// after the last entry of this page; pagination stays stable under concurrent
// inserts because the cursor addresses (createdAt, entryID), not an offset.
func (ledger *Ledger) History(ctx context.Context, userID UserID, cursor HistoryCursor, pageSize int) ([]Entry, HistoryCursor, bool, error) {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}
	accountID, err := ledger.store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return nil, HistoryCursor{}, false, err
	}
	entries, err := ledger.store.ListEntries(ctx, accountID, cursor, pageSize+1)
	if err != nil {
		return nil, HistoryCursor{}, false, err
	}
	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	nextCursor := HistoryCursor{}
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		nextCursor = HistoryCursor{CreatedAt: last.CreatedAt, EntryID: last.EntryID}
	}
	return entries, nextCursor, hasMore, nil
}

// BurnedTotal reports the cumulative VCN removed from circulation by fees.
func (ledger *Ledger) BurnedTotal(ctx context.Context) (AmountMicro, error) {
	return ledger.store.BurnedTotal(ctx)
}

func (ledger *Ledger) logOperation(ctx context.Context, entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	ledger.logger.LogOperation(ctx, entry)
}

// invalidate drops cached balances after a committed write. Failures are
// logged and never roll back the ledger; the ledger stays the source of truth.
func (ledger *Ledger) invalidate(ctx context.Context, userIDs ...UserID) {
	if ledger.invalidator == nil {
		return
	}
	for _, userID := range userIDs {
		if err := ledger.invalidator.InvalidateBalance(ctx, userID); err != nil {
			ledger.logOperation(ctx, OperationLog{
				Operation: operationInvalidateCache,
				UserID:    userID,
				Error:     err,
			})
		}
	}
}

// insertEntry resolves the account for userID and appends a validated entry.
func insertEntry(ctx context.Context, store Store, now Clock, userID UserID, entry Entry) (Entry, error) {
	accountID, err := store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return Entry{}, err
	}
	return insertEntryForAccount(ctx, store, now, accountID, entry)
}

func insertEntryForAccount(ctx context.Context, store Store, now Clock, accountID string, entry Entry) (Entry, error) {
	if err := validateEntryAmount(entry.Type, entry.AmountMicro); err != nil {
		return Entry{}, err
	}
	entry.AccountID = accountID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now().UTC()
	}
	if entry.MetadataJSON == "" {
		entry.MetadataJSON = "{}"
	}
	return store.InsertEntry(ctx, entry)
}

// validateEntryAmount enforces the sign semantics of each entry type:
// earn/reward/unstake credit, spend/stake debit, transfer either side.
func validateEntryAmount(entryType EntryType, amount AmountMicro) error {
	if _, err := ParseEntryType(entryType.String()); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}
	if entryType.creditOnly() && amount < 0 {
		return fmt.Errorf("%w: %s entries must credit", ErrInvalidAmount, entryType)
	}
	if entryType.debitOnly() && amount > 0 {
		return fmt.Errorf("%w: %s entries must debit", ErrInvalidAmount, entryType)
	}
	return nil
}

// lockAndCheckBalance serializes debits for one user and rejects any debit
// that would drive the balance negative.
func lockAndCheckBalance(ctx context.Context, store Store, userID UserID, debit AmountMicro) (string, error) {
	accountID, err := store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := store.LockAccount(ctx, accountID); err != nil {
		return "", err
	}
	balance, err := store.SumEntries(ctx, accountID)
	if err != nil {
		return "", err
	}
	if balance < debit {
		return "", ErrInsufficientBalance
	}
	return accountID, nil
}
