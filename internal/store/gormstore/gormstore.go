package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	burnTotalRowID        = 1
	clampedAddMaxRetries  = 5

	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectBalance   = "balance"
	errorSubjectEntry     = "entry"
	errorSubjectStake     = "stake"
	errorSubjectCounter   = "counter"
	errorSubjectBurn      = "burn"
	errorCodeCreate       = "create"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
	errorCodeRetryBudget  = "retry_budget"
	errorCodeLock         = "lock"
	postgresDialectorName = "postgres"
)

var errClampedAddContention = errors.New("clamped add retry budget exhausted")

// Store implements vcoin.Store using GORM over postgres or sqlite.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore vcoin.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetOrCreateAccountID resolves the account row for a user, creating it on
// first contact. A concurrent create loses the unique-index race and reads
// the winner's row.
func (store *Store) GetOrCreateAccountID(ctx context.Context, userID vcoin.UserID) (string, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"user_id": clause.Expr{SQL: "excluded.user_id"},
			}),
		}).
		FirstOrCreate(&account, Account{UserID: userID.String()}).Error
	if isUniqueViolation(err) {
		err = store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&account).Error
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return account.AccountID, nil
}

// LockAccount takes the account row lock that serializes debits for one user.
// sqlite allows a single writer per database, so only postgres needs the
// explicit lock.
func (store *Store) LockAccount(ctx context.Context, accountID string) error {
	if store.db.Dialector.Name() != postgresDialectorName {
		return nil
	}
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		Take(&account).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeLock, err)
	}
	return nil
}

// InsertEntry appends an immutable ledger row and returns it with its id.
func (store *Store) InsertEntry(ctx context.Context, entry vcoin.Entry) (vcoin.Entry, error) {
	row := LedgerEntry{
		AccountID:          entry.AccountID,
		Type:               entry.Type.String(),
		AmountMicro:        entry.AmountMicro.Int64(),
		CounterpartyUserID: entry.CounterpartyUserID,
		PostID:             entry.PostID,
		StakeID:            entry.StakeID,
		Metadata:           datatypesJSON(entry.MetadataJSON),
		CreatedAt:          entry.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return vcoin.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	stored, err := mapLedgerEntry(row)
	if err != nil {
		return vcoin.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return stored, nil
}

// SumEntries returns the account balance as the sum of its entries.
func (store *Store) SumEntries(ctx context.Context, accountID string) (vcoin.AmountMicro, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_micro),0) as total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return vcoin.AmountMicro(sum.Total), nil
}

// ListEntries pages newest first from the (created_at, entry_id) cursor.
func (store *Store) ListEntries(ctx context.Context, accountID string, cursor vcoin.HistoryCursor, limit int) ([]vcoin.Entry, error) {
	query := store.db.WithContext(ctx).
		Where("account_id = ?", accountID)
	if !cursor.Zero() {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND entry_id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.EntryID,
		)
	}
	var rows []LedgerEntry
	err := query.
		Order("created_at DESC, entry_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]vcoin.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// IncrementActivity admits one action if the day's count is still below cap.
// The increment-and-check is a single conditional update, so concurrent calls
// admit at most cap actions for the same key.
func (store *Store) IncrementActivity(ctx context.Context, userID vcoin.UserID, action vcoin.ActionType, dayKey string, cap int64) (bool, error) {
	counter := ActivityCounter{UserID: userID.String(), Action: action.String(), Day: dayKey}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&counter).Error
	if err != nil && !isUniqueViolation(err) {
		return false, wrapStoreError(errorSubjectCounter, errorCodeCreate, err)
	}
	result := store.db.WithContext(ctx).
		Model(&ActivityCounter{}).
		Where("user_id = ? AND action = ? AND day = ? AND count < ?", userID.String(), action.String(), dayKey, cap).
		Update("count", gorm.Expr("count + 1"))
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectCounter, errorCodeUpdate, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AddRewardWithin grants min(want, dailyMax - current) to the per-user daily
// reward counter and returns the granted amount.
func (store *Store) AddRewardWithin(ctx context.Context, userID vcoin.UserID, dayKey string, want vcoin.AmountMicro, dailyMax vcoin.AmountMicro) (vcoin.AmountMicro, error) {
	counter := RewardCounter{UserID: userID.String(), Day: dayKey}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&counter).Error
	if err != nil && !isUniqueViolation(err) {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeCreate, err)
	}
	return store.clampedAdd(ctx, want, dailyMax, func() (int64, error) {
		var row RewardCounter
		err := store.db.WithContext(ctx).
			Where("user_id = ? AND day = ?", userID.String(), dayKey).
			Take(&row).Error
		return row.RewardMicro, err
	}, func(current int64, granted vcoin.AmountMicro) (int64, error) {
		result := store.db.WithContext(ctx).
			Model(&RewardCounter{}).
			Where("user_id = ? AND day = ? AND reward_micro = ?", userID.String(), dayKey, current).
			Update("reward_micro", gorm.Expr("reward_micro + ?", granted.Int64()))
		return result.RowsAffected, result.Error
	})
}

// AddPoolUsageWithin grants min(want, dailyPool - used) against the global
// per-day emission counter and returns the granted amount.
func (store *Store) AddPoolUsageWithin(ctx context.Context, dayKey string, want vcoin.AmountMicro, dailyPool vcoin.AmountMicro) (vcoin.AmountMicro, error) {
	counter := PoolCounter{Day: dayKey}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&counter).Error
	if err != nil && !isUniqueViolation(err) {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeCreate, err)
	}
	return store.clampedAdd(ctx, want, dailyPool, func() (int64, error) {
		var row PoolCounter
		err := store.db.WithContext(ctx).Where("day = ?", dayKey).Take(&row).Error
		return row.UsedMicro, err
	}, func(current int64, granted vcoin.AmountMicro) (int64, error) {
		result := store.db.WithContext(ctx).
			Model(&PoolCounter{}).
			Where("day = ? AND used_micro = ?", dayKey, current).
			Update("used_micro", gorm.Expr("used_micro + ?", granted.Int64()))
		return result.RowsAffected, result.Error
	})
}

// clampedAdd performs an optimistic read-check-increment: the update only
// applies when the counter still holds the value that was read, and loses
// races retry with the fresh value.
func (store *Store) clampedAdd(
	ctx context.Context,
	want vcoin.AmountMicro,
	limit vcoin.AmountMicro,
	read func() (int64, error),
	conditionalAdd func(current int64, granted vcoin.AmountMicro) (int64, error),
) (vcoin.AmountMicro, error) {
	if want <= 0 {
		return 0, nil
	}
	for attempt := 0; attempt < clampedAddMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		current, err := read()
		if err != nil {
			return 0, wrapStoreError(errorSubjectCounter, errorCodeGet, err)
		}
		remaining := limit.Int64() - current
		if remaining <= 0 {
			return 0, nil
		}
		granted := want
		if granted.Int64() > remaining {
			granted = vcoin.AmountMicro(remaining)
		}
		rowsAffected, err := conditionalAdd(current, granted)
		if err != nil {
			return 0, wrapStoreError(errorSubjectCounter, errorCodeUpdate, err)
		}
		if rowsAffected > 0 {
			return granted, nil
		}
	}
	return 0, wrapStoreError(errorSubjectCounter, errorCodeRetryBudget, errClampedAddContention)
}

// PoolUsage reads the day's distributed total. Missing day means nothing was
// distributed.
func (store *Store) PoolUsage(ctx context.Context, dayKey string) (vcoin.AmountMicro, error) {
	var row PoolCounter
	err := store.db.WithContext(ctx).Where("day = ?", dayKey).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, wrapStoreError(errorSubjectCounter, errorCodeGet, err)
	}
	return vcoin.AmountMicro(row.UsedMicro), nil
}

// CreateStake persists a new stake record.
func (store *Store) CreateStake(ctx context.Context, stake vcoin.Stake) error {
	row := Stake{
		StakeID:      stake.StakeID,
		UserID:       stake.UserID,
		AmountMicro:  stake.AmountMicro.Int64(),
		DurationDays: stake.DurationDays,
		APYPercent:   stake.APYPercent,
		StartDate:    stake.StartDate,
		EndDate:      stake.EndDate,
		Status:       stake.Status.String(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectStake, errorCodeCreate, err)
	}
	return nil
}

// GetStake fetches one stake by id.
func (store *Store) GetStake(ctx context.Context, stakeID string) (vcoin.Stake, error) {
	var row Stake
	err := store.db.WithContext(ctx).Where("stake_id = ?", stakeID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vcoin.Stake{}, wrapStoreError(errorSubjectStake, errorCodeGet, vcoin.ErrStakeNotFound)
		}
		return vcoin.Stake{}, wrapStoreError(errorSubjectStake, errorCodeGet, err)
	}
	return mapStake(row)
}

// MarkStakeUnstaked flips an active stake to unstaked. A second call matches
// zero rows and fails with ErrAlreadyUnstaked, so a payout cannot be issued
// twice.
func (store *Store) MarkStakeUnstaked(ctx context.Context, stakeID string) error {
	result := store.db.WithContext(ctx).
		Model(&Stake{}).
		Where("stake_id = ? AND status = ?", stakeID, vcoin.StakeStatusActive.String()).
		Update("status", vcoin.StakeStatusUnstaked.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectStake, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectStake, errorCodeUpdate, vcoin.ErrAlreadyUnstaked)
	}
	return nil
}

// ListStakes returns the user's stakes, newest first.
func (store *Store) ListStakes(ctx context.Context, userID vcoin.UserID) ([]vcoin.Stake, error) {
	var rows []Stake
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC, stake_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStake, errorCodeList, err)
	}
	stakes := make([]vcoin.Stake, 0, len(rows))
	for _, row := range rows {
		stake, err := mapStake(row)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, stake)
	}
	return stakes, nil
}

// SumActiveStakes totals the user's locked principal.
func (store *Store) SumActiveStakes(ctx context.Context, userID vcoin.UserID) (vcoin.AmountMicro, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Stake{}).
		Select("coalesce(sum(amount_micro),0) as total").
		Where("user_id = ? AND status = ?", userID.String(), vcoin.StakeStatusActive.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectStake, errorCodeSum, err)
	}
	return vcoin.AmountMicro(sum.Total), nil
}

// AddBurned increments the burned-supply counter.
func (store *Store) AddBurned(ctx context.Context, delta vcoin.AmountMicro) error {
	row := BurnTotal{ID: burnTotalRowID}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil && !isUniqueViolation(err) {
		return wrapStoreError(errorSubjectBurn, errorCodeCreate, err)
	}
	result := store.db.WithContext(ctx).
		Model(&BurnTotal{}).
		Where("id = ?", burnTotalRowID).
		Update("burned_micro", gorm.Expr("burned_micro + ?", delta.Int64()))
	if result.Error != nil {
		return wrapStoreError(errorSubjectBurn, errorCodeUpdate, result.Error)
	}
	return nil
}

// BurnedTotal reads the burned-supply counter.
func (store *Store) BurnedTotal(ctx context.Context) (vcoin.AmountMicro, error) {
	var row BurnTotal
	err := store.db.WithContext(ctx).Where("id = ?", burnTotalRowID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, wrapStoreError(errorSubjectBurn, errorCodeGet, err)
	}
	return vcoin.AmountMicro(row.BurnedMicro), nil
}

func wrapStoreError(subject string, code string, err error) error {
	return vcoin.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapLedgerEntry(row LedgerEntry) (vcoin.Entry, error) {
	entryType, err := vcoin.ParseEntryType(row.Type)
	if err != nil {
		return vcoin.Entry{}, err
	}
	return vcoin.Entry{
		EntryID:            row.EntryID,
		AccountID:          row.AccountID,
		Type:               entryType,
		AmountMicro:        vcoin.AmountMicro(row.AmountMicro),
		CounterpartyUserID: row.CounterpartyUserID,
		PostID:             row.PostID,
		StakeID:            row.StakeID,
		MetadataJSON:       string(row.Metadata),
		CreatedAt:          row.CreatedAt,
	}, nil
}

func mapStake(row Stake) (vcoin.Stake, error) {
	status, err := vcoin.ParseStakeStatus(row.Status)
	if err != nil {
		return vcoin.Stake{}, wrapStoreError(errorSubjectStake, errorCodeInvalid, err)
	}
	return vcoin.Stake{
		StakeID:      row.StakeID,
		UserID:       row.UserID,
		AmountMicro:  vcoin.AmountMicro(row.AmountMicro),
		DurationDays: row.DurationDays,
		APYPercent:   row.APYPercent,
		StartDate:    row.StartDate,
		EndDate:      row.EndDate,
		Status:       status,
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
