package vcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AmountMicro is an integer token quantity in micro-VCN (1 VCN = 1_000_000 micro).
type AmountMicro int64

// MicroPerVCN is the number of micro units in one whole VCN.
const MicroPerVCN = 1_000_000

// Int64 returns the raw micro-VCN value.
func (amount AmountMicro) Int64() int64 {
	return int64(amount)
}

// Negated returns the amount with its sign flipped.
func (amount AmountMicro) Negated() AmountMicro {
	return -amount
}

// VCN converts a whole-token count to micro units.
func VCN(whole int64) AmountMicro {
	return AmountMicro(whole * MicroPerVCN)
}

// NewPositiveAmount validates a strictly positive micro-VCN amount.
func NewPositiveAmount(raw int64) (AmountMicro, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountMicro(raw), nil
}

// UserID identifies an account owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// System-owned accounts credited by fee distribution.
var (
	TreasuryAccount    = UserID{value: "system:treasury"}
	RewardsPoolAccount = UserID{value: "system:rewards"}
)

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryEarn     EntryType = "earn"
	EntrySpend    EntryType = "spend"
	EntryTransfer EntryType = "transfer"
	EntryReward   EntryType = "reward"
	EntryStake    EntryType = "stake"
	EntryUnstake  EntryType = "unstake"
)

// ParseEntryType validates a stored entry type string.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(raw) {
	case EntryEarn, EntrySpend, EntryTransfer, EntryReward, EntryStake, EntryUnstake:
		return EntryType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
}

// String returns the stored representation.
func (entryType EntryType) String() string {
	return string(entryType)
}

// creditOnly reports whether the type only ever appears with a positive amount.
func (entryType EntryType) creditOnly() bool {
	switch entryType {
	case EntryEarn, EntryReward, EntryUnstake:
		return true
	}
	return false
}

// debitOnly reports whether the type only ever appears with a negative amount.
func (entryType EntryType) debitOnly() bool {
	switch entryType {
	case EntrySpend, EntryStake:
		return true
	}
	return false
}

// ActionType enumerates rewarded social actions.
type ActionType string

const (
	ActionPost    ActionType = "post"
	ActionLike    ActionType = "like"
	ActionComment ActionType = "comment"
	ActionShare   ActionType = "share"
	ActionRepost  ActionType = "repost"
	ActionFollow  ActionType = "follow"
)

// ParseActionType validates an action type string.
func ParseActionType(raw string) (ActionType, error) {
	switch ActionType(raw) {
	case ActionPost, ActionLike, ActionComment, ActionShare, ActionRepost, ActionFollow:
		return ActionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActionType, raw)
}

// String returns the stored representation.
func (actionType ActionType) String() string {
	return string(actionType)
}

// MetadataJSON stores arbitrary request metadata attached to an entry.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// A single immutable line in the ledger.
type Entry struct {
	EntryID            string
	AccountID          string
	Type               EntryType
	AmountMicro        AmountMicro
	CounterpartyUserID string
	PostID             string
	StakeID            string
	MetadataJSON       string
	CreatedAt          time.Time
}

// HistoryCursor addresses a position in a user's reverse-chronological history.
// The (CreatedAt, EntryID) pair keeps pagination stable under concurrent inserts.
type HistoryCursor struct {
	CreatedAt time.Time
	EntryID   string
}

// Zero reports whether the cursor points at the newest entry.
func (cursor HistoryCursor) Zero() bool {
	return cursor.CreatedAt.IsZero() && cursor.EntryID == ""
}

// StakeStatus defines the staking lifecycle.
type StakeStatus string

const (
	StakeStatusActive   StakeStatus = "active"
	StakeStatusUnstaked StakeStatus = "unstaked"
)

// ParseStakeStatus validates a stored stake status string.
func ParseStakeStatus(raw string) (StakeStatus, error) {
	switch StakeStatus(raw) {
	case StakeStatusActive, StakeStatusUnstaked:
		return StakeStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStakeStatus, raw)
}

// String returns the stored representation.
func (status StakeStatus) String() string {
	return string(status)
}

// Stake is a time-locked principal earning a fixed APY.
type Stake struct {
	StakeID      string
	UserID       string
	AmountMicro  AmountMicro
	DurationDays int
	APYPercent   float64
	StartDate    time.Time
	EndDate      time.Time
	Status       StakeStatus
}

// Store is the persistence contract used by the services in this package.
// Implementations must make IncrementActivity and the two clamped counters
// atomic per key (gormstore does this with conditional updates).
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccountID(ctx context.Context, userID UserID) (string, error)
	LockAccount(ctx context.Context, accountID string) error
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	SumEntries(ctx context.Context, accountID string) (AmountMicro, error)
	ListEntries(ctx context.Context, accountID string, cursor HistoryCursor, limit int) ([]Entry, error)
	IncrementActivity(ctx context.Context, userID UserID, action ActionType, dayKey string, cap int64) (bool, error)
	AddRewardWithin(ctx context.Context, userID UserID, dayKey string, want AmountMicro, dailyMax AmountMicro) (AmountMicro, error)
	AddPoolUsageWithin(ctx context.Context, dayKey string, want AmountMicro, dailyPool AmountMicro) (AmountMicro, error)
	PoolUsage(ctx context.Context, dayKey string) (AmountMicro, error)
	CreateStake(ctx context.Context, stake Stake) error
	GetStake(ctx context.Context, stakeID string) (Stake, error)
	MarkStakeUnstaked(ctx context.Context, stakeID string) error
	ListStakes(ctx context.Context, userID UserID) ([]Stake, error)
	SumActiveStakes(ctx context.Context, userID UserID) (AmountMicro, error)
	AddBurned(ctx context.Context, delta AmountMicro) error
	BurnedTotal(ctx context.Context) (AmountMicro, error)
}

// CacheInvalidator is called after every committed balance-affecting write so
// externally cached wallet views can be dropped. Best effort; failures are
// logged and never roll back the ledger write.
type CacheInvalidator interface {
	InvalidateBalance(ctx context.Context, userID UserID) error
}

// Clock supplies the current time so day boundaries and stake maturity are
// testable without the wall clock.
type Clock func() time.Time

// DayKey returns the canonical UTC day bucket for a timestamp. Every counter
// in this package uses this same function for incrementing and checking.
func DayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}
