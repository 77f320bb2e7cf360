package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:uniq_accounts_user"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Rows are append-only.
type LedgerEntry struct {
	EntryID            string         `gorm:"type:uuid;primaryKey"`
	AccountID          string         `gorm:"type:uuid;not null;index:idx_entries_account_created,priority:1"`
	Type               string         `gorm:"not null"`
	AmountMicro        int64          `gorm:"not null"`
	CounterpartyUserID string         `gorm:""`
	PostID             string         `gorm:""`
	StakeID            string         `gorm:""`
	Metadata           datatypes.JSON `gorm:"not null"`
	CreatedAt          time.Time      `gorm:"not null;index:idx_entries_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Stake mirrors the stakes table.
type Stake struct {
	StakeID      string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index:idx_stakes_user_status,priority:1"`
	AmountMicro  int64     `gorm:"not null"`
	DurationDays int       `gorm:"not null"`
	APYPercent   float64   `gorm:"not null"`
	StartDate    time.Time `gorm:"not null"`
	EndDate      time.Time `gorm:"not null"`
	Status       string    `gorm:"not null;index:idx_stakes_user_status,priority:2"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Stake) TableName() string { return "stakes" }

// ActivityCounter holds the per-(user, action, day) admitted count.
type ActivityCounter struct {
	UserID string `gorm:"primaryKey"`
	Action string `gorm:"primaryKey"`
	Day    string `gorm:"primaryKey"`
	Count  int64  `gorm:"not null;default:0"`
}

func (ActivityCounter) TableName() string { return "activity_counters" }

// RewardCounter holds the per-(user, day) distributed reward total backing
// the per-user daily USD ceiling.
type RewardCounter struct {
	UserID      string `gorm:"primaryKey"`
	Day         string `gorm:"primaryKey"`
	RewardMicro int64  `gorm:"not null;default:0"`
}

func (RewardCounter) TableName() string { return "reward_counters" }

// PoolCounter holds the per-day pool usage backing the global emission clamp.
type PoolCounter struct {
	Day       string `gorm:"primaryKey"`
	UsedMicro int64  `gorm:"not null;default:0"`
}

func (PoolCounter) TableName() string { return "pool_counters" }

// BurnTotal is a single-row counter of VCN removed from circulation.
type BurnTotal struct {
	ID          int   `gorm:"primaryKey"`
	BurnedMicro int64 `gorm:"not null;default:0"`
}

func (BurnTotal) TableName() string { return "burn_totals" }

// Models lists every table for migration.
func Models() []any {
	return []any{
		&Account{},
		&LedgerEntry{},
		&Stake{},
		&ActivityCounter{},
		&RewardCounter{},
		&PoolCounter{},
		&BurnTotal{},
	}
}
