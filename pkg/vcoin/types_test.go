package vcoin

import (
	"errors"
	"testing"
	"time"
)

func TestNewUserIDTrimsAndRejectsEmpty(test *testing.T) {
	test.Parallel()
	userID, err := NewUserID("  user-7  ")
	if err != nil {
		test.Fatalf("new user id: %v", err)
	}
	if userID.String() != "user-7" {
		test.Fatalf("expected trimmed id, got %q", userID.String())
	}
	if _, err := NewUserID("   "); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestNewPositiveAmountRejectsZeroAndNegative(test *testing.T) {
	test.Parallel()
	if _, err := NewPositiveAmount(0); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := NewPositiveAmount(-5); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	amount, err := NewPositiveAmount(42)
	if err != nil {
		test.Fatalf("new positive amount: %v", err)
	}
	if amount != 42 {
		test.Fatalf("expected 42, got %d", amount)
	}
}

func TestParseEntryTypeRejectsUnknown(test *testing.T) {
	test.Parallel()
	if _, err := ParseEntryType("dividend"); !errors.Is(err, ErrInvalidEntryType) {
		test.Fatalf("expected ErrInvalidEntryType, got %v", err)
	}
	entryType, err := ParseEntryType("reward")
	if err != nil {
		test.Fatalf("parse entry type: %v", err)
	}
	if entryType != EntryReward {
		test.Fatalf("expected reward, got %s", entryType)
	}
}

func TestParseActionTypeRejectsUnknown(test *testing.T) {
	test.Parallel()
	if _, err := ParseActionType("poke"); !errors.Is(err, ErrInvalidActionType) {
		test.Fatalf("expected ErrInvalidActionType, got %v", err)
	}
}

func TestNewMetadataJSONDefaultsAndValidates(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("empty metadata: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected empty object default, got %q", metadata.String())
	}
	if _, err := NewMetadataJSON("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestDayKeyUsesUTC(test *testing.T) {
	test.Parallel()
	eastern := time.FixedZone("UTC+10", 10*60*60)
	// 03:00 on March 2nd in UTC+10 is still March 1st in UTC.
	at := time.Date(2026, 3, 2, 3, 0, 0, 0, eastern)
	if got := DayKey(at); got != "2026-03-01" {
		test.Fatalf("expected day key 2026-03-01, got %s", got)
	}
}
