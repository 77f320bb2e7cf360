package vcoin

import (
	"context"
	"time"
)

// DailyCapEnforcer gates reward issuance by per-user per-action daily counts.
// Rejection does not fail the underlying social action; it only degrades the
// reward to zero.
type DailyCapEnforcer struct {
	caps map[ActionType]int64
}

// NewDailyCapEnforcer builds an enforcer from the configured caps.
func NewDailyCapEnforcer(config Config) DailyCapEnforcer {
	return DailyCapEnforcer{caps: config.DailyCaps}
}

// TryAdmit atomically increments the (user, action, day) counter if it is
// still below the cap. The store performs the increment-and-check as one
// conditional write, so concurrent calls admit at most cap actions.
func (enforcer DailyCapEnforcer) TryAdmit(ctx context.Context, store Store, userID UserID, action ActionType, at time.Time) (bool, error) {
	cap, ok := enforcer.caps[action]
	if !ok {
		// Validated at startup alongside the point weights.
		panic("vcoin: no daily cap configured for action " + action.String())
	}
	if cap == 0 {
		return false, nil
	}
	return store.IncrementActivity(ctx, userID, action, DayKey(at), cap)
}
