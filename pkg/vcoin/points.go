package vcoin

import "fmt"

// ActivityPointCalculator maps rewarded actions to raw point values.
type ActivityPointCalculator struct {
	points map[ActionType]int64
}

// NewActivityPointCalculator builds a calculator from the configured weights.
func NewActivityPointCalculator(config Config) ActivityPointCalculator {
	return ActivityPointCalculator{points: config.ActivityPoints}
}

// PointsFor returns the raw point value for an action. The weight table is
// validated at startup, so a missing action is a programming error and panics.
func (calculator ActivityPointCalculator) PointsFor(action ActionType) int64 {
	points, ok := calculator.points[action]
	if !ok {
		panic(fmt.Sprintf("vcoin: no point weight configured for action %q", action))
	}
	return points
}
