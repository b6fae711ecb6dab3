package accrual

import "time"

const (
	// MinimumSession is the shortest presence that earns anything.
	MinimumSession       = 60 * time.Second
	secondsPerMinute     = 60
	defaultRatePerMinute = 10
)

// ComputeReward returns floor(seconds * ratePerMinute / 60), or zero below MinimumSession.
func ComputeReward(elapsed time.Duration, ratePerMinute int64) int64 {
	if elapsed < MinimumSession || ratePerMinute <= 0 {
		return 0
	}
	seconds := int64(elapsed / time.Second)
	return seconds * ratePerMinute / secondsPerMinute
}
