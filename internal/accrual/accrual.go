// Package accrual computes time-based earnings. Everything here is pure.
package accrual

import "time"

// RatePerHashSecond is the amount accrued per unit of hashrate per active second
const RatePerHashSecond = 0.0001

// MinReportable is the smallest accrual worth sending to the service
const MinReportable = 1e-8

// Accrue returns hashrate * elapsedActiveSeconds * K * (1 + referralBonus)
func Accrue(hashrate, elapsedActiveSeconds, referralBonus float64) float64 {
	return hashrate * elapsedActiveSeconds * RatePerHashSecond * (1 + referralBonus)
}

// ActiveUptime is the wall-clock time since start minus paused time, never negative
func ActiveUptime(now, start time.Time, paused time.Duration) time.Duration {
	d := now.Sub(start) - paused
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedActiveSeconds is ActiveUptime expressed in seconds
func ElapsedActiveSeconds(now, start time.Time, paused time.Duration) float64 {
	return ActiveUptime(now, start, paused).Seconds()
}
