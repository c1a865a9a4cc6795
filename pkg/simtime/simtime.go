// Package simtime defines the simulator's internal time representation:
// a signed microsecond counter with an explicit "undefined" sentinel,
// distinct from zero, and the handful of pure time-math helpers every
// other package needs (checkpoint interval formulas, ceil-division).
package simtime

import "math"

// Time is a point in simulated time, expressed in microseconds.
type Time int64

// Unit is the number of Time units per simulated second (TIME_UNIT).
const Unit Time = 1000

// Undefined marks a timestamp that has not been set yet. Zero is a valid
// simulated instant (the very first snapshot lives at t=0), so it cannot
// double as "unset".
const Undefined Time = math.MinInt64

// Defined reports whether t has been assigned a real value.
func (t Time) Defined() bool {
	return t != Undefined
}

// Seconds converts t to a float64 number of simulated seconds.
func (t Time) Seconds() float64 {
	return float64(t) / float64(Unit)
}

// FromSeconds builds a Time from a floating point number of simulated
// seconds, rounding up to the next microsecond — every duration in the
// original model is derived this way (ceil(TIME_UNIT * bytes / bandwidth)).
func FromSeconds(s float64) Time {
	return Time(math.Ceil(s * float64(Unit)))
}

// CeilDiv returns ceil(a/b) for positive floating point operands, as a
// Time. Used in duration derivation, where the source always takes the
// ceiling rather than truncating.
func CeilDiv(a, b float64) Time {
	return Time(math.Ceil(a / b))
}

// DalyInterval computes Daly's optimal checkpoint interval:
// sqrt(2 * mtbfPerApp * ckptTime).
func DalyInterval(mtbfPerApp, ckptTime Time) Time {
	return Time(math.Sqrt(2.0 * float64(mtbfPerApp) * float64(ckptTime)))
}
