package sim

import (
	"fmt"
	"math"
)

// Tolerance is the absolute tolerance used by every equality and ordering
// comparison on Time and Duration values. Adjust it only before a run starts.
var Tolerance = 1e-9

// === Duration ===

// Duration is an immutable, non-negative simulated span tagged with a unit.
// Infinity is unit-agnostic and compares greater than any finite duration.
type Duration struct {
	value    float64
	unit     TimeUnit
	infinite bool
}

// Infinity is the duration returned by a time advance when no internal event
// is forecast.
var Infinity = Duration{infinite: true}

// NewDuration returns a finite duration. Negative, NaN or infinite values and
// invalid units are contract violations.
func NewDuration(value float64, unit TimeUnit) Duration {
	assertf(unit.IsValid(), "", "duration with invalid time unit %d", int(unit))
	assertf(!math.IsNaN(value) && !math.IsInf(value, 0), "", "duration value %v is not finite", value)
	assertf(value >= 0, "", "negative duration %v %s", value, unit)
	return Duration{value: value, unit: unit}
}

// ZeroDuration returns the zero duration in unit u.
func ZeroDuration(u TimeUnit) Duration { return NewDuration(0, u) }

// OneDuration returns a duration of one unit u.
func OneDuration(u TimeUnit) Duration { return NewDuration(1, u) }

// Value returns the scalar value, +Inf for Infinity.
func (d Duration) Value() float64 {
	if d.infinite {
		return math.Inf(1)
	}
	return d.value
}

// Unit returns the time unit; Infinity has no unit and returns 0.
func (d Duration) Unit() TimeUnit { return d.unit }

// IsInfinite reports whether d is the Infinity sentinel.
func (d Duration) IsInfinite() bool { return d.infinite }

// IsZero reports whether d equals zero within Tolerance.
func (d Duration) IsZero() bool { return !d.infinite && d.value <= Tolerance }

// HasSameUnit reports whether d and o share a time unit.
func (d Duration) HasSameUnit(o Duration) bool { return d.unit == o.unit }

// Add returns d + o.
func (d Duration) Add(o Duration) Duration {
	checkUnits("Duration.Add", d.unit, o.unit, d.infinite, o.infinite)
	if d.infinite || o.infinite {
		return Infinity
	}
	return Duration{value: d.value + o.value, unit: d.unit}
}

// Subtract returns d - o clamped at zero. Infinity minus infinity returns
// ErrUndefinedArithmetic.
func (d Duration) Subtract(o Duration) (Duration, error) {
	checkUnits("Duration.Subtract", d.unit, o.unit, d.infinite, o.infinite)
	switch {
	case d.infinite && o.infinite:
		return Duration{}, ErrUndefinedArithmetic
	case d.infinite:
		return Infinity, nil
	case o.infinite:
		return Duration{unit: d.unit}, nil
	}
	return Duration{value: math.Max(0, d.value-o.value), unit: d.unit}, nil
}

// Multiply scales d by a non-negative factor.
func (d Duration) Multiply(factor float64) Duration {
	assertf(factor >= 0 && !math.IsNaN(factor), "", "negative duration factor %v", factor)
	if d.infinite {
		return Infinity
	}
	return Duration{value: d.value * factor, unit: d.unit}
}

// Equal compares within Tolerance.
func (d Duration) Equal(o Duration) bool {
	checkUnits("Duration.Equal", d.unit, o.unit, d.infinite, o.infinite)
	return approxEqual(d.value, d.infinite, o.value, o.infinite)
}

func (d Duration) LessThan(o Duration) bool {
	checkUnits("Duration.LessThan", d.unit, o.unit, d.infinite, o.infinite)
	return approxLess(d.value, d.infinite, o.value, o.infinite)
}

func (d Duration) LessThanOrEqual(o Duration) bool {
	return d.LessThan(o) || d.Equal(o)
}

func (d Duration) GreaterThan(o Duration) bool {
	checkUnits("Duration.GreaterThan", d.unit, o.unit, d.infinite, o.infinite)
	return approxLess(o.value, o.infinite, d.value, d.infinite)
}

func (d Duration) GreaterThanOrEqual(o Duration) bool {
	return d.GreaterThan(o) || d.Equal(o)
}

func (d Duration) String() string {
	if d.infinite {
		return "+inf"
	}
	return fmt.Sprintf("%g%s", d.value, d.unit)
}

// === Time ===

// Time is an immutable simulated instant measured from the simulation epoch
// in a given unit. The infinite Time is the instant of an event that never
// happens.
type Time struct {
	value    float64
	unit     TimeUnit
	infinite bool
}

// TimeInfinity is the instant that is never reached.
var TimeInfinity = Time{infinite: true}

// NewTime returns the instant value units after the epoch.
func NewTime(value float64, unit TimeUnit) Time {
	assertf(unit.IsValid(), "", "time with invalid time unit %d", int(unit))
	assertf(!math.IsNaN(value) && !math.IsInf(value, 0), "", "time value %v is not finite", value)
	assertf(value >= 0, "", "time %v %s precedes the epoch", value, unit)
	return Time{value: value, unit: unit}
}

// ZeroTime returns the epoch in unit u.
func ZeroTime(u TimeUnit) Time { return NewTime(0, u) }

func (t Time) Value() float64 {
	if t.infinite {
		return math.Inf(1)
	}
	return t.value
}

func (t Time) Unit() TimeUnit          { return t.unit }
func (t Time) IsInfinite() bool        { return t.infinite }
func (t Time) HasSameUnit(o Time) bool { return t.unit == o.unit }

// Add returns t + d.
func (t Time) Add(d Duration) Time {
	checkUnits("Time.Add", t.unit, d.unit, t.infinite, d.infinite)
	if t.infinite || d.infinite {
		return TimeInfinity
	}
	return Time{value: t.value + d.value, unit: t.unit}
}

// Subtract returns the span from o to t, clamped at zero. Subtracting the
// infinite instant from itself returns ErrUndefinedArithmetic.
func (t Time) Subtract(o Time) (Duration, error) {
	checkUnits("Time.Subtract", t.unit, o.unit, t.infinite, o.infinite)
	switch {
	case t.infinite && o.infinite:
		return Duration{}, ErrUndefinedArithmetic
	case t.infinite:
		return Infinity, nil
	case o.infinite:
		return Duration{unit: t.unit}, nil
	}
	return Duration{value: math.Max(0, t.value-o.value), unit: t.unit}, nil
}

// SubtractDuration returns t - d clamped at the epoch.
func (t Time) SubtractDuration(d Duration) (Time, error) {
	checkUnits("Time.SubtractDuration", t.unit, d.unit, t.infinite, d.infinite)
	switch {
	case t.infinite && d.infinite:
		return Time{}, ErrUndefinedArithmetic
	case t.infinite:
		return TimeInfinity, nil
	case d.infinite:
		return Time{unit: t.unit}, nil
	}
	return Time{value: math.Max(0, t.value-d.value), unit: t.unit}, nil
}

// Elapsed returns t - o and treats ErrUndefinedArithmetic as a contract
// violation. Used by engines where both operands are known to be ordered.
func (t Time) Elapsed(o Time) Duration {
	d, err := t.Subtract(o)
	assertf(err == nil, "", "elapsed %s - %s: %v", t, o, err)
	return d
}

func (t Time) Equal(o Time) bool {
	checkUnits("Time.Equal", t.unit, o.unit, t.infinite, o.infinite)
	return approxEqual(t.value, t.infinite, o.value, o.infinite)
}

func (t Time) LessThan(o Time) bool {
	checkUnits("Time.LessThan", t.unit, o.unit, t.infinite, o.infinite)
	return approxLess(t.value, t.infinite, o.value, o.infinite)
}

func (t Time) LessThanOrEqual(o Time) bool { return t.LessThan(o) || t.Equal(o) }

func (t Time) GreaterThan(o Time) bool {
	checkUnits("Time.GreaterThan", t.unit, o.unit, t.infinite, o.infinite)
	return approxLess(o.value, o.infinite, t.value, t.infinite)
}

func (t Time) GreaterThanOrEqual(o Time) bool { return t.GreaterThan(o) || t.Equal(o) }

func (t Time) String() string {
	if t.infinite {
		return "t=+inf"
	}
	return fmt.Sprintf("t=%g%s", t.value, t.unit)
}

// MinTime returns the earlier of a and b.
func MinTime(a, b Time) Time {
	if b.LessThan(a) {
		return b
	}
	return a
}

// checkUnits enforces that both operands share a unit unless one of them is
// infinite.
func checkUnits(op string, a, b TimeUnit, aInf, bInf bool) {
	if aInf || bInf {
		return
	}
	assertf(a == b, "", "%s: operands have different time units (%s vs %s)", op, a, b)
}

func approxEqual(a float64, aInf bool, b float64, bInf bool) bool {
	if aInf || bInf {
		return aInf && bInf
	}
	return math.Abs(a-b) <= Tolerance
}

func approxLess(a float64, aInf bool, b float64, bInf bool) bool {
	if aInf {
		return false
	}
	if bInf {
		return true
	}
	return a < b-Tolerance
}
