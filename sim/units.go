package sim

import (
	"fmt"
	"strings"
)

// TimeUnit is the unit in which simulated instants and spans are expressed.
type TimeUnit int

const (
	Nanoseconds TimeUnit = iota + 1
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var timeUnitNames = map[TimeUnit]string{
	Nanoseconds:  "ns",
	Microseconds: "us",
	Milliseconds: "ms",
	Seconds:      "s",
	Minutes:      "min",
	Hours:        "h",
	Days:         "d",
}

// timeUnitAliases maps accepted spellings to units. Shared by ParseTimeUnit
// and UnmarshalText.
var timeUnitAliases = map[string]TimeUnit{
	"ns": Nanoseconds, "nanosecond": Nanoseconds, "nanoseconds": Nanoseconds,
	"us": Microseconds, "microsecond": Microseconds, "microseconds": Microseconds,
	"ms": Milliseconds, "millisecond": Milliseconds, "milliseconds": Milliseconds,
	"s": Seconds, "second": Seconds, "seconds": Seconds,
	"min": Minutes, "minute": Minutes, "minutes": Minutes,
	"h": Hours, "hour": Hours, "hours": Hours,
	"d": Days, "day": Days, "days": Days,
}

var nanosPerUnit = map[TimeUnit]float64{
	Nanoseconds:  1,
	Microseconds: 1e3,
	Milliseconds: 1e6,
	Seconds:      1e9,
	Minutes:      60e9,
	Hours:        3600e9,
	Days:         86400e9,
}

// IsValid reports whether u is one of the defined units.
func (u TimeUnit) IsValid() bool {
	_, ok := timeUnitNames[u]
	return ok
}

// Nanos returns the length of one u in nanoseconds.
func (u TimeUnit) Nanos() float64 {
	n, ok := nanosPerUnit[u]
	if !ok {
		panic(&ContractViolation{Condition: fmt.Sprintf("invalid time unit %d", int(u))})
	}
	return n
}

func (u TimeUnit) String() string {
	if name, ok := timeUnitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

// ParseTimeUnit parses a unit name such as "s", "ms" or "hours".
func ParseTimeUnit(s string) (TimeUnit, error) {
	if u, ok := timeUnitAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (u TimeUnit) MarshalText() ([]byte, error) {
	if !u.IsValid() {
		return nil, fmt.Errorf("invalid time unit %d", int(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so that YAML files can
// name units directly.
func (u *TimeUnit) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
