package chrono

import "time"

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the location the implementation was constructed with.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct {
	location *time.Location
}

// NewStandardTime is the constructor of StandardTime, a nil location defaults to UTC.
func NewStandardTime(location *time.Location) StandardTime {
	if location == nil {
		location = time.UTC
	}
	return StandardTime{location: location}
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

// FixedTime always returns the same instant, it is used in tests.
type FixedTime struct {
	At time.Time
}

func (f FixedTime) Now() time.Time {
	return f.At
}
