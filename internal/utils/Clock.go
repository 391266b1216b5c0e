package utils

import "time"

// Clock abstracts time.Now so services that stamp approvals, compute elapsed
// windows, or pick report dates can be tested against a fixed instant.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (s SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock returns FixedNow from every Now call.
type MockClock struct {
	FixedNow time.Time
}

func (m *MockClock) Now() time.Time {
	return m.FixedNow
}

// SetNow moves the mocked time, for tests spanning several instants.
func (m *MockClock) SetNow(now time.Time) {
	m.FixedNow = now
}
