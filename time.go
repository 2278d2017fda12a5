package bank

import "time"

// IsWithinThresholdPeriod checks if t falls inside the window that ends at now
func IsWithinThresholdPeriod(t, now time.Time, window time.Duration) bool {
	return t.After(now.Add(-window))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t, now time.Time, window time.Duration) bool {
	return !IsWithinThresholdPeriod(t, now, window)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
