package domain

import "time"

// User represents an account within the platform. Tier drives concurrency
// caps and scheduling priority, see internal/tier.
type User struct {
	ID        string
	Email     string
	Tier      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
