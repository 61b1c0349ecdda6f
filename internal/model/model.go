package model

import "time"

// Subscription status taxonomy. Provider states that don't map cleanly
// fall back to StatusInactive.
const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusInactive = "inactive"
)

// Subscription is the durable billing state for one customer, keyed by email.
type Subscription struct {
	Email            string     `json:"email"`
	Status           string     `json:"status"`
	Plan             *string    `json:"plan"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	LastEvent        *string    `json:"last_event"`
	Raw              string     `json:"raw"`
	UserID           *string    `json:"user_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
