package todo

import "time"

// Priority is the closed three-value task priority set.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// NormalizePriority maps free-form input onto the closed set, defaulting to
// medium for anything unrecognized.
func NormalizePriority(p string) Priority {
	switch Priority(p) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(p)
	default:
		return PriorityMedium
	}
}

// Task is the client-side mirror of one task record. The external service
// owns the durable copy.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_date"`
	Priority    Priority  `json:"priority"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// CreateRequest holds the fields for a new task.
type CreateRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_date"`
	Priority    Priority  `json:"priority"`
}

// UpdateRequest carries the merged record for an in-place update. The caller
// fills unchanged fields from the prior value.
type UpdateRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_date"`
	Priority    Priority  `json:"priority"`
}

// Credentials is the login/register payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
