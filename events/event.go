package events

import "time"

// Event is one security-relevant action.
type Event struct {
	ID        string         `json:"id" bson:"_id"`
	Type      Type           `json:"type" bson:"type"`
	UserID    string         `json:"userId,omitempty" bson:"userId,omitempty"`
	TenantID  string         `json:"tenantId,omitempty" bson:"tenantId,omitempty"`
	SessionID string         `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Resource  string         `json:"resource,omitempty" bson:"resource,omitempty"`
	Action    string         `json:"action,omitempty" bson:"action,omitempty"`
	Outcome   string         `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Severity  Severity       `json:"severity" bson:"severity"`
	Details   map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomeFlagged = "flagged"
)
