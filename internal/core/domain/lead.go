package domain

import "time"

type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusQualified    LeadStatus = "qualified"
	LeadStatusCustomer     LeadStatus = "customer"
	LeadStatusDisqualified LeadStatus = "disqualified"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusQualified, LeadStatusCustomer, LeadStatusDisqualified:
		return true
	default:
		return false
	}
}

const (
	ClassificationSnapshotVersion = 1
	WorkflowSnapshotVersion       = 1
)

// ClassificationSnapshot is the persisted view of a ClassificationResult.
type ClassificationSnapshot struct {
	Version         int       `json:"version"`
	Source          SourceTag `json:"source"`
	Confidence      int       `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	MatchedPatterns []string  `json:"matched_patterns"`
}

// WorkflowSnapshot records which workflow was applied to a lead.
type WorkflowSnapshot struct {
	Version      int          `json:"version"`
	PriorityTier PriorityTier `json:"priority_tier"`
	ResponseSLA  ResponseSLA  `json:"response_sla"`
	TaskCount    int          `json:"task_count"`
}

type Lead struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Email           string                 `json:"email"`
	Phone           string                 `json:"phone,omitempty"`
	Score           int                    `json:"score"`
	Status          LeadStatus             `json:"status"`
	Source          SourceTag              `json:"source"`
	Tags            []string               `json:"tags"`
	SourceMessageID string                 `json:"source_message_id"`
	ThreadKey       string                 `json:"thread_key"`
	CustomerID      string                 `json:"customer_id,omitempty"`
	Classification  ClassificationSnapshot `json:"classification"`
	Workflow        WorkflowSnapshot       `json:"workflow"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusCompleted TaskStatus = "completed"
)

type Task struct {
	ID          string       `json:"id"`
	LeadID      string       `json:"lead_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    PriorityTier `json:"priority"`
	Status      TaskStatus   `json:"status"`
	DueAt       time.Time    `json:"due_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Invoice struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status,omitempty"`
}

type CalendarEvent struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// LeadNotification is published to the team channel by the notify_team auto action.
type LeadNotification struct {
	LeadID     string       `json:"lead_id"`
	Channel    string       `json:"channel"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	Source     SourceTag    `json:"source"`
	Confidence int          `json:"confidence"`
	Score      int          `json:"score"`
	Priority   PriorityTier `json:"priority"`
	Subject    string       `json:"subject"`
	CreatedAt  time.Time    `json:"created_at"`
}
