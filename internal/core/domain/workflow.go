package domain

import "time"

type PriorityTier string

const (
	PriorityHigh   PriorityTier = "high"
	PriorityMedium PriorityTier = "medium"
	PriorityLow    PriorityTier = "low"
)

type ResponseSLA string

const (
	SLAImmediate ResponseSLA = "immediate"
	SLASameDay   ResponseSLA = "same_day"
	SLAStandard  ResponseSLA = "standard"
)

type Action struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type AutoActionKind string

const (
	AutoActionTagLead        AutoActionKind = "tag_lead"
	AutoActionNotifyTeam     AutoActionKind = "notify_team"
	AutoActionSetLeadStatus  AutoActionKind = "set_lead_status"
	AutoActionMoveStage      AutoActionKind = "move_stage"
	AutoActionCreateInvoice  AutoActionKind = "create_invoice"
	AutoActionFollowUpRemind AutoActionKind = "follow_up_reminder"
)

var AutoActionKinds = []AutoActionKind{
	AutoActionTagLead,
	AutoActionNotifyTeam,
	AutoActionSetLeadStatus,
	AutoActionMoveStage,
	AutoActionCreateInvoice,
	AutoActionFollowUpRemind,
}

func (k AutoActionKind) Valid() bool {
	for _, known := range AutoActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

type AutoTrigger string

const (
	TriggerImmediate AutoTrigger = "immediate"
	TriggerDelayed   AutoTrigger = "delayed"
)

// AutoAction is an automation step executed without human confirmation.
// Only the fields relevant to Kind are read.
type AutoAction struct {
	Kind        AutoActionKind `json:"kind" yaml:"kind"`
	Trigger     AutoTrigger    `json:"trigger" yaml:"trigger"`
	Delay       time.Duration  `json:"delay,omitempty" yaml:"delay,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Status      LeadStatus     `json:"status,omitempty" yaml:"status,omitempty"`
	Stage       Stage          `json:"stage,omitempty" yaml:"stage,omitempty"`
	Channel     string         `json:"channel,omitempty" yaml:"channel,omitempty"`
	AmountCents int64          `json:"amount_cents,omitempty" yaml:"amount_cents,omitempty"`
	Currency    string         `json:"currency,omitempty" yaml:"currency,omitempty"`
}

type WorkflowDefinition struct {
	Source           SourceTag    `json:"source" yaml:"source"`
	PriorityTier     PriorityTier `json:"priority_tier" yaml:"priority_tier"`
	ResponseSLA      ResponseSLA  `json:"response_sla" yaml:"response_sla"`
	RequiredActions  []Action     `json:"required_actions" yaml:"required_actions"`
	SuggestedActions []Action     `json:"suggested_actions" yaml:"suggested_actions"`
	AutoActions      []AutoAction `json:"auto_actions" yaml:"auto_actions"`
}

// Clone returns a deep copy so registry entries are never shared with callers.
func (d WorkflowDefinition) Clone() WorkflowDefinition {
	out := d
	out.RequiredActions = append([]Action(nil), d.RequiredActions...)
	out.SuggestedActions = append([]Action(nil), d.SuggestedActions...)
	out.AutoActions = make([]AutoAction, len(d.AutoActions))
	for i, action := range d.AutoActions {
		action.Tags = append([]string(nil), action.Tags...)
		out.AutoActions[i] = action
	}
	return out
}
