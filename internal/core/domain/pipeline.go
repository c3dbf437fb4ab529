package domain

import "time"

type Stage string

const (
	StageNeedsAction   Stage = "needs_action"
	StageAwaitingReply Stage = "awaiting_reply"
	StageScheduled     Stage = "scheduled"
	StageFinance       Stage = "finance"
	StageCompleted     Stage = "completed"
)

var AllStages = []Stage{
	StageNeedsAction,
	StageAwaitingReply,
	StageScheduled,
	StageFinance,
	StageCompleted,
}

func (s Stage) Valid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

type PipelineState struct {
	ThreadKey string    `json:"thread_key"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Transition struct {
	ThreadKey   string    `json:"thread_key"`
	FromStage   Stage     `json:"from_stage"`
	ToStage     Stage     `json:"to_stage"`
	TriggeredBy string    `json:"triggered_by"`
	At          time.Time `json:"at"`
}

// TransitionPolicy lists, per source stage, the stages it may move to.
type TransitionPolicy map[Stage]map[Stage]bool

// AllowAllTransitions is the permissive default: every stage may reach every other stage.
func AllowAllTransitions() TransitionPolicy {
	policy := make(TransitionPolicy, len(AllStages))
	for _, from := range AllStages {
		targets := make(map[Stage]bool, len(AllStages))
		for _, to := range AllStages {
			targets[to] = true
		}
		policy[from] = targets
	}
	return policy
}

func (p TransitionPolicy) Allows(from, to Stage) bool {
	if from == to {
		return true
	}
	return p[from][to]
}
