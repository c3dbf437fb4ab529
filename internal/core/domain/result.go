package domain

type StepFailure struct {
	Step    string `json:"step"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewStepFailure(step string, err error) StepFailure {
	failure := StepFailure{Step: step, Kind: KindOf(err)}
	if err != nil {
		failure.Message = err.Error()
	}
	return failure
}

type WorkflowResult struct {
	Success         bool          `json:"success"`
	Skipped         bool          `json:"skipped,omitempty"`
	MessageID       string        `json:"message_id"`
	LeadID          string        `json:"lead_id,omitempty"`
	CustomerID      string        `json:"customer_id,omitempty"`
	InvoiceID       string        `json:"invoice_id,omitempty"`
	CalendarEventID string        `json:"calendar_event_id,omitempty"`
	Source          SourceTag     `json:"source,omitempty"`
	Confidence      int           `json:"confidence,omitempty"`
	Stage           Stage         `json:"stage,omitempty"`
	TaskIDs         []string      `json:"task_ids,omitempty"`
	FailedSteps     []StepFailure `json:"failed_steps"`
}

func (r *WorkflowResult) AddFailure(step string, err error) {
	r.FailedSteps = append(r.FailedSteps, NewStepFailure(step, err))
}
