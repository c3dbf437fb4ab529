package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/pipeline"
	"github.com/kirillkom/lead-pipeline/internal/core/policy"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

// Adapter names used for resilience isolation; one breaker per name.
const (
	AdapterBilling  = "billing"
	AdapterCalendar = "calendar"
	AdapterNotifier = "notifier"
	AdapterEmail    = "email"
)

// Step names reported in WorkflowResult.FailedSteps.
const (
	StepPipelineState   = "pipeline_state"
	StepBillingCustomer = "billing_customer"
	StepCalendar        = "calendar_followup"
	StepDedupMark       = "dedup_mark"
	stepTaskPrefix      = "task:"
	stepAutoPrefix      = "auto_action:"
)

const (
	requiredTaskDue     = time.Hour
	suggestedTaskDue    = 4 * time.Hour
	followUpLead        = time.Hour
	followUpLength      = time.Hour
	defaultReminderWait = 24 * time.Hour
)

var phonePattern = regexp.MustCompile(`(?i)(?:phone|tel|telefon|mobile)[^\d+(]{0,12}(\+?\(?\d[\d\s/().-]{5,}\d)`)

type OrchestratorDeps struct {
	Leads      ports.LeadRepository
	Tasks      ports.TaskRepository
	Pipeline   ports.PipelineStore
	Dedup      ports.DedupCache
	Classifier ports.SourceClassifier
	Resolver   ports.WorkflowResolver
	Billing    ports.BillingClient
	Calendar   ports.CalendarClient
	Notifier   ports.Notifier
	Guard      ports.AdapterGuard
	Observer   ports.PipelineObserver
	Clock      ports.Clock
	Policy     policy.Policy
	NewID      func() string
}

// Orchestrator runs one inbound message through classification, lead
// persistence and the resolved workflow. Process calls are serialized.
type Orchestrator struct {
	deps     OrchestratorDeps
	handlers map[domain.AutoActionKind]autoActionHandler

	mu sync.Mutex
}

type autoActionHandler func(ctx context.Context, run *processRun, action domain.AutoAction) error

// processRun carries the state of one Process call between steps.
type processRun struct {
	msg            domain.InboundMessage
	classification domain.ClassificationResult
	definition     domain.WorkflowDefinition
	lead           *domain.Lead
	result         *domain.WorkflowResult
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Guard == nil {
		deps.Guard = directGuard{}
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Policy.Sources == nil {
		deps.Policy = policy.Default()
	}
	o := &Orchestrator{deps: deps}
	o.handlers = map[domain.AutoActionKind]autoActionHandler{
		domain.AutoActionTagLead:        o.tagLead,
		domain.AutoActionNotifyTeam:     o.notifyTeam,
		domain.AutoActionSetLeadStatus:  o.setLeadStatus,
		domain.AutoActionMoveStage:      o.moveStage,
		domain.AutoActionCreateInvoice:  o.createInvoice,
		domain.AutoActionFollowUpRemind: o.followUpReminder,
	}
	return o
}

func (o *Orchestrator) Process(ctx context.Context, msg domain.InboundMessage) (*domain.WorkflowResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()
	result, err := o.process(ctx, msg)

	outcome := "processed"
	switch {
	case err != nil:
		outcome = "failed"
	case result.Skipped:
		outcome = "skipped"
	case len(result.FailedSteps) > 0:
		outcome = "partial"
	}
	o.deps.Observer.ObserveProcessed(outcome, time.Since(started))
	for _, failure := range result.FailedSteps {
		o.deps.Observer.ObserveStepFailure(failure.Step, failure.Kind)
	}

	attrs := []any{
		"message_id", msg.ID,
		"outcome", outcome,
		"source", result.Source,
		"confidence", result.Confidence,
		"lead_id", result.LeadID,
		"failed_steps", len(result.FailedSteps),
	}
	if err != nil {
		slog.ErrorContext(ctx, "lead_processing_failed", append(attrs, "error", err)...)
	} else {
		slog.InfoContext(ctx, "lead_processed", attrs...)
	}
	return result, err
}

func (o *Orchestrator) process(ctx context.Context, msg domain.InboundMessage) (*domain.WorkflowResult, error) {
	msg.ID = strings.TrimSpace(msg.ID)
	result := &domain.WorkflowResult{MessageID: msg.ID, FailedSteps: []domain.StepFailure{}}
	if msg.ID == "" {
		return result, domain.WrapError(domain.ErrValidation, "process message", errors.New("message id is required"))
	}

	seen, err := o.deps.Dedup.Seen(ctx, msg.ID)
	if err != nil {
		return result, unavailable("dedup lookup", err)
	}
	if seen {
		result.Success = true
		result.Skipped = true
		return result, nil
	}

	run := &processRun{msg: msg, result: result}
	run.classification = o.deps.Classifier.Classify(msg)
	result.Source = run.classification.Source
	result.Confidence = run.classification.Confidence

	o.trackThread(ctx, run)

	run.definition = o.deps.Resolver.Resolve(run.classification)
	lead, err := o.persistLead(ctx, run)
	if err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			// The lead exists from an earlier delivery whose dedup mark was lost.
			o.markSeen(ctx, run)
			result.Success = true
			result.Skipped = true
			return result, nil
		}
		return result, fmt.Errorf("persist lead: %w", err)
	}
	run.lead = lead
	result.LeadID = lead.ID

	o.ensureCustomer(ctx, run)
	o.createTasks(ctx, run)
	o.runAutoActions(ctx, run)
	o.scheduleFollowUp(ctx, run)
	o.markSeen(ctx, run)

	result.Success = true
	return result, nil
}

// trackThread creates state for new threads and reopens threads waiting on a reply.
func (o *Orchestrator) trackThread(ctx context.Context, run *processRun) {
	threadKey := run.msg.Thread()

	var (
		state *domain.PipelineState
		err   error
	)
	if pipeline.IsNewThread(run.msg.Subject) {
		state, err = o.deps.Pipeline.GetOrCreate(ctx, threadKey)
	} else {
		state, err = o.deps.Pipeline.Get(ctx, threadKey)
		if domain.IsKind(err, domain.ErrNotFound) {
			return
		}
	}
	if err != nil {
		run.result.AddFailure(StepPipelineState, err)
		return
	}

	if !pipeline.IsNewThread(run.msg.Subject) && state.Stage == domain.StageAwaitingReply {
		state, err = o.deps.Pipeline.Transition(ctx, threadKey, domain.StageNeedsAction, pipeline.SystemActor("inbound_reply"))
		if err != nil {
			run.result.AddFailure(StepPipelineState, err)
			return
		}
	}
	run.result.Stage = state.Stage
}

func (o *Orchestrator) persistLead(ctx context.Context, run *processRun) (*domain.Lead, error) {
	now := o.deps.Clock.Now()
	cls := run.classification
	name, email := parseSender(run.msg.From)

	lead := &domain.Lead{
		ID:              o.deps.NewID(),
		Name:            name,
		Email:           email,
		Phone:           extractPhone(run.msg.Body),
		Score:           o.deps.Policy.Score(cls),
		Status:          o.deps.Policy.LeadStatusFor(cls.Confidence),
		Source:          cls.Source,
		Tags:            []string{},
		SourceMessageID: run.msg.ID,
		ThreadKey:       run.msg.Thread(),
		Classification: domain.ClassificationSnapshot{
			Version:         domain.ClassificationSnapshotVersion,
			Source:          cls.Source,
			Confidence:      cls.Confidence,
			Reasoning:       cls.Reasoning,
			MatchedPatterns: append([]string(nil), cls.MatchedPatterns...),
		},
		Workflow: domain.WorkflowSnapshot{
			Version:      domain.WorkflowSnapshotVersion,
			PriorityTier: run.definition.PriorityTier,
			ResponseSLA:  run.definition.ResponseSLA,
			TaskCount:    len(run.definition.RequiredActions) + len(run.definition.SuggestedActions),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.deps.Leads.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// ensureCustomer searches billing before creating, so repeated runs never duplicate customers.
func (o *Orchestrator) ensureCustomer(ctx context.Context, run *processRun) {
	if !o.deps.Policy.ShouldAutoCreateCustomer(run.classification.Confidence) {
		return
	}
	if o.deps.Billing == nil {
		run.result.AddFailure(StepBillingCustomer, domain.WrapError(domain.ErrInternal, "billing customer", errors.New("billing adapter not configured")))
		return
	}
	lead := run.lead
	if lead.Email == "" {
		run.result.AddFailure(StepBillingCustomer, domain.WrapError(domain.ErrValidation, "billing customer", errors.New("lead has no email address")))
		return
	}

	// Search and create share one guarded attempt so a retried create first
	// finds a customer an earlier timed-out attempt may have created.
	var customer *domain.Customer
	err := o.deps.Guard.Call(ctx, AdapterBilling, func(ctx context.Context) error {
		found, err := o.deps.Billing.SearchCustomerByEmail(ctx, lead.Email)
		if err != nil {
			return err
		}
		if found != nil {
			customer = found
			return nil
		}
		created, err := o.deps.Billing.CreateCustomer(ctx, domain.Customer{Email: lead.Email, Name: lead.Name, Phone: lead.Phone})
		if err != nil {
			return err
		}
		customer = created
		return nil
	})
	if err != nil {
		run.result.AddFailure(StepBillingCustomer, err)
		return
	}

	run.result.CustomerID = customer.ID
	if err := o.deps.Leads.SetLeadCustomer(ctx, lead.ID, customer.ID); err != nil {
		run.result.AddFailure(StepBillingCustomer, err)
		return
	}
	if err := o.deps.Leads.UpdateLeadStatus(ctx, lead.ID, domain.LeadStatusCustomer); err != nil {
		run.result.AddFailure(StepBillingCustomer, err)
		return
	}
	lead.CustomerID = customer.ID
	lead.Status = domain.LeadStatusCustomer
}

func (o *Orchestrator) createTasks(ctx context.Context, run *processRun) {
	now := o.deps.Clock.Now()
	for _, action := range run.definition.RequiredActions {
		o.createTask(ctx, run, action, domain.PriorityHigh, now.Add(requiredTaskDue))
	}
	suggested := append([]domain.Action(nil), run.definition.SuggestedActions...)
	if run.classification.Source != domain.SourceUnknown && !o.deps.Policy.IsHighConfidence(run.classification.Confidence) {
		suggested = append(suggested, domain.Action{
			Title:       "Verify lead source",
			Description: fmt.Sprintf("Classified as %s with confidence %d only.", run.classification.Source, run.classification.Confidence),
		})
	}
	for _, action := range suggested {
		o.createTask(ctx, run, action, domain.PriorityMedium, now.Add(suggestedTaskDue))
	}
}

func (o *Orchestrator) createTask(ctx context.Context, run *processRun, action domain.Action, priority domain.PriorityTier, due time.Time) {
	now := o.deps.Clock.Now()
	task := &domain.Task{
		ID:          o.deps.NewID(),
		LeadID:      run.lead.ID,
		Title:       action.Title,
		Description: action.Description,
		Priority:    priority,
		Status:      domain.TaskStatusOpen,
		DueAt:       due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.deps.Tasks.CreateTask(ctx, task); err != nil {
		run.result.AddFailure(stepTaskPrefix+action.Title, err)
		return
	}
	run.result.TaskIDs = append(run.result.TaskIDs, task.ID)
}

func (o *Orchestrator) runAutoActions(ctx context.Context, run *processRun) {
	for _, action := range run.definition.AutoActions {
		step := stepAutoPrefix + string(action.Kind)
		if action.Trigger == domain.TriggerDelayed {
			slog.InfoContext(ctx, "auto_action_scheduled",
				"kind", action.Kind,
				"lead_id", run.lead.ID,
				"delay", action.Delay.String(),
			)
			continue
		}
		handler, ok := o.handlers[action.Kind]
		if !ok {
			run.result.AddFailure(step, domain.WrapError(domain.ErrValidation, "auto action", fmt.Errorf("unknown kind %q", action.Kind)))
			continue
		}
		if err := handler(ctx, run, action); err != nil {
			run.result.AddFailure(step, err)
		}
	}
}

func (o *Orchestrator) tagLead(ctx context.Context, run *processRun, action domain.AutoAction) error {
	if len(action.Tags) == 0 {
		return nil
	}
	if err := o.deps.Leads.AddLeadTags(ctx, run.lead.ID, action.Tags); err != nil {
		return err
	}
	run.lead.Tags = append(run.lead.Tags, action.Tags...)
	return nil
}

func (o *Orchestrator) notifyTeam(ctx context.Context, run *processRun, action domain.AutoAction) error {
	if o.deps.Notifier == nil {
		return domain.WrapError(domain.ErrInternal, "notify team", errors.New("notifier not configured"))
	}
	channel := action.Channel
	if channel == "" {
		channel = "sales"
	}
	notification := domain.LeadNotification{
		LeadID:     run.lead.ID,
		Channel:    channel,
		Name:       run.lead.Name,
		Email:      run.lead.Email,
		Source:     run.classification.Source,
		Confidence: run.classification.Confidence,
		Score:      run.lead.Score,
		Priority:   run.definition.PriorityTier,
		Subject:    run.msg.Subject,
		CreatedAt:  o.deps.Clock.Now(),
	}
	return o.deps.Guard.Call(ctx, AdapterNotifier, func(ctx context.Context) error {
		return o.deps.Notifier.NotifyLead(ctx, notification)
	})
}

func (o *Orchestrator) setLeadStatus(ctx context.Context, run *processRun, action domain.AutoAction) error {
	if !action.Status.Valid() {
		return domain.WrapError(domain.ErrValidation, "set lead status", fmt.Errorf("unknown status %q", action.Status))
	}
	if err := o.deps.Leads.UpdateLeadStatus(ctx, run.lead.ID, action.Status); err != nil {
		return err
	}
	run.lead.Status = action.Status
	return nil
}

func (o *Orchestrator) moveStage(ctx context.Context, run *processRun, action domain.AutoAction) error {
	state, err := o.deps.Pipeline.Transition(ctx, run.msg.Thread(), action.Stage, pipeline.SystemActor(stepAutoPrefix+string(action.Kind)))
	if err != nil {
		return err
	}
	run.result.Stage = state.Stage
	return nil
}

func (o *Orchestrator) createInvoice(ctx context.Context, run *processRun, action domain.AutoAction) error {
	if o.deps.Billing == nil {
		return domain.WrapError(domain.ErrInternal, "create invoice", errors.New("billing adapter not configured"))
	}
	if run.result.CustomerID == "" {
		return domain.WrapError(domain.ErrValidation, "create invoice", errors.New("lead has no billing customer"))
	}
	invoice := domain.Invoice{
		CustomerID:  run.result.CustomerID,
		Description: fmt.Sprintf("%s (lead %s)", strings.TrimSpace(run.msg.Subject), run.lead.ID),
		AmountCents: action.AmountCents,
		Currency:    action.Currency,
	}
	var created *domain.Invoice
	err := o.deps.Guard.Call(ctx, AdapterBilling, func(ctx context.Context) error {
		out, err := o.deps.Billing.CreateInvoice(ctx, invoice)
		created = out
		return err
	})
	if err != nil {
		return err
	}
	if created != nil {
		run.result.InvoiceID = created.ID
	}
	return nil
}

// followUpReminder run immediately becomes a task due after the configured delay.
func (o *Orchestrator) followUpReminder(ctx context.Context, run *processRun, action domain.AutoAction) error {
	wait := action.Delay
	if wait <= 0 {
		wait = defaultReminderWait
	}
	now := o.deps.Clock.Now()
	task := &domain.Task{
		ID:        o.deps.NewID(),
		LeadID:    run.lead.ID,
		Title:     "Follow up",
		Priority:  domain.PriorityMedium,
		Status:    domain.TaskStatusOpen,
		DueAt:     now.Add(wait),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.deps.Tasks.CreateTask(ctx, task); err != nil {
		return err
	}
	run.result.TaskIDs = append(run.result.TaskIDs, task.ID)
	return nil
}

func (o *Orchestrator) scheduleFollowUp(ctx context.Context, run *processRun) {
	if run.definition.ResponseSLA != domain.SLAImmediate {
		return
	}
	if o.deps.Calendar == nil {
		run.result.AddFailure(StepCalendar, domain.WrapError(domain.ErrInternal, "calendar follow-up", errors.New("calendar adapter not configured")))
		return
	}
	start := o.deps.Clock.Now().Add(followUpLead)
	event := domain.CalendarEvent{
		Summary:     fmt.Sprintf("Follow up: %s", displayName(run.lead)),
		Description: fmt.Sprintf("Source: %s (confidence %d)\nSubject: %s\nLead: %s", run.classification.Source, run.classification.Confidence, run.msg.Subject, run.lead.ID),
		Start:       start,
		End:         start.Add(followUpLength),
	}

	var eventID string
	err := o.deps.Guard.Call(ctx, AdapterCalendar, func(ctx context.Context) error {
		id, err := o.deps.Calendar.CreateEvent(ctx, event)
		eventID = id
		return err
	})
	if err != nil {
		run.result.AddFailure(StepCalendar, err)
		return
	}
	run.result.CalendarEventID = eventID
}

func (o *Orchestrator) markSeen(ctx context.Context, run *processRun) {
	if err := o.deps.Dedup.MarkSeen(ctx, run.msg.ID); err != nil {
		slog.WarnContext(ctx, "dedup_mark_failed", "message_id", run.msg.ID, "error", err)
		run.result.AddFailure(StepDedupMark, err)
	}
}

func parseSender(from string) (string, string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		if strings.Contains(from, "@") && !strings.ContainsAny(from, " <>") {
			return "", strings.ToLower(from)
		}
		return from, ""
	}
	return strings.TrimSpace(addr.Name), strings.ToLower(addr.Address)
}

func extractPhone(body string) string {
	match := phonePattern.FindStringSubmatch(body)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func displayName(lead *domain.Lead) string {
	if lead.Name != "" {
		return lead.Name
	}
	if lead.Email != "" {
		return lead.Email
	}
	return lead.ID
}

func unavailable(operation string, err error) error {
	if domain.IsKind(err, domain.ErrServiceUnavailable) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
}

// directGuard calls adapters without protection; used when no guard is wired.
type directGuard struct{}

func (directGuard) Call(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type noopObserver struct{}

func (noopObserver) ObserveProcessed(string, time.Duration) {}
func (noopObserver) ObserveStepFailure(string, string)      {}
