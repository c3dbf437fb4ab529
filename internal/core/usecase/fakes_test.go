package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

var testNow = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

func fixedClock() ports.Clock {
	return ports.ClockFunc(func() time.Time { return testNow })
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type leadRepoFake struct {
	leads      map[string]*domain.Lead
	createErr  error
	statusErr  error
	statusLog  []domain.LeadStatus
	tags       []string
	customerID string
}

func newLeadRepoFake() *leadRepoFake {
	return &leadRepoFake{leads: map[string]*domain.Lead{}}
}

func (f *leadRepoFake) CreateLead(_ context.Context, lead *domain.Lead) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyLead := *lead
	f.leads[lead.ID] = &copyLead
	return nil
}

func (f *leadRepoFake) GetLeadByID(_ context.Context, id string) (*domain.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get lead", fmt.Errorf("lead %s", id))
	}
	copyLead := *lead
	return &copyLead, nil
}

func (f *leadRepoFake) UpdateLeadStatus(_ context.Context, _ string, status domain.LeadStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *leadRepoFake) AddLeadTags(_ context.Context, _ string, tags []string) error {
	f.tags = append(f.tags, tags...)
	return nil
}

func (f *leadRepoFake) SetLeadCustomer(_ context.Context, _ string, customerID string) error {
	f.customerID = customerID
	return nil
}

type taskRepoFake struct {
	tasks     []domain.Task
	createErr error
}

func (f *taskRepoFake) CreateTask(_ context.Context, task *domain.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tasks = append(f.tasks, *task)
	return nil
}

func (f *taskRepoFake) ListTasksByLead(_ context.Context, leadID string) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(f.tasks))
	for _, task := range f.tasks {
		if task.LeadID == leadID {
			out = append(out, task)
		}
	}
	return out, nil
}

type pipelineStoreFake struct {
	states      map[string]*domain.PipelineState
	transitions []domain.Transition
	getErr      error
}

func newPipelineStoreFake() *pipelineStoreFake {
	return &pipelineStoreFake{states: map[string]*domain.PipelineState{}}
}

func (f *pipelineStoreFake) Get(_ context.Context, threadKey string) (*domain.PipelineState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	state, ok := f.states[threadKey]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get state", fmt.Errorf("thread %s", threadKey))
	}
	copyState := *state
	return &copyState, nil
}

func (f *pipelineStoreFake) History(_ context.Context, threadKey string) ([]domain.Transition, error) {
	var out []domain.Transition
	for _, tr := range f.transitions {
		if tr.ThreadKey == threadKey {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (f *pipelineStoreFake) GetOrCreate(_ context.Context, threadKey string) (*domain.PipelineState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	state, ok := f.states[threadKey]
	if !ok {
		state = &domain.PipelineState{ThreadKey: threadKey, Stage: domain.StageNeedsAction, CreatedAt: testNow, UpdatedAt: testNow}
		f.states[threadKey] = state
	}
	copyState := *state
	return &copyState, nil
}

func (f *pipelineStoreFake) Transition(_ context.Context, threadKey string, to domain.Stage, triggeredBy string) (*domain.PipelineState, error) {
	state, ok := f.states[threadKey]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "transition", fmt.Errorf("thread %s", threadKey))
	}
	if state.Stage != to {
		f.transitions = append(f.transitions, domain.Transition{
			ThreadKey: threadKey, FromStage: state.Stage, ToStage: to, TriggeredBy: triggeredBy, At: testNow,
		})
		state.Stage = to
	}
	copyState := *state
	return &copyState, nil
}

type dedupFake struct {
	mu      sync.Mutex
	seen    map[string]bool
	seenErr error
	markErr error
}

func newDedupFake(ids ...string) *dedupFake {
	f := &dedupFake{seen: map[string]bool{}}
	for _, id := range ids {
		f.seen[id] = true
	}
	return f
}

func (f *dedupFake) Seen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.seen[id], nil
}

func (f *dedupFake) MarkSeen(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.seen[id] = true
	return nil
}

type classifierStub struct {
	result domain.ClassificationResult
}

func (s classifierStub) Classify(domain.InboundMessage) domain.ClassificationResult {
	return s.result
}

type resolverStub struct {
	definition domain.WorkflowDefinition
}

func (s resolverStub) Resolve(domain.ClassificationResult) domain.WorkflowDefinition {
	return s.definition.Clone()
}

type billingFake struct {
	existing    *domain.Customer
	// createLost makes the next create succeed server-side but report a timeout.
	createLost  bool
	searchErr   error
	createErr   error
	invoiceErr  error
	searches    int
	creates     int
	invoices    []domain.Invoice
	lastCreated domain.Customer
}

func (f *billingFake) SearchCustomerByEmail(context.Context, string) (*domain.Customer, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.existing, nil
}

func (f *billingFake) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastCreated = customer
	customer.ID = "cus-new"
	if f.createLost {
		f.createLost = false
		stored := customer
		f.existing = &stored
		return nil, errors.New("billing: request timed out")
	}
	return &customer, nil
}

func (f *billingFake) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	f.invoices = append(f.invoices, invoice)
	invoice.ID = "inv-1"
	return &invoice, nil
}

type calendarFake struct {
	events []domain.CalendarEvent
	err    error
}

func (f *calendarFake) CreateEvent(_ context.Context, event domain.CalendarEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return "evt-1", nil
}

type notifierFake struct {
	sent []domain.LeadNotification
	err  error
}

func (f *notifierFake) NotifyLead(_ context.Context, notification domain.LeadNotification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification)
	return nil
}

// guardFake fails calls to adapters listed in failing without running fn.
type guardFake struct {
	failing map[string]error
	retries map[string]int
	calls   []string
}

func (g *guardFake) Call(ctx context.Context, adapter string, fn func(context.Context) error) error {
	g.calls = append(g.calls, adapter)
	if err, ok := g.failing[adapter]; ok {
		return err
	}
	var err error
	for attempt := 0; attempt <= g.retries[adapter]; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}

type observerFake struct {
	outcomes []string
	failures []string
}

func (o *observerFake) ObserveProcessed(outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *observerFake) ObserveStepFailure(step, kind string) {
	o.failures = append(o.failures, step+"/"+kind)
}
