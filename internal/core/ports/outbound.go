package ports

import (
	"context"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

// LeadRepository persists leads derived from inbound messages.
type LeadRepository interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	GetLeadByID(ctx context.Context, id string) (*domain.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status domain.LeadStatus) error
	AddLeadTags(ctx context.Context, id string, tags []string) error
	SetLeadCustomer(ctx context.Context, id, customerID string) error
}

// PipelineRepository stores one pipeline row per thread plus its transition log.
type PipelineRepository interface {
	// InsertStateIfAbsent creates the row unless one exists; it reports whether it inserted.
	InsertStateIfAbsent(ctx context.Context, state *domain.PipelineState) (bool, error)
	GetState(ctx context.Context, threadKey string) (*domain.PipelineState, error)
	SaveTransition(ctx context.Context, transition domain.Transition) error
	ListTransitions(ctx context.Context, threadKey string) ([]domain.Transition, error)
}

// TaskRepository persists follow-up tasks created from workflow actions.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	ListTasksByLead(ctx context.Context, leadID string) ([]domain.Task, error)
}

// DedupCache tracks message ids already processed.
type DedupCache interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// EmailSource is the mailbox the inbox monitor polls.
type EmailSource interface {
	ListUnread(ctx context.Context, maxResults int) ([]domain.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*domain.InboundMessage, error)
}

// CalendarClient schedules follow-up events.
type CalendarClient interface {
	CreateEvent(ctx context.Context, event domain.CalendarEvent) (string, error)
}

// BillingClient talks to the billing system. SearchCustomerByEmail returns nil, nil when absent.
type BillingClient interface {
	SearchCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
}

// Notifier delivers team notifications about new leads.
type Notifier interface {
	NotifyLead(ctx context.Context, notification domain.LeadNotification) error
}

// InboundQueue carries webhook-delivered messages from the api to the worker.
type InboundQueue interface {
	PublishInbound(ctx context.Context, msg domain.InboundMessage) error
	SubscribeInbound(ctx context.Context, handler func(context.Context, domain.InboundMessage) error) error
}

// Clock is injected so due dates and schedules are testable.
type Clock interface {
	Now() time.Time
}

// ReadMarker is implemented by email sources that can flag a message as handled.
type ReadMarker interface {
	MarkRead(ctx context.Context, id string) error
}

// PipelineObserver receives processing outcomes for metrics.
type PipelineObserver interface {
	ObserveProcessed(outcome string, duration time.Duration)
	ObserveStepFailure(step, kind string)
}
