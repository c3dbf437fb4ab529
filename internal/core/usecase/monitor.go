package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/pipeline"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultPollBatch    = 50
)

var systemSenderMarkers = []string{
	"noreply",
	"no-reply",
	"donotreply",
	"mailer-daemon",
	"postmaster",
	"bounce",
}

// IsSystemSender reports whether from looks like an automated mailbox.
func IsSystemSender(from string) bool {
	from = strings.ToLower(from)
	for _, marker := range systemSenderMarkers {
		if strings.Contains(from, marker) {
			return true
		}
	}
	return false
}

type CycleStats struct {
	Listed    int
	Processed int
	Skipped   int
	Failed    int
}

// InboxMonitor polls an EmailSource and feeds new conversations to the processor.
type InboxMonitor struct {
	source    ports.EmailSource
	dedup     ports.DedupCache
	processor ports.MessageProcessor
	guard     ports.AdapterGuard
	interval  time.Duration
	batch     int
}

func NewInboxMonitor(
	source ports.EmailSource,
	dedup ports.DedupCache,
	processor ports.MessageProcessor,
	guard ports.AdapterGuard,
	interval time.Duration,
	batch int,
) *InboxMonitor {
	if guard == nil {
		guard = directGuard{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if batch <= 0 {
		batch = DefaultPollBatch
	}
	return &InboxMonitor{
		source:    source,
		dedup:     dedup,
		processor: processor,
		guard:     guard,
		interval:  interval,
		batch:     batch,
	}
}

// Run polls until ctx is cancelled. A cycle that already started finishes on a
// detached context; cancellation only prevents the next one.
func (m *InboxMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(context.WithoutCancel(ctx)); err != nil {
			slog.Error("inbox_poll_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *InboxMonitor) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	var refs []domain.MessageRef
	err := m.guard.Call(ctx, AdapterEmail, func(ctx context.Context) error {
		listed, err := m.source.ListUnread(ctx, m.batch)
		refs = listed
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("list unread: %w", err)
	}
	stats.Listed = len(refs)

	for _, ref := range refs {
		if m.shouldSkip(ctx, ref) {
			stats.Skipped++
			m.markRead(ctx, ref.ID)
			continue
		}

		var msg *domain.InboundMessage
		err := m.guard.Call(ctx, AdapterEmail, func(ctx context.Context) error {
			fetched, err := m.source.GetMessage(ctx, ref.ID)
			msg = fetched
			return err
		})
		if err != nil {
			stats.Failed++
			slog.Warn("inbox_fetch_failed", "message_id", ref.ID, "error", err)
			continue
		}

		result, err := m.processor.Process(ctx, *msg)
		if err != nil {
			stats.Failed++
			continue
		}
		if result != nil && result.Skipped {
			stats.Skipped++
		} else {
			stats.Processed++
		}
		m.markRead(ctx, ref.ID)
	}

	slog.Info("inbox_cycle_completed",
		"listed", stats.Listed,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (m *InboxMonitor) shouldSkip(ctx context.Context, ref domain.MessageRef) bool {
	if !pipeline.IsNewThread(ref.Subject) || IsSystemSender(ref.From) {
		return true
	}
	seen, err := m.dedup.Seen(ctx, ref.ID)
	if err != nil {
		// Let the orchestrator decide; it fails the message if dedup stays down.
		return false
	}
	return seen
}

func (m *InboxMonitor) markRead(ctx context.Context, id string) {
	marker, ok := m.source.(ports.ReadMarker)
	if !ok {
		return
	}
	if err := marker.MarkRead(ctx, id); err != nil {
		slog.Warn("inbox_mark_read_failed", "message_id", id, "error", err)
	}
}
