package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/resilience"
)

const (
	DefaultInboundSubject      = "leads.inbound"
	DefaultNotificationSubject = "leads.notifications"
	DefaultStream              = "LEADS_INBOUND"
	DefaultDurable             = "lead-workers"
	DefaultAckWait             = 2 * time.Minute
	DefaultMaxDeliver          = 5
	DefaultNakDelay            = 30 * time.Second

	publishTimeout  = 5 * time.Second
	fetchWait       = 5 * time.Second
	fetchRetryDelay = 2 * time.Second
	streamMaxAge    = 7 * 24 * time.Hour
)

// publisher is the core NATS publish used for fire-and-forget notifications.
type publisher interface {
	Publish(subject string, data []byte) error
}

// jetStream is the subset of nats.JetStreamContext the queue needs.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Queue carries inbound messages over a JetStream work-queue stream so a
// failed delivery is redelivered, and team notifications over core NATS.
type Queue struct {
	conn                *nats.Conn
	pub                 publisher
	js                  jetStream
	inboundSubject      string
	notificationSubject string
	stream              string
	durable             string
	ackWait             time.Duration
	maxDeliver          int
	nakDelay            time.Duration
	executor            *resilience.Executor

	streamMu    sync.Mutex
	streamReady bool
}

type Options struct {
	InboundSubject       string
	NotificationSubject  string
	Stream               string
	Durable              string
	AckWait              time.Duration
	MaxDeliver           int
	NakDelay             time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("lead-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	q := newQueue(conn, js, options)
	q.conn = conn
	return q, nil
}

func newQueue(pub publisher, js jetStream, options Options) *Queue {
	q := &Queue{
		pub:                 pub,
		js:                  js,
		inboundSubject:      options.InboundSubject,
		notificationSubject: options.NotificationSubject,
		stream:              options.Stream,
		durable:             options.Durable,
		ackWait:             options.AckWait,
		maxDeliver:          options.MaxDeliver,
		nakDelay:            options.NakDelay,
		executor:            options.ResilienceExecutor,
	}
	if q.inboundSubject == "" {
		q.inboundSubject = DefaultInboundSubject
	}
	if q.notificationSubject == "" {
		q.notificationSubject = DefaultNotificationSubject
	}
	if q.stream == "" {
		q.stream = DefaultStream
	}
	if q.durable == "" {
		q.durable = DefaultDurable
	}
	if q.ackWait <= 0 {
		q.ackWait = DefaultAckWait
	}
	if q.maxDeliver <= 0 {
		q.maxDeliver = DefaultMaxDeliver
	}
	if q.nakDelay <= 0 {
		q.nakDelay = DefaultNakDelay
	}
	return q
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// ensureStream creates the inbound work-queue stream on first use and keeps
// trying on later calls until that succeeds.
func (q *Queue) ensureStream() error {
	q.streamMu.Lock()
	defer q.streamMu.Unlock()
	if q.streamReady {
		return nil
	}

	_, err := q.js.StreamInfo(q.stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:      q.stream,
			Subjects:  []string{q.inboundSubject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
			MaxAge:    streamMaxAge,
		})
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", q.stream, err)
	}
	q.streamReady = true
	return nil
}

// PublishInbound stores the message in the stream. A nil error means the
// server acknowledged it.
func (q *Queue) PublishInbound(ctx context.Context, msg domain.InboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal inbound message: %w", err)
	}
	call := func(ctx context.Context) error {
		if err := q.ensureStream(); err != nil {
			return err
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if _, err := q.js.Publish(q.inboundSubject, payload, nats.Context(pubCtx)); err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				err = nats.ErrTimeout
			}
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return asUnavailable(q.inboundSubject, err)
}

// NotifyLead publishes a lead notification for the team channel consumers.
// It is not retried here; the orchestrator guards it as the notifier adapter.
func (q *Queue) NotifyLead(_ context.Context, notification domain.LeadNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal lead notification: %w", err)
	}
	if err := q.pub.Publish(q.notificationSubject, payload); err != nil {
		return asUnavailable(q.notificationSubject, fmt.Errorf("nats publish: %w", err))
	}
	return nil
}

// SubscribeInbound pulls from the durable consumer until ctx is done. Each
// message is acked after the handler succeeds and nak'd with a delay when it
// fails, so the server redelivers it up to the max-deliver limit.
func (q *Queue) SubscribeInbound(ctx context.Context, handler func(context.Context, domain.InboundMessage) error) error {
	if q.js == nil {
		return errors.New("nats subscribe: queue has no jetstream context")
	}

	var sub *nats.Subscription
	for sub == nil {
		err := q.ensureStream()
		if err == nil {
			sub, err = q.js.PullSubscribe(q.inboundSubject, q.durable,
				nats.BindStream(q.stream),
				nats.AckWait(q.ackWait),
				nats.MaxDeliver(q.maxDeliver),
			)
		}
		if err != nil {
			slog.Warn("inbound_subscribe_failed", "stream", q.stream, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
		}
	}

	// In-flight batches finish on a detached context so shutdown does not
	// abandon a message halfway through the pipeline.
	detached := context.WithoutCancel(ctx)
	fetch := func(fetchCtx context.Context) ([]*nats.Msg, error) {
		return sub.Fetch(1, nats.Context(fetchCtx))
	}
	return pullLoop(ctx, fetch, func(msg *nats.Msg) {
		handleInbound(detached, msg.Data, msg, handler, q.nakDelay)
	})
}

func pullLoop(ctx context.Context, fetch func(context.Context) ([]*nats.Msg, error), process func(*nats.Msg)) error {
	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := fetch(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Warn("inbound_fetch_failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}
		for _, msg := range msgs {
			process(msg)
		}
	}
	return nil
}

// delivery is the acknowledgement surface of a JetStream message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

func handleInbound(ctx context.Context, data []byte, d delivery, handler func(context.Context, domain.InboundMessage) error, nakDelay time.Duration) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Error("inbound_decode_failed", "error", err, "bytes", len(data))
		settle(d.Term(), "term", "")
		return
	}

	err := handler(ctx, msg)
	switch {
	case err == nil:
		settle(d.Ack(), "ack", msg.ID)
	case domain.IsKind(err, domain.ErrValidation):
		slog.Error("inbound_rejected", "message_id", msg.ID, "error", err)
		settle(d.Term(), "term", msg.ID)
	default:
		slog.Error("inbound_handler_failed", "message_id", msg.ID, "error", err, "retry_in", nakDelay.String())
		settle(d.NakWithDelay(nakDelay), "nak", msg.ID)
	}
}

func settle(err error, action, messageID string) {
	if err != nil {
		slog.Warn("inbound_settle_failed", "action", action, "message_id", messageID, "error", err)
	}
}
