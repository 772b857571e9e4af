package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
)

// subjectPrefix namespaces every TruthLens subject on a shared NATS server.
const subjectPrefix = "truthlens"

// Message attributes travel as NATS headers; the payload is sent as is.
const (
	headerMsgID      = nats.MsgIdHdr
	headerTenant     = "Truthlens-Tenant"
	headerTopic      = "Truthlens-Topic"
	headerTimestamp  = "Truthlens-Timestamp"
	headerMetaPrefix = "Truthlens-Meta-"
)

// NATSBus implements EventBus on NATS core subjects of the form
// truthlens.<tenant>.<topic>. With a queue group configured, replicas share
// each subject's messages instead of all receiving them.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
	once  sync.Once
}

// NewNATSBus connects to NATS. The initial dial is retried up to
// NATSMaxReconnects times before giving up.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 2 * time.Second
	}

	opts := connectOptions(cfg, attempts, wait)

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		slog.Warn("NATS dial failed", "attempt", attempt, "of", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	slog.Info("NATS connected", "url", conn.ConnectedUrl(), "queue_group", cfg.NATSQueueGroup)

	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*natsSubscription]struct{}),
	}, nil
}

func connectOptions(cfg domain.EventBusConfig, reconnects int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("truthlens"),
		nats.MaxReconnects(reconnects),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// Publish sends payload on the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := encodeMessage(newMessage(tenantID, topic, payload))
	if err := b.conn.PublishMsg(msg); err != nil {
		metrics.ObserveBus(topic, "failed")
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	metrics.ObserveBus(topic, "published")
	return nil
}

// Subscribe registers handler for topic. Subscribing as
// domain.GlobalTenantID listens on every tenant's subject.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	subject := Subject(tenantID, topic)
	if tenantID == domain.GlobalTenantID {
		subject = Subject("*", topic)
	}

	cb := func(m *nats.Msg) {
		msg, err := decodeMessage(m)
		if err != nil {
			slog.Error("dropping malformed message", "subject", m.Subject, "error", err)
			metrics.ObserveBus(topic, "failed")
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("message handler failed",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
			metrics.ObserveBus(topic, "failed")
		}
	}

	var ns *nats.Subscription
	var err error
	if b.queueGroup != "" {
		ns, err = b.conn.QueueSubscribe(subject, b.queueGroup, cb)
	} else {
		ns, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	sub := &natsSubscription{topic: topic, sub: ns, bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats status %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains every subscription, letting in-flight handlers finish, then
// closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return err
	}
	return nil
}

// Subject builds the NATS subject for a tenant and topic.
func Subject(tenantID, topic string) string {
	return subjectPrefix + "." + tenantID + "." + topic
}

func encodeMessage(m *domain.Message) *nats.Msg {
	msg := nats.NewMsg(Subject(m.TenantID, m.Topic))
	msg.Data = m.Payload
	msg.Header.Set(headerMsgID, m.ID)
	msg.Header.Set(headerTenant, m.TenantID)
	msg.Header.Set(headerTopic, m.Topic)
	msg.Header.Set(headerTimestamp, strconv.FormatInt(m.Timestamp, 10))
	for k, v := range m.Metadata {
		msg.Header.Set(headerMetaPrefix+k, v)
	}
	return msg
}

// decodeMessage rebuilds a domain.Message from headers. Messages published
// without headers by other clients fall back to the subject for tenant and
// topic.
func decodeMessage(m *nats.Msg) (*domain.Message, error) {
	msg := &domain.Message{
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}

	if m.Header != nil {
		msg.ID = m.Header.Get(headerMsgID)
		msg.TenantID = m.Header.Get(headerTenant)
		msg.Topic = m.Header.Get(headerTopic)
		if ts := m.Header.Get(headerTimestamp); ts != "" {
			n, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s header %q", headerTimestamp, ts)
			}
			msg.Timestamp = n
		}
		for k, vs := range m.Header {
			if key, ok := strings.CutPrefix(k, headerMetaPrefix); ok && len(vs) > 0 {
				msg.Metadata[key] = vs[0]
			}
		}
	}

	if msg.TenantID == "" || msg.Topic == "" {
		rest, ok := strings.CutPrefix(m.Subject, subjectPrefix+".")
		tenant, topic, found := strings.Cut(rest, ".")
		if !ok || !found || tenant == "" || topic == "" {
			return nil, fmt.Errorf("subject %q is not a truthlens subject", m.Subject)
		}
		msg.TenantID, msg.Topic = tenant, topic
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	return msg, nil
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()

		if s.sub.IsValid() {
			err = s.sub.Unsubscribe()
		}
	})
	return err
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
