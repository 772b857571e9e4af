// Package worker processes analysis requests arriving on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/orchestrator"
)

// ErrMissingURL rejects request messages without a listing URL.
var ErrMissingURL = errors.New("analysis request has no url")

// Worker runs queued listings through the orchestrator, which stores and
// publishes the results.
type Worker struct {
	bus  domain.EventBus
	orch *orchestrator.Orchestrator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume. Empty consumes every
	// tenant through a domain.GlobalTenantID subscription.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, orch *orchestrator.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		orch:   orch,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to analysis requests for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		if err := w.subscribe(domain.GlobalTenantID); err != nil {
			return err
		}
		slog.Info("global worker started", "topic", domain.TopicAnalysisRequested)
		return nil
	}

	started := 0
	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant worker could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicAnalysisRequested,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// RequestMessage is the payload of an analysis request event.
type RequestMessage struct {
	TenantID string `json:"tenant_id,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	domain.AnalysisRequest
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	if err := w.process(ctx, msg); err != nil {
		w.failed.Add(1)
		return err
	}
	w.processed.Add(1)
	return nil
}

func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.URL == "" {
		return ErrMissingURL
	}

	tenantID := msg.TenantID
	if req.TenantID != "" {
		tenantID = req.TenantID
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	a := w.orch.Process(ctx, orchestrator.Input{
		TenantID: tenantID,
		TraceID:  traceID,
		Request:  req.AnalysisRequest,
	})

	slog.Debug("queued analysis processed",
		"analysis_id", a.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight requests to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
