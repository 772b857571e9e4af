// Package orchestrator runs a listing through every TruthLens stage:
// domain reputation, review or site scoring, calibration, persistence and
// event publication.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/truthlens/truthlens/internal/analysis"
	"github.com/truthlens/truthlens/internal/calibration"
	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/phishing"
	"github.com/truthlens/truthlens/internal/siterisk"
)

// EngineVersion is stamped on every analysis.
const EngineVersion = "truthlens-1.0"

var (
	// ErrNoRepository is returned by operations that need persistence when none is configured.
	ErrNoRepository = errors.New("no repository configured")

	// ErrInvalidRule wraps calibration rule validation failures.
	ErrInvalidRule = errors.New("invalid calibration rule")
)

var tracer = otel.Tracer("truthlens-orchestrator")

// Options wires the orchestrator's collaborators. Matcher and Analyzer are
// required; the rest may be nil.
type Options struct {
	Matcher     *phishing.Matcher
	Analyzer    *analysis.Analyzer
	SiteRisk    *siterisk.Assessor
	Calibration *calibration.Engine
	Repository  domain.Repository
	EventBus    domain.EventBus
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	matcher     *phishing.Matcher
	analyzer    *analysis.Analyzer
	site        *siterisk.Assessor
	calibration *calibration.Engine
	repo        domain.Repository
	bus         domain.EventBus
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Matcher == nil {
		return nil, fmt.Errorf("orchestrator: matcher is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("orchestrator: analyzer is required")
	}
	if opts.SiteRisk == nil {
		opts.SiteRisk = siterisk.NewAssessor()
	}
	return &Orchestrator{
		matcher:     opts.Matcher,
		analyzer:    opts.Analyzer,
		site:        opts.SiteRisk,
		calibration: opts.Calibration,
		repo:        opts.Repository,
		bus:         opts.EventBus,
	}, nil
}

// Input is one listing to process.
type Input struct {
	TenantID string
	TraceID  string
	Request  domain.AnalysisRequest
}

// CheckPhishing classifies a listing URL and records the verdict.
func (o *Orchestrator) CheckPhishing(rawURL string) domain.DomainVerdict {
	verdict := o.matcher.CheckPhishing(rawURL)
	metrics.ObservePhishing(string(verdict))
	return verdict
}

// Process produces, stores and publishes the analysis of one listing.
// Storage and publication failures are logged; Process never fails.
func (o *Orchestrator) Process(ctx context.Context, in Input) *domain.Analysis {
	start := time.Now()
	req := in.Request

	ctx, span := tracer.Start(ctx, "orchestrator.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.Int("reviews", len(req.Reviews)),
		),
	)
	defer span.End()

	if req.Title == "" {
		req.Title = domain.DefaultTitle
	}

	a := &domain.Analysis{
		ID:          uuid.New().String(),
		TenantID:    in.TenantID,
		URL:         req.URL,
		Title:       req.Title,
		ReviewCount: len(req.Reviews),
		Timestamp:   start.UTC(),
		Metadata: domain.AnalysisMetadata{
			TraceID:       traceID(ctx, in.TraceID),
			EngineVersion: EngineVersion,
		},
	}

	a.PhishingStatus = o.CheckPhishing(req.URL)

	if len(req.Reviews) == 0 {
		site := o.site.Assess(a.PhishingStatus, req.PageText)
		a.Source = domain.SourceSite
		a.Assessment = site.TrustAssessment()
		a.BaseTrustScore = site.Score
	} else {
		report := o.analyzer.Analyze(ctx, req.Reviews)
		a.Source = domain.SourceReviews
		a.Assessment = report.Assessment
		a.BaseTrustScore = report.Assessment.TrustScore
		a.Metadata.Estimator = report.Estimator
		a.Metadata.NarrativeOK = report.NarrativeOK
		a.Metadata.SentimentMs = report.SentimentMs
		a.Metadata.NarrativeMs = report.NarrativeMs

		if o.calibration != nil {
			out := o.calibration.Apply(ctx, calibration.Input{
				PhishingStatus: a.PhishingStatus,
				ReviewCount:    a.ReviewCount,
				SentimentScore: a.Assessment.SentimentScore,
				BotProbability: a.Assessment.BotProbability,
				TrustScore:     a.Assessment.TrustScore,
			})
			a.Assessment.TrustScore = out.Score
			a.CalibrationRules = out.Applied
		}
	}

	a.Metadata.TotalMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.String("phishing.status", string(a.PhishingStatus)),
		attribute.Int("trust.score", a.Assessment.TrustScore),
	)

	o.persist(ctx, a)
	o.publish(ctx, a)

	metrics.ObserveAnalysis(a.Source, string(a.Assessment.SafetyLabel), a.Assessment.TrustScore)

	slog.Info("analysis completed",
		"analysis_id", a.ID,
		"tenant_id", a.TenantID,
		"trace_id", a.Metadata.TraceID,
		"source", a.Source,
		"reviews", a.ReviewCount,
		"phishing_status", a.PhishingStatus,
		"trust_score", a.Assessment.TrustScore,
		"base_trust_score", a.BaseTrustScore,
		"safety_label", a.Assessment.SafetyLabel,
		"duration_ms", a.Metadata.TotalMs,
	)

	return a
}

func (o *Orchestrator) persist(ctx context.Context, a *domain.Analysis) {
	if o.repo == nil {
		return
	}
	if err := o.repo.SaveAnalysis(ctx, a.TenantID, a); err != nil {
		slog.Error("failed to save analysis",
			"analysis_id", a.ID,
			"tenant_id", a.TenantID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, a *domain.Analysis) {
	if o.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("failed to encode analysis", "analysis_id", a.ID, "error", err)
		return
	}

	if err := o.bus.Publish(ctx, a.TenantID, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish analysis",
			"analysis_id", a.ID,
			"error", err,
		)
	}

	if a.IsAlert() {
		if err := o.bus.Publish(ctx, a.TenantID, domain.TopicAnalysisAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"analysis_id", a.ID,
				"error", err,
			)
		}
	}
}

// traceID prefers an explicit ID, then the active span's trace ID.
func traceID(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
