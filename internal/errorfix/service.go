package errorfix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/fixstore/internal/confidence"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/ranking"
	"github.com/fyrsmithlabs/fixstore/internal/secrets"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/fixstore/internal/errorfix"

// Service is the error fix knowledge store.
type Service interface {
	// Insert records a new fix. Returns fixstore.ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, rec *fixstore.FixRecord) error

	// Get returns a copy of the fix with the given id.
	Get(ctx context.Context, id string) (*fixstore.FixRecord, error)

	// Search returns the best fixes for an error in the given tech stack.
	Search(ctx context.Context, req *SearchRequest) ([]ranking.ScoredFix, error)

	// UpdateSuccessRate folds a binary outcome into the fix's success rate.
	UpdateSuccessRate(ctx context.Context, id string, success bool) (*fixstore.FixRecord, error)

	// ApplySignal folds a graded outcome in [0, 1] into the fix's success rate.
	ApplySignal(ctx context.Context, id string, signal float64) (*fixstore.FixRecord, error)

	// Stats reports store statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the service and its backend.
	Close() error
}

// SearchRequest selects fixes for a query.
type SearchRequest struct {
	// Embedding is the query vector. Must match the store dimension.
	Embedding []float32

	// TechStack is matched exactly against stored tech stacks.
	TechStack string

	// Limit is the maximum number of results. Must be in [1, Config.MaxLimit].
	Limit int
}

// Stats describes the store.
type Stats struct {
	Records   int    `json:"records"`
	Dimension int    `json:"dimension"`
	Backend   string `json:"backend"`
}

// Config configures the service.
type Config struct {
	// MaxLimit is the largest accepted SearchRequest.Limit (default: 100)
	MaxLimit int

	// MinSimilarity drops search candidates below this cosine similarity.
	// Zero disables the filter.
	MinSimilarity float64

	// Scrubber redacts credentials from error messages and fix code
	// before they are stored. Nil stores text unchanged.
	Scrubber *secrets.Scrubber
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *Config {
	return &Config{
		MaxLimit: 100,
	}
}

// service implements the Service interface.
type service struct {
	config  *Config
	backend fixstore.Backend
	logger  *zap.Logger
	prom    *storeMetrics

	// Telemetry
	tracer          trace.Tracer
	meter           metric.Meter
	insertCounter   metric.Int64Counter
	searchCounter   metric.Int64Counter
	feedbackCounter metric.Int64Counter

	// mu serializes writes so each read-modify-write of a success rate is
	// applied whole and in arrival order.
	mu     sync.RWMutex
	closed bool
}

// NewService creates a service over backend. The service takes ownership
// of backend. reg may be nil to skip Prometheus registration.
func NewService(cfg *Config, backend fixstore.Backend, logger *zap.Logger, reg prometheus.Registerer) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultServiceConfig().MaxLimit
	}
	if cfg.MinSimilarity < -1 || cfg.MinSimilarity > 1 {
		return nil, fmt.Errorf("%w: min similarity %v outside [-1, 1]", fixstore.ErrInvalidConfig, cfg.MinSimilarity)
	}

	s := &service{
		config:  cfg,
		backend: backend,
		logger:  logger,
		prom:    newStoreMetrics(reg, backend.Name()),
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}

	s.initMetrics()

	if n, err := backend.Count(context.Background()); err == nil {
		s.prom.records.Set(float64(n))
	}

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.insertCounter, err = s.meter.Int64Counter(
		"fixstore.errorfix.inserts_total",
		metric.WithDescription("Total number of fixes recorded"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		s.logger.Warn("failed to create insert counter", zap.Error(err))
	}

	s.searchCounter, err = s.meter.Int64Counter(
		"fixstore.errorfix.searches_total",
		metric.WithDescription("Total number of fix searches"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		s.logger.Warn("failed to create search counter", zap.Error(err))
	}

	s.feedbackCounter, err = s.meter.Int64Counter(
		"fixstore.errorfix.feedbacks_total",
		metric.WithDescription("Total number of feedback events"),
		metric.WithUnit("{feedback}"),
	)
	if err != nil {
		s.logger.Warn("failed to create feedback counter", zap.Error(err))
	}
}

// Insert records a new fix.
func (s *service) Insert(ctx context.Context, rec *fixstore.FixRecord) (err error) {
	ctx, span := s.tracer.Start(ctx, "errorfix.insert")
	defer span.End()
	defer func() { s.prom.recordOp("insert", err) }()

	if rec != nil {
		span.SetAttributes(
			attribute.String("fix_id", rec.ID),
			attribute.String("tech_stack", rec.TechStack),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fixstore.ErrClosed
	}

	if err := rec.Validate(s.backend.Dimension()); err != nil {
		recordSpanError(span, err)
		return err
	}

	stored, redacted := s.scrub(rec)
	if err := s.backend.Insert(ctx, stored); err != nil {
		recordSpanError(span, err)
		return err
	}

	s.prom.records.Inc()
	if s.insertCounter != nil {
		s.insertCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", s.backend.Name())))
	}

	s.logger.Info("fix recorded",
		zap.String("id", rec.ID),
		zap.String("tech_stack", rec.TechStack),
		zap.Float64("success_rate", rec.SuccessRate),
		zap.Int("redacted", redacted),
	)
	return nil
}

// scrub returns rec with secrets removed from its text fields. rec itself
// is returned when nothing matched.
func (s *service) scrub(rec *fixstore.FixRecord) (*fixstore.FixRecord, int) {
	if s.config.Scrubber == nil {
		return rec, 0
	}
	msg := s.config.Scrubber.Scrub(rec.ErrorMessage)
	code := s.config.Scrubber.Scrub(rec.FixCode)
	n := msg.Total() + code.Total()
	if n == 0 {
		return rec, 0
	}

	out := rec.Clone()
	out.ErrorMessage = msg.Text
	out.FixCode = code.Text
	for id, c := range msg.ByRule {
		s.prom.redactions.WithLabelValues(id).Add(float64(c))
	}
	for id, c := range code.ByRule {
		s.prom.redactions.WithLabelValues(id).Add(float64(c))
	}
	return out, n
}

// Get returns a copy of the fix with the given id.
func (s *service) Get(ctx context.Context, id string) (rec *fixstore.FixRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "errorfix.get")
	defer span.End()
	defer func() { s.prom.recordOp("get", err) }()

	span.SetAttributes(attribute.String("fix_id", id))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fixstore.ErrClosed
	}

	rec, err = s.backend.Get(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return rec, nil
}

// Search returns the best fixes for an error in the given tech stack.
func (s *service) Search(ctx context.Context, req *SearchRequest) (results []ranking.ScoredFix, err error) {
	ctx, span := s.tracer.Start(ctx, "errorfix.search")
	defer span.End()
	defer func() { s.prom.recordOp("search", err) }()

	if req == nil {
		return nil, fmt.Errorf("%w: search request is nil", fixstore.ErrValidation)
	}
	span.SetAttributes(
		attribute.String("tech_stack", req.TechStack),
		attribute.Int("limit", req.Limit),
	)

	if req.Limit <= 0 {
		err := fmt.Errorf("%w: limit must be positive, got %d", fixstore.ErrValidation, req.Limit)
		recordSpanError(span, err)
		return nil, err
	}
	if req.Limit > s.config.MaxLimit {
		err := fmt.Errorf("%w: limit %d exceeds maximum %d", fixstore.ErrValidation, req.Limit, s.config.MaxLimit)
		recordSpanError(span, err)
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fixstore.ErrClosed
	}

	if err := fixstore.ValidateEmbedding(req.Embedding, s.backend.Dimension()); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	start := time.Now()
	candidates, err := s.backend.ScanByTechStack(ctx, req.TechStack)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to scan candidates: %w", err)
	}

	results, err = ranking.Rank(req.Embedding, candidates, req.Limit, ranking.Options{
		MinSimilarity: s.config.MinSimilarity,
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.prom.searchDuration.Observe(time.Since(start).Seconds())
	s.prom.searchResults.Observe(float64(len(results)))
	if s.searchCounter != nil {
		s.searchCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", s.backend.Name()),
			attribute.Int("result_count", len(results)),
		))
	}

	span.SetAttributes(
		attribute.Int("candidate_count", len(candidates)),
		attribute.Int("result_count", len(results)),
	)
	s.logger.Debug("fix search",
		zap.String("tech_stack", req.TechStack),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// UpdateSuccessRate folds a binary outcome into the fix's success rate.
func (s *service) UpdateSuccessRate(ctx context.Context, id string, success bool) (*fixstore.FixRecord, error) {
	return s.ApplySignal(ctx, id, confidence.Outcome(success))
}

// ApplySignal folds a graded outcome into the fix's success rate.
func (s *service) ApplySignal(ctx context.Context, id string, signal float64) (rec *fixstore.FixRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "errorfix.feedback")
	defer span.End()
	defer func() { s.prom.recordOp("feedback", err) }()

	span.SetAttributes(
		attribute.String("fix_id", id),
		attribute.Float64("signal", signal),
	)

	// Reject a bad signal before touching storage.
	if _, err := confidence.Blend(0, signal); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fixstore.ErrClosed
	}

	var old float64
	rec, err = s.backend.UpdateSuccessRate(ctx, id, func(current float64) (float64, error) {
		old = current
		return confidence.Blend(current, signal)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.prom.successRate.Observe(rec.SuccessRate)
	if s.feedbackCounter != nil {
		s.feedbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("success", signal >= 0.5),
		))
	}

	span.SetAttributes(attribute.Float64("success_rate", rec.SuccessRate))
	s.logger.Info("fix feedback applied",
		zap.String("id", id),
		zap.Float64("signal", signal),
		zap.Float64("old_rate", old),
		zap.Float64("new_rate", rec.SuccessRate),
	)
	return rec, nil
}

// Stats reports store statistics.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "errorfix.stats")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fixstore.ErrClosed
	}

	n, err := s.backend.Count(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	s.prom.records.Set(float64(n))

	return &Stats{
		Records:   n,
		Dimension: s.backend.Dimension(),
		Backend:   s.backend.Name(),
	}, nil
}

// Close closes the service and its backend.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
