package fixstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const fixCollection = "error_fixes"

// Metadata keys used by the vector database backends.
const (
	metaErrorMessage  = "error_message"
	metaTechStack     = "tech_stack"
	metaSuccessRate   = "success_rate"
	metaEmbedding     = "embedding"
	metaFeedbackCount = "feedback_count"
	metaCreatedAt     = "created_at"
	metaUpdatedAt     = "updated_at"
)

var errNoEmbedder = errors.New("fix store embeddings must be pre-computed")

// ChromemBackend stores fix records in an embedded chromem-go database.
//
// chromem normalizes vectors on insert, so the caller's embedding is also kept
// packed in document metadata and returned from there. The document content
// holds the fix code.
type ChromemBackend struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
	logger     *zap.Logger

	// writeMu serializes check-then-write sequences.
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewChromemBackend creates a chromem backend. An empty path keeps all data in
// memory; otherwise documents are persisted under path.
func NewChromemBackend(path string, compress bool, dimension int, logger *zap.Logger) (*ChromemBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		path = expanded
	}

	collection, err := db.GetOrCreateCollection(fixCollection,
		map[string]string{"dimension": strconv.Itoa(dimension)},
		func(context.Context, string) ([]float32, error) { return nil, errNoEmbedder },
	)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", fixCollection, err)
	}
	if err := checkChromemDimension(collection, dimension); err != nil {
		return nil, err
	}

	logger.Info("ChromemBackend initialized",
		zap.String("path", path),
		zap.Bool("compress", compress),
		zap.Int("dimension", dimension),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemBackend{
		db:         db,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

// checkChromemDimension rejects a reopened collection whose documents were
// written with a different dimension. chromem keeps collection metadata
// private, so the check samples a stored document instead.
func checkChromemDimension(collection *chromem.Collection, dimension int) error {
	if collection.Count() == 0 {
		return nil
	}
	probe := make([]float32, dimension)
	probe[0] = 1
	results, err := collection.QueryEmbedding(context.Background(), probe, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: existing collection %s rejects %d-dimensional vectors: %v",
			ErrDimensionMismatch, fixCollection, dimension, err)
	}
	if len(results) > 0 && len(results[0].Embedding) != dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d",
			ErrDimensionMismatch, fixCollection, len(results[0].Embedding), dimension)
	}
	return nil
}

// Name returns the backend name.
func (b *ChromemBackend) Name() string { return BackendChromem }

// Dimension returns the fixed embedding dimension.
func (b *ChromemBackend) Dimension() int { return b.dimension }

// Insert persists rec. Returns ErrDuplicateKey if the id exists.
func (b *ChromemBackend) Insert(ctx context.Context, rec *FixRecord) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := rec.Validate(b.dimension); err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := b.collection.GetByID(ctx, rec.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.ID)
	}

	stored := rec.Clone()
	now := time.Now().UTC()
	stored.FeedbackCount = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := b.collection.AddDocument(ctx, toChromemDocument(stored)); err != nil {
		return fmt.Errorf("insert fix %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id.
func (b *ChromemBackend) Get(ctx context.Context, id string) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	doc, err := b.collection.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fromChromemDocument(doc.ID, doc.Content, doc.Metadata)
}

// ScanByTechStack returns all records whose tech stack equals techStack.
func (b *ChromemBackend) ScanByTechStack(ctx context.Context, techStack string) ([]*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	n := b.collection.Count()
	if n == 0 {
		return nil, nil
	}

	// chromem only exposes filtered reads through a query; any probe vector
	// of the right dimension returns every matching document when nResults
	// covers the whole collection.
	probe := make([]float32, b.dimension)
	probe[0] = 1
	results, err := b.collection.QueryEmbedding(ctx, probe, n, map[string]string{metaTechStack: techStack}, nil)
	if err != nil {
		return nil, fmt.Errorf("scan tech stack: %w", err)
	}

	out := make([]*FixRecord, 0, len(results))
	for _, r := range results {
		rec, err := fromChromemDocument(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateSuccessRate applies fn to the stored rate.
func (b *ChromemBackend) UpdateSuccessRate(ctx context.Context, id string, fn RateFunc) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	doc, err := b.collection.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := fromChromemDocument(doc.ID, doc.Content, doc.Metadata)
	if err != nil {
		return nil, err
	}

	next, err := applyRate(rec.SuccessRate, fn)
	if err != nil {
		return nil, err
	}
	rec.SuccessRate = next
	rec.FeedbackCount++
	rec.UpdatedAt = time.Now().UTC()

	updated := toChromemDocument(rec)
	// Keep the already-normalized vector chromem stored.
	updated.Embedding = doc.Embedding
	if err := b.collection.AddDocument(ctx, updated); err != nil {
		return nil, fmt.Errorf("update fix %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of stored records.
func (b *ChromemBackend) Count(_ context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.collection.Count(), nil
}

// Close marks the backend closed. chromem persists each write synchronously,
// so there is nothing to flush.
func (b *ChromemBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func toChromemDocument(rec *FixRecord) chromem.Document {
	return chromem.Document{
		ID:        rec.ID,
		Content:   rec.FixCode,
		Embedding: rec.Embedding,
		Metadata:  recordMetadata(rec),
	}
}

func fromChromemDocument(id, content string, md map[string]string) (*FixRecord, error) {
	rec, err := recordFromMetadata(md)
	if err != nil {
		return nil, fmt.Errorf("decoding fix %s: %w", id, err)
	}
	rec.ID = id
	rec.FixCode = content
	return rec, nil
}

// recordMetadata encodes every field except ID and FixCode as strings.
func recordMetadata(rec *FixRecord) map[string]string {
	return map[string]string{
		metaErrorMessage:  rec.ErrorMessage,
		metaTechStack:     rec.TechStack,
		metaSuccessRate:   strconv.FormatFloat(rec.SuccessRate, 'g', -1, 64),
		metaEmbedding:     encodeEmbeddingString(rec.Embedding),
		metaFeedbackCount: strconv.FormatInt(rec.FeedbackCount, 10),
		metaCreatedAt:     formatTime(rec.CreatedAt),
		metaUpdatedAt:     formatTime(rec.UpdatedAt),
	}
}

func recordFromMetadata(md map[string]string) (*FixRecord, error) {
	rate, err := strconv.ParseFloat(md[metaSuccessRate], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing success rate: %w", err)
	}
	emb, err := decodeEmbeddingString(md[metaEmbedding])
	if err != nil {
		return nil, err
	}
	count, _ := strconv.ParseInt(md[metaFeedbackCount], 10, 64)

	return &FixRecord{
		ErrorMessage:  md[metaErrorMessage],
		TechStack:     md[metaTechStack],
		SuccessRate:   rate,
		Embedding:     emb,
		FeedbackCount: count,
		CreatedAt:     parseTime(md[metaCreatedAt]),
		UpdatedAt:     parseTime(md[metaUpdatedAt]),
	}, nil
}
