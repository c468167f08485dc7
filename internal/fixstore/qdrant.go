package fixstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Payload keys that chromem keeps outside metadata. Qdrant point ids must be
// UUIDs, so the caller's id lives in the payload.
const (
	payloadFixID   = "fix_id"
	payloadFixCode = "fix_code"
)

// fixNamespace derives stable point UUIDs from fix ids.
var fixNamespace = uuid.MustParse("0b6f6d55-2f3c-4c55-9a38-5c1f3e0c9a11")

const scrollPageSize = 256

// QdrantConfig holds configuration for the Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string

	// Port is the gRPC port. Default: 6334
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// Collection is the collection name. Default: "error_fixes"
	Collection string

	// MaxMessageSize is the max gRPC message size in bytes. Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = fixCollection
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: qdrant collection is required", ErrInvalidConfig)
	}
	return nil
}

// QdrantBackend stores fix records in a Qdrant collection over gRPC.
//
// Point ids are name-based UUIDs of the fix id; the fix id itself and the
// caller's unnormalized embedding live in the payload.
type QdrantBackend struct {
	client    *qdrant.Client
	config    QdrantConfig
	dimension int
	logger    *zap.Logger

	// writeMu serializes check-then-write sequences. Qdrant has no
	// conditional insert, so uniqueness holds per process.
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewQdrantBackend connects to Qdrant and ensures the collection exists.
func NewQdrantBackend(ctx context.Context, cfg QdrantConfig, dimension int, logger *zap.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	b := &QdrantBackend{
		client:    client,
		config:    cfg,
		dimension: dimension,
		logger:    logger,
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	if err := b.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("QdrantBackend initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", dimension),
	)
	return b, nil
}

func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if exists {
		info, err := b.client.GetCollectionInfo(ctx, b.config.Collection)
		if err != nil {
			return fmt.Errorf("getting collection info %s: %w", b.config.Collection, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != uint64(b.dimension) {
			return fmt.Errorf("%w: collection %s has vector size %d, configured %d",
				ErrDimensionMismatch, b.config.Collection, size, b.dimension)
		}
		return nil
	}
	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", b.config.Collection, err)
	}
	return nil
}

// Name returns the backend name.
func (b *QdrantBackend) Name() string { return BackendQdrant }

// Dimension returns the fixed embedding dimension.
func (b *QdrantBackend) Dimension() int { return b.dimension }

// Insert persists rec. Returns ErrDuplicateKey if the id exists.
func (b *QdrantBackend) Insert(ctx context.Context, rec *FixRecord) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := rec.Validate(b.dimension); err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	existing, err := b.fetch(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.ID)
	}

	stored := rec.Clone()
	now := time.Now().UTC()
	stored.FeedbackCount = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(stored.ID),
			Vectors: qdrant.NewVectors(stored.Embedding...),
			Payload: qdrant.NewValueMap(recordPayload(stored)),
		}},
	})
	if err != nil {
		return fmt.Errorf("insert fix %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id.
func (b *QdrantBackend) Get(ctx context.Context, id string) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	rec, err := b.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// fetch returns nil, nil when the point does not exist.
func (b *QdrantBackend) fetch(ctx context.Context, id string) (*FixRecord, error) {
	points, err := b.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: b.config.Collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get fix %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return recordFromPayload(points[0].GetPayload())
}

// ScanByTechStack returns all records whose tech stack equals techStack.
func (b *QdrantBackend) ScanByTechStack(ctx context.Context, techStack string) ([]*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var (
		out    []*FixRecord
		offset *qdrant.PointId
	)
	for {
		points, next, err := b.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: b.config.Collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatchKeyword(metaTechStack, techStack)},
			},
			Offset:      offset,
			Limit:       qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scan tech stack: %w", err)
		}
		for _, p := range points {
			rec, err := recordFromPayload(p.GetPayload())
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if next == nil || len(points) == 0 {
			return out, nil
		}
		offset = next
	}
}

// UpdateSuccessRate applies fn to the stored rate.
func (b *QdrantBackend) UpdateSuccessRate(ctx context.Context, id string, fn RateFunc) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	rec, err := b.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next, err := applyRate(rec.SuccessRate, fn)
	if err != nil {
		return nil, err
	}
	rec.SuccessRate = next
	rec.FeedbackCount++
	rec.UpdatedAt = time.Now().UTC()

	_, err = b.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: b.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Payload: qdrant.NewValueMap(map[string]any{
			metaSuccessRate:   rec.SuccessRate,
			metaFeedbackCount: rec.FeedbackCount,
			metaUpdatedAt:     formatTime(rec.UpdatedAt),
		}),
		PointsSelector: qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("update fix %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of stored records.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count fixes: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (b *QdrantBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.client.Close()
}

func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(fixNamespace, []byte(id)).String())
}

func recordPayload(rec *FixRecord) map[string]any {
	return map[string]any{
		payloadFixID:      rec.ID,
		metaErrorMessage:  rec.ErrorMessage,
		payloadFixCode:    rec.FixCode,
		metaTechStack:     rec.TechStack,
		metaSuccessRate:   rec.SuccessRate,
		metaEmbedding:     encodeEmbeddingString(rec.Embedding),
		metaFeedbackCount: rec.FeedbackCount,
		metaCreatedAt:     formatTime(rec.CreatedAt),
		metaUpdatedAt:     formatTime(rec.UpdatedAt),
	}
}

func recordFromPayload(payload map[string]*qdrant.Value) (*FixRecord, error) {
	id := payload[payloadFixID].GetStringValue()
	emb, err := decodeEmbeddingString(payload[metaEmbedding].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decoding fix %s: %w", id, err)
	}
	return &FixRecord{
		ID:            id,
		ErrorMessage:  payload[metaErrorMessage].GetStringValue(),
		FixCode:       payload[payloadFixCode].GetStringValue(),
		TechStack:     payload[metaTechStack].GetStringValue(),
		SuccessRate:   payload[metaSuccessRate].GetDoubleValue(),
		Embedding:     emb,
		FeedbackCount: payload[metaFeedbackCount].GetIntegerValue(),
		CreatedAt:     parseTime(payload[metaCreatedAt].GetStringValue()),
		UpdatedAt:     parseTime(payload[metaUpdatedAt].GetStringValue()),
	}, nil
}
