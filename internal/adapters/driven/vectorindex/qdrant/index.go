// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*Index)(nil)

// Payload keys stored beside each vector
const (
	keyDocumentID = "document_id"
	keyTitle      = "title"
	keyText       = "text"
	keyPage       = "page"
	keyChunkIndex = "chunk_index"
	keyTokenCount = "token_count"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int // gRPC port, 6334 by default
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int

	// MaxMessageSize bounds gRPC messages in bytes
	MaxMessageSize int
	Logger         *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "nexus_chunks"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Index implements VectorIndex on a single cosine-distance collection.
type Index struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool // collection known to exist
}

// New connects to Qdrant. The collection is created on first write.
func New(cfg Config) (*Index, error) {
	cfg.applyDefaults()
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: qdrant host required", domain.ErrInvalidInput)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: qdrant vector dimensions required", domain.ErrInvalidInput)
	}
	if !cfg.UseTLS {
		cfg.Logger.Warn("qdrant gRPC connection uses plaintext", "host", cfg.Host)
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
		return nil, fmt.Errorf("%w: qdrant client: %v", domain.ErrServiceUnavailable, err)
	}

	return &Index{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}, nil
}

// ensureCollection creates the collection if it does not exist yet.
// A failed check is retried on the next call.
func (i *Index) ensureCollection(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ready {
		return nil
	}

	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", i.collection, err)
	}
	if !exists {
		err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: i.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(i.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && status.Code(err) != grpccodes.AlreadyExists {
			return fmt.Errorf("create collection %s: %w", i.collection, err)
		}
		i.logger.Info("created qdrant collection", "collection", i.collection, "dimensions", i.dimensions)
	}
	i.ready = true
	return nil
}

// Upsert writes records keyed by chunk id.
func (i *Index) Upsert(ctx context.Context, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := i.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for n, r := range records {
		if len(r.Vector) != i.dimensions {
			return fmt.Errorf("%w: record %s has %d dimensions, want %d", domain.ErrDimensionMismatch, r.ID, len(r.Vector), i.dimensions)
		}
		points[n] = toPoint(r)
	}

	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]driven.VectorMatch, error) {
	if k <= 0 {
		return []driven.VectorMatch{}, nil
	}
	if err := i.ensureCollection(ctx); err != nil {
		return nil, err
	}

	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", i.collection, err)
	}

	matches := make([]driven.VectorMatch, 0, len(points))
	for _, p := range points {
		matches = append(matches, fromScoredPoint(p))
	}
	return matches, nil
}

// Delete removes points by chunk id.
func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for n, id := range ids {
		pointIDs[n] = qdrant.NewIDUUID(id)
	}

	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	return nil
}

// DeleteByDocument removes every point whose payload names the document.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: documentFilter(documentID),
			},
		},
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// HealthCheck verifies the server answers.
func (i *Index) HealthCheck(ctx context.Context) error {
	if _, err := i.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: qdrant health check: %v", domain.ErrServiceUnavailable, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	if i.client == nil {
		return nil
	}
	return i.client.Close()
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: keyDocumentID,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
					},
				},
			},
		}},
	}
}

func toPoint(r driven.VectorRecord) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(r.ID),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: map[string]*qdrant.Value{
			keyDocumentID: stringValue(r.DocumentID),
			keyTitle:      stringValue(r.Title),
			keyText:       stringValue(r.Text),
			keyPage:       intValue(r.Page),
			keyChunkIndex: intValue(r.ChunkIndex),
			keyTokenCount: intValue(r.TokenCount),
		},
	}
}

func fromScoredPoint(p *qdrant.ScoredPoint) driven.VectorMatch {
	rec := driven.VectorRecord{
		ID:         p.GetId().GetUuid(),
		DocumentID: payloadString(p.Payload, keyDocumentID),
		Title:      payloadString(p.Payload, keyTitle),
		Text:       payloadString(p.Payload, keyText),
		Page:       payloadInt(p.Payload, keyPage),
		ChunkIndex: payloadInt(p.Payload, keyChunkIndex),
		TokenCount: payloadInt(p.Payload, keyTokenCount),
	}
	return driven.VectorMatch{Record: rec, Score: float64(p.Score)}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(n int) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(n)}}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			return s.StringValue
		}
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int {
	if v, ok := payload[key]; ok {
		switch n := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			return int(n.IntegerValue)
		case *qdrant.Value_DoubleValue:
			return int(n.DoubleValue)
		}
	}
	return 0
}

func isNotFound(err error) bool {
	var st interface{ GRPCStatus() *status.Status }
	if errors.As(err, &st) {
		return st.GRPCStatus().Code() == grpccodes.NotFound
	}
	return false
}
