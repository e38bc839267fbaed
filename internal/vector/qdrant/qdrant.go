// Package qdrant implements vector.Store backed by a Qdrant instance over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/notabene-labs/notabene/internal/observability"
	"github.com/notabene-labs/notabene/internal/vector"
)

// Config holds connection and collection settings.
type Config struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	// EfConstruct is the HNSW candidate-list size used when the collection
	// index is first built.
	EfConstruct int `mapstructure:"ef_construct"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        6334,
		Collection:  "documents",
		EfConstruct: 128,
	}
}

// Store implements vector.Store using Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	qdrant      pb.QdrantClient
	collection  string
	efConstruct uint64

	// mu guards dimension, cached once the schema is verified so repeated
	// EnsureReady calls stay cheap.
	mu        sync.Mutex
	dimension int
}

// New connects to Qdrant. The connection is lazy: reachability is verified
// by EnsureReady/Ping, not here.
func New(cfg Config) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	ef := cfg.EfConstruct
	if ef <= 0 {
		ef = DefaultConfig().EfConstruct
	}
	return &Store{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		collection:  cfg.Collection,
		efConstruct: uint64(ef),
	}, nil
}

// Ping verifies the store answers its health check.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return &vector.UnavailableError{Err: err}
	}
	return nil
}

// EnsureReady checks reachability on every call, then verifies the
// collection exists with the requested dimension, creating it if absent.
// Two callers racing on creation both succeed: the loser treats
// AlreadyExists as confirmation, not as an error.
func (s *Store) EnsureReady(ctx context.Context, dimension int) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 {
		if s.dimension != dimension {
			return &vector.DimensionMismatchError{
				Collection: s.collection,
				Got:        dimension,
				Want:       s.dimension,
			}
		}
		return nil
	}

	existing, err := s.collectionDimension(ctx)
	if err != nil {
		return err
	}

	if existing == 0 {
		created, err := s.createCollection(ctx, dimension)
		if err != nil {
			return err
		}
		if created {
			existing = dimension
		} else {
			// Lost the creation race; read back what the winner built.
			existing, err = s.collectionDimension(ctx)
			if err != nil {
				return err
			}
		}
	}

	if existing != dimension {
		return &vector.DimensionMismatchError{
			Collection: s.collection,
			Got:        dimension,
			Want:       existing,
		}
	}
	s.dimension = existing
	return nil
}

// collectionDimension returns the vector dimension of the collection, or 0
// when the collection does not exist.
func (s *Store) collectionDimension(ctx context.Context) (int, error) {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, &vector.UnavailableError{Err: err}
	}
	if !exists.GetResult().GetExists() {
		return 0, nil
	}

	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, &vector.UnavailableError{Err: err}
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return int(size), nil
}

// createCollection creates the collection with a cosine HNSW index. It
// returns false without error when another caller created it first.
func (s *Store) createCollection(ctx context.Context, dimension int) (bool, error) {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
					HnswConfig: &pb.HnswConfigDiff{
						EfConstruct: ptr(s.efConstruct),
					},
				},
			},
		},
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return false, nil
		}
		return false, &vector.UnavailableError{Err: err}
	}
	return true, nil
}

// Insert writes all chunks in one batch and waits for durability.
func (s *Store) Insert(ctx context.Context, chunks []vector.Chunk) error {
	ctx, span := observability.StartStoreSpan(ctx, "insert", s.collection)
	defer span.End()

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(c.Content) > vector.MaxContentLen {
			return fmt.Errorf("chunk %s content exceeds %d bytes", c.ID, vector.MaxContentLen)
		}
		if len(c.Metadata) > vector.MaxMetadataLen {
			return fmt.Errorf("chunk %s metadata exceeds %d bytes", c.ID, vector.MaxMetadataLen)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: c.Vector},
			}},
			Payload: map[string]*pb.Value{
				"document_id": {Kind: &pb.Value_StringValue{StringValue: c.DocumentID}},
				"content":     {Kind: &pb.Value_StringValue{StringValue: c.Content}},
				"metadata":    {Kind: &pb.Value_StringValue{StringValue: c.Metadata}},
			},
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           ptr(true),
		Points:         points,
	})
	if err != nil {
		werr := &vector.UnavailableError{Err: err}
		observability.RecordError(span, werr)
		return werr
	}
	return nil
}

// Search returns the topK most similar chunks in descending score order.
func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	ctx, span := observability.StartStoreSpan(ctx, "search", s.collection)
	defer span.End()

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		werr := &vector.UnavailableError{Err: err}
		observability.RecordError(span, werr)
		return nil, werr
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = vector.SearchResult{
			ID:         pt.Id.GetUuid(),
			Score:      pt.Score,
			DocumentID: pt.Payload["document_id"].GetStringValue(),
			Content:    pt.Payload["content"].GetStringValue(),
			Metadata:   pt.Payload["metadata"].GetStringValue(),
		}
	}
	return results, nil
}

// Rows scans document id and metadata for every stored chunk, paging
// through the collection. Listing cost is proportional to total chunk
// count; there is no separate document registry.
func (s *Store) Rows(ctx context.Context) ([]vector.Row, error) {
	ctx, span := observability.StartStoreSpan(ctx, "scroll", s.collection)
	defer span.End()

	var rows []vector.Row
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          ptr(uint32(256)),
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			werr := &vector.UnavailableError{Err: err}
			observability.RecordError(span, werr)
			return nil, werr
		}
		for _, pt := range resp.Result {
			rows = append(rows, vector.Row{
				DocumentID: pt.Payload["document_id"].GetStringValue(),
				Metadata:   pt.Payload["metadata"].GetStringValue(),
			})
		}
		if resp.NextPageOffset == nil {
			return rows, nil
		}
		offset = resp.NextPageOffset
	}
}

// DeleteDocument removes every chunk whose document id matches, waiting for
// the deletion to apply.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, span := observability.StartStoreSpan(ctx, "delete", s.collection)
	defer span.End()

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           ptr(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{{
						ConditionOneOf: &pb.Condition_Field{
							Field: &pb.FieldCondition{
								Key: "document_id",
								Match: &pb.Match{
									MatchValue: &pb.Match_Keyword{Keyword: documentID},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		werr := &vector.UnavailableError{Err: err}
		observability.RecordError(span, werr)
		return werr
	}
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

var _ vector.Store = (*Store)(nil)

func ptr[T any](v T) *T { return &v }
