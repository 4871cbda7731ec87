/**
 * Qdrant Vector Database Client for the Supply-List Worker
 *
 * Stores one embedding per saved textbook title so later lists can be matched
 * against textbooks already seen. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultVectorSize is the voyage-3 embedding size
const DefaultVectorSize = 1024

// QdrantClient handles vector database operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
	vectorSize       int
}

// VectorPoint represents a vector with metadata
type VectorPoint struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
	Score    float32
}

// NewQdrantClient connects to Qdrant and makes sure the collection exists
func NewQdrantClient(address string, collectionName string, vectorSize int) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	if vectorSize <= 0 {
		vectorSize = DefaultVectorSize
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := newQdrantClient(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), collectionName, vectorSize)
	qc.conn = conn

	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

func newQdrantClient(points qdrant.PointsClient, collections qdrant.CollectionsClient, collectionName string, vectorSize int) *QdrantClient {
	return &QdrantClient{
		client:           points,
		collectionClient: collections,
		collectionName:   collectionName,
		vectorSize:       vectorSize,
	}
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(q.vectorSize),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertVectors stores or updates points in one request
func (q *QdrantClient) UpsertVectors(ctx context.Context, points []*VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		if len(point.Vector) != q.vectorSize {
			return fmt.Errorf("invalid vector dimensions: expected %d, got %d", q.vectorSize, len(point.Vector))
		}

		if point.ID == "" {
			point.ID = uuid.New().String()
		}

		structs = append(structs, &qdrant.PointStruct{
			Id: uuidPointID(point.ID),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: point.Vector},
				},
			},
			Payload: toPayload(point.Metadata),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d vectors: %w", len(structs), err)
	}

	return nil
}

// SearchVectors returns the points closest to queryVector scoring at least minScore
func (q *QdrantClient) SearchVectors(ctx context.Context, queryVector []float32, limit int, minScore float32) ([]*VectorPoint, error) {
	if len(queryVector) != q.vectorSize {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", q.vectorSize, len(queryVector))
	}

	if limit <= 0 {
		limit = 10
	}

	searchReq := &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if minScore > 0 {
		searchReq.ScoreThreshold = &minScore
	}

	results, err := q.client.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	points := make([]*VectorPoint, 0, len(results.Result))
	for _, result := range results.Result {
		point := &VectorPoint{
			Metadata: fromPayload(result.Payload),
			Score:    result.Score,
		}
		if result.Id != nil {
			point.ID = result.Id.GetUuid()
		}
		points = append(points, point)
	}

	return points, nil
}

// DeleteByFileID removes every point indexed from one source file
func (q *QdrantClient) DeleteByFileID(ctx context.Context, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{{
						ConditionOneOf: &qdrant.Condition_Field{
							Field: &qdrant.FieldCondition{
								Key: "file_id",
								Match: &qdrant.Match{
									MatchValue: &qdrant.Match_Keyword{Keyword: fileID},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete vectors of file %s: %w", fileID, err)
	}

	return nil
}

// GetCollectionInfo returns collection statistics
func (q *QdrantClient) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"indexed_vectors": info.Result.GetIndexedVectorsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func uuidPointID(id string) *qdrant.PointId {
	return &qdrant.PointId{
		PointIdOptions: &qdrant.PointId_Uuid{Uuid: id},
	}
}

func toPayload(metadata map[string]interface{}) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case nil:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	metadata := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			metadata[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[k] = val.BoolValue
		}
	}
	return metadata
}
