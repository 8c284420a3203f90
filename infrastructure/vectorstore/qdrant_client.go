package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/logging"
)

// Payload keys written for every point.
const (
	payloadEntityID         = "entity_id"
	payloadEntityType       = "entity_type"
	payloadTenantID         = "tenant_id"
	payloadBusinessIdentity = "business_identity_id"
	payloadContent          = "content"
	payloadUpdatedAt        = "updated_at"
	payloadMetaPrefix       = "meta_"
)

// QdrantClient implements the domain.VectorStore interface using Qdrant.
type QdrantClient struct {
	conn           *grpc.ClientConn
	client         qdrant.PointsClient
	collectionName string
	logger         *zap.Logger
}

// NewQdrantClient connects to addr and makes sure the collection exists
// with the given vector size.
func NewQdrantClient(ctx context.Context, addr, collectionName string, dimensions int, logger *zap.Logger) (*QdrantClient, error) {
	logger = logging.OrNop(logger)
	if addr == "" {
		addr = "localhost:6334"
		logger.Info("qdrant address not set, using default", zap.String("addr", addr))
	}
	if collectionName == "" {
		collectionName = "crm_embeddings"
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}

	client := &QdrantClient{
		conn:           conn,
		client:         qdrant.NewPointsClient(conn),
		collectionName: collectionName,
		logger:         logger,
	}

	if err := client.ensureCollectionExists(ctx, qdrant.NewCollectionsClient(conn), dimensions); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection exists: %w", err)
	}
	return client, nil
}

// Close releases the gRPC connection.
func (c *QdrantClient) Close() error {
	return c.conn.Close()
}

// ensureCollectionExists checks if the collection exists and creates it if it doesn't.
func (c *QdrantClient) ensureCollectionExists(ctx context.Context, collectionsClient qdrant.CollectionsClient, dimensions int) error {
	_, err := collectionsClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: c.collectionName,
	})
	if err == nil {
		return nil
	}

	c.logger.Info("creating qdrant collection",
		zap.String("collection", c.collectionName),
		zap.Int("dimensions", dimensions))

	_, err = collectionsClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Keyword indexes keep the tenant filter cheap.
	for _, field := range []string{payloadTenantID, payloadEntityType, payloadBusinessIdentity} {
		_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.collectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           proto.Bool(true),
		})
		if err != nil {
			c.logger.Warn("failed to create payload index", zap.String("field", field), zap.Error(err))
		}
	}
	return nil
}

// mapToPayload converts an interface{} map to Qdrant payload values.
func mapToPayload(data map[string]any) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(data))
	for key, val := range data {
		switch v := val.(type) {
		case string:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		case int:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
		case int64:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
		case float64:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
		case bool:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
		default:
			return nil, fmt.Errorf("unsupported type for payload field '%s': %T", key, v)
		}
	}
	return payload, nil
}

func recordPayload(r domain.EmbeddingRecord) (map[string]*qdrant.Value, error) {
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	data := map[string]any{
		payloadEntityID:         r.EntityID,
		payloadEntityType:       string(r.EntityType),
		payloadTenantID:         r.TenantID,
		payloadBusinessIdentity: r.BusinessIdentityID,
		payloadContent:          r.Content,
		payloadUpdatedAt:        updated.UnixMilli(),
	}
	for k, v := range r.Metadata {
		data[payloadMetaPrefix+k] = v
	}
	return mapToPayload(data)
}

// Upsert writes the point for an entity. Point ids are derived from the
// entity id and type, so a second upsert replaces the first.
func (c *QdrantClient) Upsert(ctx context.Context, record domain.EmbeddingRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	payload, err := recordPayload(record)
	if err != nil {
		return fmt.Errorf("failed to convert payload for %s/%s: %w", record.EntityType, record.EntityID, err)
	}

	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collectionName,
		Points: []*qdrant.PointStruct{{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID(record.EntityID, record.EntityType)}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: record.Vector}}},
			Payload: payload,
		}},
		Wait: proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to Qdrant: %w", err)
	}
	return nil
}

// Delete removes the point of an entity.
func (c *QdrantClient) Delete(ctx context.Context, entityID string, entityType domain.EntityType) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collectionName,
		Wait:           proto.Bool(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID(entityID, entityType)}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point from Qdrant: %w", err)
	}
	return nil
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func searchFilter(opts domain.SearchOptions) *qdrant.Filter {
	must := []*qdrant.Condition{keywordCondition(payloadTenantID, opts.TenantID)}
	if opts.EntityType != "" {
		must = append(must, keywordCondition(payloadEntityType, string(opts.EntityType)))
	}
	if opts.BusinessIdentityID != "" {
		must = append(must, keywordCondition(payloadBusinessIdentity, opts.BusinessIdentityID))
	}
	return &qdrant.Filter{Must: must}
}

// SearchSimilar queries the collection under the tenant filter. Qdrant's
// cosine score is already 1 - cosine distance.
func (c *QdrantClient) SearchSimilar(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	if opts.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	searchResult, err := c.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: c.collectionName,
		Vector:         vector,
		Filter:         searchFilter(opts),
		Limit:          uint64(limit),
		ScoreThreshold: proto.Float32(float32(opts.Threshold)),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points in Qdrant: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(searchResult.GetResult()))
	for _, point := range searchResult.GetResult() {
		hit, ok := hitFromPayload(point.GetPayload(), float64(point.GetScore()))
		if !ok {
			continue
		}
		hits = append(hits, hit)
	}
	// The server threshold is inclusive; RankHits makes it strict.
	return domain.RankHits(hits, opts.Threshold, opts.Limit), nil
}

func hitFromPayload(payload map[string]*qdrant.Value, score float64) (domain.SearchHit, bool) {
	if payload == nil {
		return domain.SearchHit{}, false
	}
	hit := domain.SearchHit{
		EntityID:   payload[payloadEntityID].GetStringValue(),
		EntityType: domain.EntityType(payload[payloadEntityType].GetStringValue()),
		TenantID:   payload[payloadTenantID].GetStringValue(),
		Content:    payload[payloadContent].GetStringValue(),
		Similarity: score,
	}
	if hit.EntityID == "" {
		return domain.SearchHit{}, false
	}
	if ms := payload[payloadUpdatedAt].GetIntegerValue(); ms > 0 {
		hit.UpdatedAt = time.UnixMilli(ms)
	}
	for key, val := range payload {
		if name, ok := strings.CutPrefix(key, payloadMetaPrefix); ok {
			if hit.Metadata == nil {
				hit.Metadata = make(map[string]string)
			}
			hit.Metadata[name] = val.GetStringValue()
		}
	}
	return hit, true
}
