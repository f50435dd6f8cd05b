package retrieve

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store is the sole owner of all Qdrant operations, covering both the
// dense and sparse named vector spaces a collection holds.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

func NewStore(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("retrieve: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// EnsureIndex creates the collection with both named vector spaces if it
// doesn't already exist — the Go equivalent of retrieval.py's
// ensure_collection, and the operation cmd/reindex calls idempotently.
func (s *Store) EnsureIndex(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("retrieve: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	onDisk := false
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						DenseVectorSpace: {Size: DenseDims, Distance: pb.Distance_Cosine},
					},
				},
			},
		},
		SparseVectorsConfig: &pb.SparseVectorConfig{
			Map: map[string]*pb.SparseVectorParams{
				SparseVectorSpace: {Index: &pb.SparseIndexConfig{OnDisk: &onDisk}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("retrieve: create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores chunk records with both their dense and sparse vectors.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			payload[k] = toQdrantValue(val)
		}

		sparseIndices := make([]uint32, len(r.Sparse.Indices))
		copy(sparseIndices, r.Sparse.Indices)

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vectors{
					Vectors: &pb.NamedVectors{
						Vectors: map[string]*pb.Vector{
							DenseVectorSpace: {Data: r.Dense},
							SparseVectorSpace: {
								Data:    r.Sparse.Values,
								Indices: &pb.SparseIndices{Data: sparseIndices},
							},
						},
					},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("retrieve: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocID removes every point for a document, used before
// re-upserting on reindex.
func (s *Store) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch("metadata.doc_id", docID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("retrieve: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// SearchDense performs k-NN search against the dense vector space only.
func (s *Store) SearchDense(ctx context.Context, vector []float32, limit int, f Filters) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		VectorName:     ptr(DenseVectorSpace),
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
		Filter:         buildFilter(f),
	}
	return s.search(ctx, req)
}

// SearchSparse performs BM25-style search against the sparse vector space.
func (s *Store) SearchSparse(ctx context.Context, sparse []float32, indices []uint32, limit int, f Filters) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		VectorName:     ptr(SparseVectorSpace),
		Vector:         sparse,
		SparseIndices:  &pb.SparseIndices{Data: indices},
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
		Filter:         buildFilter(f),
	}
	return s.search(ctx, req)
}

func (s *Store) search(ctx context.Context, req *pb.SearchPoints) ([]Hit, error) {
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := make(map[string]any, len(r.GetPayload()))
		var content string
		for k, val := range r.GetPayload() {
			v := fromQdrantValue(val)
			if k == "content" {
				content, _ = v.(string)
			}
			payload[k] = v
		}
		hits[i] = Hit{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Content: content,
			Payload: payload,
		}
	}
	return hits, nil
}

// buildFilter always scopes to the caller's accessible group set (spec §4.6
// Policy: metadata.group_id ∈ group_ids); the extracted scalar filters only
// apply when StrictFilters opts in (Open Question (a)).
func buildFilter(f Filters) *pb.Filter {
	must := []*pb.Condition{groupMatch(f.GroupIDs)}
	if f.StrictFilters {
		if f.DocID != "" {
			must = append(must, fieldMatch("metadata.doc_id", f.DocID))
		}
		if f.VehicleModel != "" {
			must = append(must, fieldMatch("metadata.vehicle_model", f.VehicleModel))
		}
		if f.ChassisNo != "" {
			must = append(must, fieldMatch("metadata.chassis_no", f.ChassisNo))
		}
		if f.TestType != "" {
			must = append(must, fieldMatch("metadata.test_type", f.TestType))
		}
	}
	return &pb.Filter{Must: must}
}

// groupMatch expresses metadata.group_id ∈ groupIDs. Qdrant's proto has no
// native "integer in set" match, so two or more ids are expressed as a
// nested Should (OR) filter; a single id stays a plain equality condition,
// and an empty set (no accessible groups) is scoped to a payload key no
// point ever carries, so it matches nothing rather than everything.
func groupMatch(groupIDs []int64) *pb.Condition {
	switch len(groupIDs) {
	case 0:
		return fieldMatch("metadata.__no_access__", "__no_access__")
	case 1:
		return fieldMatchInt("metadata.group_id", groupIDs[0])
	default:
		should := make([]*pb.Condition, len(groupIDs))
		for i, id := range groupIDs {
			should[i] = fieldMatchInt("metadata.group_id", id)
		}
		return &pb.Condition{
			ConditionOneOf: &pb.Condition_Filter{Filter: &pb.Filter{Should: should}},
		}
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}}},
		},
	}
}

func fieldMatchInt(key string, value int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: &pb.Match{MatchValue: &pb.Match_Integer{Integer: value}}},
		},
	}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func toQdrantValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromQdrantValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func ptr(s string) *string { return &s }
