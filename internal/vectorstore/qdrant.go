package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant vector store client against a single
// fixed collection. url may be bare "host:port" (e.g. "localhost:6334") or
// carry an "http://"/"https://"/"grpc://" scheme (e.g. QDRANT_URL's default
// "http://localhost:6333"); the scheme is stripped before host/port
// splitting since the underlying client dials gRPC directly, not HTTP.
func NewQdrantStore(url, collection string) (*QdrantStore, error) {
	hostport := stripScheme(url)

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ping verifies the Qdrant connection is alive, for use by server.HealthChecker.
func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// stripScheme removes a leading "scheme://" from url, if present, leaving a
// bare "host:port" (or "host") for net.SplitHostPort.
func stripScheme(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[i+3:]
	}
	return url
}

func distanceOf(name string) qdrant.Distance {
	switch strings.ToLower(name) {
	case "dot":
		return qdrant.Distance_Dot
	case "euclid":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// CreateCollection creates the positions collection if it doesn't exist.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, distance string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distanceOf(distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

// Upsert inserts or updates points keyed by a deterministic id derived from
// GameID+FEN.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := map[string]*qdrant.Value{
			"game_id":      qdrant.NewValueInt(p.GameID),
			"fen":          qdrant.NewValueString(p.FEN),
			"white":        qdrant.NewValueString(p.White),
			"black":        qdrant.NewValueString(p.Black),
			"opening_slug": qdrant.NewValueString(p.OpeningSlug),
			"phases":       stringListValue(p.Phases),
			"themes":       stringListValue(p.Themes),
			"keywords":     stringListValue(p.Keywords),
		}
		if p.WhiteRating != nil {
			payload["white_rating"] = qdrant.NewValueInt(int64(*p.WhiteRating))
		}
		if p.BlackRating != nil {
			payload["black_rating"] = qdrant.NewValueInt(int64(*p.BlackRating))
		}

		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(p.GameID, p.FEN)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// pointID derives a stable numeric point id from a game and FEN so repeated
// upserts of the same position replace rather than duplicate.
func pointID(gameID int64, fen string) uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	for _, b := range []byte(fen) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return uint64(gameID)<<32 ^ h
}

// Search performs similarity search restricted to points matching all
// filters.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, filters []PayloadFilter, limit int) ([]VectorHit, error) {
	var must []*qdrant.Condition
	for _, f := range filters {
		if f.Min != nil {
			must = append(must, qdrant.NewRange(f.Field, &qdrant.Range{Gte: qdrant.PtrOf(float64(*f.Min))}))
			continue
		}
		must = append(must, qdrant.NewMatch(f.Field, f.Value))
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		query.Filter = &qdrant.Filter{Must: must}
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	hits := make([]VectorHit, 0, len(response))
	for _, point := range response {
		hit := VectorHit{Score: point.Score}
		if payload := point.Payload; payload != nil {
			if gameID, ok := payload["game_id"]; ok {
				hit.GameID = gameID.GetIntegerValue()
			}
			hit.Phases = stringList(payload["phases"])
			hit.Themes = stringList(payload["themes"])
			hit.Keywords = stringList(payload["keywords"])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func stringListValue(values []string) *qdrant.Value {
	items := make([]*qdrant.Value, len(values))
	for i, v := range values {
		items[i] = qdrant.NewValueString(v)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
}

func stringList(v *qdrant.Value) []string {
	if v == nil {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		out = append(out, item.GetStringValue())
	}
	return out
}

// Delete removes all points for the given game ids.
func (s *QdrantStore) Delete(ctx context.Context, gameIDs []int64) error {
	if len(gameIDs) == 0 {
		return nil
	}

	var should []*qdrant.Condition
	for _, id := range gameIDs {
		should = append(should, qdrant.NewMatchInt("game_id", id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points by game id: %w", err)
	}
	return nil
}

var _ VectorStore = (*QdrantStore)(nil)
