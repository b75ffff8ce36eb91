// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/docindex/internal/vector"
)

const (
	backendName = "qdrant"
	metaKey     = "meta"
)

// Config locates the Qdrant server and collection.
type Config struct {
	Host       string
	Port       int
	Collection string

	// DialOptions replace the default insecure transport when set.
	DialOptions []grpc.DialOption
	// Target overrides host:port as the gRPC dial target.
	Target string
}

func (c Config) target() string {
	if c.Target != "" {
		return c.Target
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) dial() (*grpc.ClientConn, error) {
	opts := c.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(c.target(), opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return conn, nil
}

// Backend creates indexes backed by Qdrant collections.
type Backend struct {
	cfg Config
}

// New returns a Qdrant backend.
func New(cfg Config) *Backend {
	if cfg.Collection == "" {
		cfg.Collection = "docindex"
	}
	return &Backend{cfg: cfg}
}

// Create drops and recreates the configured collection with euclidean distance.
func (b *Backend) Create(ctx context.Context, algorithm, valueType string, dimensions int) (vector.Index, error) {
	if err := vector.CheckCreate(algorithm, valueType, dimensions); err != nil {
		return nil, err
	}
	conn, err := b.cfg.dial()
	if err != nil {
		return nil, err
	}
	collections := pb.NewCollectionsClient(conn)

	if _, err := collections.Delete(ctx, &pb.DeleteCollection{CollectionName: b.cfg.Collection}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("qdrant delete collection %s: %w", b.cfg.Collection, err)
	}
	_, err = collections.Create(ctx, &pb.CreateCollection{
		CollectionName: b.cfg.Collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dimensions), Distance: pb.Distance_Euclid},
		}},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("qdrant create collection %s: %w", b.cfg.Collection, err)
	}

	return newIndex(b.cfg, conn, &vector.Descriptor{
		Backend:    backendName,
		Algorithm:  algorithm,
		ValueType:  valueType,
		Dimensions: dimensions,
		Params:     map[string]string{vector.ParamDistCalcMethod: vector.DistL2},
	}), nil
}

// Load reads a descriptor written by Save and reconnects to its collection.
func (b *Backend) Load(ctx context.Context, path string) (vector.Index, error) {
	d, err := vector.ReadDescriptor(path, backendName)
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}
	if d.Qdrant == nil {
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("descriptor has no qdrant section")}
	}

	cfg := b.cfg
	cfg.Host, cfg.Port, cfg.Collection = d.Qdrant.Host, d.Qdrant.Port, d.Qdrant.Collection
	conn, err := cfg.dial()
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}
	if _, err := pb.NewCollectionsClient(conn).Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: cfg.Collection}); err != nil {
		conn.Close()
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("qdrant collection %s: %w", cfg.Collection, err)}
	}

	idx := newIndex(cfg, conn, d)
	idx.nextID.Store(d.Count)
	return idx, nil
}

// Index is a handle on one Qdrant collection.
type Index struct {
	cfg    Config
	conn   *grpc.ClientConn
	points pb.PointsClient
	nextID atomic.Int64

	mu   sync.Mutex
	desc *vector.Descriptor
}

func newIndex(cfg Config, conn *grpc.ClientConn, d *vector.Descriptor) *Index {
	if d.Params == nil {
		d.Params = map[string]string{}
	}
	d.Qdrant = &vector.QdrantLocation{Host: cfg.Host, Port: cfg.Port, Collection: cfg.Collection}
	return &Index{cfg: cfg, conn: conn, points: pb.NewPointsClient(conn), desc: d}
}

// SetBuildParameter only accepts DistCalcMethod=L2, the metric the
// collection was created with.
func (x *Index) SetBuildParameter(name, value, scope string) error {
	if scope != vector.ScopeIndex {
		return fmt.Errorf("parameter scope %q: %w", scope, vector.ErrUnsupported)
	}
	if name == vector.ParamDistCalcMethod {
		d, err := vector.ParseDistance(value)
		if err != nil {
			return err
		}
		if d != vector.DistL2 {
			return fmt.Errorf("qdrant collection uses L2: %w", vector.ErrUnsupported)
		}
		value = d
	}
	x.mu.Lock()
	x.desc.Params[name] = value
	x.mu.Unlock()
	return nil
}

// Add upserts vectors as points with sequential numeric ids.
func (x *Index) Add(ctx context.Context, vec, meta []byte, count int, exhaustive, normalize bool) (bool, error) {
	vectors, metas, err := vector.SplitBatch(vec, meta, count, x.desc.Dimensions)
	if err != nil {
		return false, err
	}

	points := make([]*pb.PointStruct, len(vectors))
	for i, v := range vectors {
		if normalize {
			v = append([]float32(nil), v...)
			vector.Normalize(v)
		}
		id := x.nextID.Add(1) - 1
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: v}}},
			Payload: map[string]*pb.Value{
				metaKey: {Kind: &pb.Value_StringValue{StringValue: base64.StdEncoding.EncodeToString(metas[i])}},
			},
		}
	}

	wait := true
	if _, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return false, fmt.Errorf("qdrant upsert: %w", err)
	}
	return true, nil
}

// Search queries the collection. Qdrant reports euclidean distance; hits
// carry its square to match the other backends.
func (x *Index) Search(ctx context.Context, vec []byte, k int) ([]vector.Hit, error) {
	vectors, _, err := vector.SplitBatch(vec, nil, 1, x.desc.Dimensions)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.cfg.Collection,
		Vector:         vectors[0],
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]vector.Hit, 0, len(resp.Result))
	for _, pt := range resp.Result {
		meta, err := base64.StdEncoding.DecodeString(pt.Payload[metaKey].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("qdrant point %d: bad metadata: %w", pt.Id.GetNum(), err)
		}
		hits = append(hits, vector.Hit{
			ID:       int64(pt.Id.GetNum()),
			Distance: pt.Score * pt.Score,
			Metadata: meta,
		})
	}
	return hits, nil
}

// Save writes the collection descriptor to path.
func (x *Index) Save(ctx context.Context, path string) error {
	x.mu.Lock()
	x.desc.Count = x.nextID.Load()
	err := vector.WriteDescriptor(path, x.desc)
	x.mu.Unlock()
	if err != nil {
		return &vector.IndexSaveError{Path: path, Err: err}
	}
	return nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

var (
	_ vector.Backend = (*Backend)(nil)
	_ vector.Index   = (*Index)(nil)
)
