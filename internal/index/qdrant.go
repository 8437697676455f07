package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// upsertBatchSize bounds the number of points sent per Upsert call.
const upsertBatchSize = 256

// Payload keys stored with every point.
const (
	payloadSeq     = "seq"
	payloadSource  = "source"
	payloadPage    = "page"
	payloadIndex   = "chunk_index"
	payloadStart   = "start_off"
	payloadEnd     = "end_off"
	payloadContent = "content"
	payloadModel   = "model"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the alias queries are served from. Each rebuild writes a
	// fresh collection named "<Collection>_<unix-nanos>" and repoints the alias.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Qdrant is a rag.Index backed by a Qdrant alias. Rebuilds never touch the
// collection the alias currently points at until the new one is complete.
type Qdrant struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// alias is the name queries are issued against.
	alias string

	// log receives rebuild progress and cleanup failures.
	log *slog.Logger

	// writeMu serialises Rebuild and Add.
	writeMu sync.Mutex

	// mu guards the fields below.
	mu        sync.RWMutex
	metric    rag.Metric
	dimension int
	model     string
	nextSeq   int64
}

var _ rag.Index = (*Qdrant)(nil)

// OpenQdrant connects to Qdrant and reads the state of the aliased
// collection, if any. Options.Reset drops the alias target.
func OpenQdrant(ctx context.Context, cfg QdrantConfig, opts Options, log *slog.Logger) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "hr_policies"
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	q := &Qdrant{client: client, alias: cfg.Collection, log: log}
	if err := q.init(ctx, opts); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

// Client exposes the gRPC client for readiness checks.
func (q *Qdrant) Client() *qdrant.Client { return q.client }

func (q *Qdrant) init(ctx context.Context, opts Options) error {
	target, err := q.aliasTarget(ctx)
	if err != nil {
		return err
	}

	if opts.Reset && target != "" {
		if err := q.client.DeleteAlias(ctx, q.alias); err != nil {
			return fmt.Errorf("qdrant: reset alias %q: %w", q.alias, err)
		}
		q.dropCollection(ctx, target)
		target = ""
	}

	q.metric = opts.Metric
	if q.metric == "" {
		q.metric = rag.MetricCosine
	}
	q.dimension = opts.Dimension
	q.model = opts.Model

	if target == "" {
		return nil
	}

	info, err := q.client.GetCollectionInfo(ctx, target)
	if err != nil {
		return fmt.Errorf("qdrant: collection info %q: %w", target, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	storedMetric := metricFromDistance(params.GetDistance())
	if opts.Metric != "" && storedMetric != opts.Metric {
		return &rag.ConfigError{Field: "index_metric", Reason: fmt.Sprintf("collection %q uses %q, configured %q", target, storedMetric, opts.Metric)}
	}
	q.metric = storedMetric

	storedDim := int(params.GetSize())
	if opts.Dimension > 0 && storedDim != opts.Dimension {
		return &rag.ConfigError{Field: "embedding_dimensions", Reason: fmt.Sprintf("collection %q holds %d-dimensional vectors, configured %d", target, storedDim, opts.Dimension)}
	}
	q.dimension = storedDim

	storedModel, count, err := q.sampleModel(ctx, target)
	if err != nil {
		return err
	}
	if storedModel != "" {
		if opts.Model != "" && storedModel != opts.Model {
			return &rag.ConfigError{Field: "embedding_model", Reason: fmt.Sprintf("collection %q was built with %q, configured %q", target, storedModel, opts.Model)}
		}
		q.model = storedModel
	}
	q.nextSeq = int64(count)
	return nil
}

// aliasTarget returns the collection the alias points at, or "" if unset.
func (q *Qdrant) aliasTarget(ctx context.Context) (string, error) {
	aliases, err := q.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant: list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == q.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// sampleModel reads the embedding model from one point and counts points.
func (q *Qdrant) sampleModel(ctx context.Context, collection string) (string, uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return "", 0, fmt.Errorf("qdrant: count %q: %w", collection, err)
	}
	if count == 0 {
		return "", 0, nil
	}

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayloadInclude(payloadModel),
	})
	if err != nil {
		return "", 0, fmt.Errorf("qdrant: scroll %q: %w", collection, err)
	}
	if len(points) == 0 {
		return "", count, nil
	}
	return points[0].GetPayload()[payloadModel].GetStringValue(), count, nil
}

// Rebuild writes entries to a new collection and atomically repoints the
// alias. On failure the new collection is dropped and the alias is untouched.
func (q *Qdrant) Rebuild(ctx context.Context, entries []rag.IndexEntry) error {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	q.mu.RLock()
	dimension, metric, model := q.dimension, q.metric, q.model
	q.mu.RUnlock()

	dimension, err := checkDimensions(entries, dimension)
	if err != nil {
		return err
	}
	if dimension == 0 {
		return fmt.Errorf("qdrant: cannot create a collection without a vector dimension")
	}

	previous, err := q.aliasTarget(ctx)
	if err != nil {
		return err
	}

	next := fmt.Sprintf("%s_%d", q.alias, time.Now().UnixNano())
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: next,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distanceFromMetric(metric),
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", next, err)
	}

	if err := q.upsert(ctx, next, entries, 0, model); err != nil {
		q.dropCollection(context.WithoutCancel(ctx), next)
		return err
	}

	actions := []*qdrant.AliasOperations{}
	if previous != "" {
		actions = append(actions, qdrant.NewAliasDelete(q.alias))
	}
	actions = append(actions, qdrant.NewAliasCreate(q.alias, next))
	if err := q.client.UpdateAliases(ctx, actions); err != nil {
		q.dropCollection(context.WithoutCancel(ctx), next)
		return fmt.Errorf("qdrant: swap alias %q to %q: %w", q.alias, next, err)
	}

	if previous != "" {
		q.dropCollection(ctx, previous)
	}

	q.mu.Lock()
	q.dimension = dimension
	q.nextSeq = int64(len(entries))
	q.mu.Unlock()

	q.log.Info("qdrant: rebuilt collection", "alias", q.alias, "collection", next, "points", len(entries))
	return nil
}

// Add upserts entries into the collection behind the alias.
func (q *Qdrant) Add(ctx context.Context, entries []rag.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	q.writeMu.Lock()
	target, err := q.aliasTarget(ctx)
	if err != nil {
		q.writeMu.Unlock()
		return err
	}
	if target == "" {
		// Nothing to append to: the first Add creates the collection.
		q.writeMu.Unlock()
		return q.Rebuild(ctx, entries)
	}
	defer q.writeMu.Unlock()

	q.mu.RLock()
	dimension, model, seq := q.dimension, q.model, q.nextSeq
	q.mu.RUnlock()

	if _, err := checkDimensions(entries, dimension); err != nil {
		return err
	}
	if err := q.upsert(ctx, target, entries, seq, model); err != nil {
		return err
	}

	q.mu.Lock()
	q.nextSeq += int64(len(entries))
	q.mu.Unlock()
	return nil
}

// upsert writes entries in batches, numbering them from firstSeq.
func (q *Qdrant) upsert(ctx context.Context, collection string, entries []rag.IndexEntry, firstSeq int64, model string) error {
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i, e := range entries[start:end] {
			seq := firstSeq + int64(start+i)
			c := e.Chunk
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(seq)),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadSeq:     seq,
					payloadSource:  c.Source,
					payloadPage:    int64(c.Page),
					payloadIndex:   int64(c.Index),
					payloadStart:   int64(c.Start),
					payloadEnd:     int64(c.End),
					payloadContent: c.Text,
					payloadModel:   model,
				}),
			})
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}
	return nil
}

// tieSlack is how many points beyond k are fetched so a tie at the k-th
// score can be seen.
const tieSlack = 8

// Query searches the aliased collection. Qdrant picks the top points on the
// server, so when the last fetched point ties the k-th score the limit is
// doubled until the tie ends or the collection is exhausted. The hits are
// then ordered by score and seq, so ties keep insertion order.
func (q *Qdrant) Query(ctx context.Context, vector []float32, k int) (rag.RetrievalResult, error) {
	if k <= 0 {
		return nil, &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be > 0, got %d", k)}
	}

	q.mu.RLock()
	dimension, metric, n := q.dimension, q.metric, q.nextSeq
	q.mu.RUnlock()

	if n == 0 {
		return nil, &rag.EmptyIndexError{}
	}
	if len(vector) != dimension {
		return nil, &rag.DimensionMismatchError{Want: dimension, Got: len(vector)}
	}

	limit := min(int64(k)+tieSlack, n)
	for {
		results, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.alias,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: search failed: %w", err)
		}
		hits := hitsFromPoints(results, metric)
		if limit >= n || int64(len(hits)) < limit || !boundaryTied(hits, k) {
			return topHits(hits, k), nil
		}
		limit = min(limit*2, n)
	}
}

// qdrantHit is a search result with the seq it was inserted under.
type qdrantHit struct {
	seq int64
	sc  rag.ScoredChunk
}

func hitsFromPoints(points []*qdrant.ScoredPoint, metric rag.Metric) []qdrantHit {
	hits := make([]qdrantHit, 0, len(points))
	for _, r := range points {
		p := r.GetPayload()
		score := r.GetScore()
		if metric == rag.MetricL2 {
			// Qdrant reports raw Euclidean distance for this metric.
			score = 1 / (1 + score)
		}
		hits = append(hits, qdrantHit{
			seq: p[payloadSeq].GetIntegerValue(),
			sc: rag.ScoredChunk{
				Chunk: rag.Chunk{
					Source: p[payloadSource].GetStringValue(),
					Page:   int(p[payloadPage].GetIntegerValue()),
					Index:  int(p[payloadIndex].GetIntegerValue()),
					Start:  int(p[payloadStart].GetIntegerValue()),
					End:    int(p[payloadEnd].GetIntegerValue()),
					Text:   p[payloadContent].GetStringValue(),
				},
				Score: score,
			},
		})
	}
	return hits
}

// sortHits orders hits by descending score, then ascending seq.
func sortHits(hits []qdrantHit) {
	slices.SortStableFunc(hits, func(a, b qdrantHit) int {
		if c := cmp.Compare(b.sc.Score, a.sc.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// boundaryTied reports whether more than k hits were fetched and the lowest
// fetched score equals the k-th best, meaning points the server left out may
// share that score.
func boundaryTied(hits []qdrantHit, k int) bool {
	if len(hits) <= k {
		return false
	}
	sortHits(hits)
	return hits[k-1].sc.Score == hits[len(hits)-1].sc.Score
}

// topHits returns the k best hits in score then seq order.
func topHits(hits []qdrantHit, k int) rag.RetrievalResult {
	sortHits(hits)
	hits = hits[:min(k, len(hits))]
	out := make(rag.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = h.sc
	}
	return out
}

// Stats reports the point count behind the alias and recorded metadata.
func (q *Qdrant) Stats(ctx context.Context) (rag.IndexStats, error) {
	q.mu.RLock()
	stats := rag.IndexStats{
		Entries:   int(q.nextSeq),
		Dimension: q.dimension,
		Metric:    q.metric,
		Model:     q.model,
	}
	q.mu.RUnlock()

	if stats.Entries == 0 {
		return stats, nil
	}
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.alias,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return stats, fmt.Errorf("qdrant: count: %w", err)
	}
	stats.Entries = int(count)
	return stats, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

// dropCollection deletes a collection, logging rather than returning failures.
func (q *Qdrant) dropCollection(ctx context.Context, name string) {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		q.log.Warn("qdrant: failed to drop collection", "collection", name, "error", err)
	}
}

func distanceFromMetric(m rag.Metric) qdrant.Distance {
	if m == rag.MetricL2 {
		return qdrant.Distance_Euclid
	}
	return qdrant.Distance_Cosine
}

func metricFromDistance(d qdrant.Distance) rag.Metric {
	if d == qdrant.Distance_Euclid {
		return rag.MetricL2
	}
	return rag.MetricCosine
}
