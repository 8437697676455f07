package index

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// ParseMetric maps a configuration string to a rag.Metric. The empty string
// selects cosine.
func ParseMetric(s string) (rag.Metric, error) {
	switch s {
	case "", string(rag.MetricCosine):
		return rag.MetricCosine, nil
	case string(rag.MetricL2), "euclid", "euclidean":
		return rag.MetricL2, nil
	}
	return "", &rag.ConfigError{Field: "index_metric", Reason: fmt.Sprintf("unknown metric %q (want cosine or l2)", s)}
}

// similarity scores b against a; higher is more similar for every metric.
func similarity(metric rag.Metric, a, b []float32) float32 {
	switch metric {
	case rag.MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(1 / (1 + math.Sqrt(sum)))
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}

// rank scores every entry against query and returns the top k, most similar
// first. The sort is stable so equal scores keep insertion order.
func rank(entries []rag.IndexEntry, query []float32, metric rag.Metric, k int) rag.RetrievalResult {
	scored := make(rag.RetrievalResult, len(entries))
	for i, e := range entries {
		scored[i] = rag.ScoredChunk{Chunk: e.Chunk, Score: similarity(metric, query, e.Vector)}
	}
	slices.SortStableFunc(scored, func(a, b rag.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

// checkDimensions verifies every entry has length want. When want is 0 the
// first entry's length is adopted. It returns the resolved dimension.
func checkDimensions(entries []rag.IndexEntry, want int) (int, error) {
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return 0, fmt.Errorf("index: entry %s#%d has an empty vector", e.Chunk.Source, e.Chunk.Index)
		}
		if want == 0 {
			want = len(e.Vector)
			continue
		}
		if len(e.Vector) != want {
			return 0, &rag.DimensionMismatchError{Want: want, Got: len(e.Vector)}
		}
	}
	return want, nil
}

// cloneEntries deep-copies entries so callers cannot mutate stored vectors.
func cloneEntries(entries []rag.IndexEntry) []rag.IndexEntry {
	out := make([]rag.IndexEntry, len(entries))
	for i, e := range entries {
		out[i] = rag.IndexEntry{Chunk: e.Chunk, Vector: slices.Clone(e.Vector)}
	}
	return out
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector reverses encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("index: corrupt vector blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
