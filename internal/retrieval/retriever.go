package retrieval

import (
	"math"
	"sort"

	"docqa/internal/index"
)

// Retrieve scores every record in the collection against the query vector
// and returns the top k by descending cosine similarity. Ties keep their
// original index order. A non-positive k or an empty collection yields an
// empty result, not an error.
func Retrieve(queryVec []float32, col *index.Collection, k int) []Hit {
	if k <= 0 {
		return nil
	}

	records := col.Records()
	if len(records) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, Hit{
			Record:     rec,
			Similarity: cosineSimilarity(queryVec, rec.Vector),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// cosineSimilarity is dot(a,b) / (|a| * |b|). Mismatched dimensions or a
// zero-magnitude vector score 0, never NaN.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
