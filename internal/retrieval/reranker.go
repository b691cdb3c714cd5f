package retrieval

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

const maxRerankScore = 10.0

var scoreTokenRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Rerank re-scores retrieved hits with an LLM relevance judgment and sorts
// them by descending score, keeping input order on ties. Each hit is scored
// by an independent call so one malformed response cannot corrupt the
// others; hits are scored in parallel and merged back by input position.
// When a call fails or returns no numeric token, that hit falls back to
// similarity * 10. The output always has the same length as the input.
func Rerank(ctx context.Context, query string, hits []Hit, score ScoreFunc) []RankedHit {
	ranked := make([]RankedHit, len(hits))

	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func(i int, hit Hit) {
			defer wg.Done()
			ranked[i] = RankedHit{Hit: hit, RerankScore: scoreHit(ctx, query, hit, score)}
		}(i, hit)
	}
	wg.Wait()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})
	return ranked
}

func scoreHit(ctx context.Context, query string, hit Hit, score ScoreFunc) float64 {
	raw, err := score(ctx, query, hit.Record.Chunk.Text)
	if err != nil {
		slog.WarnContext(ctx, "rerank call failed, using similarity fallback", "error", err, "key", hit.Record.Chunk.Key())
		return hit.Similarity * maxRerankScore
	}
	parsed, ok := parseScore(raw)
	if !ok {
		slog.WarnContext(ctx, "rerank response had no numeric token, using similarity fallback", "response", raw, "key", hit.Record.Chunk.Key())
		return hit.Similarity * maxRerankScore
	}
	return parsed
}

// parseScore extracts the first numeric token from the model's text and
// clamps it to [0, 10].
func parseScore(raw string) (float64, bool) {
	token := scoreTokenRe.FindString(raw)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > maxRerankScore {
		v = maxRerankScore
	}
	return v, true
}

// passthroughRank wraps retrieval hits as ranked hits without consulting the
// model, mapping similarity onto the 0-10 scale so downstream relevance
// labels stay meaningful.
func passthroughRank(hits []Hit) []RankedHit {
	ranked := make([]RankedHit, len(hits))
	for i, hit := range hits {
		ranked[i] = RankedHit{Hit: hit, RerankScore: hit.Similarity * maxRerankScore}
	}
	return ranked
}
