package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyAnswer marks a generation call that succeeded but produced no text.
var ErrEmptyAnswer = errors.New("generation returned empty text")

// GenerationError is the typed failure of the generation stage. It carries
// the query and the hits that would have been cited, so callers can retry
// narrowly or degrade to showing raw excerpts.
type GenerationError struct {
	Query string
	Hits  []RankedHit
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed for query %q: %v", e.Query, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

const excerptSep = "\n\n---\n\n"

// Generate builds an annotated context block from the top-ranked hits and
// requests one grounded answer. The relevance annotations are part of the
// grounding prompt: they let the model weight sources, not just decorate
// them. The returned answer carries the exact ordered hits that were used.
func Generate(ctx context.Context, query string, ranked []RankedHit, maxContextChunks, perChunkCharCap int, answer AnswerFunc) (*Answer, error) {
	if maxContextChunks <= 0 || maxContextChunks > len(ranked) {
		maxContextChunks = len(ranked)
	}
	selected := ranked[:maxContextChunks]

	text, err := answer(ctx, query, BuildContextBlock(selected, perChunkCharCap))
	if err != nil {
		return nil, &GenerationError{Query: query, Hits: selected, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationError{Query: query, Hits: selected, Err: ErrEmptyAnswer}
	}

	return &Answer{Text: text, CitedHits: selected}, nil
}

// BuildContextBlock concatenates the selected excerpts, each truncated to
// perChunkCharCap characters and preceded by a relevance label derived from
// its score. A non-positive cap leaves excerpts untruncated.
func BuildContextBlock(selected []RankedHit, perChunkCharCap int) string {
	var b strings.Builder
	for i, hit := range selected {
		if i > 0 {
			b.WriteString(excerptSep)
		}
		excerpt := hit.Record.Chunk.Text
		if perChunkCharCap > 0 && len(excerpt) > perChunkCharCap {
			cut := perChunkCharCap
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut]
		}
		fmt.Fprintf(&b, "[Source %d, Relevance: %.2f/10]\n%s", i+1, hit.RerankScore, excerpt)
	}
	return b.String()
}
