package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"docqa/internal/index"
	"docqa/internal/retrieval"
)

func makeRanked(scores ...float64) []retrieval.RankedHit {
	ranked := make([]retrieval.RankedHit, len(scores))
	for i, s := range scores {
		ranked[i] = retrieval.RankedHit{
			Hit: retrieval.Hit{
				Record: index.Record{
					Chunk: index.Chunk{SourceID: "doc", Index: i, Text: strings.Repeat("x", 50)},
				},
				Similarity: s / 10,
			},
			RerankScore: s,
		}
	}
	return ranked
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns Answer With Cited Hits", func(t *testing.T) {
		ranked := makeRanked(9, 7, 5, 3)
		var gotQuery, gotContext string
		answer := func(_ context.Context, query, contextBlock string) (string, error) {
			gotQuery, gotContext = query, contextBlock
			return "According to Source 1, revenue grew.", nil
		}

		ans, err := retrieval.Generate(ctx, "how did revenue develop?", ranked, 2, 100, answer)

		require.NoError(t, err)
		assert.Equal(t, "According to Source 1, revenue grew.", ans.Text)
		require.Len(t, ans.CitedHits, 2)
		assert.Equal(t, 9.0, ans.CitedHits[0].RerankScore)
		assert.Equal(t, "how did revenue develop?", gotQuery)
		assert.Contains(t, gotContext, "[Source 1, Relevance: 9.00/10]")
		assert.Contains(t, gotContext, "[Source 2, Relevance: 7.00/10]")
		assert.NotContains(t, gotContext, "Source 3")
	})

	t.Run("Truncates Excerpts To Cap", func(t *testing.T) {
		ranked := makeRanked(8)
		var gotContext string
		answer := func(_ context.Context, _, contextBlock string) (string, error) {
			gotContext = contextBlock
			return "ok", nil
		}

		_, err := retrieval.Generate(ctx, "q", ranked, 1, 10, answer)

		require.NoError(t, err)
		assert.Contains(t, gotContext, strings.Repeat("x", 10))
		assert.NotContains(t, gotContext, strings.Repeat("x", 11))
	})

	t.Run("Call Failure Surfaces Typed Error", func(t *testing.T) {
		ranked := makeRanked(8, 6)
		answer := func(context.Context, string, string) (string, error) {
			return "", errors.New("model overloaded")
		}

		ans, err := retrieval.Generate(ctx, "the question", ranked, 2, 100, answer)

		assert.Nil(t, ans)
		var genErr *retrieval.GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, "the question", genErr.Query)
		assert.Len(t, genErr.Hits, 2)
	})

	t.Run("Empty Text Surfaces Typed Error", func(t *testing.T) {
		ranked := makeRanked(8)
		answer := func(context.Context, string, string) (string, error) {
			return "   ", nil
		}

		_, err := retrieval.Generate(ctx, "q", ranked, 1, 100, answer)

		var genErr *retrieval.GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.ErrorIs(t, err, retrieval.ErrEmptyAnswer)
	})

	t.Run("Zero Max Uses All Hits", func(t *testing.T) {
		ranked := makeRanked(8, 6, 4)
		answer := func(context.Context, string, string) (string, error) {
			return "ok", nil
		}

		ans, err := retrieval.Generate(ctx, "q", ranked, 0, 100, answer)

		require.NoError(t, err)
		assert.Len(t, ans.CitedHits, 3)
	})
}

func TestBuildContextBlock_TruncationKeepsValidUTF8(t *testing.T) {
	ranked := makeRanked(8)
	// 20 three-byte runes; a byte-offset cut at 10 lands mid-rune.
	ranked[0].Record.Chunk.Text = strings.Repeat("語", 20)

	block := retrieval.BuildContextBlock(ranked, 10)

	assert.True(t, utf8.ValidString(block))
	assert.Contains(t, block, strings.Repeat("語", 3))
	assert.NotContains(t, block, strings.Repeat("語", 4))
}

func TestBuildContextBlock(t *testing.T) {
	block := retrieval.BuildContextBlock(makeRanked(9.5, 2), 0)
	parts := strings.Split(block, "\n\n---\n\n")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "[Source 1, Relevance: 9.50/10]\n"))
	assert.True(t, strings.HasPrefix(parts[1], "[Source 2, Relevance: 2.00/10]\n"))

	assert.Empty(t, retrieval.BuildContextBlock(nil, 100))
}
