package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	t.Run("Empty Input", func(t *testing.T) {
		chunks, err := Chunk("", 100, 20)
		assert.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Whitespace Only", func(t *testing.T) {
		chunks, err := Chunk("  \n\n \t\n\n ", 100, 20)
		assert.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Single Paragraph", func(t *testing.T) {
		chunks, err := Chunk("This is a simple paragraph.", 100, 20)
		assert.NoError(t, err)
		assert.Equal(t, []string{"This is a simple paragraph."}, chunks)
	})

	t.Run("Paragraphs Accumulate Into One Chunk", func(t *testing.T) {
		chunks, err := Chunk("First.\n\nSecond.", 100, 20)
		assert.NoError(t, err)
		assert.Equal(t, []string{"First.\n\nSecond."}, chunks)
	})

	t.Run("Overflow Closes Chunk And Seeds Overlap", func(t *testing.T) {
		a := strings.Repeat("a", 40)
		b := strings.Repeat("b", 40)
		chunks, err := Chunk(a+"\n\n"+b, 50, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, a, chunks[0])
		// Second chunk starts with the 10-char tail of the first.
		assert.Equal(t, strings.Repeat("a", 10)+"\n"+b, chunks[1])
	})

	t.Run("Overlap Skipped When It Would Overflow", func(t *testing.T) {
		a := strings.Repeat("a", 40)
		b := strings.Repeat("b", 48)
		chunks, err := Chunk(a+"\n\n"+b, 50, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, a, chunks[0])
		assert.Equal(t, b, chunks[1])
	})

	t.Run("Oversized Paragraph Hard Cut", func(t *testing.T) {
		long := strings.Repeat("x", 105)
		chunks, err := Chunk(long, 50, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("x", 50), chunks[0])
		assert.Equal(t, strings.Repeat("x", 50), chunks[1])
		assert.Equal(t, strings.Repeat("x", 5), chunks[2])
	})

	t.Run("Hard Cut Tail Continues Buffer", func(t *testing.T) {
		long := strings.Repeat("x", 55)
		chunks, err := Chunk(long+"\n\nshort", 50, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("x", 50), chunks[0])
		assert.Equal(t, strings.Repeat("x", 5)+"\n\nshort", chunks[1])
	})

	t.Run("Config Errors", func(t *testing.T) {
		tests := []struct {
			name    string
			max     int
			overlap int
		}{
			{"Overlap Equals Max", 100, 100},
			{"Overlap Exceeds Max", 100, 150},
			{"Negative Overlap", 100, -1},
			{"Zero Max", 0, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				chunks, err := Chunk("some text", tt.max, tt.overlap)
				assert.ErrorIs(t, err, ErrChunkConfig)
				assert.Nil(t, chunks)
			})
		}
	})

	t.Run("Hard Cut Respects Rune Boundaries", func(t *testing.T) {
		// 40 three-byte runes = 120 bytes; byte-offset cuts at 50 would
		// split the 17th rune.
		long := strings.Repeat("語", 40)
		chunks, err := Chunk(long, 50, 10)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		var rebuilt strings.Builder
		for i, c := range chunks {
			assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
			assert.LessOrEqual(t, len(c), 50, "chunk %d exceeds max", i)
			rebuilt.WriteString(c)
		}
		assert.Equal(t, long, rebuilt.String())
	})

	t.Run("Overlap Tail Respects Rune Boundaries", func(t *testing.T) {
		a := strings.Repeat("語", 15) // 45 bytes
		b := strings.Repeat("b", 30)
		chunks, err := Chunk(a+"\n\n"+b, 50, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		for i, c := range chunks {
			assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
		}
		// 10 bytes from a 3-byte-rune tail rounds down to 3 whole runes.
		assert.Equal(t, strings.Repeat("語", 3)+"\n"+b, chunks[1])
	})

	t.Run("Max Smaller Than One Rune Still Progresses", func(t *testing.T) {
		chunks, err := Chunk("語語語", 1, 0)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
			assert.Equal(t, "語", c)
		}
	})

	t.Run("All Chunks Within MaxChars", func(t *testing.T) {
		paras := []string{
			"Revenue grew across all segments this quarter.",
			"Operating expenses rose due to increased headcount and infrastructure spend.",
			"Cash and cash equivalents remain sufficient to fund operations.",
			strings.Repeat("risk ", 60),
			"Management expects continued volatility in foreign exchange rates.",
		}
		chunks, err := Chunk(strings.Join(paras, "\n\n"), 120, 30)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for i, c := range chunks {
			assert.LessOrEqual(t, len(c), 120, "chunk %d exceeds max", i)
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	})
}

func TestSplitParagraphs(t *testing.T) {
	paras := splitParagraphs("one\n\ntwo\r\n\r\nthree\n  \nfour")
	assert.Equal(t, []string{"one", "two", "three", "four"}, paras)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{MaxChars: 100, OverlapChars: 20}.Validate())
	assert.NoError(t, Config{MaxChars: 1, OverlapChars: 0}.Validate())
	assert.ErrorIs(t, Config{MaxChars: 10, OverlapChars: 10}.Validate(), ErrChunkConfig)
}
