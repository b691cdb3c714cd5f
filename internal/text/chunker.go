package text

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrChunkConfig is returned when the chunking parameters cannot produce a
// valid chunking (e.g. the overlap is as large as the chunk size).
var ErrChunkConfig = errors.New("invalid chunk configuration")

// Config holds the chunking parameters for one ingestion run.
type Config struct {
	MaxChars     int `json:"max_chars"`
	OverlapChars int `json:"overlap_chars"`
}

func (c Config) Validate() error {
	if c.MaxChars <= 0 {
		return ErrChunkConfig
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChars {
		return ErrChunkConfig
	}
	return nil
}

const (
	paragraphSep = "\n\n"
	overlapSep   = "\n"
)

var paragraphRe = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// splitParagraphs splits raw text on blank-line boundaries, dropping
// paragraphs that are empty after trimming.
func splitParagraphs(text string) []string {
	parts := paragraphRe.Split(text, -1)
	paras := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// Chunk splits a document into bounded, overlapping chunks.
//
// Paragraphs are accumulated into a running buffer. When the next paragraph
// would push the buffer past maxChars, the buffer is emitted and a new one is
// seeded with the last overlapChars characters of the emitted chunk followed
// by the paragraph. A single paragraph larger than maxChars is hard-cut into
// maxChars slices; the remaining tail seeds the next buffer. Every emitted
// chunk is at most maxChars long, and cuts never land inside a multi-byte
// rune, so every chunk is valid UTF-8.
func Chunk(text string, maxChars, overlapChars int) ([]string, error) {
	cfg := Config{MaxChars: maxChars, OverlapChars: overlapChars}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil, nil
	}

	var chunks []string
	var buf string

	for _, para := range paras {
		if len(para) > maxChars {
			// Oversized paragraph: close the buffer, then hard-cut.
			if buf != "" {
				chunks = append(chunks, buf)
				buf = ""
			}
			for len(para) > maxChars {
				cut := runeBoundary(para, maxChars)
				chunks = append(chunks, para[:cut])
				para = para[cut:]
			}
			buf = para
			continue
		}

		if buf == "" {
			buf = para
			continue
		}

		if len(buf)+len(paragraphSep)+len(para) <= maxChars {
			buf += paragraphSep + para
			continue
		}

		chunks = append(chunks, buf)
		tail := overlapTail(buf, overlapChars)
		if tail != "" && len(tail)+len(overlapSep)+len(para) <= maxChars {
			buf = tail + overlapSep + para
		} else {
			// The tail would push the new chunk past maxChars; skip it
			// rather than emit an oversized chunk later.
			buf = para
		}
	}

	if strings.TrimSpace(buf) != "" {
		chunks = append(chunks, buf)
	}
	return chunks, nil
}

func overlapTail(chunk string, overlapChars int) string {
	if overlapChars <= 0 || chunk == "" {
		return ""
	}
	if len(chunk) <= overlapChars {
		return chunk
	}
	start := len(chunk) - overlapChars
	for start < len(chunk) && !utf8.RuneStart(chunk[start]) {
		start++
	}
	return chunk[start:]
}

// runeBoundary returns the largest byte offset <= n that starts a rune, so a
// slice at the result never splits a multi-byte character. When n falls
// inside the very first rune, that rune's full width is returned instead to
// guarantee forward progress.
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
