package gemini

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const generationModel = "gemini-2.0-flash"

const scorePromptTemplate = `On a scale of 0-10, rate how relevant this text chunk is to answering the query.
Query: %s

Text Chunk: %s

Respond with ONLY a number between 0-10.`

const answerPromptTemplate = `You are a document analysis assistant answering questions about ingested documents.

Based on the following excerpts from the indexed documents, answer the user's question.

Context:
%s

User Question: %s

Instructions:
1. Provide a clear, comprehensive answer based on the context
2. Cite which sources you used (e.g., "According to Source 1...")
3. If the context doesn't fully answer the question, acknowledge what's missing
4. Be objective and analytical

Answer:`

// scoreChunkCap bounds how much of a chunk is sent for relevance scoring.
const scoreChunkCap = 500

// capChunk shortens a chunk to scoreChunkCap bytes without splitting a
// multi-byte rune; the API rejects invalid UTF-8.
func capChunk(chunkText string) string {
	if len(chunkText) <= scoreChunkCap {
		return chunkText
	}
	cut := scoreChunkCap
	for cut > 0 && !utf8.RuneStart(chunkText[cut]) {
		cut--
	}
	return chunkText[:cut] + "..."
}

// Generator drives relevance scoring and grounded answer generation
// through a Gemini chat model.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Generator, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: generationModel}, nil
}

// Score asks the model to rate a chunk's relevance to the query. The raw
// model text is returned untouched; the caller owns score parsing.
func (g *Generator) Score(ctx context.Context, query, chunkText string) (string, error) {
	prompt := fmt.Sprintf(scorePromptTemplate, query, capChunk(chunkText))
	return g.generate(ctx, prompt)
}

// Answer produces a grounded answer from the annotated context block.
func (g *Generator) Answer(ctx context.Context, query, contextBlock string) (string, error) {
	prompt := fmt.Sprintf(answerPromptTemplate, contextBlock, query)
	return g.generate(ctx, prompt)
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}
