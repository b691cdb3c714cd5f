package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	chatModel      = "gpt-4o-mini"
	embeddingModel = "text-embedding-3-small"
)

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
// multi-byte rune.
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

// Client talks to an OpenAI-compatible API for embeddings, relevance
// scoring, and answer generation.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Score asks the model to rate a chunk's relevance to the query. The raw
// model text is returned untouched; the caller owns score parsing.
func (c *Client) Score(ctx context.Context, query, chunkText string) (string, error) {
	return c.chatComplete(ctx, []chatMessage{
		{Role: "system", Content: "You are a relevance scoring assistant. Respond only with a number."},
		{Role: "user", Content: fmt.Sprintf(scorePromptTemplate, query, capChunk(chunkText))},
	}, 0.3, 10)
}

// Answer produces a grounded answer from the annotated context block.
func (c *Client) Answer(ctx context.Context, query, contextBlock string) (string, error) {
	return c.chatComplete(ctx, []chatMessage{
		{Role: "user", Content: fmt.Sprintf(answerPromptTemplate, contextBlock, query)},
	}, 0.2, 1024)
}

func (c *Client) chatComplete(ctx context.Context, messages []chatMessage, temperature float64, maxTokens int) (string, error) {
	reqBody := map[string]interface{}{
		"model":       chatModel,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("openai api error: %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one call. The result is positional:
// vector i belongs to texts[i].
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": embeddingModel,
		"input": texts,
	}

	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("openai api error: %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(result.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
