package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"docqa/internal/index"
	"docqa/internal/vector"
)

// loadPageSize bounds each GraphQL page when reloading records at bootstrap.
const loadPageSize = 200

// Store persists (chunk, vector) records in Weaviate. The in-memory
// collection stays authoritative; the store is the durable copy it is
// rebuilt from on startup.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) StoreRecords(ctx context.Context, records []index.Record) error {
	for _, rec := range records {
		_, err := s.client.Data().Creator().
			WithClassName(vector.ClassName).
			WithProperties(map[string]interface{}{
				"content":    rec.Chunk.Text,
				"sourceId":   rec.Chunk.SourceID,
				"chunkIndex": rec.Chunk.Index,
				"chunkKey":   rec.Chunk.Key(),
			}).
			WithVector(rec.Vector).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("store chunk %s: %w", rec.Chunk.Key(), err)
		}
	}
	return nil
}

// LoadRecords pages through every stored object and returns the full set of
// records, vectors included, for rebuilding the in-memory collection.
func (s *Store) LoadRecords(ctx context.Context) ([]index.Record, error) {
	var all []index.Record
	offset := 0

	for {
		page, err := s.loadPage(ctx, loadPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < loadPageSize {
			return all, nil
		}
		offset += loadPageSize
	}
}

func (s *Store) loadPage(ctx context.Context, limit, offset int) ([]index.Record, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "sourceId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithLimit(limit).
		WithOffset(offset).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var records []index.Record
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return records, nil
	}
	objects, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return records, nil
	}

	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		var rec index.Record
		if content, ok := props["content"].(string); ok {
			rec.Chunk.Text = content
		}
		if sourceID, ok := props["sourceId"].(string); ok {
			rec.Chunk.SourceID = sourceID
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			rec.Chunk.Index = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if raw, ok := additional["vector"].([]interface{}); ok {
				vec := make([]float32, 0, len(raw))
				for _, v := range raw {
					if f, ok := v.(float64); ok {
						vec = append(vec, float32(f))
					}
				}
				rec.Vector = vec
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID)).
		Do(ctx)
	return err
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if objects, ok := data[vector.ClassName].([]interface{}); ok && len(objects) > 0 {
			if first, ok := objects[0].(map[string]interface{}); ok {
				if meta, ok := first["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
