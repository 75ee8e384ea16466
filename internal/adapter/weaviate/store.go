package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel/attribute"

	"journalrag/internal/apperror"
	"journalrag/internal/chunk"
	"journalrag/internal/middleware"
	"journalrag/internal/vector"
)

// objectNamespace seeds the deterministic object UUIDs derived from chunk ids.
var objectNamespace = uuid.MustParse("6f1c1f3e-4a55-4b8e-9a53-2f0e8a1d7c10")

const defaultPageSize = 100

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the chunk store adapter over one Weaviate class.
type Store struct {
	client    *weaviate.Client
	embedder  Embedder
	className string
	pageSize  int
	locks     *keyLock
}

func NewStore(client *weaviate.Client, embedder Embedder, className string, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Store{
		client:    client,
		embedder:  embedder,
		className: className,
		pageSize:  pageSize,
		locks:     newKeyLock(),
	}
}

// ObjectID maps a chunk id to its Weaviate object UUID.
func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(chunkID)).String())
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewClientAdapter(s.client), s.className)
}

// Upsert embeds every record and writes them in one batch. Existing objects
// with the same chunk id are replaced.
func (s *Store) Upsert(ctx context.Context, records []chunk.Record) error {
	ctx, span := middleware.StartSpan(ctx, "Store.Upsert", attribute.Int("records", len(records)))
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, rec := range records {
		vec, err := s.embedder.Embed(ctx, rec.Text)
		if err != nil {
			err = fmt.Errorf("%w: embed chunk %s: %v", apperror.ErrStore, rec.ID, err)
			middleware.AddSpanError(ctx, err)
			return err
		}
		objects = append(objects, &models.Object{
			Class:      s.className,
			ID:         ObjectID(rec.ID),
			Properties: rec.Properties,
			Vector:     vec,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		err = fmt.Errorf("%w: batch upsert: %v", apperror.ErrStore, err)
		middleware.AddSpanError(ctx, err)
		return err
	}

	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %s", r.ID, e.Message))
			}
		}
	}
	if len(msgs) > 0 {
		err = fmt.Errorf("%w: batch upsert rejected %d object(s): %s", apperror.ErrStore, len(msgs), strings.Join(msgs, "; "))
		middleware.AddSpanError(ctx, err)
		return err
	}
	return nil
}

// QuerySimilar returns the k nearest chunks to queryText in store order.
func (s *Store) QuerySimilar(ctx context.Context, queryText string, k int) ([]chunk.Candidate, error) {
	ctx, span := middleware.StartSpan(ctx, "Store.QuerySimilar", attribute.Int("k", k))
	defer span.End()

	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		err = fmt.Errorf("%w: embed query: %v", apperror.ErrStore, err)
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(chunkFields("id", "distance")...).
		Do(ctx)
	rows, err := s.rows(res, err)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	candidates := make([]chunk.Candidate, 0, len(rows))
	for _, row := range rows {
		c := chunk.Candidate{Chunk: chunk.FromProperties(row)}
		if additional, ok := row["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				c.Distance = d
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// GetAll scans the whole class with cursor pagination.
func (s *Store) GetAll(ctx context.Context) ([]chunk.Chunk, error) {
	ctx, span := middleware.StartSpan(ctx, "Store.GetAll")
	defer span.End()

	var all []chunk.Chunk
	after := ""
	for {
		q := s.client.GraphQL().Get().
			WithClassName(s.className).
			WithLimit(s.pageSize).
			WithFields(chunkFields("id")...)
		if after != "" {
			q = q.WithAfter(after)
		}

		rows, err := s.rows(q.Do(ctx))
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return nil, err
		}
		for _, row := range rows {
			all = append(all, chunk.FromProperties(row))
		}
		if len(rows) < s.pageSize {
			break
		}
		after = objectIDOf(rows[len(rows)-1])
		if after == "" {
			break
		}
	}
	span.SetAttributes(attribute.Int("chunks", len(all)))
	return all, nil
}

// GetByDocumentID returns every chunk whose source document id equals docID.
func (s *Store) GetByDocumentID(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	ctx, span := middleware.StartSpan(ctx, "Store.GetByDocumentID", attribute.String("source_doc_id", docID))
	defer span.End()

	where := filters.Where().
		WithPath([]string{chunk.PropSourceDocID}).
		WithOperator(filters.Equal).
		WithValueText(docID)

	var out []chunk.Chunk
	for offset := 0; ; offset += s.pageSize {
		rows, err := s.rows(s.client.GraphQL().Get().
			WithClassName(s.className).
			WithWhere(where).
			WithLimit(s.pageSize).
			WithOffset(offset).
			WithFields(chunkFields()...).
			Do(ctx))
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return nil, err
		}
		for _, row := range rows {
			out = append(out, chunk.FromProperties(row))
		}
		if len(rows) < s.pageSize {
			break
		}
	}
	return out, nil
}

// IncrementUsage adds one to the usage count of each id. Ids are processed
// independently and failures are returned, never aborting the rest.
// Increments of the same id are serialized within this process.
func (s *Store) IncrementUsage(ctx context.Context, ids []string) []chunk.UsageFailure {
	ctx, span := middleware.StartSpan(ctx, "Store.IncrementUsage", attribute.Int("ids", len(ids)))
	defer span.End()

	var failures []chunk.UsageFailure
	for _, id := range ids {
		if err := s.incrementOne(ctx, id); err != nil {
			failures = append(failures, chunk.UsageFailure{ID: id, Err: err})
		}
	}
	if len(failures) > 0 {
		span.SetAttributes(attribute.Int("failures", len(failures)))
	}
	return failures
}

func (s *Store) incrementOne(ctx context.Context, id string) error {
	if s.locks != nil {
		unlock := s.locks.Lock(id)
		defer unlock()
	}

	objID := ObjectID(id)
	objs, err := s.client.Data().ObjectsGetter().
		WithClassName(s.className).
		WithID(objID.String()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: read chunk %s: %v", apperror.ErrStore, id, err)
	}
	if len(objs) == 0 || objs[0] == nil {
		return fmt.Errorf("%w: chunk %s", apperror.ErrNotFound, id)
	}

	props, _ := objs[0].Properties.(map[string]interface{})
	next := chunk.IntProp(props, chunk.PropUsageCount) + 1

	err = s.client.Data().Updater().
		WithMerge().
		WithClassName(s.className).
		WithID(objID.String()).
		WithProperties(map[string]interface{}{chunk.PropUsageCount: next}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: write usage for chunk %s: %v", apperror.ErrStore, id, err)
	}
	return nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: aggregate: %v", apperror.ErrStore, err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("%w: graphql error: %s", apperror.ErrStore, res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[s.className].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	return chunk.IntProp(meta, "count"), nil
}

// rows unwraps a GraphQL Get response into the object list of the class.
func (s *Store) rows(res *models.GraphQLResponse, err error) ([]map[string]interface{}, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrStore, err)
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: graphql error: %s", apperror.ErrStore, strings.Join(msgs, "; "))
	}

	get, _ := res.Data["Get"].(map[string]interface{})
	raw, _ := get[s.className].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out, nil
}

func chunkFields(additional ...string) []graphql.Field {
	fields := []graphql.Field{
		{Name: chunk.PropChunkID},
		{Name: chunk.PropContent},
		{Name: chunk.PropSourceDocID},
		{Name: chunk.PropChunkIndex},
		{Name: chunk.PropSectionHeading},
		{Name: chunk.PropJournal},
		{Name: chunk.PropDOI},
		{Name: chunk.PropPublishYear},
		{Name: chunk.PropLink},
		{Name: chunk.PropAttributes},
		{Name: chunk.PropUsageCount},
	}
	if len(additional) > 0 {
		extra := make([]graphql.Field, 0, len(additional))
		for _, a := range additional {
			extra = append(extra, graphql.Field{Name: a})
		}
		fields = append(fields, graphql.Field{Name: "_additional", Fields: extra})
	}
	return fields
}

func objectIDOf(row map[string]interface{}) string {
	additional, _ := row["_additional"].(map[string]interface{})
	id, _ := additional["id"].(string)
	return id
}
