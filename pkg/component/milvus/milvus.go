// Package milvus wraps the Milvus v2 SDK for docmind's document vectors.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docmind/pkg/options/milvus"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// VectorField is the name of the embedding column.
const VectorField = "embedding"

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// remoteErr keeps the gRPC status of a failed call so callers can map it.
func remoteErr(msg string, err error) error {
	return errors.FromGRPC(fmt.Errorf("%s: %w", msg, err), errors.ErrVectorStore)
}

// CollectionSchema defines the schema for a vector collection.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	Metric      entity.MetricType
	MetaFields  []MetaField
}

// MetaField defines a scalar field stored next to the vector.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // VARCHAR only
}

// EnsureCollection creates the collection and its index when missing, then loads it.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		if err := c.createCollection(ctx, schema); err != nil {
			return err
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

func (c *Client) createCollection(ctx context.Context, schema *CollectionSchema) error {
	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(true)

	collSchema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true),
	)
	collSchema.WithField(
		entity.NewField().
			WithName(VectorField).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)
	for _, f := range schema.MetaFields {
		field := entity.NewField().
			WithName(f.Name).
			WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	metric := schema.Metric
	if metric == "" {
		metric = entity.IP
	}
	idx := index.NewIvfFlatIndex(metric, 128)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, VectorField, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}
	return nil
}

// InsertData represents rows to be inserted into a collection.
type InsertData struct {
	Embeddings [][]float32
	Metadata   map[string][]any
}

// Insert inserts vectors and metadata and flushes so the rows are searchable on return.
func (c *Client) Insert(ctx context.Context, collectionName string, data *InsertData) ([]int64, error) {
	if data == nil || len(data.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings to insert")
	}

	columns := make([]column.Column, 0, len(data.Metadata)+1)
	columns = append(columns, column.NewColumnFloatVector(VectorField, len(data.Embeddings[0]), data.Embeddings))

	for name, values := range data.Metadata {
		col, err := metadataColumn(name, values)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	result, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...))
	if err != nil {
		return nil, remoteErr("failed to insert data", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return nil, remoteErr("failed to flush collection", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return nil, remoteErr("failed to wait for flush", err)
	}

	if ids, ok := result.IDs.(*column.ColumnInt64); ok {
		return ids.Data(), nil
	}
	return nil, nil
}

func metadataColumn(name string, values []any) (column.Column, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty metadata column %s", name)
	}
	switch v := values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, val := range values {
			out[i] = val.(string)
		}
		return column.NewColumnVarChar(name, out), nil
	case int64:
		out := make([]int64, len(values))
		for i, val := range values {
			out[i] = val.(int64)
		}
		return column.NewColumnInt64(name, out), nil
	case float32:
		out := make([]float32, len(values))
		for i, val := range values {
			out[i] = val.(float32)
		}
		return column.NewColumnFloat(name, out), nil
	default:
		return nil, fmt.Errorf("unsupported metadata type: %T for field %s", v, name)
	}
}

// SearchRequest describes a filtered top-k query.
type SearchRequest struct {
	Collection   string
	Vector       []float32
	TopK         int
	Filter       string
	OutputFields []string
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID       int64
	Score    float32
	Metadata map[string]any
}

// Search performs a vector similarity search.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	opt := milvusclient.NewSearchOption(
		req.Collection,
		req.TopK,
		[]entity.Vector{entity.FloatVector(req.Vector)},
	).WithANNSField(VectorField).
		WithSearchParam("nprobe", "16").
		WithOutputFields(req.OutputFields...)
	if req.Filter != "" {
		opt = opt.WithFilter(req.Filter)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, remoteErr("failed to search", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	out := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		r := SearchResult{
			Score:    rs.Scores[i],
			Metadata: make(map[string]any),
		}
		if idCol, ok := rs.IDs.(*column.ColumnInt64); ok {
			r.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				r.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				r.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnFloat:
				r.Metadata[col.Name()] = col.Data()[i]
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteByFilter deletes the rows matched by expr.
func (c *Client) DeleteByFilter(ctx context.Context, collectionName, expr string) error {
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithExpr(expr)); err != nil {
		return remoteErr("failed to delete by filter", err)
	}
	return nil
}

// RowCount returns the number of entities in a collection.
func (c *Client) RowCount(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, remoteErr("failed to get collection stats", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
