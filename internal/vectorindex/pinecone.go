package vectorindex

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeClient implements Client against a single Pinecone index host.
// An IndexConnection is created per call because the namespace is fixed
// at connection time; the underlying gRPC channel is pooled by the SDK.
type PineconeClient struct {
	client    *pinecone.Client
	host      string
	dimension int
}

// NewPineconeClient connects to the index at host. dimension must match
// the index dimension; metadata-only queries send a zero vector of that
// length.
func NewPineconeClient(apiKey, host string, dimension int) (*PineconeClient, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}
	return &PineconeClient{client: pc, host: host, dimension: dimension}, nil
}

func (c *PineconeClient) conn(namespace string) (*pinecone.IndexConnection, error) {
	idx, err := c.client.Index(pinecone.NewIndexConnParams{
		Host:      c.host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to index %s: %w", c.host, err)
	}
	return idx, nil
}

// ListByPrefix pages through vector ids starting with prefix.
func (c *PineconeClient) ListByPrefix(ctx context.Context, namespace, prefix string, limit int32, pageToken string) (ListPage, error) {
	idx, err := c.conn(namespace)
	if err != nil {
		return ListPage{}, err
	}

	limitU := uint32(limit)
	req := &pinecone.ListVectorsRequest{
		Prefix: &prefix,
		Limit:  &limitU,
	}
	if pageToken != "" {
		req.PaginationToken = &pageToken
	}

	resp, err := idx.ListVectors(ctx, req)
	if err != nil {
		return ListPage{}, fmt.Errorf("list vectors prefix=%s: %w", prefix, err)
	}

	page := ListPage{IDs: make([]string, 0, len(resp.VectorIds))}
	for _, id := range resp.VectorIds {
		if id != nil {
			page.IDs = append(page.IDs, *id)
		}
	}
	if resp.NextPaginationToken != nil {
		page.NextToken = *resp.NextPaginationToken
	}
	return page, nil
}

// QueryByMetadata returns the ids of records whose metadata field equals
// value. Pinecone has no metadata-only read, so this sends a zero vector
// with a filter and discards the scores.
func (c *PineconeClient) QueryByMetadata(ctx context.Context, namespace, field, value string, limit int32) ([]string, error) {
	idx, err := c.conn(namespace)
	if err != nil {
		return nil, err
	}

	filter, err := structpb.NewStruct(map[string]interface{}{
		field: map[string]interface{}{"$eq": value},
	})
	if err != nil {
		return nil, fmt.Errorf("build metadata filter: %w", err)
	}

	resp, err := idx.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:         make([]float32, c.dimension),
		TopK:           uint32(limit),
		MetadataFilter: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s=%s: %w", field, value, err)
	}

	ids := make([]string, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m != nil && m.Vector != nil {
			ids = append(ids, m.Vector.Id)
		}
	}
	log.Debug().Str("field", field).Str("value", value).Int("matches", len(ids)).Msg("Metadata query completed")
	return ids, nil
}

// DeleteByIDs removes the given vectors from the namespace.
func (c *PineconeClient) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	idx, err := c.conn(namespace)
	if err != nil {
		return err
	}
	if err := idx.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("delete %d vectors: %w", len(ids), err)
	}
	return nil
}
