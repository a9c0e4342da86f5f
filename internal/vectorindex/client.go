// Package vectorindex discovers and bulk-deletes the derived-embedding
// chunk records of a video in the Pinecone index. Every call is scoped to
// exactly one namespace; the package never touches records across
// namespaces.
package vectorindex

import "context"

// ListPage is one page of chunk ids from a prefix listing.
type ListPage struct {
	IDs       []string
	NextToken string
}

// Client is the thin vector-index client surface the adapter consumes:
// paginated id listing by prefix, metadata-filtered query, and bulk
// delete-by-id. Implemented by PineconeClient; faked in tests.
type Client interface {
	ListByPrefix(ctx context.Context, namespace, prefix string, limit int32, pageToken string) (ListPage, error)
	QueryByMetadata(ctx context.Context, namespace, field, value string, limit int32) ([]string, error)
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error
}
