package deletion

import (
	"context"
	"time"

	"github.com/clipabit/deletion-service/internal/identifier"
)

// VideoRef identifies the chunk records belonging to one video. ID is the
// logical video id used as the chunk-id prefix; IdentifierForms holds the
// encoded-identifier padding variants under which the processing pipeline
// may have written the video_id metadata field.
type VideoRef struct {
	ID              string
	IdentifierForms []string
}

// ObjectStore deletes a single blob and can confirm its absence. A Delete
// call is one atomic backend operation: implementations never retry and
// never delete partially.
type ObjectStore interface {
	Delete(ctx context.Context, loc identifier.Locator) (ObjectStoreOutcome, error)
	ConfirmAbsent(ctx context.Context, loc identifier.Locator) (bool, error)
}

// VectorIndex discovers and bulk-deletes the chunk records of one video
// within a single namespace.
type VectorIndex interface {
	FindChunkIDs(ctx context.Context, video VideoRef, namespace string) ([]string, error)
	// DeleteByIDs removes the given records in backend-sized batches. On a
	// batch failure it returns the number of records confirmed deleted
	// before the failure alongside the error.
	DeleteByIDs(ctx context.Context, ids []string, namespace string) (int, error)
	ConfirmAbsent(ctx context.Context, video VideoRef, namespace string) (bool, error)
}

// ObjectStoreOutcome is the per-request result of the object-store path.
type ObjectStoreOutcome struct {
	Attempted     bool   `json:"attempted"`
	ExistedBefore bool   `json:"existed_before"`
	Deleted       bool   `json:"deleted"`
	BytesDeleted  int64  `json:"bytes_deleted,omitempty"`
	Error         string `json:"error,omitempty"`
}

// VectorIndexOutcome is the per-request result of the vector-index path.
type VectorIndexOutcome struct {
	Attempted     bool     `json:"attempted"`
	ChunksFound   int      `json:"chunks_found"`
	ChunksDeleted int      `json:"chunks_deleted"`
	ChunkIDs      []string `json:"chunk_ids,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// VerificationOutcome records the advisory post-deletion absence checks.
type VerificationOutcome struct {
	ObjectStoreConfirmedAbsent bool     `json:"object_store_confirmed_absent"`
	VectorIndexConfirmedAbsent bool     `json:"vector_index_confirmed_absent"`
	Issues                     []string `json:"issues,omitempty"`
}

// ErrorInfo is the structured error attached to a failed DeletionResult.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Result is the aggregate outcome of one deletion request. It is built
// once per request, immutable after construction, and never persisted.
type Result struct {
	Success           bool                 `json:"success"`
	NotFound          bool                 `json:"not_found"`
	PartialCompletion bool                 `json:"partial_completion,omitempty"`
	Canceled          bool                 `json:"canceled,omitempty"`
	HashedIdentifier  string               `json:"hashed_identifier"`
	VideoID           string               `json:"video_id,omitempty"`
	Namespace         string               `json:"namespace"`
	ObjectStore       ObjectStoreOutcome   `json:"object_store"`
	VectorIndex       VectorIndexOutcome   `json:"vector_index"`
	Verification      *VerificationOutcome `json:"verification,omitempty"`
	Error             *ErrorInfo           `json:"error,omitempty"`
	Timestamp         time.Time            `json:"timestamp"`
}
