package vectorindex

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/deletion"
)

// metadataField is the chunk metadata field carrying the producer's
// encoded video identifier.
const metadataField = "video_id"

// chunkIDSeparator joins video id, modality tag, and sequence number in a
// chunk record id, e.g. "u42-clip9#visual#0".
const chunkIDSeparator = "#"

// Options tunes the adapter's paging and batching. Zero values fall back
// to the defaults below.
type Options struct {
	// PageLimit is the per-call limit for prefix listing.
	PageLimit int32
	// QueryLimit caps a single metadata-filtered query.
	QueryLimit int32
	// BatchSize bounds one bulk-delete call; the backend enforces a
	// per-call ceiling, so larger id sets are split.
	BatchSize int
}

const (
	defaultPageLimit  = 100
	defaultQueryLimit = 1000
	defaultBatchSize  = 1000
)

func (o Options) withDefaults() Options {
	if o.PageLimit <= 0 {
		o.PageLimit = defaultPageLimit
	}
	if o.QueryLimit <= 0 {
		o.QueryLimit = defaultQueryLimit
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	return o
}

// Adapter implements deletion.VectorIndex. Discovery unions two views of
// the index: an id-prefix listing (chunk ids embed the video id) and a
// metadata-filtered query per identifier padding variant, which catches
// records written before the prefix convention existed.
type Adapter struct {
	client Client
	opts   Options
}

var _ deletion.VectorIndex = (*Adapter)(nil)

// New creates an Adapter over the given client.
func New(client Client, opts Options) *Adapter {
	return &Adapter{client: client, opts: opts.withDefaults()}
}

// FindChunkIDs returns the complete set of chunk record ids belonging to
// the video in the namespace, pagination handled internally. Identifier
// variants are tried in order; the first variant yielding matches wins.
func (a *Adapter) FindChunkIDs(ctx context.Context, video deletion.VideoRef, namespace string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(found []string) {
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	prefixIDs, err := a.listAllByPrefix(ctx, namespace, video.ID+chunkIDSeparator)
	if err != nil {
		return nil, err
	}
	add(prefixIDs)

	for _, form := range video.IdentifierForms {
		matched, err := a.client.QueryByMetadata(ctx, namespace, metadataField, form, a.opts.QueryLimit)
		if err != nil {
			return nil, storageError(ctx, "QueryByMetadata", err)
		}
		if len(matched) > 0 {
			add(matched)
			break
		}
	}

	sort.Strings(ids)
	log.Debug().
		Str("videoId", video.ID).
		Str("namespace", namespace).
		Int("chunks", len(ids)).
		Msg("Chunk discovery completed")
	return ids, nil
}

// DeleteByIDs bulk-deletes in backend-sized batches. A batch failure
// aborts the remaining batches; the returned count is the number of
// records confirmed deleted before the failure.
func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, namespace string) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += a.opts.BatchSize {
		end := start + a.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if err := a.client.DeleteByIDs(ctx, namespace, batch); err != nil {
			log.Error().
				Err(err).
				Str("namespace", namespace).
				Int("deletedSoFar", deleted).
				Int("batchSize", len(batch)).
				Msg("Bulk delete batch failed, aborting remaining batches")
			return deleted, storageError(ctx, "DeleteByIDs", err)
		}
		deleted += len(batch)
		log.Debug().Str("namespace", namespace).Int("deleted", deleted).Int("total", len(ids)).Msg("Bulk delete batch completed")
	}
	return deleted, nil
}

// ConfirmAbsent re-runs discovery. Unlike FindChunkIDs it always checks
// every identifier variant: true absence means all of them come back
// empty.
func (a *Adapter) ConfirmAbsent(ctx context.Context, video deletion.VideoRef, namespace string) (bool, error) {
	page, err := a.client.ListByPrefix(ctx, namespace, video.ID+chunkIDSeparator, a.opts.PageLimit, "")
	if err != nil {
		return false, storageError(ctx, "ListByPrefix", err)
	}
	if len(page.IDs) > 0 {
		return false, nil
	}

	for _, form := range video.IdentifierForms {
		matched, err := a.client.QueryByMetadata(ctx, namespace, metadataField, form, a.opts.QueryLimit)
		if err != nil {
			return false, storageError(ctx, "QueryByMetadata", err)
		}
		if len(matched) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (a *Adapter) listAllByPrefix(ctx context.Context, namespace, prefix string) ([]string, error) {
	var ids []string
	token := ""
	for {
		page, err := a.client.ListByPrefix(ctx, namespace, prefix, a.opts.PageLimit, token)
		if err != nil {
			return nil, storageError(ctx, "ListByPrefix", err)
		}
		ids = append(ids, page.IDs...)
		if page.NextToken == "" {
			return ids, nil
		}
		token = page.NextToken
	}
}

func storageError(ctx context.Context, op string, err error) error {
	return &deletion.StorageError{
		Backend: deletion.BackendVectorIndex,
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:     err,
	}
}
