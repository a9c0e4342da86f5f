// Package objectstore deletes video blobs from the S3-compatible object
// store (Cloudflare R2 in production). Absence is not a failure: deleting
// a blob that is already gone succeeds with existed_before=false.
package objectstore

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/deletion"
	"github.com/clipabit/deletion-service/internal/identifier"
)

// S3API is the subset of the S3 client the adapter needs.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Adapter implements deletion.ObjectStore on top of an S3-compatible
// client. It never retries: a delete call is one atomic backend
// operation, and retry policy belongs to the caller.
type Adapter struct {
	client S3API
}

var _ deletion.ObjectStore = (*Adapter)(nil)

// New creates an Adapter. The client should come from the shared AWS
// config (with the R2 endpoint override outside AWS).
func New(client S3API) *Adapter {
	return &Adapter{client: client}
}

// Delete checks existence, then deletes the blob if present. The returned
// outcome carries the pre-deletion size so callers can report bytes freed.
func (a *Adapter) Delete(ctx context.Context, loc identifier.Locator) (deletion.ObjectStoreOutcome, error) {
	out := deletion.ObjectStoreOutcome{Attempted: true}

	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &loc.Container,
		Key:    &loc.ObjectKey,
	})
	if err != nil {
		if isNotFound(err) {
			log.Info().Str("bucket", loc.Container).Str("key", loc.ObjectKey).Msg("Blob already absent, nothing to delete")
			return out, nil
		}
		return out, storageError(ctx, "HeadObject", err)
	}

	out.ExistedBefore = true
	out.BytesDeleted = aws.ToInt64(head.ContentLength)

	if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &loc.Container,
		Key:    &loc.ObjectKey,
	}); err != nil {
		return out, storageError(ctx, "DeleteObject", err)
	}

	out.Deleted = true
	log.Info().
		Str("bucket", loc.Container).
		Str("key", loc.ObjectKey).
		Int64("bytes", out.BytesDeleted).
		Msg("Blob deleted from object store")
	return out, nil
}

// ConfirmAbsent re-checks existence. Used only by verification.
func (a *Adapter) ConfirmAbsent(ctx context.Context, loc identifier.Locator) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &loc.Container,
		Key:    &loc.ObjectKey,
	})
	if err == nil {
		return false, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, storageError(ctx, "HeadObject", err)
}

// isNotFound reports whether err is the backend saying the object does
// not exist. R2 answers HeadObject with a bare 404, which smithy surfaces
// as a generic API error with code "NotFound".
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func storageError(ctx context.Context, op string, err error) error {
	return &deletion.StorageError{
		Backend: deletion.BackendObjectStore,
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:     err,
	}
}
