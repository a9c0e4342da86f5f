package objectstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/clipabit/deletion-service/internal/deletion"
	"github.com/clipabit/deletion-service/internal/identifier"
)

type fakeS3 struct {
	headErr    error
	deleteErr  error
	size       int64
	headCalls  int
	delCalls   int
	deletedKey string
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.headCalls++
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(f.size)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.delCalls++
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deletedKey = aws.ToString(params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

var testLoc = identifier.Locator{Container: "videos", ObjectKey: "u42/clip9.mp4", VideoID: "u42-clip9"}

func TestDeleteExisting(t *testing.T) {
	fake := &fakeS3{size: 2048}
	a := New(fake)

	out, err := a.Delete(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Attempted || !out.ExistedBefore || !out.Deleted {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.BytesDeleted != 2048 {
		t.Errorf("expected 2048 bytes deleted, got %d", out.BytesDeleted)
	}
	if fake.deletedKey != "u42/clip9.mp4" {
		t.Errorf("deleted wrong key: %q", fake.deletedKey)
	}
}

func TestDeleteAbsentIsNotAnError(t *testing.T) {
	fake := &fakeS3{headErr: &types.NotFound{}}
	a := New(fake)

	out, err := a.Delete(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("absence must not be an error, got: %v", err)
	}
	if out.ExistedBefore || out.Deleted {
		t.Errorf("expected existed_before=false deleted=false, got %+v", out)
	}
	if fake.delCalls != 0 {
		t.Errorf("DeleteObject must not be called for an absent blob, called %d times", fake.delCalls)
	}
}

func TestDeleteHeadTransportFailure(t *testing.T) {
	fake := &fakeS3{headErr: fmt.Errorf("connection reset")}
	a := New(fake)

	out, err := a.Delete(context.Background(), testLoc)
	var serr *deletion.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if serr.Backend != deletion.BackendObjectStore {
		t.Errorf("expected backend %q, got %q", deletion.BackendObjectStore, serr.Backend)
	}
	if out.Deleted || out.ExistedBefore {
		t.Errorf("unexpected outcome on transport failure: %+v", out)
	}
}

func TestDeleteFailsAfterHead(t *testing.T) {
	fake := &fakeS3{size: 100, deleteErr: fmt.Errorf("access denied")}
	a := New(fake)

	out, err := a.Delete(context.Background(), testLoc)
	var serr *deletion.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !out.ExistedBefore || out.Deleted {
		t.Errorf("expected existed_before=true deleted=false, got %+v", out)
	}
}

func TestConfirmAbsent(t *testing.T) {
	absent := New(&fakeS3{headErr: &types.NotFound{}})
	ok, err := absent.ConfirmAbsent(context.Background(), testLoc)
	if err != nil || !ok {
		t.Errorf("expected absent=true, got ok=%v err=%v", ok, err)
	}

	present := New(&fakeS3{size: 1})
	ok, err = present.ConfirmAbsent(context.Background(), testLoc)
	if err != nil || ok {
		t.Errorf("expected absent=false, got ok=%v err=%v", ok, err)
	}

	broken := New(&fakeS3{headErr: fmt.Errorf("timeout")})
	if _, err := broken.ConfirmAbsent(context.Background(), testLoc); err == nil {
		t.Error("expected error from broken backend")
	}
}
