package deletion

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/identifier"
	"github.com/clipabit/deletion-service/internal/policy"
)

var validID = base64.URLEncoding.EncodeToString([]byte("videos/u42/clip9.mp4"))

type fakeObjects struct {
	outcome    ObjectStoreOutcome
	err        error
	errOnCtx   bool // return ctx.Err() when the context is already done
	absent     bool
	confirmErr error

	deleteCalls  int
	confirmCalls int
}

func (f *fakeObjects) Delete(ctx context.Context, _ identifier.Locator) (ObjectStoreOutcome, error) {
	f.deleteCalls++
	if f.errOnCtx {
		<-ctx.Done()
		return ObjectStoreOutcome{Attempted: true}, ctx.Err()
	}
	return f.outcome, f.err
}

func (f *fakeObjects) ConfirmAbsent(ctx context.Context, _ identifier.Locator) (bool, error) {
	f.confirmCalls++
	return f.absent, f.confirmErr
}

type fakeVectors struct {
	ids        []string
	findErr    error
	deleted    int
	deleteErr  error
	absent     bool
	confirmErr error
	// waitForCancel makes discovery block until the context is canceled,
	// modelling an in-flight backend call.
	waitForCancel bool

	findCalls    int
	deleteCalls  int
	confirmCalls int
}

func (f *fakeVectors) FindChunkIDs(ctx context.Context, _ VideoRef, _ string) ([]string, error) {
	f.findCalls++
	if f.waitForCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.ids, f.findErr
}

func (f *fakeVectors) DeleteByIDs(ctx context.Context, ids []string, _ string) (int, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleted, f.deleteErr
	}
	return len(ids), nil
}

func (f *fakeVectors) ConfirmAbsent(ctx context.Context, _ VideoRef, _ string) (bool, error) {
	f.confirmCalls++
	return f.absent, f.confirmErr
}

func newOrchestrator(env string, objects *fakeObjects, vectors *fakeVectors) *Orchestrator {
	return New(policy.NewEnvironmentPolicy(env), objects, vectors, Config{})
}

func manyIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("u42-clip9#visual#%d", i)
	}
	return ids
}

func TestDeleteFullSuccess(t *testing.T) {
	objects := &fakeObjects{
		outcome: ObjectStoreOutcome{Attempted: true, ExistedBefore: true, Deleted: true, BytesDeleted: 4096},
		absent:  true,
	}
	vectors := &fakeVectors{ids: manyIDs(3), absent: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if !res.Success || res.NotFound {
		t.Fatalf("expected clean success, got %+v", res)
	}
	if !res.ObjectStore.Deleted || res.ObjectStore.BytesDeleted != 4096 {
		t.Errorf("unexpected object outcome: %+v", res.ObjectStore)
	}
	if res.VectorIndex.ChunksFound != 3 || res.VectorIndex.ChunksDeleted != 3 {
		t.Errorf("unexpected vector outcome: %+v", res.VectorIndex)
	}
	if res.Verification == nil ||
		!res.Verification.ObjectStoreConfirmedAbsent ||
		!res.Verification.VectorIndexConfirmedAbsent {
		t.Errorf("expected both backends verified absent, got %+v", res.Verification)
	}
	if res.VideoID != "u42-clip9" {
		t.Errorf("expected video id u42-clip9, got %q", res.VideoID)
	}
	if res.Namespace != "demo" {
		t.Errorf("expected namespace demo, got %q", res.Namespace)
	}
}

func TestDeleteChunkCounts(t *testing.T) {
	for _, n := range []int{0, 1, 100} {
		objects := &fakeObjects{
			outcome: ObjectStoreOutcome{Attempted: true, ExistedBefore: true, Deleted: true},
			absent:  true,
		}
		vectors := &fakeVectors{ids: manyIDs(n), absent: true}
		o := newOrchestrator("dev", objects, vectors)

		res := o.Delete(context.Background(), validID, "demo")
		if !res.Success {
			t.Fatalf("n=%d: expected success, got %+v", n, res)
		}
		if res.VectorIndex.ChunksFound != n || res.VectorIndex.ChunksDeleted != n {
			t.Errorf("n=%d: expected exactly %d chunks deleted, got %+v", n, n, res.VectorIndex)
		}
	}
}

func TestDeleteNotFoundInBothBackends(t *testing.T) {
	objects := &fakeObjects{
		outcome: ObjectStoreOutcome{Attempted: true},
		absent:  true,
	}
	vectors := &fakeVectors{absent: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if !res.Success {
		t.Fatalf("absence in both backends must be success, got %+v", res)
	}
	if !res.NotFound {
		t.Error("expected not_found=true")
	}
	if res.Error != nil {
		t.Errorf("expected no error, got %+v", res.Error)
	}
}

func TestDeleteInvalidIdentifier(t *testing.T) {
	objects := &fakeObjects{}
	vectors := &fakeVectors{}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), "!!!garbage!!!", "demo")

	if res.Success {
		t.Fatal("expected failure for invalid identifier")
	}
	if res.Error == nil || res.Error.Type != ErrTypeValidation {
		t.Errorf("expected Validation error, got %+v", res.Error)
	}
	if objects.deleteCalls+objects.confirmCalls+vectors.findCalls+vectors.deleteCalls+vectors.confirmCalls != 0 {
		t.Error("validation failure must not touch any backend")
	}
}

func TestDeleteDeniedByPolicy(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	objects := &fakeObjects{}
	vectors := &fakeVectors{}
	o := newOrchestrator("prod", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if res.Success {
		t.Fatal("expected denial in prod")
	}
	if res.Error == nil || res.Error.Type != ErrTypeAuthorization {
		t.Errorf("expected Authorization error, got %+v", res.Error)
	}
	if objects.deleteCalls+objects.confirmCalls+vectors.findCalls+vectors.deleteCalls+vectors.confirmCalls != 0 {
		t.Error("denied request must produce zero backend side effects")
	}
	if res.ObjectStore.Attempted || res.VectorIndex.Attempted {
		t.Errorf("expected attempted=false on both backends, got %+v", res)
	}
	if !strings.Contains(buf.String(), `"event":"security"`) {
		t.Errorf("expected a security log event, got %s", buf.String())
	}
}

func TestDeleteObjectStoreFailureSuppressesVectorPath(t *testing.T) {
	objects := &fakeObjects{
		err: &StorageError{Backend: BackendObjectStore, Op: "DeleteObject", Err: fmt.Errorf("connection reset")},
	}
	vectors := &fakeVectors{waitForCancel: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error == nil || res.Error.Type != ErrTypeStorage {
		t.Errorf("expected Storage error, got %+v", res.Error)
	}
	if res.VectorIndex.Attempted {
		t.Error("vector path must be reported as not attempted after object-store failure")
	}
	if vectors.deleteCalls != 0 {
		t.Errorf("vector delete must never be invoked after object-store failure, called %d times", vectors.deleteCalls)
	}
	if res.Verification != nil {
		t.Error("verification must not run after a failed deletion")
	}
}

func TestDeleteVectorFailureAfterObjectSuccess(t *testing.T) {
	objects := &fakeObjects{
		outcome: ObjectStoreOutcome{Attempted: true, ExistedBefore: true, Deleted: true},
	}
	vectors := &fakeVectors{
		ids:       manyIDs(60),
		deleted:   40,
		deleteErr: &StorageError{Backend: BackendVectorIndex, Op: "DeleteByIDs", Err: fmt.Errorf("batch rejected")},
	}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if res.Success {
		t.Fatal("expected failure")
	}
	if !res.ObjectStore.Deleted {
		t.Error("object-store success must still be reported")
	}
	if res.VectorIndex.ChunksFound != 60 || res.VectorIndex.ChunksDeleted != 40 {
		t.Errorf("expected partial completion 40/60, got %+v", res.VectorIndex)
	}
	if !res.PartialCompletion {
		t.Error("expected partial_completion flag")
	}
	if res.Error == nil || res.Error.Type != ErrTypeStorage {
		t.Errorf("expected Storage error, got %+v", res.Error)
	}
}

func TestDeleteVerificationFindsResidue(t *testing.T) {
	objects := &fakeObjects{
		outcome: ObjectStoreOutcome{Attempted: true, ExistedBefore: true, Deleted: true},
		absent:  false, // blob still there after a reported success
	}
	vectors := &fakeVectors{ids: manyIDs(2), absent: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if res.Success {
		t.Fatal("a backend still reporting the resource present must fail the request")
	}
	if res.Error == nil || res.Error.Type != ErrTypeConsistency {
		t.Errorf("expected Consistency error, got %+v", res.Error)
	}
	// Backend-level outcomes stay as reported by the deletion calls.
	if !res.ObjectStore.Deleted || res.VectorIndex.ChunksDeleted != 2 {
		t.Errorf("verification must not rewrite backend outcomes: %+v", res)
	}
	if res.Verification == nil || len(res.Verification.Issues) == 0 {
		t.Error("expected verification issues to be recorded")
	}
}

func TestDeleteVerificationTransportErrorIsAdvisory(t *testing.T) {
	objects := &fakeObjects{
		outcome:    ObjectStoreOutcome{Attempted: true, ExistedBefore: true, Deleted: true},
		confirmErr: fmt.Errorf("verification endpoint unreachable"),
	}
	vectors := &fakeVectors{absent: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(context.Background(), validID, "demo")

	if !res.Success {
		t.Fatalf("a verification transport failure must stay advisory, got %+v", res.Error)
	}
	if res.Verification == nil || len(res.Verification.Issues) == 0 {
		t.Error("expected the verification error recorded as an issue")
	}
	if res.Verification.ObjectStoreConfirmedAbsent {
		t.Error("unverifiable backend must not be reported as confirmed absent")
	}
	// Idempotent reads are retried once by default.
	if objects.confirmCalls != 2 {
		t.Errorf("expected 2 confirm attempts, got %d", objects.confirmCalls)
	}
}

func TestDeleteCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	objects := &fakeObjects{errOnCtx: true}
	vectors := &fakeVectors{waitForCancel: true}
	o := newOrchestrator("dev", objects, vectors)

	res := o.Delete(ctx, validID, "demo")

	if res.Success {
		t.Fatal("expected failure on caller cancellation")
	}
	if !res.Canceled {
		t.Error("a canceled deletion must be reported distinctly from a failed one")
	}
	// The mutation may already have been issued, so the path counts as
	// attempted with an unknown outcome.
	if !res.ObjectStore.Attempted {
		t.Error("expected object path reported as attempted")
	}
	if res.ObjectStore.Deleted {
		t.Error("a canceled deletion must not claim the blob was deleted")
	}
}
