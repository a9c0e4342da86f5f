// Package deletion coordinates hard-deleting a video across the object
// store and the vector index. The two backends share no transaction, so
// the orchestrator treats the request as a saga with no compensating
// actions: partial failure is surfaced in the result, never masked as
// total success or total failure.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/identifier"
	"github.com/clipabit/deletion-service/internal/policy"
)

// Request states. Terminal states are DONE, REJECTED, and FAILED.
type state string

const (
	stateValidating  state = "VALIDATING"
	stateAuthorizing state = "AUTHORIZING"
	stateDeleting    state = "DELETING"
	stateVerifying   state = "VERIFYING"
	stateDone        state = "DONE"
	stateRejected    state = "REJECTED"
	stateFailed      state = "FAILED"
)

// Config carries the orchestrator's tunables. The zero value is usable;
// unset fields fall back to the defaults below.
type Config struct {
	// ObjectTimeout bounds the single-object delete and existence calls.
	ObjectTimeout time.Duration
	// VectorTimeout bounds discovery plus bulk delete, which paginate and
	// batch and therefore run longer than object-store calls.
	VectorTimeout time.Duration
	// VerifyTimeout bounds each post-deletion absence check.
	VerifyTimeout time.Duration
	// VerifyRetries is how many times an idempotent verification read is
	// retried after a transport failure. Delete mutations are never
	// retried.
	VerifyRetries int
}

const (
	defaultObjectTimeout = 10 * time.Second
	defaultVectorTimeout = 60 * time.Second
	defaultVerifyTimeout = 30 * time.Second
	defaultVerifyRetries = 1
)

func (c Config) withDefaults() Config {
	if c.ObjectTimeout <= 0 {
		c.ObjectTimeout = defaultObjectTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = defaultVectorTimeout
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = defaultVerifyTimeout
	}
	if c.VerifyRetries <= 0 {
		c.VerifyRetries = defaultVerifyRetries
	}
	return c
}

// Orchestrator runs the per-request deletion state machine:
// VALIDATING → AUTHORIZING → DELETING → VERIFYING → DONE.
type Orchestrator struct {
	policy  *policy.EnvironmentPolicy
	objects ObjectStore
	vectors VectorIndex
	cfg     Config
	now     func() time.Time
}

// New wires an Orchestrator from its collaborators.
func New(p *policy.EnvironmentPolicy, objects ObjectStore, vectors VectorIndex, cfg Config) *Orchestrator {
	return &Orchestrator{
		policy:  p,
		objects: objects,
		vectors: vectors,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

type objResult struct {
	outcome ObjectStoreOutcome
	err     error
}

type vecResult struct {
	outcome VectorIndexOutcome
	err     error
}

// Delete removes the video addressed by encodedID and every chunk record
// tied to it in the given namespace, then verifies absence in both
// backends. It always returns a fully populated Result; the error
// taxonomy is carried inside the Result, not as a Go error.
func (o *Orchestrator) Delete(ctx context.Context, encodedID, namespace string) Result {
	logTransition(stateValidating, encodedID, namespace)

	loc, err := identifier.Decode(encodedID)
	if err != nil {
		verr := &ValidationError{Reason: "invalid identifier", Err: err}
		log.Error().Err(err).Str("identifier", encodedID).Msg("Identifier rejected")
		return o.rejected(encodedID, namespace, ErrTypeValidation, verr.Error())
	}

	logTransition(stateAuthorizing, encodedID, namespace)

	if !o.policy.IsDeletionAllowed() {
		reason := o.policy.ExplainDenial()
		log.Warn().
			Str("event", "security").
			Str("identifier", encodedID).
			Str("namespace", namespace).
			Str("environment", o.policy.Environment()).
			Str("reason", reason).
			Msg("Unauthorized deletion attempt blocked")
		return o.rejected(encodedID, namespace, ErrTypeAuthorization, reason)
	}

	logTransition(stateDeleting, encodedID, namespace)

	video := VideoRef{
		ID:              loc.VideoID,
		IdentifierForms: identifier.CanonicalForms(encodedID),
	}

	// The two backend paths touch disjoint resources and run in parallel.
	// Results come back over buffered channels so neither goroutine leaks
	// when its outcome is abandoned.
	objCh := make(chan objResult, 1)
	vecCh := make(chan vecResult, 1)

	vecCtx, cancelVec := context.WithCancel(ctx)
	defer cancelVec()

	go func() {
		octx, cancel := context.WithTimeout(ctx, o.cfg.ObjectTimeout)
		defer cancel()
		out, err := o.objects.Delete(octx, loc)
		objCh <- objResult{outcome: out, err: err}
	}()

	go func() {
		vctx, cancel := context.WithTimeout(vecCtx, o.cfg.VectorTimeout)
		defer cancel()
		out, err := o.deleteChunks(vctx, video, namespace)
		vecCh <- vecResult{outcome: out, err: err}
	}()

	obj := <-objCh
	if obj.err != nil {
		// Fail fast on the primary backend: the vector path for this
		// request is canceled and its outcome discarded, reported as
		// not attempted.
		cancelVec()
		obj.outcome.Error = obj.err.Error()
		res := o.baseResult(encodedID, loc, namespace)
		res.ObjectStore = obj.outcome
		res.VectorIndex = VectorIndexOutcome{Attempted: false}
		res.Canceled = wasCanceled(ctx, obj.err)
		res.Error = &ErrorInfo{Type: ErrTypeStorage, Message: obj.err.Error()}
		logOutcome(stateFailed, res)
		return res
	}

	vec := <-vecCh
	if vec.err != nil {
		vec.outcome.Error = vec.err.Error()
		res := o.baseResult(encodedID, loc, namespace)
		res.ObjectStore = obj.outcome
		res.VectorIndex = vec.outcome
		res.PartialCompletion = vec.outcome.ChunksDeleted < vec.outcome.ChunksFound
		res.Canceled = wasCanceled(ctx, vec.err)
		res.Error = &ErrorInfo{
			Type:    ErrTypeStorage,
			Message: fmt.Sprintf("object store deletion succeeded but vector index failed: %v", vec.err),
		}
		logOutcome(stateFailed, res)
		return res
	}

	logTransition(stateVerifying, encodedID, namespace)

	verification, stillPresent := o.verify(ctx, loc, video, namespace)

	res := o.baseResult(encodedID, loc, namespace)
	res.ObjectStore = obj.outcome
	res.VectorIndex = vec.outcome
	res.Verification = &verification
	res.NotFound = !obj.outcome.ExistedBefore && vec.outcome.ChunksFound == 0
	res.Success = true

	// A backend definitively reporting the resource present after a
	// successful delete is a surfaced inconsistency. Verification
	// transport failures stay advisory.
	if len(stillPresent) > 0 {
		res.Success = false
		res.Error = &ErrorInfo{
			Type:    ErrTypeConsistency,
			Message: (&ConsistencyError{Issues: stillPresent}).Error(),
		}
		logOutcome(stateFailed, res)
		return res
	}

	logOutcome(stateDone, res)
	return res
}

// deleteChunks runs discovery plus bulk delete for the vector-index path.
// Zero chunks found is success: a video may have been only partially
// processed, or search metadata may never have been written.
func (o *Orchestrator) deleteChunks(ctx context.Context, video VideoRef, namespace string) (VectorIndexOutcome, error) {
	out := VectorIndexOutcome{Attempted: true}

	ids, err := o.vectors.FindChunkIDs(ctx, video, namespace)
	if err != nil {
		return out, err
	}
	out.ChunksFound = len(ids)
	out.ChunkIDs = ids

	if len(ids) == 0 {
		return out, nil
	}

	deleted, err := o.vectors.DeleteByIDs(ctx, ids, namespace)
	out.ChunksDeleted = deleted
	if err != nil {
		return out, err
	}
	return out, nil
}

// verify re-checks absence in both backends. It returns the advisory
// outcome plus the subset of issues where a backend definitively reported
// the resource still present.
func (o *Orchestrator) verify(ctx context.Context, loc identifier.Locator, video VideoRef, namespace string) (VerificationOutcome, []string) {
	out := VerificationOutcome{}
	var stillPresent []string

	objAbsent, err := retryRead(o.cfg.VerifyRetries, func() (bool, error) {
		vctx, cancel := context.WithTimeout(ctx, o.cfg.VerifyTimeout)
		defer cancel()
		return o.objects.ConfirmAbsent(vctx, loc)
	})
	switch {
	case err != nil:
		out.Issues = append(out.Issues, fmt.Sprintf("object store verification error: %v", err))
	case !objAbsent:
		issue := "object store still reports the blob present after deletion"
		out.Issues = append(out.Issues, issue)
		stillPresent = append(stillPresent, issue)
	default:
		out.ObjectStoreConfirmedAbsent = true
	}

	vecAbsent, err := retryRead(o.cfg.VerifyRetries, func() (bool, error) {
		vctx, cancel := context.WithTimeout(ctx, o.cfg.VerifyTimeout)
		defer cancel()
		return o.vectors.ConfirmAbsent(vctx, video, namespace)
	})
	switch {
	case err != nil:
		out.Issues = append(out.Issues, fmt.Sprintf("vector index verification error: %v", err))
	case !vecAbsent:
		issue := "vector index still reports chunk records present after deletion"
		out.Issues = append(out.Issues, issue)
		stillPresent = append(stillPresent, issue)
	default:
		out.VectorIndexConfirmedAbsent = true
	}

	if len(out.Issues) > 0 {
		log.Warn().Strs("issues", out.Issues).Str("videoId", video.ID).Msg("Deletion verification issues")
	} else {
		log.Info().Str("videoId", video.ID).Msg("Deletion verified: both backends confirmed absent")
	}
	return out, stillPresent
}

// retryRead runs an idempotent read, retrying up to retries times on
// error. Mutations never go through this path.
func retryRead(retries int, fn func() (bool, error)) (bool, error) {
	var (
		ok  bool
		err error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		ok, err = fn()
		if err == nil {
			return ok, nil
		}
	}
	return ok, err
}

func (o *Orchestrator) baseResult(encodedID string, loc identifier.Locator, namespace string) Result {
	return Result{
		HashedIdentifier: encodedID,
		VideoID:          loc.VideoID,
		Namespace:        namespace,
		Timestamp:        o.now().UTC(),
	}
}

// rejected builds the terminal REJECTED result: neither backend was
// touched.
func (o *Orchestrator) rejected(encodedID, namespace, errType, message string) Result {
	res := Result{
		HashedIdentifier: encodedID,
		Namespace:        namespace,
		ObjectStore:      ObjectStoreOutcome{Attempted: false},
		VectorIndex:      VectorIndexOutcome{Attempted: false},
		Error:            &ErrorInfo{Type: errType, Message: message},
		Timestamp:        o.now().UTC(),
	}
	logOutcome(stateRejected, res)
	return res
}

func wasCanceled(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}

func logTransition(s state, encodedID, namespace string) {
	log.Debug().
		Str("state", string(s)).
		Str("identifier", encodedID).
		Str("namespace", namespace).
		Msg("Deletion state transition")
}

func logOutcome(s state, res Result) {
	evt := log.Info()
	if s == stateFailed || s == stateRejected {
		evt = log.Error()
	}
	evt.
		Str("state", string(s)).
		Str("identifier", res.HashedIdentifier).
		Str("namespace", res.Namespace).
		Bool("success", res.Success).
		Bool("notFound", res.NotFound).
		Bool("objectDeleted", res.ObjectStore.Deleted).
		Int("chunksFound", res.VectorIndex.ChunksFound).
		Int("chunksDeleted", res.VectorIndex.ChunksDeleted).
		Msg("Deletion request finished")
}
