package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/deletion"
	"github.com/clipabit/deletion-service/internal/jobstore"
)

// defaultNamespace is the vector-index partition used when the caller does
// not name one. It matches the partition the ingestion pipeline writes to.
const defaultNamespace = "web-demo"

// dispatchWorker sends a job to the Worker Lambda. Package-level so tests
// can substitute a fake.
var dispatchWorker = invokeWorkerAsync

// --- Health ---

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "clipabit-deletion-service",
	})
}

// --- Video Deletion ---

// DELETE /api/videos/{hashed_identifier}?namespace=...&mode=async
//
// The path segment is the URL-safe base64 identifier produced at upload
// time; it is decoded and validated by the orchestrator, never here.
func handleVideoRoutes(w http.ResponseWriter, r *http.Request) {
	hashedID := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	if hashedID == "" || strings.Contains(hashedID, "/") {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = defaultNamespace
	}

	if r.URL.Query().Get("mode") == "async" {
		handleDeleteAsync(w, r, hashedID, namespace)
		return
	}

	result := orch.Delete(r.Context(), hashedID, namespace)
	respondJSON(w, statusForResult(result), deletionResponse(result))
}

// handleDeleteAsync records a processing job and hands the deletion to the
// Worker Lambda. The client polls GET /api/jobs/{jobId}.
func handleDeleteAsync(w http.ResponseWriter, r *http.Request, hashedID, namespace string) {
	if workerLambdaArn == "" {
		httpError(w, http.StatusServiceUnavailable, "async deletion not available")
		return
	}

	job := &jobstore.Job{
		ID:               "del-" + uuid.NewString(),
		HashedIdentifier: hashedID,
		Namespace:        namespace,
	}
	if err := jobs.CreateJob(r.Context(), job); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to create deletion job", err.Error())
		return
	}

	if err := dispatchWorker(r.Context(), map[string]interface{}{
		"type":             "delete",
		"jobId":            job.ID,
		"hashedIdentifier": hashedID,
		"namespace":        namespace,
	}); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to start deletion job", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.ID,
		"status": jobstore.StatusProcessing,
	})
}

// statusForResult maps the orchestrator's error taxonomy onto HTTP status
// codes. A completed deletion where nothing existed is still 200: DELETE
// is idempotent at the API surface.
func statusForResult(res deletion.Result) int {
	if res.Error == nil {
		return http.StatusOK
	}
	switch res.Error.Type {
	case deletion.ErrTypeValidation:
		return http.StatusBadRequest
	case deletion.ErrTypeAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// deletionResponse shapes the response body. Successful deletions return
// the result as-is; failures return the structured error with per-backend
// status details.
func deletionResponse(res deletion.Result) interface{} {
	if res.Error == nil {
		return res
	}
	return map[string]interface{}{
		"type":    res.Error.Type,
		"message": res.Error.Message,
		"details": map[string]interface{}{
			"identifier":          res.HashedIdentifier,
			"partition":           res.Namespace,
			"object_store_status": outcomeStatus(res.ObjectStore.Attempted, res.ObjectStore.Error),
			"vector_index_status": outcomeStatus(res.VectorIndex.Attempted, res.VectorIndex.Error),
			"specific_error":      res.Error.Message,
		},
	}
}

func outcomeStatus(attempted bool, backendErr string) string {
	switch {
	case !attempted:
		return "not_attempted"
	case backendErr != "":
		return "failed: " + backendErr
	default:
		return "completed"
	}
}

// --- Job Polling ---

// GET /api/jobs/{jobId}
func handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, err := jobs.GetJob(r.Context(), jobID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to read job", err.Error())
		return
	}
	if job == nil {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// invokeWorkerAsync sends an event to the Worker Lambda with
// InvocationType=Event so this Lambda returns immediately without waiting
// for the deletion to run.
func invokeWorkerAsync(ctx context.Context, event map[string]interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal worker event: %w", err)
	}

	_, err = lambdaClient.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(workerLambdaArn),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to invoke Worker Lambda")
		return fmt.Errorf("invoke worker lambda: %w", err)
	}

	log.Debug().
		Str("jobId", fmt.Sprintf("%v", event["jobId"])).
		Msg("Worker Lambda invoked asynchronously")
	return nil
}
