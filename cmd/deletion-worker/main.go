// Package main provides the Worker Lambda entry point for async deletions.
//
// It is invoked by the API Lambda via lambda:Invoke with
// InvocationType=Event, runs the full deletion against both backends, and
// writes the outcome to the DynamoDB job store that the API Lambda polls.
// Completed deletions are announced on EventBridge as VideoDeleted events.
//
// Event format:
//
//	{
//	  "type": "delete",
//	  "jobId": "del-xxx",
//	  "hashedIdentifier": "<urlsafe base64>",
//	  "namespace": "web-demo"
//	}
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/deletion"
	"github.com/clipabit/deletion-service/internal/events"
	"github.com/clipabit/deletion-service/internal/jobstore"
	"github.com/clipabit/deletion-service/internal/lambdaboot"
	"github.com/clipabit/deletion-service/internal/logging"
	"github.com/clipabit/deletion-service/internal/metrics"
	"github.com/clipabit/deletion-service/internal/objectstore"
	"github.com/clipabit/deletion-service/internal/policy"
)

var coldStart = true

// AWS clients and collaborators initialized at cold start.
var (
	orch        *deletion.Orchestrator
	jobs        *jobstore.Store
	eventBridge *eventbridge.Client
)

// WorkerEvent is the event received from the API Lambda.
type WorkerEvent struct {
	Type             string `json:"type"`
	JobID            string `json:"jobId"`
	HashedIdentifier string `json:"hashedIdentifier"`
	Namespace        string `json:"namespace"`
}

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	objects := lambdaboot.InitObjectStore(awsClients.Config)
	vectors := lambdaboot.InitVectorIndex(awsClients.SSM)

	var dynamoTableName string
	jobs, dynamoTableName = lambdaboot.InitJobStore(awsClients.Config, "DYNAMO_TABLE_NAME")

	eventBridge = eventbridge.NewFromConfig(awsClients.Config)

	deployEnv := os.Getenv("DEPLOY_ENV")
	envPolicy := policy.NewEnvironmentPolicy(deployEnv)

	orch = deletion.New(
		envPolicy,
		objectstore.New(objects.Client),
		vectors.Adapter,
		deletion.Config{},
	)

	lambdaboot.StartupLog("deletion-worker", initStart).
		DynamoTable("jobs", dynamoTableName).
		SSMParam("pineconeApiKey", vectors.KeyParam).
		VectorIndex("chunks", vectors.Host).
		Feature("deletionAllowed", envPolicy.IsDeletionAllowed()).
		Config("deployEnv", deployEnv).
		Config("r2Endpoint", objects.Endpoint).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event WorkerEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "deletion-worker").Msg("Cold start — first invocation")
	}
	log.Info().
		Str("type", event.Type).
		Str("jobId", event.JobID).
		Str("namespace", event.Namespace).
		Msg("Worker Lambda invoked")

	if event.Type != "delete" {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
	return handleDelete(ctx, event)
}

func handleDelete(ctx context.Context, event WorkerEvent) error {
	jobStart := time.Now()

	result := orch.Delete(ctx, event.HashedIdentifier, event.Namespace)

	emitMetrics(result, time.Since(jobStart))

	job := &jobstore.Job{
		ID:               event.JobID,
		HashedIdentifier: event.HashedIdentifier,
		Namespace:        event.Namespace,
		Success:          result.Success,
		NotFound:         result.NotFound,
		ChunksDeleted:    result.VectorIndex.ChunksDeleted,
		BytesDeleted:     result.ObjectStore.BytesDeleted,
	}
	if result.Success {
		job.Status = jobstore.StatusCompleted
	} else {
		job.Status = jobstore.StatusFailed
		if result.Error != nil {
			job.Error = result.Error.Message
		}
	}
	if err := jobs.UpdateJob(ctx, job); err != nil {
		// The deletion itself already ran; failing the invocation here would
		// only make Lambda retry a non-idempotent record update.
		log.Error().Err(err).Str("jobId", event.JobID).Msg("Failed to record job outcome")
	}

	// Event emission is best-effort: consumers reconcile via polling too.
	if result.Success && !result.NotFound {
		_ = events.EmitVideoDeleted(ctx, eventBridge, events.VideoDeleted{
			HashedIdentifier: result.HashedIdentifier,
			VideoID:          result.VideoID,
			Namespace:        result.Namespace,
			NotFound:         result.NotFound,
			ChunksDeleted:    result.VectorIndex.ChunksDeleted,
			BytesDeleted:     result.ObjectStore.BytesDeleted,
			Timestamp:        result.Timestamp.Format(time.RFC3339),
		})
	}

	log.Info().
		Str("jobId", event.JobID).
		Str("status", job.Status).
		Bool("notFound", result.NotFound).
		Dur("elapsed", time.Since(jobStart)).
		Msg("Deletion job finished")
	return nil
}

func emitMetrics(result deletion.Result, elapsed time.Duration) {
	rec := metrics.New("ClipabitDeletion").
		Dimension("Operation", "delete").
		Metric("DeletionLatency", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("ChunksDeleted", float64(result.VectorIndex.ChunksDeleted), metrics.UnitCount).
		Metric("BytesDeleted", float64(result.ObjectStore.BytesDeleted), metrics.UnitBytes).
		Property("namespace", result.Namespace).
		Property("notFound", result.NotFound)
	if !result.Success {
		rec.Count("DeletionErrors")
		if result.Error != nil {
			rec.Property("errorType", result.Error.Type)
		}
	}
	rec.Flush()
}
