// Package main provides the Lambda entry point for the video deletion API.
//
// It exposes hard-delete of a video across the R2 object store and the
// Pinecone vector index behind API Gateway. Deletion is gated by the
// environment policy (dev only) and every denial is logged as a security
// event.
//
// Endpoints:
//
//	GET    /api/health                          — health check (no auth required)
//	DELETE /api/videos/{hashed_identifier}      — delete a video (sync, or ?mode=async)
//	GET    /api/jobs/{jobId}                    — poll an async deletion job
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/deletion"
	"github.com/clipabit/deletion-service/internal/jobstore"
	"github.com/clipabit/deletion-service/internal/lambdaboot"
	"github.com/clipabit/deletion-service/internal/logging"
	"github.com/clipabit/deletion-service/internal/objectstore"
	"github.com/clipabit/deletion-service/internal/policy"
)

// jobStoreAPI is the subset of the job store the API Lambda uses.
type jobStoreAPI interface {
	CreateJob(ctx context.Context, job *jobstore.Job) error
	GetJob(ctx context.Context, jobID string) (*jobstore.Job, error)
}

// AWS clients and collaborators initialized at cold start.
var (
	orch               *deletion.Orchestrator
	jobs               jobStoreAPI
	lambdaClient       *lambdasvc.Client
	workerLambdaArn    string
	originVerifySecret string
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	objects := lambdaboot.InitObjectStore(awsClients.Config)
	vectors := lambdaboot.InitVectorIndex(awsClients.SSM)

	store, dynamoTableName := lambdaboot.InitJobStore(awsClients.Config, "DYNAMO_TABLE_NAME")
	jobs = store

	lambdaClient = lambdasvc.NewFromConfig(awsClients.Config)
	workerLambdaArn = os.Getenv("WORKER_LAMBDA_ARN")
	if workerLambdaArn == "" {
		log.Warn().Msg("WORKER_LAMBDA_ARN not set — async deletion disabled")
	}

	originVerifySecret = os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set — origin verification disabled")
	}

	deployEnv := os.Getenv("DEPLOY_ENV")
	envPolicy := policy.NewEnvironmentPolicy(deployEnv)

	orch = deletion.New(
		envPolicy,
		objectstore.New(objects.Client),
		vectors.Adapter,
		deletion.Config{},
	)

	lambdaboot.StartupLog("deletion-lambda", initStart).
		DynamoTable("jobs", dynamoTableName).
		SSMParam("pineconeApiKey", vectors.KeyParam).
		VectorIndex("chunks", vectors.Host).
		Feature("deletionAllowed", envPolicy.IsDeletionAllowed()).
		Feature("asyncDeletion", workerLambdaArn != "").
		Feature("originVerify", originVerifySecret != "").
		Config("deployEnv", deployEnv).
		Config("r2Endpoint", objects.Endpoint).
		Log()
}

// withOriginVerify is middleware that rejects requests lacking the correct
// x-origin-verify header. CloudFront injects this header via a custom origin
// header, so direct API Gateway access is blocked.
func withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originVerifySecret == "" {
			// Secret not configured — allow through (dev/initial deploy)
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != originVerifySecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/videos/", handleVideoRoutes)
	mux.HandleFunc("/api/jobs/", handleJobRoutes)

	handler := withOriginVerify(mux)

	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
