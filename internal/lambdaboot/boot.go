// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Both deletion Lambdas need the same subset of: AWS config, the R2-backed
// S3 client, the DynamoDB job store, the Pinecone key from SSM, and startup
// logging. This package extracts the common init patterns so each Lambda's
// init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/clipabit/deletion-service/internal/jobstore"
	"github.com/clipabit/deletion-service/internal/logging"
	"github.com/clipabit/deletion-service/internal/vectorindex"
)

// defaultPineconeKeyParam is the SSM parameter holding the Pinecone API key
// when PINECONE_API_KEY is not set directly.
const defaultPineconeKeyParam = "/clipabit/prod/pinecone-api-key"

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// ObjectStoreClients holds the S3 client and the endpoint it targets.
// Endpoint is empty when the stock AWS endpoint is in use.
type ObjectStoreClients struct {
	Client   *s3.Client
	Endpoint string
}

// VectorIndexConfig is the resolved Pinecone configuration, kept for the
// startup log.
type VectorIndexConfig struct {
	Adapter  *vectorindex.Adapter
	Host     string
	KeyParam string
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitObjectStore creates the S3 client. When R2_ENDPOINT_URL is set the
// client targets Cloudflare R2 through its S3-compatible API; R2 requires
// path-style addressing.
func InitObjectStore(cfg aws.Config) ObjectStoreClients {
	endpoint := os.Getenv("R2_ENDPOINT_URL")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return ObjectStoreClients{Client: client, Endpoint: endpoint}
}

// InitJobStore creates the deletion job store from the given config and
// table name environment variable. Fatals if the env var is empty.
func InitJobStore(cfg aws.Config, tableEnvVar string) (*jobstore.Store, string) {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	return jobstore.New(dynamodb.NewFromConfig(cfg), tableName), tableName
}

// LoadPineconeKey returns the Pinecone API key from PINECONE_API_KEY, or
// fetches it from SSM Parameter Store. Fatals on error. The second return
// value is the parameter path, for the startup log.
func LoadPineconeKey(ssmClient *ssm.Client) (string, string) {
	paramName := logging.EnvOrDefault("SSM_PINECONE_API_KEY_PARAM", defaultPineconeKeyParam)
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		return key, paramName
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read Pinecone API key from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Pinecone API key loaded from SSM")
	return *result.Parameter.Value, paramName
}

// InitVectorIndex builds the Pinecone-backed vector index adapter from
// PINECONE_INDEX_HOST and PINECONE_DIMENSION. Fatals if the host is unset
// or the dimension is not an integer.
func InitVectorIndex(ssmClient *ssm.Client) VectorIndexConfig {
	apiKey, keyParam := LoadPineconeKey(ssmClient)

	host := os.Getenv("PINECONE_INDEX_HOST")
	if host == "" {
		log.Fatal().Msg("PINECONE_INDEX_HOST environment variable is required")
	}
	dimension, err := strconv.Atoi(logging.EnvOrDefault("PINECONE_DIMENSION", "1024"))
	if err != nil {
		log.Fatal().Err(err).Msg("PINECONE_DIMENSION must be an integer")
	}

	client, err := vectorindex.NewPineconeClient(apiKey, host, dimension)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Pinecone client")
	}
	return VectorIndexConfig{
		Adapter:  vectorindex.New(client, vectorindex.Options{}),
		Host:     host,
		KeyParam: keyParam,
	}
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
