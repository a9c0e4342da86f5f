// Package jobstore persists deletion job records in DynamoDB so clients
// can poll the status of asynchronous deletions. Records carry only a
// summary of the outcome; the full DeletionResult is a response value and
// is never stored.
package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "DELETION#"
	skMeta   = "META"
)

// JobTTL is how long a finished job record remains pollable.
const JobTTL = 24 * time.Hour

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one deletion job record.
type Job struct {
	ID               string `json:"jobId" dynamodbav:"-"`
	HashedIdentifier string `json:"hashedIdentifier" dynamodbav:"hashedIdentifier"`
	Namespace        string `json:"namespace" dynamodbav:"namespace"`
	Status           string `json:"status" dynamodbav:"status"`
	Success          bool   `json:"success" dynamodbav:"success"`
	NotFound         bool   `json:"notFound" dynamodbav:"notFound"`
	ChunksDeleted    int    `json:"chunksDeleted" dynamodbav:"chunksDeleted"`
	BytesDeleted     int64  `json:"bytesDeleted" dynamodbav:"bytesDeleted"`
	Error            string `json:"error,omitempty" dynamodbav:"error,omitempty"`
	CreatedAt        string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt        string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Store implements the deletion job store on DynamoDB.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New creates a Store for the given table. The client should be
// initialized from the shared AWS config.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func jobPK(jobID string) string {
	return pkPrefix + jobID
}

func expiresAt() int64 {
	return time.Now().Add(JobTTL).Unix()
}

// put marshals the job and writes it with PK, SK, and TTL attributes.
func (s *Store) put(ctx context.Context, job *Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: jobPK(job.ID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem job %s: %w", job.ID, err)
	}
	return nil
}

// CreateJob writes a fresh processing record for the job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	job.Status = StatusProcessing
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.put(ctx, job); err != nil {
		return err
	}
	log.Debug().Str("jobId", job.ID).Str("namespace", job.Namespace).Msg("Deletion job created")
	return nil
}

// UpdateJob overwrites the record with the job's current state.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.put(ctx, job); err != nil {
		return err
	}
	log.Debug().Str("jobId", job.ID).Str("status", job.Status).Msg("Deletion job updated")
	return nil
}

// GetJob reads a job record. Returns nil without error if the job does
// not exist or has expired.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem job %s: %w", jobID, err)
	}
	if result.Item == nil {
		log.Debug().Str("jobId", jobID).Bool("found", false).Msg("Deletion job not found")
		return nil, nil
	}

	var job Job
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	job.ID = jobID
	return &job, nil
}
