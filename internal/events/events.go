// Package events publishes deletion lifecycle events to EventBridge so
// downstream consumers (cache invalidation, analytics) learn about hard
// deletes without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	eventSource     = "clipabit-deletion-service"
	videoDeletedTyp = "VideoDeleted"
)

// VideoDeleted describes one completed hard delete.
type VideoDeleted struct {
	HashedIdentifier string `json:"hashedIdentifier"`
	VideoID          string `json:"videoId"`
	Namespace        string `json:"namespace"`
	NotFound         bool   `json:"notFound"`
	ChunksDeleted    int    `json:"chunksDeleted"`
	BytesDeleted     int64  `json:"bytesDeleted"`
	Timestamp        string `json:"timestamp"`
}

// EmitVideoDeleted publishes the event. Failures are logged and returned;
// callers treat event emission as best-effort and never fail the deletion
// over it.
func EmitVideoDeleted(ctx context.Context, client *eventbridge.Client, event VideoDeleted) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal VideoDeleted: %w", err)
	}

	result, err := client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				Source:     aws.String(eventSource),
				DetailType: aws.String(videoDeletedTyp),
				Detail:     aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("videoId", event.VideoID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("videoId", event.VideoID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("videoId", event.VideoID).Str("namespace", event.Namespace).Msg("VideoDeleted emitted to EventBridge")
	return nil
}
