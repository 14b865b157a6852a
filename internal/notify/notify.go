// Package notify publishes the single completion event a bulk generation job
// emits, success or failure, to an EventBridge bus.
//
// Publishing is fire-and-forget: every failure is logged and swallowed so a
// job's own error is never masked by a notification problem.
package notify

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Event envelope values.
const (
	Source     = "qr-bulk-generator"
	DetailType = "BulkQRCodeGenerationCompleted"
)

// Job status values carried in JobOutcome.Status.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// JobOutcome is the event detail published once per job.
type JobOutcome struct {
	FilePath     string `json:"filePath"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// NewOutcome builds the outcome record for a finished job.
func NewOutcome(success bool, filePath, errorMessage string) JobOutcome {
	status := StatusFailed
	if success {
		status = StatusSuccess
	}
	return JobOutcome{FilePath: filePath, Status: status, ErrorMessage: errorMessage}
}

// Publisher is the subset of *eventbridge.Client the notifier uses.
type Publisher interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Notifier publishes JobOutcome events to one bus.
type Notifier struct {
	client Publisher
	bus    string
}

// New returns a Notifier publishing to bus. A nil client disables publishing.
func New(client Publisher, bus string) *Notifier {
	return &Notifier{client: client, bus: bus}
}

// Notify publishes the outcome of the job at filePath. It never returns an
// error and never panics, even if the publisher does.
func (n *Notifier) Notify(ctx context.Context, success bool, filePath, errorMessage string) {
	outcome := NewOutcome(success, filePath, errorMessage)
	logger := log.With().Str("filePath", filePath).Str("status", outcome.Status).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Completion notifier panicked, event not published")
		}
	}()

	if n == nil || n.client == nil {
		logger.Warn().Msg("Completion notifier disabled, event not published")
		return
	}

	detail, err := json.Marshal(outcome)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal completion event")
		return
	}

	result, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(n.bus),
				Source:       aws.String(Source),
				DetailType:   aws.String(DetailType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		logger.Error().Err(err).Str("bus", n.bus).Msg("EventBridge PutEvents failed")
		return
	}

	if result != nil && result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				logger.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Msg("EventBridge PutEvents entry failed")
			}
		}
		return
	}

	logger.Info().Str("bus", n.bus).Msg("Completion event published")
}
