package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/jsonutil"
)

// JobRunner runs a single job. Implemented by *Orchestrator.
type JobRunner interface {
	Run(ctx context.Context, job BulkGenerationJob) ([]GeneratedArtifact, error)
}

var _ JobRunner = (*Orchestrator)(nil)

// HandleSQSEvent runs one job per record, strictly in order. On the first
// failure the failed record and every record after it are reported as batch
// item failures, so SQS redelivers them (and eventually dead-letters them)
// while already-finished jobs are deleted.
func HandleSQSEvent(ctx context.Context, runner JobRunner, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for i, record := range event.Records {
		if err := handleSQSRecord(ctx, runner, record); err != nil {
			log.Error().
				Err(err).
				Str("messageId", record.MessageId).
				Int("remaining", len(event.Records)-i-1).
				Msg("Job failed, returning record for redelivery")
			for _, r := range event.Records[i:] {
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: r.MessageId})
			}
			break
		}
	}

	return resp, nil
}

func handleSQSRecord(ctx context.Context, runner JobRunner, record events.SQSMessage) error {
	job, err := jsonutil.Decode[BulkGenerationJob]([]byte(record.Body))
	if err != nil {
		return fmt.Errorf("decode job from message %s: %w", record.MessageId, err)
	}

	log.Info().
		Str("messageId", record.MessageId).
		Str("filePath", job.FilePath).
		Int("mappings", len(job.Mappings)).
		Msg("Bulk QR job received")

	_, err = runner.Run(ctx, job)
	return err
}
