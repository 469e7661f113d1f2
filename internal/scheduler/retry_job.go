package scheduler

import (
	"context"

	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
	"github.com/EventMosaicProject/em-collector/internal/store"
)

// PendingLister returns the send records still awaiting broker
// acknowledgment.
type PendingLister interface {
	Pending(ctx context.Context) ([]store.FileSendRecord, error)
}

// Sender enqueues a file URL for publication on a topic.
type Sender interface {
	Send(topic, fileURL string) error
}

// RetryJob resends every pending file URL. No de-duplication is done;
// the idempotent producer and consumer-side dedup absorb repeats. The
// status-record TTL caps how long a URL stays retryable.
type RetryJob struct {
	status   PendingLister
	resolver *gdelt.TopicResolver
	sender   Sender
	log      logger.Logger
}

// NewRetryJob wires the resend sweep.
func NewRetryJob(status PendingLister, resolver *gdelt.TopicResolver, sender Sender, log logger.Logger) *RetryJob {
	return &RetryJob{
		status:   status,
		resolver: resolver,
		sender:   sender,
		log:      log,
	}
}

// Run performs one sweep over the pending records.
func (j *RetryJob) Run(ctx context.Context) {
	pending, err := j.status.Pending(ctx)
	if err != nil {
		j.log.Error("failed to list pending files", logger.Error(err))
		return
	}

	j.log.Info("retrying pending files", logger.Int("count", len(pending)))
	if len(pending) == 0 {
		return
	}

	for _, rec := range pending {
		topic, err := j.resolver.Resolve(rec.ArchiveFileName)
		if err != nil {
			j.log.Error("skipping pending file with unresolvable topic",
				logger.String("archive", rec.ArchiveFileName),
				logger.String("url", rec.FileURL),
				logger.Error(err))
			continue
		}

		if err := j.sender.Send(topic, rec.FileURL); err != nil {
			j.log.Error("failed to resend pending file",
				logger.String("topic", topic),
				logger.String("url", rec.FileURL),
				logger.Error(err))
		}
	}
}
