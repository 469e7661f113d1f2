package events

import (
	"context"

	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// Registrar records a file URL for delivery tracking.
type Registrar interface {
	Register(ctx context.Context, archiveFileName, fileURL string) error
}

// Sender enqueues a file URL for publication on a topic.
type Sender interface {
	Send(topic, fileURL string) error
}

// Listener handles ArchiveExtracted events: it resolves the Kafka topic
// for the archive, registers each URL for delivery tracking, and hands
// it to the publisher.
type Listener struct {
	resolver *gdelt.TopicResolver
	status   Registrar
	sender   Sender
	log      logger.Logger
}

// NewListener wires the publication side of the event bus.
func NewListener(resolver *gdelt.TopicResolver, status Registrar, sender Sender, log logger.Logger) *Listener {
	return &Listener{
		resolver: resolver,
		status:   status,
		sender:   sender,
		log:      log,
	}
}

// HandleArchiveExtracted publishes every extracted URL. An archive the
// resolver cannot classify drops the whole event; the coordinator's
// type filter makes that unreachable in practice.
func (l *Listener) HandleArchiveExtracted(ctx context.Context, event ArchiveExtracted) {
	archiveName := event.Archive.FileName

	topic, err := l.resolver.Resolve(archiveName)
	if err != nil {
		l.log.Error("dropping event for unclassifiable archive",
			logger.String("archive", archiveName),
			logger.Error(err))
		return
	}

	for _, fileURL := range event.ExtractedURLs {
		// A registration failure is not fatal: the send still goes out,
		// only retry bookkeeping is lost for this URL.
		if err := l.status.Register(ctx, archiveName, fileURL); err != nil {
			l.log.Error("failed to register file for delivery tracking",
				logger.String("url", fileURL),
				logger.Error(err))
		}

		if err := l.sender.Send(topic, fileURL); err != nil {
			l.log.Error("failed to enqueue file for publication",
				logger.String("topic", topic),
				logger.String("url", fileURL),
				logger.Error(err))
		}
	}

	l.log.Info("archive event handled",
		logger.String("archive", archiveName),
		logger.String("topic", topic),
		logger.Int("urls", len(event.ExtractedURLs)))
}
