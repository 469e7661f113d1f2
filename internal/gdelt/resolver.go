package gdelt

import (
	"fmt"

	"github.com/EventMosaicProject/em-collector/internal/config"
)

// TopicResolver maps an archive file name to the Kafka topic its
// extracted file URLs are published on.
type TopicResolver struct {
	topicEvent   string
	topicMention string
}

// NewTopicResolver creates a resolver from the configured topic names.
func NewTopicResolver(cfg config.KafkaConfig) *TopicResolver {
	return &TopicResolver{
		topicEvent:   cfg.TopicEvent,
		topicMention: cfg.TopicMention,
	}
}

// Resolve returns the destination topic for the given archive file name.
func (r *TopicResolver) Resolve(archiveFileName string) (string, error) {
	t, err := TypeOf(archiveFileName)
	if err != nil {
		return "", fmt.Errorf("resolve topic for %q: %w", archiveFileName, err)
	}

	switch t {
	case TranslationExport:
		return r.topicEvent, nil
	case TranslationMentions:
		return r.topicMention, nil
	default:
		return "", fmt.Errorf("resolve topic for %q: %w", archiveFileName, ErrUnknownArchiveType)
	}
}
