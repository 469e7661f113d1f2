package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
	"github.com/EventMosaicProject/em-collector/internal/store"
)

type fakePendingLister struct {
	records []store.FileSendRecord
	err     error
}

func (f *fakePendingLister) Pending(context.Context) ([]store.FileSendRecord, error) {
	return f.records, f.err
}

type fakeSender struct {
	mu    sync.Mutex
	sends [][2]string // topic, url
	err   error
}

func (f *fakeSender) Send(topic, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, [2]string{topic, fileURL})
	return f.err
}

func newTestRetryJob(pending *fakePendingLister, sender *fakeSender) *RetryJob {
	resolver := gdelt.NewTopicResolver(config.KafkaConfig{
		TopicEvent:   "gdelt.collector.event",
		TopicMention: "gdelt.collector.mention",
	})
	return NewRetryJob(pending, resolver, sender, logger.NewNop())
}

func TestRetryJob_ResendsPendingFiles(t *testing.T) {
	pending := &fakePendingLister{records: []store.FileSendRecord{
		{
			ArchiveFileName: "a.translation.export.CSV.zip",
			FileURL:         "http://minio/bucket/a.csv",
		},
		{
			ArchiveFileName: "b.translation.mentions.CSV.zip",
			FileURL:         "http://minio/bucket/b.csv",
		},
	}}
	sender := &fakeSender{}

	newTestRetryJob(pending, sender).Run(context.Background())

	require.Len(t, sender.sends, 2)
	assert.Equal(t, [2]string{"gdelt.collector.event", "http://minio/bucket/a.csv"}, sender.sends[0])
	assert.Equal(t, [2]string{"gdelt.collector.mention", "http://minio/bucket/b.csv"}, sender.sends[1])
}

func TestRetryJob_NoPendingFiles(t *testing.T) {
	sender := &fakeSender{}

	newTestRetryJob(&fakePendingLister{}, sender).Run(context.Background())

	assert.Empty(t, sender.sends)
}

func TestRetryJob_ListFailureSkipsSweep(t *testing.T) {
	pending := &fakePendingLister{err: errors.New("redis unavailable")}
	sender := &fakeSender{}

	newTestRetryJob(pending, sender).Run(context.Background())

	assert.Empty(t, sender.sends)
}

func TestRetryJob_SkipsUnresolvableArchive(t *testing.T) {
	pending := &fakePendingLister{records: []store.FileSendRecord{
		{
			ArchiveFileName: "a.gkg.csv.zip",
			FileURL:         "http://minio/bucket/skip.csv",
		},
		{
			ArchiveFileName: "a.translation.export.CSV.zip",
			FileURL:         "http://minio/bucket/keep.csv",
		},
	}}
	sender := &fakeSender{}

	newTestRetryJob(pending, sender).Run(context.Background())

	require.Len(t, sender.sends, 1)
	assert.Equal(t, "http://minio/bucket/keep.csv", sender.sends[0][1])
}

func TestRetryJob_SendFailureContinues(t *testing.T) {
	pending := &fakePendingLister{records: []store.FileSendRecord{
		{ArchiveFileName: "a.translation.export.CSV.zip", FileURL: "http://minio/bucket/a.csv"},
		{ArchiveFileName: "a.translation.export.CSV.zip", FileURL: "http://minio/bucket/b.csv"},
	}}
	sender := &fakeSender{err: errors.New("queue full")}

	newTestRetryJob(pending, sender).Run(context.Background())

	assert.Len(t, sender.sends, 2, "every record is attempted despite send failures")
}
