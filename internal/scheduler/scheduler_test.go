package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

type countingTicker struct {
	ticks atomic.Int64
}

func (c *countingTicker) Tick(context.Context) error {
	c.ticks.Add(1)
	return nil
}

func newNopRetryJob() *RetryJob {
	resolver := gdelt.NewTopicResolver(config.KafkaConfig{
		TopicEvent:   "gdelt.collector.event",
		TopicMention: "gdelt.collector.mention",
	})
	return NewRetryJob(&fakePendingLister{}, resolver, &fakeSender{}, logger.NewNop())
}

// The cron runner clamps sub-second intervals to one second, so these
// tests wait generously for the first firing.
func TestScheduler_FiresTicks(t *testing.T) {
	ticker := &countingTicker{}
	s, err := New(ticker, newNopRetryJob(), time.Second, time.Hour, logger.NewNop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return ticker.ticks.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestScheduler_StopHaltsJobs(t *testing.T) {
	ticker := &countingTicker{}
	s, err := New(ticker, newNopRetryJob(), time.Second, time.Hour, logger.NewNop())
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool {
		return ticker.ticks.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	s.Stop()

	count := ticker.ticks.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, count, ticker.ticks.Load(), "no ticks fire after Stop")
}
