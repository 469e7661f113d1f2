package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []ArchiveExtracted
}

func (h *recordingHandler) HandleArchiveExtracted(_ context.Context, event ArchiveExtracted) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) snapshot() []ArchiveExtracted {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ArchiveExtracted(nil), h.events...)
}

func TestBus_DeliversPublishedEvents(t *testing.T) {
	handler := &recordingHandler{}
	bus := NewBus(handler, logger.NewNop())

	bus.Start(context.Background())
	bus.Publish(ArchiveExtracted{
		Archive:       gdelt.ArchiveInfo{FileName: "a.zip"},
		ExtractedURLs: []string{"http://minio/bucket/a.csv"},
	})
	bus.Publish(ArchiveExtracted{
		Archive: gdelt.ArchiveInfo{FileName: "b.zip"},
	})
	bus.Stop()

	events := handler.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "a.zip", events[0].Archive.FileName)
	assert.Equal(t, []string{"http://minio/bucket/a.csv"}, events[0].ExtractedURLs)
	assert.Equal(t, "b.zip", events[1].Archive.FileName)
}

func TestBus_StopDrainsQueuedEvents(t *testing.T) {
	handler := &recordingHandler{}
	bus := NewBus(handler, logger.NewNop())

	bus.Start(context.Background())
	for i := 0; i < 10; i++ {
		bus.Publish(ArchiveExtracted{Archive: gdelt.ArchiveInfo{FileName: "a.zip"}})
	}
	bus.Stop()

	assert.Len(t, handler.snapshot(), 10)
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	handler := &recordingHandler{}
	bus := NewBus(handler, logger.NewNop())

	bus.Start(context.Background())
	bus.Stop()

	// An archive finishing after shutdown must not crash the process.
	assert.NotPanics(t, func() {
		bus.Publish(ArchiveExtracted{Archive: gdelt.ArchiveInfo{FileName: "late.zip"}})
	})
	assert.Empty(t, handler.snapshot())
}

func TestBus_StartAndStopAreIdempotent(t *testing.T) {
	handler := &recordingHandler{}
	bus := NewBus(handler, logger.NewNop())

	bus.Start(context.Background())
	bus.Start(context.Background())
	bus.Publish(ArchiveExtracted{Archive: gdelt.ArchiveInfo{FileName: "a.zip"}})
	bus.Stop()
	bus.Stop()

	assert.Len(t, handler.snapshot(), 1)
}
