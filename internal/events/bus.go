// Package events provides the in-process dispatch of archive-extracted
// events from the pipeline to the publication listener.
package events

import (
	"context"
	"sync"

	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// busBuffer absorbs bursts when many archives finish in one tick.
const busBuffer = 64

// ArchiveExtracted announces that every member of an archive has been
// uploaded to the object store.
type ArchiveExtracted struct {
	Archive       gdelt.ArchiveInfo
	ExtractedURLs []string
}

// Handler consumes ArchiveExtracted events.
type Handler interface {
	HandleArchiveExtracted(ctx context.Context, event ArchiveExtracted)
}

// Bus is a single-consumer event channel. Handlers run asynchronously
// on the bus goroutine, decoupled from the archive pipelines; ordering
// across events is not guaranteed once publishers run concurrently.
type Bus struct {
	ch      chan ArchiveExtracted
	done    chan struct{}
	handler Handler
	log     logger.Logger

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewBus creates a bus dispatching to the given handler.
func NewBus(handler Handler, log logger.Logger) *Bus {
	return &Bus{
		ch:      make(chan ArchiveExtracted, busBuffer),
		done:    make(chan struct{}),
		handler: handler,
		log:     log,
	}
}

// Start launches the dispatch goroutine.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.dispatchLoop(ctx)
	})
}

// Publish enqueues an event. Blocks only when the buffer is full. An
// event arriving after Stop is dropped with a warning; drops can only
// happen during shutdown, where the canceled application context also
// prevents the archive's hash commit, so the archive is reprocessed on
// the next tick.
func (b *Bus) Publish(event ArchiveExtracted) {
	select {
	case <-b.done:
		b.log.Warn("event bus stopped, dropping event",
			logger.String("archive", event.Archive.FileName))
	case b.ch <- event:
	}
}

// Stop halts the bus and waits for queued events to drain.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.ch:
			b.dispatch(ctx, event)
		case <-b.done:
			// Drain whatever made it into the buffer before the stop.
			for {
				select {
				case event := <-b.ch:
					b.dispatch(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event ArchiveExtracted) {
	b.log.Debug("dispatching archive extracted event",
		logger.String("archive", event.Archive.FileName),
		logger.Int("urls", len(event.ExtractedURLs)))
	b.handler.HandleArchiveExtracted(ctx, event)
}
