// Package collector coordinates one manifest tick: fetch the
// lastupdate listing, select new or changed archives, and fan them out
// to independent pipeline runs.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/EventMosaicProject/em-collector/internal/fileops"
	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
	"github.com/EventMosaicProject/em-collector/internal/retry"
)

// ArchiveProcessor runs the full pipeline for one archive.
type ArchiveProcessor interface {
	Process(ctx context.Context, archive gdelt.ArchiveInfo) gdelt.Result
}

// HashChecker answers whether an archive needs processing.
type HashChecker interface {
	IsNewOrChanged(ctx context.Context, archiveName, currentHash string) (bool, error)
}

// Coordinator drives the periodic ingestion tick. Archive failures are
// aggregated, never propagated; only a manifest fetch failure surfaces
// to the caller.
type Coordinator struct {
	manifestURL string
	client      *http.Client
	retryCfg    retry.Config
	hashes      HashChecker
	processor   ArchiveProcessor
	log         logger.Logger
}

// NewCoordinator creates a coordinator polling the given manifest URL.
func NewCoordinator(
	manifestURL string,
	connectTimeout, readTimeout time.Duration,
	retryCfg retry.Config,
	hashes HashChecker,
	processor ArchiveProcessor,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		manifestURL: manifestURL,
		client:      fileops.NewHTTPClient(connectTimeout, readTimeout),
		retryCfg:    retryCfg,
		hashes:      hashes,
		processor:   processor,
		log:         log,
	}
}

// Tick fetches the manifest and processes every new or changed
// supported archive. It returns only manifest-level errors.
func (c *Coordinator) Tick(ctx context.Context) error {
	c.log.Info("checking for new archives")

	body, err := c.fetchManifest(ctx)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	archives, malformed := gdelt.ParseManifest(body)
	if malformed > 0 {
		c.log.Warn("manifest contained malformed lines", logger.Int("malformed", malformed))
	}
	if len(archives) == 0 {
		c.log.Info("manifest listed no archives")
		return nil
	}

	selected, err := c.selectArchives(ctx, archives)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		c.log.Info("no new or changed archives")
		return nil
	}

	c.log.Info("processing archives", logger.Int("count", len(selected)))
	results := c.processAll(ctx, selected)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		} else {
			c.log.Warn("archive failed",
				logger.String("archive", res.Archive.FileName),
				logger.String("reason", res.ErrorMessage))
		}
	}
	c.log.Info("tick complete",
		logger.Int("succeeded", succeeded),
		logger.Int("total", len(results)))
	return nil
}

func (c *Coordinator) fetchManifest(ctx context.Context) (string, error) {
	var body string

	err := retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifestURL, http.NoBody)
		if err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("manifest returned status %d", resp.StatusCode)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(raw)
		return nil
	})
	return body, err
}

// selectArchives keeps supported archive types whose hash is new or
// changed since the last committed run.
func (c *Coordinator) selectArchives(ctx context.Context, archives []gdelt.ArchiveInfo) ([]gdelt.ArchiveInfo, error) {
	var selected []gdelt.ArchiveInfo

	for _, archive := range archives {
		if !gdelt.IsSupported(archive.URL) {
			c.log.Debug("skipping unsupported archive", logger.String("url", archive.URL))
			continue
		}

		changed, err := c.hashes.IsNewOrChanged(ctx, archive.FileName, archive.Hash)
		if err != nil {
			return nil, fmt.Errorf("check hash for %s: %w", archive.FileName, err)
		}
		if changed {
			selected = append(selected, archive)
		}
	}
	return selected, nil
}

// processAll fans archives out to independent goroutines and waits for
// all of them. One archive's failure never cancels its siblings.
func (c *Coordinator) processAll(ctx context.Context, archives []gdelt.ArchiveInfo) []gdelt.Result {
	results := make([]gdelt.Result, len(archives))

	var wg sync.WaitGroup
	for i, archive := range archives {
		wg.Add(1)
		go func(i int, archive gdelt.ArchiveInfo) {
			defer wg.Done()
			results[i] = c.processor.Process(ctx, archive)
		}(i, archive)
	}
	wg.Wait()

	return results
}
