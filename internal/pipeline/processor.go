// Package pipeline runs the per-archive processing sequence: download,
// hash verification, extraction, object-store upload, event emission,
// and hash commit. Each archive is independent; the processor holds no
// per-archive state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EventMosaicProject/em-collector/internal/events"
	"github.com/EventMosaicProject/em-collector/internal/fileops"
	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// ErrHashMismatch is returned when the downloaded archive's MD5 does
// not match the manifest's.
var ErrHashMismatch = errors.New("hash mismatch")

// ObjectStore is the slice of the object storage API the pipeline uses.
type ObjectStore interface {
	Upload(ctx context.Context, objectName, localPath string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// HashCommitter commits an archive's hash after a complete run.
type HashCommitter interface {
	Put(ctx context.Context, archiveName, hash string) error
}

// EventPublisher announces a fully uploaded archive.
type EventPublisher interface {
	Publish(event events.ArchiveExtracted)
}

// Processor executes the archive pipeline. Order matters: the event is
// published before the hash commit, so a crash between the two causes
// an idempotent reprocess rather than a committed-but-unannounced
// archive.
type Processor struct {
	fops        *fileops.FileOps
	hashes      HashCommitter
	objects     ObjectStore
	bus         EventPublisher
	resolver    *gdelt.TopicResolver
	downloadDir string
	log         logger.Logger
}

// NewProcessor wires an archive processor.
func NewProcessor(
	fops *fileops.FileOps,
	hashes HashCommitter,
	objects ObjectStore,
	bus EventPublisher,
	resolver *gdelt.TopicResolver,
	downloadDir string,
	log logger.Logger,
) *Processor {
	return &Processor{
		fops:        fops,
		hashes:      hashes,
		objects:     objects,
		bus:         bus,
		resolver:    resolver,
		downloadDir: downloadDir,
		log:         log,
	}
}

// Process runs the pipeline for one archive and reduces every failure
// to a Result; errors never propagate to the coordinator. The
// per-archive temp extraction directory is removed on all paths.
func (p *Processor) Process(ctx context.Context, archive gdelt.ArchiveInfo) gdelt.Result {
	log := p.log.With(logger.String("archive", archive.FileName))
	log.Info("processing archive", logger.String("url", archive.URL))

	tempDir, err := p.createTempExtractDir(archive.FileName)
	if err != nil {
		log.Error("failed to create temp extraction directory", logger.Error(err))
		return gdelt.FailureResult(archive, err.Error())
	}
	defer p.cleanupTempDir(tempDir, log)

	archivePath := filepath.Join(p.downloadDir, archive.FileName)
	defer p.cleanupArchive(archivePath, log)

	urls, err := p.run(ctx, archive, archivePath, tempDir, log)
	if err != nil {
		log.Error("archive processing failed", logger.Error(err))
		return gdelt.FailureResult(archive, err.Error())
	}

	log.Info("archive processed", logger.Int("extracted_urls", len(urls)))
	return gdelt.SuccessResult(archive, urls)
}

func (p *Processor) run(ctx context.Context, archive gdelt.ArchiveInfo, archivePath, tempDir string, log logger.Logger) ([]string, error) {
	if _, err := p.fops.EnsureDir(p.downloadDir); err != nil {
		return nil, err
	}

	// The archive must be classifiable before any commit can happen;
	// failing here keeps unresolvable archives out of the hash store.
	if _, err := p.resolver.Resolve(archive.FileName); err != nil {
		return nil, err
	}

	if _, err := p.fops.Download(ctx, archive.URL, archivePath); err != nil {
		return nil, err
	}

	if err := p.verifyHash(archivePath, archive); err != nil {
		return nil, err
	}

	members, err := p.fops.ExtractZip(archivePath, tempDir)
	if err != nil {
		return nil, err
	}
	log.Info("archive extracted", logger.Int("members", len(members)))

	urls, err := p.uploadMembers(ctx, members, log)
	if err != nil {
		return nil, err
	}

	// Announce before commit: an extra unannounced upload is recoverable
	// by reprocessing, a committed hash with no announcement is not.
	p.bus.Publish(events.ArchiveExtracted{Archive: archive, ExtractedURLs: urls})

	if err := p.hashes.Put(ctx, archive.FileName, archive.Hash); err != nil {
		return nil, err
	}

	return urls, nil
}

// cleanupArchive removes the downloaded archive on every exit path so
// failed runs do not accumulate scratch files.
func (p *Processor) cleanupArchive(archivePath string, log logger.Logger) {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove downloaded archive", logger.Error(err))
	}
}

func (p *Processor) verifyHash(archivePath string, archive gdelt.ArchiveInfo) error {
	computed, err := p.fops.MD5(archivePath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(computed, archive.Hash) {
		return fmt.Errorf("%w: %s != %s", ErrHashMismatch, computed, archive.Hash)
	}
	return nil
}

// uploadMembers uploads each extracted file under its basename. On the
// first upload failure, every object already uploaded for this archive
// is deleted best-effort before the error is returned.
func (p *Processor) uploadMembers(ctx context.Context, members []string, log logger.Logger) ([]string, error) {
	uploaded := make([]string, 0, len(members))

	for _, member := range members {
		objectName := filepath.Base(member)

		fileURL, err := p.objects.Upload(ctx, objectName, member)
		if err != nil {
			p.rollbackUploads(ctx, uploaded, log)
			return nil, fmt.Errorf("upload member %s: %w", objectName, err)
		}
		uploaded = append(uploaded, fileURL)

		// The object store holds the data now; a leftover local file
		// only costs disk until the temp dir cleanup.
		if err := os.Remove(member); err != nil {
			log.Warn("failed to remove extracted file after upload",
				logger.String("path", member),
				logger.Error(err))
		}
	}

	return uploaded, nil
}

func (p *Processor) rollbackUploads(ctx context.Context, uploadedURLs []string, log logger.Logger) {
	if len(uploadedURLs) == 0 {
		return
	}
	log.Warn("rolling back uploaded objects", logger.Int("count", len(uploadedURLs)))

	for _, fileURL := range uploadedURLs {
		objectName := fileURL[strings.LastIndex(fileURL, "/")+1:]
		if objectName == "" {
			log.Warn("cannot derive object name for rollback", logger.String("url", fileURL))
			continue
		}
		if err := p.objects.Delete(ctx, objectName); err != nil {
			log.Error("rollback delete failed",
				logger.String("object", objectName),
				logger.Error(err))
		}
	}
}

func (p *Processor) createTempExtractDir(archiveFileName string) (string, error) {
	name := fmt.Sprintf("temp_extract_%s_%d", archiveFileName, time.Now().UnixMilli())
	tempDir := filepath.Join(p.downloadDir, name)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp extraction directory: %w", err)
	}
	return tempDir, nil
}

func (p *Processor) cleanupTempDir(tempDir string, log logger.Logger) {
	if err := os.RemoveAll(tempDir); err != nil {
		log.Warn("failed to clean temp extraction directory",
			logger.String("dir", tempDir),
			logger.Error(err))
	}
}
