package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// statusKeyPrefix namespaces per-file send records.
const statusKeyPrefix = "gdelt:file:info:"

// scanBatchSize is the COUNT hint for the pending sweep.
const scanBatchSize = 100

// FileSendRecord tracks whether an extracted file URL has been
// acknowledged by the broker.
type FileSendRecord struct {
	ArchiveFileName string `json:"archive_file_name"`
	FileURL         string `json:"file_url"`
	Sent            bool   `json:"sent"`
}

// StatusStore persists FileSendRecords keyed by file URL. Records
// expire after the configured TTL, which bounds the retry window.
type StatusStore struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

// NewStatusStore creates a StatusStore with the given record TTL.
func NewStatusStore(rdb *redis.Client, ttl time.Duration, log logger.Logger) *StatusStore {
	return &StatusStore{rdb: rdb, ttl: ttl, log: log}
}

// Register upserts a record for the URL with sent=false and a fresh TTL.
func (s *StatusStore) Register(ctx context.Context, archiveFileName, fileURL string) error {
	rec := FileSendRecord{
		ArchiveFileName: archiveFileName,
		FileURL:         fileURL,
		Sent:            false,
	}
	if err := s.save(ctx, rec); err != nil {
		return err
	}
	s.log.Debug("file registered for delivery tracking",
		logger.String("archive", archiveFileName),
		logger.String("url", fileURL))
	return nil
}

// MarkSent flips the record for the URL to sent=true. An unregistered
// URL is not resurrected; false is returned instead.
func (s *StatusStore) MarkSent(ctx context.Context, fileURL string) (bool, error) {
	rec, err := s.Get(ctx, fileURL)
	if err != nil {
		return false, err
	}
	if rec == nil {
		s.log.Warn("mark sent for unregistered file", logger.String("url", fileURL))
		return false, nil
	}

	rec.Sent = true
	if err := s.save(ctx, *rec); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the record for the URL, or nil when absent.
func (s *StatusStore) Get(ctx context.Context, fileURL string) (*FileSendRecord, error) {
	raw, err := s.rdb.Get(ctx, statusKeyPrefix+fileURL).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get send record for %s: %w", fileURL, err)
	}

	var rec FileSendRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode send record for %s: %w", fileURL, err)
	}
	return &rec, nil
}

// Pending returns all records with sent=false. The sweep is a
// best-effort snapshot over a SCAN of the keyspace, not a
// transactional view.
func (s *StatusStore) Pending(ctx context.Context) ([]FileSendRecord, error) {
	var pending []FileSendRecord

	iter := s.rdb.Scan(ctx, 0, statusKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get send record %s: %w", iter.Val(), err)
		}

		var rec FileSendRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn("skipping undecodable send record",
				logger.String("key", iter.Val()),
				logger.Error(err))
			continue
		}
		if !rec.Sent {
			pending = append(pending, rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan send records: %w", err)
	}

	return pending, nil
}

func (s *StatusStore) save(ctx context.Context, rec FileSendRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode send record for %s: %w", rec.FileURL, err)
	}
	if err := s.rdb.Set(ctx, statusKeyPrefix+rec.FileURL, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store send record for %s: %w", rec.FileURL, err)
	}
	return nil
}
