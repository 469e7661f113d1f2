package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// hashKeyPrefix namespaces committed archive hashes.
const hashKeyPrefix = "gdelt:archive:hash:"

// HashStore tracks the last committed MD5 per archive name. An entry
// exists only after a pipeline run delivered all of the archive's
// extracted objects.
type HashStore struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

// NewHashStore creates a HashStore with the given entry TTL.
func NewHashStore(rdb *redis.Client, ttl time.Duration, log logger.Logger) *HashStore {
	return &HashStore{rdb: rdb, ttl: ttl, log: log}
}

// Stored returns the committed hash for the archive, or "" when absent.
func (s *HashStore) Stored(ctx context.Context, archiveName string) (string, error) {
	hash, err := s.rdb.Get(ctx, hashKeyPrefix+archiveName).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get hash for %s: %w", archiveName, err)
	}
	return hash, nil
}

// Put commits the hash for the archive, resetting its TTL.
func (s *HashStore) Put(ctx context.Context, archiveName, hash string) error {
	if err := s.rdb.Set(ctx, hashKeyPrefix+archiveName, hash, s.ttl).Err(); err != nil {
		return fmt.Errorf("store hash for %s: %w", archiveName, err)
	}
	s.log.Debug("archive hash committed",
		logger.String("archive", archiveName),
		logger.String("hash", hash))
	return nil
}

// IsNewOrChanged reports whether the archive must be processed: true
// when no hash is stored or the stored hash differs.
func (s *HashStore) IsNewOrChanged(ctx context.Context, archiveName, currentHash string) (bool, error) {
	stored, err := s.Stored(ctx, archiveName)
	if err != nil {
		return false, err
	}
	return stored != currentHash, nil
}
