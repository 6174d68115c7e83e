// Package logstore loads per-partition record-batch log files lazily and
// caches them by (topic id, partition index), the way kapacitor's services/kafka caches one
// *kafka.Writer per (cluster, topic) rather than re-dialing on every
// message. There is no eviction contract — access is read-only, so a
// cached log never goes stale.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/types"
)

// Log is a decoded per-partition batch stream.
type Log struct {
	TopicName      types.TopicName
	PartitionIndex types.PartitionIndex
	Batches        []batch.Batch
}

// logKey identifies a single partition log, the unit this cache stores:
// a topic can have many partitions, each backed by its own file on disk.
type logKey struct {
	topicId        types.TopicId
	partitionIndex types.PartitionIndex
}

// Store resolves and caches Log values read from disk under a base
// directory, following the conventional path
// <base>/<topic_name>-<partition_index>/00000000000000000000.log.
type Store struct {
	baseDir string
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[logKey]*Log
}

// NewStore returns a Store rooted at baseDir (e.g.
// /tmp/kraft-combined-logs).
func NewStore(baseDir string, logger *zap.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		logger:  logger,
		cache:   make(map[logKey]*Log),
	}
}

// Load resolves name's log file for partitionIndex, lazily decoding and
// caching it by (topicId, partitionIndex). A missing log file is reported
// via ok=false, not an error — callers surface that as UnknownTopic.
func (s *Store) Load(topicId types.TopicId, name types.TopicName, partitionIndex types.PartitionIndex) (*Log, bool, error) {
	key := logKey{topicId: topicId, partitionIndex: partitionIndex}

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, true, nil
	}
	s.mu.Unlock()

	path := s.logPath(name, partitionIndex)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read partition log %s", path)
	}

	batches, err := batch.DecodeStream(raw)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode partition log %s", path)
	}

	l := &Log{TopicName: name, PartitionIndex: partitionIndex, Batches: batches}

	s.mu.Lock()
	s.cache[key] = l
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("loaded partition log",
			zap.String("topic", string(name)),
			zap.Uint32("partition", uint32(partitionIndex)),
			zap.Int("batches", len(batches)),
		)
	}
	return l, true, nil
}

func (s *Store) logPath(name types.TopicName, partitionIndex types.PartitionIndex) string {
	dir := fmt.Sprintf("%s-%d", name, partitionIndex)
	return filepath.Join(s.baseDir, dir, "00000000000000000000.log")
}
