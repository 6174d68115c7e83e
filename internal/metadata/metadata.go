// Package metadata loads the cluster metadata log once at startup and
// answers the topic/partition queries every request handler needs. Once
// built, a Metadata value is immutable and safe to share across
// connection goroutines without a lock, the way kapacitor's services share
// an immutable Config after Open.
package metadata

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/types"
)

// Metadata is the in-memory index built from a cluster metadata log.
type Metadata struct {
	batches []batch.Batch

	topicIdByName map[types.TopicName]types.TopicId
	topicNameById map[types.TopicId]types.TopicName
	partitionsById map[types.TopicId][]*batch.PartitionRecord
}

// Load reads path (the cluster metadata log), decodes its batch stream,
// and builds the lookup indexes eagerly. Any record-parse failure aborts
// startup.
func Load(path string, logger *zap.Logger) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read cluster metadata log")
	}

	batches, err := batch.DecodeStream(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode cluster metadata log")
	}

	m := &Metadata{
		batches:        batches,
		topicIdByName:  make(map[types.TopicName]types.TopicId),
		topicNameById:  make(map[types.TopicId]types.TopicName),
		partitionsById: make(map[types.TopicId][]*batch.PartitionRecord),
	}

	for _, b := range batches {
		for _, rec := range b.Records {
			switch v := rec.Value.(type) {
			case *batch.TopicRecord:
				m.topicIdByName[v.Name] = v.Id
				m.topicNameById[v.Id] = v.Name
			case *batch.PartitionRecord:
				m.partitionsById[v.TopicId] = append(m.partitionsById[v.TopicId], v)
			}
		}
	}

	if logger != nil {
		logger.Info("loaded cluster metadata",
			zap.String("path", path),
			zap.Int("batches", len(batches)),
			zap.Int("topics", len(m.topicIdByName)),
		)
	}

	return m, nil
}

// FindTopicId resolves a topic name to its id.
func (m *Metadata) FindTopicId(name types.TopicName) (types.TopicId, bool) {
	id, ok := m.topicIdByName[name]
	return id, ok
}

// FindTopicName resolves a topic id to its name.
func (m *Metadata) FindTopicName(id types.TopicId) (types.TopicName, bool) {
	name, ok := m.topicNameById[id]
	return name, ok
}

// FindPartitions returns every partition record whose topic id matches id,
// in the order they appeared in the metadata log.
func (m *Metadata) FindPartitions(id types.TopicId) []*batch.PartitionRecord {
	return m.partitionsById[id]
}
