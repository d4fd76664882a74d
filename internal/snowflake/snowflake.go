package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is the fixed custom epoch (January 1, 2024 00:00:00 UTC), milliseconds.
	Epoch int64 = 1704067200000

	NodeIDBits   uint8 = 10
	SequenceBits uint8 = 12

	nodeIDShift    = SequenceBits
	timestampShift = SequenceBits + NodeIDBits

	sequenceMask int64 = -1 ^ (-1 << SequenceBits)
	nodeIDMask   int64 = -1 ^ (-1 << NodeIDBits)

	// MaxNodeID is the largest node id representable in NodeIDBits.
	MaxNodeID int64 = nodeIDMask
)

var (
	ErrInvalidNodeID       = errors.New("node ID exceeds maximum value")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Generator mints 64-bit time-ordered unique IDs from
// (timestamp, node id, sequence). A single instance is safe for
// concurrent use; uniqueness across instances requires distinct node
// ids, which is an operational contract the generator cannot verify.
type Generator struct {
	mu sync.Mutex

	epoch  int64
	nodeID int64

	sequence      int64
	lastTimestamp int64
}

// NewGenerator creates a generator for the given node id. Node id 0 is
// valid but only safe for single-node deployments.
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, ErrInvalidNodeID
	}
	return &Generator{
		epoch:  Epoch,
		nodeID: nodeID,
	}, nil
}

// NextID returns the next ID. IDs from one instance are strictly
// increasing in generation order. When the per-millisecond sequence is
// exhausted the call waits for the clock to advance, releasing the
// mutex while waiting so concurrent callers are not starved. A clock
// reading earlier than the last recorded timestamp fails the call with
// ErrClockMovedBackwards rather than risking a duplicate.
func (g *Generator) NextID() (int64, error) {
	for {
		g.mu.Lock()
		timestamp := g.currentTimestamp()

		if timestamp < g.lastTimestamp {
			g.mu.Unlock()
			return 0, ErrClockMovedBackwards
		}

		if timestamp == g.lastTimestamp {
			sequence := (g.sequence + 1) & sequenceMask
			if sequence == 0 {
				// Sequence exhausted for this millisecond. Retry once
				// the clock has moved on, without holding the lock.
				last := g.lastTimestamp
				g.mu.Unlock()
				g.waitNextMillis(last)
				continue
			}
			g.sequence = sequence
		} else {
			g.lastTimestamp = timestamp
			g.sequence = 0
		}

		id := ((timestamp - g.epoch) << timestampShift) |
			(g.nodeID << nodeIDShift) |
			g.sequence

		g.mu.Unlock()
		return id, nil
	}
}

func (g *Generator) currentTimestamp() int64 {
	return time.Now().UnixMilli()
}

func (g *Generator) waitNextMillis(lastTimestamp int64) {
	for g.currentTimestamp() <= lastTimestamp {
		time.Sleep(50 * time.Microsecond)
	}
}

// Parse extracts the components of an ID.
func (g *Generator) Parse(id int64) (timestamp, nodeID, sequence int64) {
	sequence = id & sequenceMask
	nodeID = (id >> nodeIDShift) & nodeIDMask
	timestamp = (id >> timestampShift) + g.epoch
	return
}

// GetTimestamp extracts the millisecond timestamp from an ID.
func (g *Generator) GetTimestamp(id int64) int64 {
	return (id >> timestampShift) + g.epoch
}

// GetNodeID extracts the node id from an ID.
func (g *Generator) GetNodeID(id int64) int64 {
	return (id >> nodeIDShift) & nodeIDMask
}

// GetSequence extracts the sequence counter from an ID.
func (g *Generator) GetSequence(id int64) int64 {
	return id & sequenceMask
}
