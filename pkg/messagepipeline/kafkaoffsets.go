package messagepipeline

import (
	"sync"

	kafkago "github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

// partitionOffsets holds the fetched, not yet committed offsets of one
// partition in fetch order.
type partitionOffsets struct {
	inflight []int64
	acked    map[int64]kafkago.Message
	nacked   map[int64]bool
}

// offsetTracker turns out-of-order acks into in-order commits. A partition
// commits only the highest offset whose predecessors are all acked, so a
// commit never moves backwards and never skips a nacked offset.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[partitionKey]*partitionOffsets)}
}

func (t *offsetTracker) partition(m kafkago.Message) *partitionOffsets {
	k := partitionKey{topic: m.Topic, partition: m.Partition}
	p, ok := t.partitions[k]
	if !ok {
		p = &partitionOffsets{acked: make(map[int64]kafkago.Message), nacked: make(map[int64]bool)}
		t.partitions[k] = p
	}
	return p
}

// fetched registers m. Offsets of a partition must be registered in fetch order.
func (t *offsetTracker) fetched(m kafkago.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partition(m)
	p.inflight = append(p.inflight, m.Offset)
}

// ack marks m done and returns the message to commit, if the contiguous acked
// prefix of its partition grew.
func (t *offsetTracker) ack(m kafkago.Message) (kafkago.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partition(m)
	if p.nacked[m.Offset] {
		return kafkago.Message{}, false
	}
	p.acked[m.Offset] = m
	var commit kafkago.Message
	advanced := false
	for len(p.inflight) > 0 {
		head, ok := p.acked[p.inflight[0]]
		if !ok {
			break
		}
		delete(p.acked, p.inflight[0])
		p.inflight = p.inflight[1:]
		commit, advanced = head, true
	}
	return commit, advanced
}

// nack pins m as unresolved. Nothing past it is committed by this process, so
// the group resumes from m after a restart or rebalance.
func (t *offsetTracker) nack(m kafkago.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partition(m).nacked[m.Offset] = true
}
