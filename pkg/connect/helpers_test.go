package connect_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// scriptedSourceTask returns the scripted results in order, then repeats the last.
type scriptedSourceTask struct {
	mu       sync.Mutex
	interval time.Duration
	results  []pollResult
	calls    int
}

type pollResult struct {
	records []types.DestinationRecord
	err     error
}

func (s *scriptedSourceTask) Poll(_ context.Context) ([]types.DestinationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].records, s.results[i].err
}

func (s *scriptedSourceTask) PollInterval() time.Duration { return s.interval }

func (s *scriptedSourceTask) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingPublisher is a RecordPublisher that keeps what it was given.
type recordingPublisher struct {
	mu        sync.Mutex
	published []types.DestinationRecord
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, records ...types.DestinationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, records...)
	return nil
}

func (p *recordingPublisher) Stop(context.Context) error { return nil }

func (p *recordingPublisher) Published() []types.DestinationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.DestinationRecord(nil), p.published...)
}

// sinkTaskFunc adapts a function to connect.SinkTask.
type sinkTaskFunc func(ctx context.Context, batch []types.InboundRecord) error

func (f sinkTaskFunc) Put(ctx context.Context, batch []types.InboundRecord) error { return f(ctx, batch) }

// idleConsumer never produces messages; ProcessBatch is driven directly.
type idleConsumer struct {
	msgs chan messagepipeline.Message
	done chan struct{}
	once sync.Once
}

func newIdleConsumer() *idleConsumer {
	return &idleConsumer{msgs: make(chan messagepipeline.Message), done: make(chan struct{})}
}

func (c *idleConsumer) Messages() <-chan messagepipeline.Message { return c.msgs }
func (c *idleConsumer) Start(context.Context) error               { return nil }
func (c *idleConsumer) Done() <-chan struct{}                     { return c.done }
func (c *idleConsumer) Stop(context.Context) error {
	c.once.Do(func() {
		close(c.msgs)
		close(c.done)
	})
	return nil
}

// ackState tracks the Ack/Nack status of a single message.
type ackState struct {
	mu     sync.Mutex
	acked  bool
	nacked bool
}

func (a *ackState) Ack()  { a.mu.Lock(); a.acked = true; a.mu.Unlock() }
func (a *ackState) Nack() { a.mu.Lock(); a.nacked = true; a.mu.Unlock() }

func (a *ackState) Acked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked
}

func (a *ackState) Nacked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nacked
}

func item(offset int64, value string) (messagepipeline.ProcessableItem[types.InboundRecord], *ackState) {
	state := &ackState{}
	rec := types.InboundRecord{Topic: "in", Offset: offset, Value: []byte(value)}
	return messagepipeline.ProcessableItem[types.InboundRecord]{
		Original: messagepipeline.Message{ID: rec.ID(), Ack: state.Ack, Nack: state.Nack},
		Payload:  &rec,
	}, state
}

var errUnavailable = errors.New("connection refused")
