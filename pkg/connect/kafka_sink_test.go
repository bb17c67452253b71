package connect_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/connect"
	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/restsink"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueReader is a KafkaReader serving a fixed set of messages.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []int64
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func (r *queueReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// failFirstOffset fails offset 0 with a 503 and delivers everything else.
type failFirstOffset struct {
	mu    sync.Mutex
	calls int
}

func (f *failFirstOffset) Put(_ context.Context, batch []types.InboundRecord) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for _, rec := range batch {
		if rec.Offset == 0 {
			return &restsink.BatchError{Failures: []restsink.RecordFailure{
				{Record: rec, Err: &types.ExecutionError{StatusCode: 503, Err: errors.New("Service Unavailable")}},
			}}
		}
	}
	return nil
}

func (f *failFirstOffset) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runKafkaSink(t *testing.T, cfg connect.SinkRunnerConfig, opts ...connect.SinkOption) (*queueReader, *failFirstOffset) {
	t.Helper()
	reader := &queueReader{queue: []kafkago.Message{
		{Topic: "in", Partition: 0, Offset: 0, Value: []byte("a")},
		{Topic: "in", Partition: 0, Offset: 1, Value: []byte("b")},
	}}
	consumer := messagepipeline.NewKafkaConsumerWithReader(reader,
		messagepipeline.NewKafkaConsumerDefaults([]string{"b:9092"}, "g", []string{"in"}), zerolog.Nop())
	task := &failFirstOffset{}
	cfg.NumWorkers = 1
	cfg.BatchSize = 2
	cfg.FlushInterval = time.Hour
	cfg.RetryBackoff = time.Millisecond
	runner, err := connect.NewSinkRunner(cfg, consumer, task, zerolog.Nop(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, runner.Start(ctx))
	require.Eventually(t, func() bool { return task.Calls() >= cfg.MaxRetries+1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, runner.Stop(ctx))
	return reader, task
}

func TestSinkRunner_Kafka_ExhaustedRecordIsNotCommittedPast(t *testing.T) {
	reader, _ := runKafkaSink(t, connect.SinkRunnerConfig{})

	assert.Empty(t, reader.Committed(), "offset 1 was delivered but offset 0 is unresolved")
}

func TestSinkRunner_Kafka_ExhaustedRecordIsDeadLettered(t *testing.T) {
	dlt := &recordingPublisher{}

	reader, task := runKafkaSink(t, connect.SinkRunnerConfig{MaxRetries: 1, DeadLetterTopic: "dlt"}, connect.WithDeadLetter(dlt))

	assert.Equal(t, 2, task.Calls())
	require.Len(t, dlt.Published(), 1)
	assert.Equal(t, []byte("a"), dlt.Published()[0].Value)
	committed := reader.Committed()
	require.NotEmpty(t, committed)
	assert.Equal(t, int64(1), committed[len(committed)-1])
}
