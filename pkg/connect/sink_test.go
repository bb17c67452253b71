package connect_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/connect"
	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/observability"
	"github.com/illmade-knight/go-restbridge/pkg/restsink"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T, cfg connect.SinkRunnerConfig, task connect.SinkTask, opts ...connect.SinkOption) *connect.SinkRunner {
	t.Helper()
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	r, err := connect.NewSinkRunner(cfg, newIdleConsumer(), task, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return r
}

func TestSinkRunner_AcksDeliveredBatch(t *testing.T) {
	// Arrange
	var got []types.InboundRecord
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		got = append(got, batch...)
		return nil
	})
	metrics := observability.NewMetricsForTesting()
	runner := newRunner(t, connect.SinkRunnerConfig{}, task, connect.WithSinkMetrics(metrics))
	a, aState := item(1, "a")
	b, bState := item(2, "b")

	// Act
	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{a, b})

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", string(got[1].Value))
	assert.True(t, aState.Acked())
	assert.True(t, bState.Acked())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkRecords.WithLabelValues(observability.OutcomeSuccess)))
}

func TestSinkRunner_RetriesTransientThenSucceeds(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	attempts := map[string]int{}
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		mu.Lock()
		defer mu.Unlock()
		var failures []restsink.RecordFailure
		for _, rec := range batch {
			attempts[rec.ID()]++
			if string(rec.Value) == "flaky" && attempts[rec.ID()] == 1 {
				failures = append(failures, restsink.RecordFailure{Record: rec, Err: &types.ExecutionError{StatusCode: 503}})
			}
		}
		if failures != nil {
			return &restsink.BatchError{Failures: failures}
		}
		return nil
	})
	runner := newRunner(t, connect.SinkRunnerConfig{MaxRetries: 2}, task)
	ok, okState := item(1, "ok")
	flaky, flakyState := item(2, "flaky")

	// Act
	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{ok, flaky})

	// Assert
	require.NoError(t, err)
	assert.True(t, okState.Acked())
	assert.True(t, flakyState.Acked())
	assert.False(t, flakyState.Nacked())
	assert.Equal(t, 1, attempts["in/0/1"], "delivered records are not re-put")
	assert.Equal(t, 2, attempts["in/0/2"])
}

func TestSinkRunner_NacksAfterMaxRetries(t *testing.T) {
	calls := 0
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		calls++
		return &restsink.BatchError{Failures: []restsink.RecordFailure{
			{Record: batch[0], Err: &types.ExecutionError{StatusCode: 500}},
		}}
	})
	runner := newRunner(t, connect.SinkRunnerConfig{MaxRetries: 2}, task)
	it, state := item(1, "x")

	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{it})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, state.Nacked())
	assert.False(t, state.Acked())
}

func TestSinkRunner_ExhaustedRetriesGoToDeadLetter(t *testing.T) {
	// Arrange
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		return &restsink.BatchError{Failures: []restsink.RecordFailure{
			{Record: batch[0], Err: &types.ExecutionError{URL: "http://x/y", StatusCode: 503, Err: errors.New("Service Unavailable")}},
		}}
	})
	dlt := &recordingPublisher{}
	runner := newRunner(t, connect.SinkRunnerConfig{MaxRetries: 1, DeadLetterTopic: "dlt"}, task, connect.WithDeadLetter(dlt))
	it, state := item(1, "x")

	// Act
	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{it})

	// Assert
	require.Error(t, err)
	assert.True(t, state.Acked())
	assert.False(t, state.Nacked())
	published := dlt.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "503", published[0].Headers[connect.HeaderDeadLetterStatus])
	assert.Contains(t, published[0].Headers[connect.HeaderDeadLetterError], connect.ErrRetriesExhausted.Error())
}

func TestSinkRunner_PermanentFailureGoesToDeadLetter(t *testing.T) {
	// Arrange
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		return &restsink.BatchError{Failures: []restsink.RecordFailure{
			{Record: batch[1], Err: &types.PermanentError{URL: "http://x/y", StatusCode: 400, Body: "bad"}},
		}}
	})
	dlt := &recordingPublisher{}
	metrics := observability.NewMetricsForTesting()
	runner := newRunner(t, connect.SinkRunnerConfig{DeadLetterTopic: "dlt"}, task,
		connect.WithDeadLetter(dlt), connect.WithSinkMetrics(metrics))
	good, goodState := item(1, "good")
	bad, badState := item(2, "bad")
	bad.Payload.Headers = map[string]string{"trace": "abc"}

	// Act
	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{good, bad})

	// Assert
	require.NoError(t, err)
	assert.True(t, goodState.Acked())
	assert.True(t, badState.Acked())
	published := dlt.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "dlt", published[0].Topic)
	assert.Equal(t, []byte("bad"), published[0].Value)
	assert.Equal(t, "abc", published[0].Headers["trace"])
	assert.Equal(t, "in/0/2", published[0].Headers[connect.HeaderDeadLetterSource])
	assert.Equal(t, "400", published[0].Headers[connect.HeaderDeadLetterStatus])
	assert.NotEmpty(t, published[0].Headers[connect.HeaderDeadLetterError])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeadLettered))
}

func TestSinkRunner_DeadLetterPublishFailureNacks(t *testing.T) {
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		return &restsink.BatchError{Failures: []restsink.RecordFailure{
			{Record: batch[0], Err: &types.ConversionError{ID: batch[0].ID(), Err: errors.New("not utf-8")}},
		}}
	})
	runner := newRunner(t, connect.SinkRunnerConfig{DeadLetterTopic: "dlt"}, task,
		connect.WithDeadLetter(&recordingPublisher{err: errUnavailable}))
	it, state := item(1, "x")

	require.NoError(t, runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{it}))

	assert.True(t, state.Nacked())
	assert.False(t, state.Acked())
}

func TestSinkRunner_PermanentFailureWithoutDeadLetterIsDropped(t *testing.T) {
	task := sinkTaskFunc(func(_ context.Context, batch []types.InboundRecord) error {
		return &restsink.BatchError{Failures: []restsink.RecordFailure{
			{Record: batch[0], Err: &types.PermanentError{StatusCode: 422}},
		}}
	})
	runner := newRunner(t, connect.SinkRunnerConfig{}, task)
	it, state := item(1, "x")

	require.NoError(t, runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{it}))

	assert.True(t, state.Acked())
}

func TestSinkRunner_UnexpectedErrorNacksAll(t *testing.T) {
	task := sinkTaskFunc(func(context.Context, []types.InboundRecord) error {
		return &types.NotInitializedError{Component: "RestSinkTask"}
	})
	runner := newRunner(t, connect.SinkRunnerConfig{}, task)
	a, aState := item(1, "a")
	b, bState := item(2, "b")

	err := runner.ProcessBatch(context.Background(), []messagepipeline.ProcessableItem[types.InboundRecord]{a, b})

	require.Error(t, err)
	assert.True(t, aState.Nacked())
	assert.True(t, bState.Nacked())
}

func TestNewSinkRunner_Validation(t *testing.T) {
	_, err := connect.NewSinkRunner(connect.SinkRunnerConfig{}, newIdleConsumer(), nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = connect.NewSinkRunner(connect.SinkRunnerConfig{DeadLetterTopic: "dlt"}, newIdleConsumer(), sinkTaskFunc(nil), zerolog.Nop())
	assert.Error(t, err, "dead letter topic needs a publisher")
}

func TestSinkRunner_StartStop(t *testing.T) {
	runner := newRunner(t, connect.SinkRunnerConfig{}, sinkTaskFunc(func(context.Context, []types.InboundRecord) error { return nil }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	require.NoError(t, runner.Start(ctx))
	assert.True(t, runner.Ready())
	require.NoError(t, runner.Stop(ctx))
	assert.False(t, runner.Ready())
}
