package messagepipeline_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooglePubsubConsumer_ReceiveMessage(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestPubsubClient(t, ctx, "test-project")
	createTopicAndSub(t, ctx, client, "test-topic-consumer", "test-sub-consumer")

	consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults("test-sub-consumer")
	consumerCfg.TopicName = "test-topic-consumer"
	consumer, err := messagepipeline.NewGooglePubsubConsumer(consumerCfg, client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })

	// --- Act ---
	topic := client.Topic("test-topic-consumer")
	defer topic.Stop()
	res := topic.Publish(ctx, &pubsub.Message{
		Data:       []byte("hello consumer"),
		Attributes: map[string]string{"source": "test-harness", messagepipeline.SchemaAttribute: "reading.v1"},
	})
	_, err = res.Get(ctx)
	require.NoError(t, err)

	// --- Assert ---
	select {
	case msg := <-consumer.Messages():
		assert.Equal(t, []byte("hello consumer"), msg.Payload)
		assert.Equal(t, "test-harness", msg.Attributes["source"])
		assert.Equal(t, "test-topic-consumer", msg.Topic)
		assert.Equal(t, int64(1), msg.Offset)

		rec := messagepipeline.ToInboundRecord(&msg)
		assert.Equal(t, "reading.v1", rec.Schema)
		assert.Equal(t, "test-topic-consumer/0/1", rec.ID())
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message from consumer")
	}
}

func TestGooglePubsubConsumer_Stop(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestPubsubClient(t, ctx, "test-project-stop")
	createTopicAndSub(t, ctx, client, "test-topic-stop", "test-sub-stop")
	consumer, err := messagepipeline.NewGooglePubsubConsumer(messagepipeline.NewGooglePubsubConsumerDefaults("test-sub-stop"), client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))

	// --- Act ---
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, consumer.Stop(stopCtx))

	// --- Assert ---
	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer.Done() channel was not closed after stop")
	}
	_, ok := <-consumer.Messages()
	assert.False(t, ok, "consumer.Messages() channel should be closed")
}

func TestNewGooglePubsubConsumer_SubscriptionMissing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client := newTestPubsubClient(t, ctx, "test-project-missing")

	_, err := messagepipeline.NewGooglePubsubConsumer(messagepipeline.NewGooglePubsubConsumerDefaults("nope"), client, zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription nope does not exist")
}
