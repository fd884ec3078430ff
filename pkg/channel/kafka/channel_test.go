//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/events"
)

var (
	kafkaContainer *kafkaTc.KafkaContainer
	brokers        string
	logger         watermill.LoggerAdapter
)

func TestMain(m *testing.M) {
	logger = watermill.NopLogger{}

	ctx := context.Background()

	var err error

	kafkaContainer, err = kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	if err != nil {
		panic("Failed to start Kafka container: " + err.Error())
	}

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		panic("Failed to get Kafka brokers: " + err.Error())
	}

	brokers = kafkaBrokers[0]

	createTopics(brokers)

	code := m.Run()

	if err := kafkaContainer.Terminate(ctx); err != nil {
		panic("Failed to terminate Kafka container: " + err.Error())
	}

	os.Exit(code)
}

func createTopics(brokers string) {
	admin, err := sarama.NewClusterAdmin([]string{brokers}, sarama.NewConfig())
	if err != nil {
		panic(err.Error())
	}

	defer func() {
		if err := admin.Close(); err != nil {
			panic(err.Error())
		}
	}()

	for _, topic := range []string{events.CommandTopic, events.EventTopic} {
		err := admin.CreateTopic(topic, &sarama.TopicDetail{
			NumPartitions:     1,
			ReplicationFactor: 1,
		}, false)
		if err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
			panic(err.Error())
		}
	}
}

// publishSupervisorEvent plays the backend supervisor by publishing one event
// on the inbound topic.
func publishSupervisorEvent(t *testing.T, pub message.Publisher, event channel.Event) {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	require.NoError(t, pub.Publish(events.EventTopic, msg))
}

func TestCreateChannel(t *testing.T) {
	tests := []struct {
		name        string
		brokers     string
		expectError bool
	}{
		{
			name:        "valid brokers",
			brokers:     brokers,
			expectError: false,
		},
		{
			name:        "empty brokers",
			brokers:     "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KAFKA_BROKERS", tt.brokers)

			pub, sub, err := CreateChannel(logger, "autofx-test")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, pub)
				assert.Nil(t, sub)
			} else {
				require.NoError(t, err)
				require.NotNil(t, pub)
				require.NotNil(t, sub)
				assert.NoError(t, pub.Close())
				assert.NoError(t, sub.Close())
			}
		})
	}
}

func TestKafkaChannel_DispatchesSupervisorEvents(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", brokers)

	pub, sub, err := CreateChannel(logger, "autofx-dispatch")
	require.NoError(t, err)

	ch := channel.NewWatermillChannel(pub, sub)

	defer func() {
		assert.NoError(t, ch.Close())
	}()

	supPub, supSub, err := CreateChannel(logger, "autofx-dispatch-supervisor")
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, supPub.Close())
		assert.NoError(t, supSub.Close())
	}()

	received := make(chan *events.ScriptOutput, 1)

	err = ch.Handle(events.ScriptOutputEvent, func(ctx context.Context, event any) error {
		if output, ok := event.(*events.ScriptOutput); ok {
			received <- output
		}

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ch.Subscribe(ctx))

	// Wait for the consumer group to join before publishing.
	time.Sleep(2 * time.Second)

	publishSupervisorEvent(t, supPub, events.NewConnected("supervisor online"))
	require.Eventually(t, ch.Connected, 10*time.Second, 100*time.Millisecond)

	publishSupervisorEvent(t, supPub, events.NewScriptOutput("script", "hello from kafka", events.ClassInfo))

	select {
	case output := <-received:
		assert.Equal(t, "script", output.StageID)
		assert.Equal(t, "hello from kafka", output.Output)
		assert.Equal(t, events.ClassInfo, output.Classification)
	case <-time.After(10 * time.Second):
		t.Fatal("Did not receive event within timeout")
	}
}

func TestKafkaChannel_SendPublishesCommand(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", brokers)

	pub, sub, err := CreateChannel(logger, "autofx-send")
	require.NoError(t, err)

	ch := channel.NewWatermillChannel(pub, sub)

	defer func() {
		assert.NoError(t, ch.Close())
	}()

	supPub, supSub, err := CreateChannel(logger, "autofx-send-supervisor")
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, supPub.Close())
		assert.NoError(t, supSub.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commands, err := supSub.Subscribe(ctx, events.CommandTopic)
	require.NoError(t, err)

	require.NoError(t, ch.Subscribe(ctx))

	time.Sleep(2 * time.Second)

	publishSupervisorEvent(t, supPub, events.NewConnected(""))
	require.Eventually(t, ch.Connected, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, ch.Send(ctx, events.NewExecuteStage("script", "baixa_script.py")))

	select {
	case msg := <-commands:
		msg.Ack()
		assert.Equal(t, string(events.ExecuteStageCommand), msg.Metadata.Get(events.EventTypeMetadataKey))

		var command events.ExecuteStage

		require.NoError(t, json.Unmarshal(msg.Payload, &command))
		assert.Equal(t, "script", command.StageID)
		assert.Equal(t, "baixa_script.py", command.ScriptRef)
	case <-time.After(10 * time.Second):
		t.Fatal("Did not receive command within timeout")
	}
}
