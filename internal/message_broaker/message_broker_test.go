package message_broaker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBroker keeps every published message for assertions.
type recordingBroker struct {
	publishErr error
	keys       []string
	messages   [][]byte
}

func (m *recordingBroker) Publish(ctx context.Context, routingKey string, message []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.keys = append(m.keys, routingKey)
	m.messages = append(m.messages, message)
	return nil
}

func (m *recordingBroker) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	ch := make(chan []byte, len(m.messages))
	for _, msg := range m.messages {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *recordingBroker) Close() error { return nil }

func TestMessageBrokerInterface(t *testing.T) {
	var _ MessageBroker = (*recordingBroker)(nil)
	var _ MessageBroker = (*RabbitMQ)(nil)
}

func sampleExecution() (*types.Job, *types.Execution) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	done := start.Add(1200 * time.Millisecond)
	parent := "exec-0"
	job := &types.Job{ID: "job-1", Name: "Orders", Type: "sync.orders", OrganizationID: "org-1"}
	exec := &types.Execution{
		ID:                "exec-1",
		JobID:             "job-1",
		ParentExecutionID: &parent,
		Attempt:           1,
		Status:            state.ExecutionFailed,
		TriggerSource:     types.SourceScheduled,
		StartedAt:         start,
		CompletedAt:       &done,
		Error:             "marketplace unavailable",
	}
	return job, exec
}

func TestExecutionPublisher_RoundTrip(t *testing.T) {
	broker := &recordingBroker{}
	pub := NewExecutionPublisher(broker, "execution.completed")

	job, exec := sampleExecution()
	ev := NewExecutionEvent(job, exec)
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, broker.messages, 1)
	assert.Equal(t, "execution.completed", broker.keys[0])

	ch, err := broker.Consume(context.Background(), "")
	require.NoError(t, err)
	got, err := DecodeExecutionEvent(<-ch)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, int64(1200), got.DurationMs)
	assert.Equal(t, "exec-0", *got.ParentExecutionID)
	assert.Equal(t, "Orders", got.JobName)
}

func TestExecutionPublisher_BrokerError(t *testing.T) {
	pub := NewExecutionPublisher(&recordingBroker{publishErr: assert.AnError}, "k")
	job, exec := sampleExecution()
	assert.ErrorIs(t, pub.Publish(context.Background(), NewExecutionEvent(job, exec)), assert.AnError)
}

func TestDecodeExecutionEvent_Invalid(t *testing.T) {
	_, err := DecodeExecutionEvent([]byte("{"))
	assert.Error(t, err)
}

func TestRabbitMQ_PublishConsume(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}
	queue := "jobfire.test." + time.Now().Format("150405.000000")
	mq, err := NewRabbitMQ(url, "jobfire.test", queue, queue, "")
	require.NoError(t, err)
	defer mq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := mq.Consume(ctx, "")
	require.NoError(t, err)
	require.NoError(t, mq.Publish(ctx, "", []byte(`{"job_id":"job-1"}`)))

	select {
	case body := <-msgs:
		ev, err := DecodeExecutionEvent(body)
		require.NoError(t, err)
		assert.Equal(t, "job-1", ev.JobID)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}
