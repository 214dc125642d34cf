package jobmanager

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/app"
	"github.com/RezaEskandarii/jobfire/client"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/internal/mocks"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryEndToEnd(t *testing.T) {
	var calls atomic.Int32
	cfg, err := config.NewSchedulerConfig("test-instance",
		config.WithMemoryStorage(),
		config.WithHandler(config.MethodHandler{
			JobType: "reports.sales",
			Func: func(ctx context.Context, _ json.RawMessage) error {
				calls.Add(1)
				return nil
			},
		}),
	)
	require.NoError(t, err)

	var closed atomic.Bool
	broker := &mocks.MockMessageBroker{CloseFunc: func() error {
		closed.Store(true)
		return nil
	}}
	s, err := New(context.Background(), cfg, app.WithMessageBroker(broker), app.WithLogger(logger.Nop()))
	require.NoError(t, err)
	assert.Nil(t, s.Errors())

	job, err := s.JobManager.CreateJob(context.Background(), client.CreateJobRequest{
		OrganizationID: "org-1",
		Name:           "Daily sales report",
		Type:           "reports.sales",
		Trigger:        client.TriggerSpec{TriggerType: types.TriggerCron, CronExpression: "0 0 * * *"},
	})
	require.NoError(t, err)
	assert.Equal(t, state.StatusActive, job.Status)

	_, err = s.JobManager.ExecuteJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 && s.JobManager.Engine.Running() == 0 },
		time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, closed.Load())
	assert.Len(t, broker.Messages(), 1)
}

func TestNew_WithOpsServer(t *testing.T) {
	cfg, err := config.NewSchedulerConfig("test-instance",
		config.WithMemoryStorage(),
		config.WithOpsPort(18931),
	)
	require.NoError(t, err)

	s, err := New(context.Background(), cfg, app.WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NotNil(t, s.Errors())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestMigrate_MemoryIsNoop(t *testing.T) {
	cfg, err := config.NewSchedulerConfig("test-instance", config.WithMemoryStorage())
	require.NoError(t, err)
	assert.NoError(t, Migrate(context.Background(), cfg, app.WithLogger(logger.Nop())))
}
