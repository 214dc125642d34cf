package client

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/internal/store/memory"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, handlers map[string]config.HandlerFunc) *config.HandlerRegistry {
	t.Helper()
	reg := config.NewHandlerRegistry()
	for jobType, h := range handlers {
		require.NoError(t, reg.Register(jobType, h))
	}
	return reg
}

func newTestEngine(t *testing.T, stores store.Stores, handlers map[string]config.HandlerFunc) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{
		Stores:         stores,
		Handlers:       newRegistry(t, handlers),
		DefaultTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func insertJob(t *testing.T, stores store.Stores, jobType string, tr types.Trigger, mutate ...func(*types.Job)) *types.Job {
	t.Helper()
	job := &types.Job{
		OrganizationID: "org-1",
		Name:           "sync " + jobType,
		Type:           jobType,
		Trigger:        tr,
		Status:         state.StatusActive,
	}
	for _, m := range mutate {
		m(job)
	}
	require.NoError(t, stores.Jobs.Insert(context.Background(), job))
	return job
}

// executions returns the job's history oldest first.
func executions(t *testing.T, stores store.Stores, jobID string) []types.Execution {
	t.Helper()
	res, err := stores.Executions.ListByJob(context.Background(), jobID, 1, 500)
	require.NoError(t, err)
	out := res.Items
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func allTerminal(execs []types.Execution) bool {
	for _, e := range execs {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}

func reload(t *testing.T, stores store.Stores, jobID string) *types.Job {
	t.Helper()
	job, err := stores.Jobs.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

func newMemoryStores() store.Stores {
	return memory.New()
}
