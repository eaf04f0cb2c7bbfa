package schedule

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls []struct {
		workflow string
		input    map[string]any
	}
	err error
}

func (f *fakeStarter) Start(_ context.Context, workflowName string, input, _ map[string]any) (*store.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		workflow string
		input    map[string]any
	}{workflowName, input})
	if f.err != nil {
		return nil, f.err
	}
	return &store.Execution{ID: uuid.New().String(), WorkflowName: workflowName, Status: schema.ExecutionStatusRunning}, nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.MemoryStore, *fakeStarter) {
	t.Helper()
	st := store.NewMemoryStore()
	starter := &fakeStarter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(st, starter, logger), st, starter
}

func TestCalculateNextRun(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 3 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), next)

	next, err = s.CalculateNextRun("@hourly", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("not a cron", from)
	assert.Error(t, err)
}

func TestTickStartsDueJobs(t *testing.T) {
	s, st, starter := newTestScheduler(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "due",
		WorkflowName:   "nightly",
		CronExpression: "@hourly",
		Input:          json.RawMessage(`{"source":"cron"}`),
		Enabled:        true,
		NextRunAt:      &past,
	}))
	require.NoError(t, st.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "later",
		WorkflowName:   "weekly",
		CronExpression: "@hourly",
		Enabled:        true,
		NextRunAt:      &future,
	}))
	require.NoError(t, st.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "off",
		WorkflowName:   "disabled",
		CronExpression: "@hourly",
		Enabled:        false,
		NextRunAt:      &past,
	}))

	s.tick(ctx)

	require.Equal(t, 1, starter.count())
	assert.Equal(t, "nightly", starter.calls[0].workflow)
	assert.Equal(t, "cron", starter.calls[0].input["source"])

	job, err := st.GetScheduledJob(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, "started", job.LastRunStatus)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().UTC()))
}

func TestTickRecordsStartFailure(t *testing.T) {
	s, st, starter := newTestScheduler(t)
	ctx := context.Background()
	starter.err = schema.NewError(schema.ErrCodeNotFound, "no such workflow")

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "broken",
		WorkflowName:   "ghost",
		CronExpression: "@hourly",
		Enabled:        true,
		NextRunAt:      &past,
	}))

	s.tick(ctx)

	job, err := st.GetScheduledJob(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, "error", job.LastRunStatus)
}

func TestRecoverMissed(t *testing.T) {
	s, st, starter := newTestScheduler(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, st.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "missed",
		WorkflowName:   "nightly",
		CronExpression: "@hourly",
		Enabled:        true,
		NextRunAt:      &past,
	}))

	require.NoError(t, s.RecoverMissed(ctx))
	assert.Equal(t, 1, starter.count())
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.tickEvery = 10 * time.Millisecond

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, s.Stop())
	// Stop is idempotent.
	require.NoError(t, s.Stop())
}
