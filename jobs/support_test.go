package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"docintake/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryResultsTerminalOnce(t *testing.T) {
	s := NewMemoryResults()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(types.Job{ID: "j1", State: types.JobAcceptedNoQueue}))
	assert.Error(t, s.Create(types.Job{ID: "j1"}))

	require.NoError(t, s.UpdateProgress("j1", 30))
	require.NoError(t, s.UpdateProgress("j1", 10))
	job, _ := s.Get("j1")
	assert.Equal(t, 30, job.Progress)

	job, err := s.Finish("j1", nil, "bad scan", at)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.State)

	_, err = s.Finish("j1", &types.JobResult{}, "", at.Add(time.Minute))
	assert.ErrorIs(t, err, errJobFinished)
	require.NoError(t, s.UpdateProgress("j1", 90))

	job, _ = s.Get("j1")
	assert.Equal(t, types.JobFailed, job.State)
	assert.Equal(t, 30, job.Progress)
	assert.Equal(t, "bad scan", job.Error)
	assert.Nil(t, job.Result)
	assert.Equal(t, at, *job.FinishedAt)

	_, err = s.Finish("nope", nil, "x", at)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateProgress("nope", 1), ErrJobNotFound)
}

func TestMemoryResultsPrune(t *testing.T) {
	s := NewMemoryResults()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "running"} {
		require.NoError(t, s.Create(types.Job{ID: id, State: types.JobAcceptedNoQueue}))
		if id != "running" {
			_, err := s.Finish(id, &types.JobResult{}, "", base.Add(time.Duration(i)*48*time.Hour))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 1, s.Prune(base.Add(24*time.Hour)))
	assert.Equal(t, 2, s.Count())
	_, ok := s.Get("old")
	assert.False(t, ok)
}

func TestJanitorRunOnce(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	clock := now.Add(-72 * time.Hour)
	backend := newFakeBackend()
	backend.pingErr = errDown

	var calls atomic.Int32
	m := NewManager(backend, okProcessor(&calls), WithClock(func() time.Time { return clock }))
	_, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	clock = now

	backend.controlErr = errDown
	j := NewJanitor(m, 24*time.Hour, nil)
	queued, local := j.RunOnce(context.Background())
	assert.Zero(t, queued)
	assert.Equal(t, 1, local)

	backend.controlErr = nil
	queued, local = j.RunOnce(context.Background())
	assert.Equal(t, 2, queued)
	assert.Zero(t, local)
	assert.Equal(t, 24*time.Hour, backend.cleaned)
}

func TestJanitorSchedule(t *testing.T) {
	j := NewJanitor(NewManager(nil, nil), time.Hour, nil)
	assert.Error(t, j.Start("not a schedule"))

	require.NoError(t, j.Start("@every 1h"))
	assert.Error(t, j.Start("@every 1h"))
	j.Stop()
	j.Stop()
}

type fakePublisher struct {
	keys   []string
	events []JobEvent
	err    error
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, v.(JobEvent))
	return nil
}

func TestEventPublisher(t *testing.T) {
	finished := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := types.Job{
		ID:         "j1",
		State:      types.JobCompleted,
		Input:      validRequest(),
		Result:     &types.JobResult{TransactionCount: 4, DurationMs: 120},
		FinishedAt: &finished,
	}

	pub := &fakePublisher{}
	NewEventPublisher(pub, nil).JobFinished(context.Background(), job)
	require.Len(t, pub.events, 1)
	assert.Equal(t, []string{"j1"}, pub.keys)
	assert.Equal(t, JobEvent{
		JobID:            "j1",
		OwnerID:          "user-1",
		DocumentID:       validRequest().DocumentID,
		DocType:          types.DocTypeBankStatement,
		State:            types.JobCompleted,
		TransactionCount: 4,
		DurationMs:       120,
		FinishedAt:       finished,
	}, pub.events[0])

	failing := &fakePublisher{err: errors.New("broker down")}
	assert.NotPanics(t, func() {
		NewEventPublisher(failing, nil).JobFinished(context.Background(), job)
	})
}

func TestIntakeHandler(t *testing.T) {
	var calls atomic.Int32
	backend := newFakeBackend()
	m := NewManager(backend, okProcessor(&calls))
	h := NewIntakeHandler(m, nil)
	ctx := context.Background()

	mark, err := h.HandleMessage(ctx, []byte(`{"ownerId":"u1","fileUrl":"https://files.example.com/r.jpg","docType":"receipt"}`))
	require.NoError(t, err)
	assert.True(t, mark)
	assert.Len(t, backend.jobs, 1)

	mark, err = h.HandleMessage(ctx, []byte(`{"ownerId":"u1","docType":"invoice"}`))
	require.NoError(t, err)
	assert.True(t, mark, "invalid uploads are dropped, not retried")
	assert.Len(t, backend.jobs, 1)

	backend.enqueueErr = errors.New("unclassified")
	mark, err = h.HandleMessage(ctx, []byte(`{"ownerId":"u1","fileUrl":"https://files.example.com/r.jpg","docType":"receipt"}`))
	assert.Error(t, err)
	assert.False(t, mark)
}
