package jobrunner

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	kind    JobKind
	delay   time.Duration
	payload any
	err     error
	ran     *int32
}

func (j *fakeJob) Kind() JobKind { return j.kind }

func (j *fakeJob) Run() (any, error) {
	if j.delay > 0 {
		time.Sleep(j.delay)
	}
	if j.ran != nil {
		atomic.AddInt32(j.ran, 1)
	}
	return j.payload, j.err
}

func waitForResults(t *testing.T, r *Runner, n int, timeout time.Duration) []JobResult {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var got []JobResult
	for len(got) < n && time.Now().Before(deadline) {
		got = append(got, r.PollResults()...)
		if len(got) < n {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.Lenf(t, got, n, "results")
	return got
}

func TestDispatchAndPollResults(t *testing.T) {
	r := New(Options{Workers: 2, Max: 2, QueueSize: 8})
	defer r.Shutdown()

	id, err := r.Dispatch(&fakeJob{kind: KindSaveImage, payload: "ok"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results := waitForResults(t, r, 1, time.Second)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, KindSaveImage, results[0].Kind)
	assert.Equal(t, "ok", results[0].Payload)
}

func TestDispatchCarriesJobError(t *testing.T) {
	r := New(Options{Workers: 1, Max: 1, QueueSize: 4})
	defer r.Shutdown()

	wantErr := errors.New("boom")
	_, err := r.Dispatch(&fakeJob{kind: KindQCMetrics, err: wantErr})
	require.NoError(t, err)

	results := waitForResults(t, r, 1, time.Second)
	assert.ErrorIs(t, results[0].Err, wantErr)
}

func TestDrainWaitsForOutstanding(t *testing.T) {
	r := New(Options{Workers: 2, Max: 2, QueueSize: 8})
	defer r.Shutdown()

	var ran int32
	for i := 0; i < 5; i++ {
		_, err := r.Dispatch(&fakeJob{kind: KindSaveImage, delay: 20 * time.Millisecond, ran: &ran})
		require.NoError(t, err)
	}

	r.Drain()
	assert.EqualValues(t, 5, atomic.LoadInt32(&ran))

	// drained results should all be pollable without further waiting.
	results := r.PollResults()
	assert.Len(t, results, 5)
}

func TestShutdownRejectsFurtherDispatch(t *testing.T) {
	r := New(Options{Workers: 1, Max: 1, QueueSize: 4})
	r.Shutdown()

	_, err := r.Dispatch(&fakeJob{kind: KindSaveImage})
	assert.Error(t, err)
}

func TestShutdownIsIdempotent(t *testing.T) {
	r := New(Options{Workers: 1, Max: 1, QueueSize: 4})
	r.Shutdown()
	r.Shutdown() // must not panic on double-close
}

func TestNewClampsWorkersToMax(t *testing.T) {
	r := New(Options{Workers: 100, Max: 2, QueueSize: 4})
	defer r.Shutdown()

	// Dispatch 6 jobs of 30ms each. With the pool clamped to 2 workers they
	// need at least 3 sequential rounds (>= 90ms); 100 workers would finish
	// them in about one round.
	start := time.Now()
	for i := 0; i < 6; i++ {
		_, err := r.Dispatch(&fakeJob{kind: KindSaveImage, payload: i, delay: 30 * time.Millisecond})
		require.NoError(t, err)
	}
	waitForResults(t, r, 6, time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "jobs ran with more than Max workers")
}
