package outbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-1"}))
	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-2"}))

	job, key, err := q.Dequeue(time.Now())
	require.NoError(t, err)
	require.Equal(t, "m-1", job.MsgId)
	require.NoError(t, q.Ack(key))

	job, key, err = q.Dequeue(time.Now())
	require.NoError(t, err)
	require.Equal(t, "m-2", job.MsgId)
	require.NoError(t, q.Ack(key))

	job, _, err = q.Dequeue(time.Now())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestQueueInflightNotRedelivered(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-1"}))

	job, key, err := q.Dequeue(time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)

	// The job is in flight; a second poll must not see it.
	dup, _, err := q.Dequeue(time.Now())
	require.NoError(t, err)
	require.Nil(t, dup)

	require.NoError(t, q.Ack(key))
	n, err := q.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueueNackBacksOff(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-1"}))

	job, key, err := q.Dequeue(time.Now())
	require.NoError(t, err)
	require.NoError(t, q.Nack(key, job))

	// Not eligible until the backoff elapses.
	job, _, err = q.Dequeue(time.Now())
	require.NoError(t, err)
	require.Nil(t, job)

	job, _, err = q.Dequeue(time.Now().Add(backoffStep + time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, 1, job.Attempts)
}

func TestQueueDeadLetterAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-1"}))

	eligible := time.Now()
	for i := 0; i < maxAttempts; i++ {
		job, key, err := q.Dequeue(eligible)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", i)
		require.NoError(t, q.Nack(key, job))
		eligible = job.NextAt.Add(time.Second)
	}

	job, _, err := q.Dequeue(eligible.Add(backoffCeiling))
	require.NoError(t, err)
	require.Nil(t, job)
	n, err := q.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outbox.db")

	q, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(&Job{SessionId: 1, MsgId: "m-1"}))
	require.NoError(t, q.Close())

	q, err = Open(path)
	require.NoError(t, err)
	defer q.Close()

	job, _, err := q.Dequeue(time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "m-1", job.MsgId)
}
