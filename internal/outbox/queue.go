package outbox

import (
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketJobs = []byte("outbound_jobs")
	bucketDead = []byte("outbound_dead")
)

const (
	maxAttempts    = 8
	backoffStep    = 30 * time.Second
	backoffCeiling = 5 * time.Minute
)

// Job is one outbound delivery request. MsgId is pre-assigned so the
// protocol-level message id matches the database row, making redelivery
// idempotent end to end.
type Job struct {
	SessionId  int64     `json:"sessionId"`
	To         string    `json:"to"`
	Text       string    `json:"text"`
	Prefix     string    `json:"prefix,omitempty"` // sender display name prepended to the text
	MsgId      string    `json:"msgId"`
	Attempts   int       `json:"attempts"`
	NextAt     time.Time `json:"nextAt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue is a durable FIFO of outbound jobs backed by a local bolt file.
// Jobs survive process restarts; delivery is at-least-once, with the
// database row providing the exactly-once cut.
type Queue struct {
	db *bolt.DB

	mu       sync.Mutex
	inflight map[string]bool
}

// Open opens or creates the queue file.
func Open(path string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "outbox: open queue")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketJobs); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDead)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "outbox: init buckets")
	}
	return &Queue{db: db, inflight: make(map[string]bool)}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends a job. Ordering follows the bucket sequence, so jobs come
// back out in enqueue order once eligible.
func (q *Queue) Enqueue(job *Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "outbox: encode job")
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), raw)
	})
}

// Dequeue returns the oldest eligible job, or nil when none is due. The job
// stays in the bucket until Ack; crashing between the two redelivers it.
func (q *Queue) Dequeue(now time.Time) (*Job, string, error) {
	var (
		job *Job
		key string
	)
	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			q.mu.Lock()
			busy := q.inflight[string(k)]
			q.mu.Unlock()
			if busy {
				continue
			}
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				continue
			}
			if j.NextAt.After(now) {
				continue
			}
			job = &j
			key = string(k)
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "outbox: dequeue")
	}
	if job == nil {
		return nil, "", nil
	}
	q.mu.Lock()
	q.inflight[key] = true
	q.mu.Unlock()
	return job, key, nil
}

// Ack removes a delivered job.
func (q *Queue) Ack(key string) error {
	defer q.release(key)
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(key))
	})
}

// Nack reschedules a failed job with linear backoff. After maxAttempts the
// job moves to the dead bucket instead of cycling forever.
func (q *Queue) Nack(key string, job *Job) error {
	defer q.release(key)
	job.Attempts++
	backoff := time.Duration(job.Attempts) * backoffStep
	if backoff > backoffCeiling {
		backoff = backoffCeiling
	}
	job.NextAt = time.Now().Add(backoff)

	raw, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "outbox: encode job")
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		if job.Attempts >= maxAttempts {
			if err := tx.Bucket(bucketDead).Put([]byte(key), raw); err != nil {
				return err
			}
			return tx.Bucket(bucketJobs).Delete([]byte(key))
		}
		return tx.Bucket(bucketJobs).Put([]byte(key), raw)
	})
}

func (q *Queue) release(key string) {
	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
}

// Len counts queued jobs, in-flight ones included.
func (q *Queue) Len() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketJobs).Stats().KeyN
		return nil
	})
	return n, err
}
