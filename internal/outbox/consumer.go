package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/internal/wabridge"
	"github.com/chatmux/chatmux/pkg/common"
	"github.com/chatmux/chatmux/pkg/metrics"
)

// ErrNotConnected is returned when the target session has no live, logged-in
// transport. Callers distinguish it from send failures to pick a retry
// policy.
var ErrNotConnected = errors.New("session not connected")

const (
	pollInterval = 500 * time.Millisecond
	sendTimeout  = 30 * time.Second
)

// Producer creates the message row and the queue job in one call, with a
// pre-assigned message id tying the two together.
type Producer struct {
	queue    *Queue
	messages store.MessageRepository
}

func NewProducer(queue *Queue, messages store.MessageRepository) *Producer {
	return &Producer{queue: queue, messages: messages}
}

// Enqueue records a pending outbound message and queues its delivery.
// Returns the assigned message id.
func (p *Producer) Enqueue(ctx context.Context, sess *domain.ChatSession, to, text, prefix string) (string, error) {
	msgId := common.MessageID()
	row := &domain.ChatMessage{
		SessionId: sess.ID,
		MsgId:     msgId,
		Jid:       to,
		Direction: domain.DirectionOutbound,
		Kind:      domain.KindText,
		Content:   text,
		Status:    domain.MessagePending,
		Timestamp: time.Now(),
	}
	if _, err := p.messages.Insert(ctx, row); err != nil {
		return "", errors.Wrap(err, "outbox: record message")
	}
	err := p.queue.Enqueue(&Job{
		SessionId: sess.ID,
		To:        to,
		Text:      text,
		Prefix:    prefix,
		MsgId:     msgId,
	})
	if err != nil {
		return "", err
	}
	return msgId, nil
}

// Deliver performs one idempotent send attempt. A row that already moved past
// PENDING is treated as delivered and skipped, so queue redelivery and the
// fallback sweep can both run against the same message safely.
func Deliver(ctx context.Context, registry *wabridge.Registry, repos *store.Repositories, job *Job, via string) error {
	msg, err := repos.Messages.Get(ctx, job.SessionId, job.MsgId)
	if err != nil {
		return errors.Wrap(err, "outbox: load message")
	}
	if msg.Status != domain.MessagePending {
		return nil
	}

	mgr := registry.Get(job.SessionId)
	if mgr == nil {
		return ErrNotConnected
	}
	// Snapshot the handle once; the manager can lose it between a
	// connectivity check and the send.
	tr := mgr.Transport()
	if tr == nil || !mgr.IsConnected() {
		return ErrNotConnected
	}

	if err := tr.SendText(ctx, job.To, formatText(job), job.MsgId); err != nil {
		return err
	}

	if err := repos.Messages.MarkSent(ctx, job.SessionId, job.MsgId, via); err != nil {
		zap.L().Error("sent status persist failed",
			zap.String("msgId", job.MsgId), zap.Error(err))
	}
	if err := repos.Contacts.TouchOnMessage(ctx, mgr.TenantID(), job.SessionId, job.To, "", time.Now(), false); err != nil {
		zap.L().Error("contact touch failed", zap.String("jid", job.To), zap.Error(err))
	}
	metrics.IncrCounter("chatmux_outbound_sent", 1)
	return nil
}

// formatText renders the wire text, prepending the sender display name in
// bold when the job carries one.
func formatText(job *Job) string {
	if job.Prefix == "" {
		return job.Text
	}
	return fmt.Sprintf("*%s:*\n%s", job.Prefix, job.Text)
}

// Consumer drains the queue through a bounded worker pool.
type Consumer struct {
	queue    *Queue
	registry *wabridge.Registry
	repos    *store.Repositories
	pool     *ants.Pool
	stop     chan struct{}
	done     chan struct{}
}

func NewConsumer(queue *Queue, registry *wabridge.Registry, repos *store.Repositories, concurrency int) (*Consumer, error) {
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, errors.Wrap(err, "outbox: worker pool")
	}
	return &Consumer{
		queue:    queue,
		registry: registry,
		repos:    repos,
		pool:     pool,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the polling loop. Call Stop to drain.
func (c *Consumer) Start() {
	go c.loop()
}

func (c *Consumer) loop() {
	defer close(c.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.drain()
		}
	}
}

func (c *Consumer) drain() {
	for {
		job, key, err := c.queue.Dequeue(time.Now())
		if err != nil {
			zap.L().Error("outbox dequeue failed", zap.Error(err))
			return
		}
		if job == nil {
			return
		}
		j, k := job, key
		if err := c.pool.Submit(func() { c.process(j, k) }); err != nil {
			// Pool is closing; put the job back for the next run.
			if nerr := c.queue.Nack(k, j); nerr != nil {
				zap.L().Error("outbox requeue failed", zap.Error(nerr))
			}
			return
		}
	}
}

func (c *Consumer) process(job *Job, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := Deliver(ctx, c.registry, c.repos, job, "queue")
	switch {
	case err == nil:
		if aerr := c.queue.Ack(key); aerr != nil {
			zap.L().Error("outbox ack failed", zap.String("msgId", job.MsgId), zap.Error(aerr))
		}
	case errors.Is(err, ErrNotConnected):
		zap.L().Debug("outbound held, session offline",
			zap.Int64("sessionId", job.SessionId), zap.String("msgId", job.MsgId))
		if nerr := c.queue.Nack(key, job); nerr != nil {
			zap.L().Error("outbox requeue failed", zap.Error(nerr))
		}
	default:
		zap.L().Error("outbound send failed",
			zap.Int64("sessionId", job.SessionId), zap.String("msgId", job.MsgId), zap.Error(err))
		metrics.IncrCounter("chatmux_outbound_error", 1)
		if nerr := c.queue.Nack(key, job); nerr != nil {
			zap.L().Error("outbox requeue failed", zap.Error(nerr))
		}
	}
}

// Stop halts polling and waits for in-flight sends to finish.
func (c *Consumer) Stop() {
	close(c.stop)
	<-c.done
	for c.pool.Running() > 0 {
		time.Sleep(50 * time.Millisecond)
	}
	c.pool.Release()
}
