package outbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/internal/wabridge"
	"github.com/chatmux/chatmux/pkg/metrics"
)

// Sweeper is the fallback path for outbound messages the queue lost: rows
// stuck in PENDING, bounded by a recency window. Concurrent sweeps coordinate
// through a staleness-based lock in the message metadata.
type Sweeper struct {
	registry *wabridge.Registry
	repos    *store.Repositories
	owner    string
	window   time.Duration
	stale    time.Duration
	batch    int
}

func NewSweeper(registry *wabridge.Registry, repos *store.Repositories, window, stale time.Duration, batch int) *Sweeper {
	host, _ := os.Hostname()
	return &Sweeper{
		registry: registry,
		repos:    repos,
		owner:    fmt.Sprintf("%s:%d", host, os.Getpid()),
		window:   window,
		stale:    stale,
		batch:    batch,
	}
}

// Sweep runs one pass. Failures on one message never block the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	msgs, err := s.repos.Messages.FindPendingOutbound(ctx, s.window, s.batch)
	if err != nil {
		zap.L().Error("sweep query failed", zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	now := time.Now()
	for _, msg := range msgs {
		lock := domain.DecodeMessageMeta(msg.Metadata).Lock
		if lock.Held(now, s.stale) {
			continue
		}
		if lock.Stale(now, s.stale) {
			zap.L().Warn("taking over stale processing lock",
				zap.String("msgId", msg.MsgId), zap.String("owner", lock.Owner),
				zap.Time("startedAt", lock.StartedAt))
		}
		s.sweepOne(ctx, msg, now)
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, msg *domain.ChatMessage, now time.Time) {
	err := s.repos.Messages.WriteLock(ctx, msg.SessionId, msg.MsgId, domain.ProcessingLock{
		Processing: true,
		StartedAt:  now,
		Owner:      s.owner,
	})
	if err != nil {
		zap.L().Error("sweep lock write failed", zap.String("msgId", msg.MsgId), zap.Error(err))
		return
	}

	job := &Job{
		SessionId: msg.SessionId,
		To:        msg.Jid,
		Text:      msg.Content,
		MsgId:     msg.MsgId,
	}
	err = Deliver(ctx, s.registry, s.repos, job, "sweeper")
	switch {
	case err == nil:
		metrics.IncrCounter("chatmux_sweep_sent", 1)
	case errors.Is(err, ErrNotConnected):
		// Session offline is not a send failure; release the lock and let a
		// later pass retry inside the window.
		if lerr := s.repos.Messages.WriteLock(ctx, msg.SessionId, msg.MsgId, domain.ProcessingLock{}); lerr != nil {
			zap.L().Error("sweep lock release failed", zap.String("msgId", msg.MsgId), zap.Error(lerr))
		}
	default:
		zap.L().Error("sweep send failed", zap.String("msgId", msg.MsgId), zap.Error(err))
		metrics.IncrCounter("chatmux_sweep_error", 1)
		if ferr := s.repos.Messages.MarkFailed(ctx, msg.SessionId, msg.MsgId, err.Error()); ferr != nil {
			zap.L().Error("failed status persist failed", zap.String("msgId", msg.MsgId), zap.Error(ferr))
		}
	}
}
