package wabridge

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/pkg/metrics"
)

// Reconciler converges the registry toward the desired set persisted in the
// database: every session whose status wants a connection gets exactly one
// manager, and managers for sessions that no longer want one are torn down.
type Reconciler struct {
	sessions store.SessionRepository
	registry *Registry
	deps     ManagerDeps

	// AfterCycle runs at the end of every cycle, after convergence. The
	// outbound fallback sweep hangs off this hook.
	AfterCycle func(ctx context.Context)
}

func NewReconciler(sessions store.SessionRepository, registry *Registry, deps ManagerDeps) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		registry: registry,
		deps:     deps,
	}
}

// Start registers the periodic cycle on the scheduler. Overlapping runs are
// skipped rather than stacked.
func (r *Reconciler) Start(sched *cron.Cron, interval time.Duration) error {
	spec := fmt.Sprintf("@every %s", interval)
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
		r.Cycle(context.Background())
	}))
	_, err := sched.AddJob(spec, job)
	return err
}

// Cycle runs one reconciliation pass. A failure on one session never blocks
// the rest of the fleet.
func (r *Reconciler) Cycle(ctx context.Context) {
	defer func() {
		if err := recover(); err != nil {
			zap.L().Error("reconcile cycle panic", zap.Any("error", err))
		}
	}()

	desired, err := r.sessions.FindDesired(ctx)
	if err != nil {
		zap.L().Error("reconcile query failed", zap.Error(err))
		return
	}

	want := make(map[int64]bool, len(desired))
	for _, sess := range desired {
		want[sess.ID] = true
		if r.registry.Get(sess.ID) != nil {
			continue
		}
		mgr := r.deps.New(sess)
		r.registry.Put(mgr)
		zap.L().Info("session manager created", zap.String("sid", sess.Sid), zap.Int64("id", sess.ID))
		if err := mgr.Connect(ctx); err != nil {
			zap.L().Error("session connect failed", zap.String("sid", sess.Sid), zap.Error(err))
		}
	}

	for _, id := range r.registry.IDs() {
		if want[id] {
			continue
		}
		mgr := r.registry.Get(id)
		r.registry.Remove(id)
		if mgr != nil {
			zap.L().Info("session manager reaped", zap.String("sid", mgr.Sid()), zap.Int64("id", id))
			mgr.Destroy()
		}
	}

	metrics.SetGauge("chatmux_sessions_desired", int64(len(desired)))
	metrics.SetGauge("chatmux_sessions_managed", int64(r.registry.Len()))

	if r.AfterCycle != nil {
		r.AfterCycle(ctx)
	}
}

// Shutdown destroys every live manager. Session rows are left untouched so
// another worker can pick the fleet back up.
func (r *Reconciler) Shutdown() {
	for _, id := range r.registry.IDs() {
		if mgr := r.registry.Get(id); mgr != nil {
			mgr.Destroy()
		}
		r.registry.Remove(id)
	}
}
