package wabridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/realtime"
	"github.com/chatmux/chatmux/internal/store"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *Registry, *fakeDialer, *store.Repositories) {
	t.Helper()
	repos := store.NewRepositories(newTestDB(t))
	dialer := &fakeDialer{}
	registry := NewRegistry()
	deps := ManagerDeps{
		Dialer:           dialer,
		Sessions:         repos.Sessions,
		Ingest:           nopSink{},
		Cast:             realtime.Noop{},
		ReconnectDelay:   20 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}
	return NewReconciler(repos.Sessions, registry, deps), registry, dialer, repos
}

func TestReconcilerCreatesManagersForDesired(t *testing.T) {
	rec, registry, dialer, repos := newReconcilerFixture(t)
	a := seedSession(t, repos, domain.SessionConnecting)
	b := seedSession(t, repos, domain.SessionQrRequired)
	seedSession(t, repos, domain.SessionDisconnected)

	rec.Cycle(context.Background())

	require.Equal(t, 2, registry.Len())
	require.NotNil(t, registry.Get(a.ID))
	require.NotNil(t, registry.Get(b.ID))
	require.Equal(t, 2, dialer.dialCount())
}

func TestReconcilerSkipsExistingManagers(t *testing.T) {
	rec, registry, dialer, repos := newReconcilerFixture(t)
	seedSession(t, repos, domain.SessionConnecting)

	rec.Cycle(context.Background())
	rec.Cycle(context.Background())
	rec.Cycle(context.Background())

	require.Equal(t, 1, registry.Len())
	require.Equal(t, 1, dialer.dialCount())
}

func TestReconcilerReapsUndesired(t *testing.T) {
	rec, registry, dialer, repos := newReconcilerFixture(t)
	sess := seedSession(t, repos, domain.SessionConnecting)

	rec.Cycle(context.Background())
	require.Equal(t, 1, registry.Len())
	tr := dialer.last()
	require.NoError(t, tr.Connect())

	require.NoError(t, repos.Sessions.UpdateStatus(context.Background(), sess.ID, domain.SessionDisconnected, ""))
	rec.Cycle(context.Background())

	require.Equal(t, 0, registry.Len())
	require.False(t, tr.IsConnected())
}

func TestReconcilerAfterCycleHook(t *testing.T) {
	rec, _, _, _ := newReconcilerFixture(t)
	var calls int
	rec.AfterCycle = func(ctx context.Context) { calls++ }

	rec.Cycle(context.Background())
	rec.Cycle(context.Background())

	require.Equal(t, 2, calls)
}

func TestReconcilerShutdownDestroysAll(t *testing.T) {
	rec, registry, dialer, repos := newReconcilerFixture(t)
	seedSession(t, repos, domain.SessionConnecting)
	seedSession(t, repos, domain.SessionConnected)

	rec.Cycle(context.Background())
	require.Equal(t, 2, registry.Len())

	rec.Shutdown()
	require.Equal(t, 0, registry.Len())
	for _, tr := range dialer.transports {
		require.False(t, tr.IsConnected())
	}
}
