package wabridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatmux/chatmux/internal/store"
)

func TestResolvePhonePassthrough(t *testing.T) {
	r := NewResolver(store.NewRepositories(newTestDB(t)).Contacts)

	got := r.Resolve(context.Background(), 7, 1, "628111222333@s.whatsapp.net", "")
	require.Equal(t, "628111222333@s.whatsapp.net", got)
}

func TestResolveLearnsFromCompanion(t *testing.T) {
	repos := store.NewRepositories(newTestDB(t))
	r := NewResolver(repos.Contacts)

	got := r.Resolve(context.Background(), 7, 1, "90123456@lid", "628111222333@s.whatsapp.net")
	require.Equal(t, "628111222333@s.whatsapp.net", got)

	// A fresh resolver has a cold cache, so this exercises the stored
	// mapping.
	r2 := NewResolver(repos.Contacts)
	got = r2.Resolve(context.Background(), 7, 1, "90123456@lid", "")
	require.Equal(t, "628111222333@s.whatsapp.net", got)
}

func TestResolveUnknownDegrades(t *testing.T) {
	r := NewResolver(store.NewRepositories(newTestDB(t)).Contacts)

	got := r.Resolve(context.Background(), 7, 1, "555555@lid", "")
	require.Equal(t, "555555@lid", got)
}

func TestResolveTenantScoped(t *testing.T) {
	repos := store.NewRepositories(newTestDB(t))
	r := NewResolver(repos.Contacts)
	r.Learn(context.Background(), 7, 1, "628111222333@s.whatsapp.net", "90123456@lid")

	// Same alternate identifier under another tenant must not resolve.
	got := r.Resolve(context.Background(), 8, 1, "90123456@lid", "")
	require.Equal(t, "90123456@lid", got)
}
