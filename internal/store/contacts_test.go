package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatmux/chatmux/internal/domain"
)

func TestTouchOnMessageUnreadCounting(t *testing.T) {
	repo := NewGormContactRepository(newTestDB(t))
	ctx := context.Background()
	jid := "628111222333@s.whatsapp.net"

	require.NoError(t, repo.TouchOnMessage(ctx, 1, 10, jid, "Eko", time.Now(), true))
	require.NoError(t, repo.TouchOnMessage(ctx, 1, 10, jid, "", time.Now(), true))
	require.NoError(t, repo.TouchOnMessage(ctx, 1, 10, jid, "", time.Now(), false))

	got, err := repo.GetByJid(ctx, 1, jid)
	require.NoError(t, err)
	require.Equal(t, 2, got.Unread)
	require.Equal(t, "Eko", got.Name) // empty names never erase the stored one
}

func TestSaveMappingMergesMetadata(t *testing.T) {
	repo := NewGormContactRepository(newTestDB(t))
	ctx := context.Background()
	jid := "628111222333@s.whatsapp.net"

	require.NoError(t, repo.SaveMapping(ctx, 1, 10, jid, "90123456@lid"))

	// Another writer tagged the contact in the meantime.
	got, err := repo.GetByJid(ctx, 1, jid)
	require.NoError(t, err)
	meta := domain.DecodeContactMeta(got.Metadata)
	meta.PushName = "Eko"
	require.NoError(t, repo.db.Model(&domain.ChatContact{}).
		Where("id = ?", got.ID).
		Update("metadata", meta.Encode()).Error)

	require.NoError(t, repo.SaveMapping(ctx, 1, 10, jid, "90123456@lid"))

	got, err = repo.GetByJid(ctx, 1, jid)
	require.NoError(t, err)
	merged := domain.DecodeContactMeta(got.Metadata)
	require.Equal(t, "90123456@lid", merged.Lid)
	require.Equal(t, "Eko", merged.PushName)
}

func TestFindByLid(t *testing.T) {
	repo := NewGormContactRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveMapping(ctx, 1, 10, "628111222333@s.whatsapp.net", "90123456@lid"))

	got, err := repo.FindByLid(ctx, 1, "90123456@lid")
	require.NoError(t, err)
	require.Equal(t, "628111222333@s.whatsapp.net", got.Jid)

	_, err = repo.FindByLid(ctx, 2, "90123456@lid")
	require.Error(t, err)
}

func TestUpsertName(t *testing.T) {
	repo := NewGormContactRepository(newTestDB(t))
	ctx := context.Background()
	jid := "628111222333@s.whatsapp.net"

	require.NoError(t, repo.UpsertName(ctx, 1, 10, jid, "Eko"))
	require.NoError(t, repo.UpsertName(ctx, 1, 10, jid, "Eko Santoso"))

	got, err := repo.GetByJid(ctx, 1, jid)
	require.NoError(t, err)
	require.Equal(t, "Eko Santoso", got.Name)
	require.True(t, got.LastMessageAt.IsZero()) // renames don't fake activity
}
