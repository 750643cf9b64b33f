package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatmux/chatmux/internal/domain"
)

func TestInsertIdempotentOnNaturalKey(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	ctx := context.Background()

	row := func() *domain.ChatMessage {
		return &domain.ChatMessage{
			SessionId: 1,
			MsgId:     "3EB0AAAA",
			Jid:       "628111222333@s.whatsapp.net",
			Direction: domain.DirectionInbound,
			Kind:      domain.KindText,
			Content:   "halo",
			Status:    domain.MessageDelivered,
		}
	}

	created, err := repo.Insert(ctx, row())
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.Insert(ctx, row())
	require.NoError(t, err)
	require.False(t, created)

	// The same message id under another session is a distinct row.
	other := row()
	other.SessionId = 2
	created, err = repo.Insert(ctx, other)
	require.NoError(t, err)
	require.True(t, created)
}

func TestMarkSentClearsLock(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Insert(ctx, &domain.ChatMessage{
		SessionId: 1, MsgId: "3EB0BBBB",
		Direction: domain.DirectionOutbound,
		Status:    domain.MessagePending,
	})
	require.NoError(t, err)
	require.NoError(t, repo.WriteLock(ctx, 1, "3EB0BBBB", domain.ProcessingLock{
		Processing: true, StartedAt: time.Now(), Owner: "worker-1",
	}))

	require.NoError(t, repo.MarkSent(ctx, 1, "3EB0BBBB", "sweeper"))

	got, err := repo.Get(ctx, 1, "3EB0BBBB")
	require.NoError(t, err)
	require.Equal(t, domain.MessageSent, got.Status)
	require.False(t, got.DeliveredAt.IsZero())
	meta := domain.DecodeMessageMeta(got.Metadata)
	require.False(t, meta.Lock.Processing)
	require.Equal(t, "sweeper", meta.DeliveredVia)
}

func TestUpdateStatusByMsgIdsUpgradeOnly(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	ctx := context.Background()

	seed := map[string]string{
		"m-sent":    domain.MessageSent,
		"m-read":    domain.MessageRead,
		"m-pending": domain.MessagePending,
	}
	for id, status := range seed {
		_, err := repo.Insert(ctx, &domain.ChatMessage{
			SessionId: 1, MsgId: id,
			Direction: domain.DirectionOutbound, Status: status,
		})
		require.NoError(t, err)
	}

	ids := []string{"m-sent", "m-read", "m-pending"}
	require.NoError(t, repo.UpdateStatusByMsgIds(ctx, 1, ids, domain.MessageDelivered))

	expect := map[string]string{
		"m-sent":    domain.MessageDelivered, // upgraded
		"m-read":    domain.MessageRead,      // never demoted
		"m-pending": domain.MessagePending,   // receipts don't skip the send
	}
	for id, status := range expect {
		got, err := repo.Get(ctx, 1, id)
		require.NoError(t, err)
		require.Equal(t, status, got.Status, id)
	}
}

func TestFindPendingOutboundWindow(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Insert(ctx, &domain.ChatMessage{
		SessionId: 1, MsgId: "m-fresh",
		Direction: domain.DirectionOutbound, Status: domain.MessagePending,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &domain.ChatMessage{
		SessionId: 1, MsgId: "m-ancient",
		Direction: domain.DirectionOutbound, Status: domain.MessagePending,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &domain.ChatMessage{
		SessionId: 1, MsgId: "m-inbound",
		Direction: domain.DirectionInbound, Status: domain.MessagePending,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	got, err := repo.FindPendingOutbound(ctx, 24*time.Hour, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "m-fresh", got[0].MsgId)
}
