package wabridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/realtime"
	"github.com/chatmux/chatmux/internal/store"
)

func newIngestFixture(t *testing.T) (*Ingestor, *store.Repositories, *domain.ChatSession, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := store.NewRepositories(db)
	sess := seedSession(t, repos, domain.SessionConnected)
	ing := NewIngestor(repos, NewResolver(repos.Contacts), realtime.Noop{})
	return ing, repos, sess, db
}

func TestIngestDeduplicatesRedelivery(t *testing.T) {
	ing, repos, sess, db := newIngestFixture(t)
	msg := &InboundMessage{
		MsgId:     "3EB0AAAA",
		Sender:    "628111222333@s.whatsapp.net",
		Chat:      "628111222333@s.whatsapp.net",
		PushName:  "Eko",
		Kind:      domain.KindText,
		Content:   "halo",
		Timestamp: time.Now(),
	}

	require.NoError(t, ing.HandleMessage(context.Background(), sess, msg))
	require.NoError(t, ing.HandleMessage(context.Background(), sess, msg))

	var count int64
	require.NoError(t, db.Model(&domain.ChatMessage{}).
		Where("session_id = ?", sess.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	contact, err := repos.Contacts.GetByJid(context.Background(), sess.TenantId, msg.Sender)
	require.NoError(t, err)
	require.Equal(t, 1, contact.Unread)
	require.Equal(t, "Eko", contact.Name)
}

func TestIngestResolvesAlternateSender(t *testing.T) {
	ing, repos, sess, _ := newIngestFixture(t)
	msg := &InboundMessage{
		MsgId:     "3EB0BBBB",
		Sender:    "90123456@lid",
		SenderAlt: "628111222333@s.whatsapp.net",
		Kind:      domain.KindText,
		Content:   "halo",
		Timestamp: time.Now(),
	}

	require.NoError(t, ing.HandleMessage(context.Background(), sess, msg))

	row, err := repos.Messages.Get(context.Background(), sess.ID, "3EB0BBBB")
	require.NoError(t, err)
	require.Equal(t, "628111222333@s.whatsapp.net", row.Jid)
	require.Equal(t, "90123456@lid", domain.DecodeMessageMeta(row.Metadata).SenderLid)

	contact, err := repos.Contacts.GetByJid(context.Background(), sess.TenantId, "628111222333@s.whatsapp.net")
	require.NoError(t, err)
	require.Equal(t, "90123456@lid", domain.DecodeContactMeta(contact.Metadata).Lid)
}

func TestIngestReceiptAdvancesStatus(t *testing.T) {
	ing, repos, sess, _ := newIngestFixture(t)
	row := &domain.ChatMessage{
		SessionId: sess.ID,
		MsgId:     "3EB0CCCC",
		Jid:       "628111222333@s.whatsapp.net",
		Direction: domain.DirectionOutbound,
		Kind:      domain.KindText,
		Status:    domain.MessageSent,
	}
	_, err := repos.Messages.Insert(context.Background(), row)
	require.NoError(t, err)

	rcpt := &ReceiptInfo{MsgIds: []string{"3EB0CCCC"}, Status: domain.MessageRead}
	require.NoError(t, ing.HandleReceipt(context.Background(), sess, rcpt))

	got, err := repos.Messages.Get(context.Background(), sess.ID, "3EB0CCCC")
	require.NoError(t, err)
	require.Equal(t, domain.MessageRead, got.Status)

	// A late delivered receipt must not demote the row.
	late := &ReceiptInfo{MsgIds: []string{"3EB0CCCC"}, Status: domain.MessageDelivered}
	require.NoError(t, ing.HandleReceipt(context.Background(), sess, late))
	got, err = repos.Messages.Get(context.Background(), sess.ID, "3EB0CCCC")
	require.NoError(t, err)
	require.Equal(t, domain.MessageRead, got.Status)
}

func TestIngestContactSync(t *testing.T) {
	ing, repos, sess, _ := newIngestFixture(t)

	contacts := []ContactSync{
		{Jid: "628111222333@s.whatsapp.net", Lid: "90123456@lid", Name: "Eko"},
		{Jid: "628444555666@s.whatsapp.net", Name: "Sari"},
	}
	require.NoError(t, ing.HandleContacts(context.Background(), sess, contacts))

	c, err := repos.Contacts.GetByJid(context.Background(), sess.TenantId, "628111222333@s.whatsapp.net")
	require.NoError(t, err)
	require.Equal(t, "Eko", c.Name)
	require.Equal(t, "90123456@lid", domain.DecodeContactMeta(c.Metadata).Lid)

	c, err = repos.Contacts.GetByJid(context.Background(), sess.TenantId, "628444555666@s.whatsapp.net")
	require.NoError(t, err)
	require.Equal(t, "Sari", c.Name)
}
