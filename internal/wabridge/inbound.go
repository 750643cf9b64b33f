package wabridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/realtime"
	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/pkg/metrics"
)

// Ingestor turns transport-level inbound events into database rows and
// realtime notifications. It implements InboundSink.
type Ingestor struct {
	messages store.MessageRepository
	contacts store.ContactRepository
	resolver *Resolver
	cast     realtime.Broadcaster
}

func NewIngestor(repos *store.Repositories, resolver *Resolver, cast realtime.Broadcaster) *Ingestor {
	return &Ingestor{
		messages: repos.Messages,
		contacts: repos.Contacts,
		resolver: resolver,
		cast:     cast,
	}
}

var _ InboundSink = (*Ingestor)(nil)

// HandleMessage ingests one inbound message. Redelivered duplicates are
// dropped on the (session, message id) natural key before any side effects.
func (g *Ingestor) HandleMessage(ctx context.Context, sess *domain.ChatSession, msg *InboundMessage) error {
	peer := g.resolver.Resolve(ctx, sess.TenantId, sess.ID, msg.Sender, msg.SenderAlt)

	row := &domain.ChatMessage{
		SessionId: sess.ID,
		MsgId:     msg.MsgId,
		Jid:       peer,
		Direction: domain.DirectionInbound,
		Kind:      msg.Kind,
		Content:   msg.Content,
		Status:    domain.MessageDelivered,
		Timestamp: msg.Timestamp,
	}
	if IsLid(msg.Sender) && peer != msg.Sender {
		row.Metadata = domain.MessageMeta{SenderLid: msg.Sender}.Encode()
	}

	created, err := g.messages.Insert(ctx, row)
	if err != nil {
		return err
	}
	if !created {
		metrics.IncrCounter("chatmux_inbound_dedup", 1)
		zap.L().Debug("inbound duplicate dropped",
			zap.String("sid", sess.Sid), zap.String("msgId", msg.MsgId))
		return nil
	}
	metrics.IncrCounter("chatmux_inbound_message", 1)

	if err := g.contacts.TouchOnMessage(ctx, sess.TenantId, sess.ID, peer, msg.PushName, msg.Timestamp, true); err != nil {
		zap.L().Error("contact touch failed", zap.String("jid", peer), zap.Error(err))
	}

	g.cast.Trigger(sessionChannel(sess.Sid), realtime.EventMessageReceived, map[string]interface{}{
		"sid":       sess.Sid,
		"msgId":     msg.MsgId,
		"jid":       peer,
		"kind":      msg.Kind,
		"content":   msg.Content,
		"pushName":  msg.PushName,
		"timestamp": msg.Timestamp.Unix(),
	})
	return nil
}

// HandleContacts upserts discovered identities, learning namespace mappings
// when an event carries both sides.
func (g *Ingestor) HandleContacts(ctx context.Context, sess *domain.ChatSession, contacts []ContactSync) error {
	for _, c := range contacts {
		if c.Jid == "" {
			continue
		}
		if c.Lid != "" {
			g.resolver.Learn(ctx, sess.TenantId, sess.ID, c.Jid, c.Lid)
		}
		if c.Name == "" {
			continue
		}
		if err := g.contacts.UpsertName(ctx, sess.TenantId, sess.ID, c.Jid, c.Name); err != nil {
			zap.L().Error("contact upsert failed", zap.String("jid", c.Jid), zap.Error(err))
		}
	}
	return nil
}

// HandleReceipt advances delivery status for acknowledged outbound messages.
// Status only moves forward; a late delivered receipt never demotes read.
func (g *Ingestor) HandleReceipt(ctx context.Context, sess *domain.ChatSession, rcpt *ReceiptInfo) error {
	if rcpt == nil || len(rcpt.MsgIds) == 0 {
		return nil
	}
	return g.messages.UpdateStatusByMsgIds(ctx, sess.ID, rcpt.MsgIds, rcpt.Status)
}
