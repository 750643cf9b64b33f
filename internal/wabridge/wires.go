package wabridge

import (
	"context"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/chatmux/chatmux/internal/domain"
)

// WhatsmeowDialer builds live protocol transports from persisted credentials.
type WhatsmeowDialer struct {
	creds *CredentialStore
}

func NewWhatsmeowDialer(creds *CredentialStore) *WhatsmeowDialer {
	return &WhatsmeowDialer{creds: creds}
}

var _ Dialer = (*WhatsmeowDialer)(nil)

func (d *WhatsmeowDialer) Dial(ctx context.Context, sess *domain.ChatSession, sink func(Event)) (Transport, error) {
	dev, err := d.creds.LoadDevice(ctx, sess.DeviceJid)
	if err != nil {
		return nil, err
	}
	cli := whatsmeow.NewClient(dev, nil)
	t := &waTransport{
		sid:    sess.Sid,
		client: cli,
		sink:   sink,
	}
	cli.AddEventHandler(t.translate)
	return t, nil
}

// waTransport adapts one whatsmeow client to the Transport interface and
// translates its event stream into typed events.
type waTransport struct {
	sid    string
	client *whatsmeow.Client
	sink   func(Event)
}

func (t *waTransport) Connect() error {
	// An unpaired device has no stored identity; the QR channel must be
	// requested before the websocket opens or the codes are lost.
	if t.client.Store.ID == nil {
		qrChan, err := t.client.GetQRChannel(context.Background())
		if err != nil {
			return errors.Wrap(err, "qr channel")
		}
		go t.pumpQR(qrChan)
	}
	return t.client.Connect()
}

func (t *waTransport) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			t.sink(Event{Kind: EventPairingCode, Code: item.Code})
		case "timeout":
			t.sink(Event{Kind: EventClosed, Reason: ReasonTransient, Detail: "pairing window expired"})
		case "success":
			// Connected event follows; nothing to do here.
		}
	}
}

func (t *waTransport) Disconnect() {
	t.client.Disconnect()
}

func (t *waTransport) IsConnected() bool {
	return t.client.IsConnected() && t.client.IsLoggedIn()
}

func (t *waTransport) SendText(ctx context.Context, to, text, msgId string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return errors.Wrapf(err, "invalid recipient %q", to)
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	_, err = t.client.SendMessage(ctx, jid, msg, whatsmeow.SendRequestExtra{ID: types.MessageID(msgId)})
	return err
}

func (t *waTransport) translate(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		e := Event{Kind: EventOpened}
		if id := t.client.Store.ID; id != nil {
			e.Phone = id.User
		}
		e.PushName = t.client.Store.PushName
		t.sink(e)

	case *events.PairSuccess:
		t.sink(Event{
			Kind:      EventKeysRotated,
			DeviceJid: evt.ID.String(),
			Phone:     evt.ID.User,
		})

	case *events.LoggedOut:
		t.sink(Event{Kind: EventClosed, Reason: ReasonLoggedOut, Detail: evt.Reason.String()})

	case *events.StreamReplaced:
		t.sink(Event{Kind: EventClosed, Reason: ReasonConflict, Detail: "stream replaced by another connection"})

	case *events.ConnectFailure:
		t.sink(Event{Kind: EventClosed, Reason: ReasonTransient, Detail: evt.Message})

	case *events.Disconnected:
		t.sink(Event{Kind: EventClosed, Reason: ReasonTransient, Detail: "transport disconnected"})

	case *events.Message:
		if im := t.toInbound(evt); im != nil {
			t.sink(Event{Kind: EventMessage, Message: im})
		}

	case *events.Receipt:
		if ri := toReceipt(evt); ri != nil {
			t.sink(Event{Kind: EventReceipt, Receipt: ri})
		}

	case *events.PushName:
		t.sink(Event{Kind: EventContactSync, Contacts: []ContactSync{{
			Jid:  evt.JID.String(),
			Name: evt.NewPushName,
		}}})

	case *events.Contact:
		if name := evt.Action.GetFullName(); name != "" {
			t.sink(Event{Kind: EventContactSync, Contacts: []ContactSync{{
				Jid:  evt.JID.String(),
				Name: name,
			}}})
		}
	}
}

func (t *waTransport) toInbound(evt *events.Message) *InboundMessage {
	info := evt.Info
	// Own echoes and non-user chats are out of scope for ingestion.
	if info.IsFromMe || info.IsGroup || info.Chat.Server == types.BroadcastServer {
		return nil
	}

	kind, content := extractContent(evt.Message)
	if kind == "" {
		zap.L().Debug("inbound message kind skipped",
			zap.String("sid", t.sid), zap.String("msgId", info.ID))
		return nil
	}

	im := &InboundMessage{
		MsgId:     info.ID,
		Sender:    info.Sender.String(),
		Chat:      info.Chat.String(),
		PushName:  info.PushName,
		Kind:      kind,
		Content:   content,
		Timestamp: info.Timestamp,
	}
	if !info.SenderAlt.IsEmpty() {
		im.SenderAlt = info.SenderAlt.String()
	}
	return im
}

func extractContent(msg *waE2E.Message) (kind, content string) {
	switch {
	case msg.GetConversation() != "":
		return domain.KindText, msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return domain.KindText, msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return domain.KindImage, msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return domain.KindVideo, msg.GetVideoMessage().GetCaption()
	case msg.GetAudioMessage() != nil:
		return domain.KindAudio, ""
	case msg.GetDocumentMessage() != nil:
		return domain.KindOther, msg.GetDocumentMessage().GetTitle()
	}
	return "", ""
}

func toReceipt(evt *events.Receipt) *ReceiptInfo {
	var status string
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = domain.MessageDelivered
	case types.ReceiptTypeRead:
		status = domain.MessageRead
	default:
		return nil
	}
	if len(evt.MessageIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	return &ReceiptInfo{MsgIds: ids, Status: status}
}
