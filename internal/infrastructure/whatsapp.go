package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"project_handoff/internal/entities"
)

// WhatsAppChannel is a whatsmeow device session stored in SQLite.
type WhatsAppChannel struct {
	Client *whatsmeow.Client
	log    zerolog.Logger

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppChannel(ctx context.Context, deviceDir string, log zerolog.Logger) (*WhatsAppChannel, error) {
	if err := os.MkdirAll(deviceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}
	dbPath := filepath.Join(deviceDir, "whatsapp.db")
	log = log.With().Str("channel", "whatsapp").Logger()

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", waLog.Zerolog(log.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get the first device (or create one)
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("module", "client").Logger()))
	return &WhatsAppChannel{Client: client, log: log}, nil
}

func (w *WhatsAppChannel) Platform() string { return "whatsapp" }

// Connect logs in with the stored session or starts QR pairing.
func (w *WhatsAppChannel) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return err
		}
		w.log.Info().Msg("connected with existing session")
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return err
	}
	go func() {
		for evt := range qrChan {
			if evt.Event == "code" {
				w.qrLock.Lock()
				w.qrCode = evt.Code
				w.qrLock.Unlock()
				w.log.Info().Msg("new pairing QR code available at /whatsapp/qr")
				continue
			}
			w.log.Info().Str("event", evt.Event).Msg("login event")
			if evt.Event == "success" {
				w.qrLock.Lock()
				w.qrCode = ""
				w.qrLock.Unlock()
			}
		}
	}()
	return nil
}

// QR returns the pending pairing code, "" once paired.
func (w *WhatsAppChannel) QR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

// IsConnected returns true if client is connected and logged in
func (w *WhatsAppChannel) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

func (w *WhatsAppChannel) Disconnect() {
	w.Client.Disconnect()
}

// Listen forwards incoming text messages to handler.
func (w *WhatsAppChannel) Listen(ctx context.Context, handler MessageHandler) {
	w.Client.AddEventHandler(func(evt interface{}) {
		m, ok := evt.(*events.Message)
		if !ok || m.Info.IsFromMe || m.Info.IsGroup {
			return
		}
		sender, content := parseWhatsAppMessage(m)
		if content == "" {
			return
		}
		go handler(ctx, entities.Message{
			ID:       m.Info.ID,
			From:     sender,
			Content:  content,
			Platform: "whatsapp",
		})
	})
}

func (w *WhatsAppChannel) SendMessage(ctx context.Context, to, content string) error {
	jid, err := types.ParseJID(to + "@" + types.DefaultUserServer)
	if err != nil {
		return fmt.Errorf("invalid number format: %w", err)
	}
	_, err = w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: &content,
	})
	return err
}

func parseWhatsAppMessage(evt *events.Message) (string, string) {
	sender := evt.Info.Sender.User // The phone number
	var content string

	if evt.Message.GetConversation() != "" {
		content = evt.Message.GetConversation()
	} else if evt.Message.GetExtendedTextMessage() != nil {
		content = evt.Message.GetExtendedTextMessage().GetText()
	}
	return sender, content
}
