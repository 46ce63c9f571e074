// Copyright 2025-2026 KMT Marketplace

// Package wameow implements the gateway transport on top of whatsmeow, the
// go.mau.fi WhatsApp Web client. It translates whatsmeow's event firehose
// into the gateway's typed lifecycle events and keeps the session database
// inside the credential bundle directory, so purging the bundle wipes the
// device identity.
package wameow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/kmt/wagateway/pkg/gateway"
	"github.com/kmt/wagateway/pkg/gateway/authstore"
)

// statusConnectionReplaced is the closure code reported when another client
// takes over the websocket (the platform allows one live web session).
const statusConnectionReplaced = 440

// Config holds transport settings.
type Config struct {
	// DeviceName is shown in the platform's linked-devices list.
	DeviceName string
	// ConnectTimeout bounds the store-open and device-load steps of a dial.
	ConnectTimeout time.Duration
}

// Dialer opens whatsmeow-backed connections.
type Dialer struct {
	cfg Config
	log zerolog.Logger
}

var _ gateway.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer.
func NewDialer(cfg Config, log zerolog.Logger) *Dialer {
	return &Dialer{cfg: cfg, log: log.With().Str("component", "wameow").Logger()}
}

// Dial opens the session store inside the credential bundle, loads (or
// creates) the device identity, and starts the websocket handshake. When
// the device has never been paired it also opens the QR challenge channel,
// whose codes surface as ChallengeEvents.
func (d *Dialer) Dial(ctx context.Context, rec *authstore.Record) (gateway.Client, error) {
	if d.cfg.DeviceName != "" {
		store.SetOSInfo(d.cfg.DeviceName, [3]uint32{1, 0, 0})
	}
	if d.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", rec.SessionDBPath()),
		waLog.Zerolog(d.log.With().Str("sub", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device identity: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Zerolog(d.log.With().Str("sub", "client").Logger()))
	// The supervisor owns retry policy.
	cli.EnableAutoReconnect = false

	c := &client{
		cli:       cli,
		container: container,
		events:    make(chan gateway.Event, 16),
		done:      make(chan struct{}),
		log:       d.log,
	}
	cli.AddEventHandler(c.translateEvent)

	var qrChan <-chan whatsmeow.QRChannelItem
	if cli.Store.ID == nil {
		// Pairing outlives the dial, so the channel is not bound to ctx.
		qrChan, err = cli.GetQRChannel(context.Background())
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("open pairing channel: %w", err)
		}
	}

	c.emit(gateway.ConnectingEvent{})
	if err := cli.Connect(); err != nil {
		container.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if qrChan != nil {
		go c.pumpChallenges(qrChan)
	}
	return c, nil
}

// client adapts a whatsmeow client to gateway.Client.
type client struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	events    chan gateway.Event
	done      chan struct{}
	stopOnce  sync.Once
	log       zerolog.Logger
}

var _ gateway.Client = (*client)(nil)

func (c *client) Events() <-chan gateway.Event {
	return c.events
}

func (c *client) SendText(ctx context.Context, destination, text string) error {
	jid := types.NewJID(destination, types.DefaultUserServer)
	_, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

// Disconnect tears the connection down without emitting a closure event;
// it is the supervisor discarding this handle on purpose.
func (c *client) Disconnect() {
	c.shutdown()
}

// emit delivers an event unless the client is already shut down. The
// channel is buffered so early events queue up until the supervisor's loop
// attaches after Dial returns.
func (c *client) emit(evt gateway.Event) {
	select {
	case c.events <- evt:
	case <-c.done:
	}
}

// shutdown stops event delivery, disconnects and closes the event channel
// so the supervisor's loop ends. Idempotent.
func (c *client) shutdown() {
	c.stopOnce.Do(func() {
		close(c.done)
		go func() {
			c.cli.RemoveEventHandlers()
			c.cli.Disconnect()
			if err := c.container.Close(); err != nil {
				c.log.Warn().Err(err).Msg("Failed to close session store")
			}
			close(c.events)
		}()
	})
}

// translateEvent maps whatsmeow events onto the gateway's lifecycle events.
// Anything that ends the connection emits a ClosedEvent and shuts the
// client down; the supervisor decides whether to dial again.
func (c *client) translateEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Connected:
		c.emit(gateway.ConnectedEvent{})
	case *events.PairSuccess:
		c.emit(gateway.CredsRotatedEvent{JID: evt.ID.String(), Platform: evt.Platform})
	case *events.LoggedOut:
		c.emit(gateway.ClosedEvent{
			StatusCode: int(evt.Reason),
			LoggedOut:  true,
		})
		c.shutdown()
	case *events.Disconnected:
		c.emit(gateway.ClosedEvent{Err: errors.New("websocket disconnected")})
		c.shutdown()
	case *events.ConnectFailure:
		c.emit(gateway.ClosedEvent{
			StatusCode: int(evt.Reason),
			Err:        fmt.Errorf("connect failure: %s", evt.Message),
		})
		c.shutdown()
	case *events.StreamReplaced:
		c.emit(gateway.ClosedEvent{
			StatusCode: statusConnectionReplaced,
			Err:        errors.New("stream replaced by another web session"),
		})
		c.shutdown()
	case *events.TemporaryBan:
		c.emit(gateway.ClosedEvent{
			StatusCode: int(evt.Code),
			Err:        fmt.Errorf("temporarily banned for %s", evt.Expire),
		})
		c.shutdown()
	case *events.ClientOutdated:
		c.emit(gateway.ClosedEvent{Err: errors.New("client version rejected by server")})
		c.shutdown()
	}
}

// pumpChallenges forwards QR channel items. whatsmeow rotates codes itself
// until one is scanned or the channel times out.
func (c *client) pumpChallenges(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emit(gateway.ChallengeEvent{Code: item.Code})
		case "success":
			// Pairing finished; Connected/PairSuccess arrive via the
			// regular event handler.
		case "timeout":
			c.emit(gateway.ClosedEvent{Err: errors.New("pairing timed out")})
			c.shutdown()
		default:
			if item.Error != nil {
				c.emit(gateway.ClosedEvent{Err: fmt.Errorf("pairing failed: %w", item.Error)})
				c.shutdown()
			}
		}
	}
}
