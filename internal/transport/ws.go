package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
)

const (
	defaultDialTimeout       = 10 * time.Second
	defaultReconnectInterval = 2 * time.Second
	eventBufferSize          = 256
	writeBufferSize          = 64
)

// ErrChannelClosed is returned by commands issued after Close.
var ErrChannelClosed = errors.New("push channel closed")

// WSChannelConfig configures the websocket push channel.
type WSChannelConfig struct {
	URL               string
	Token             string
	DialTimeout       time.Duration
	ReconnectInterval time.Duration
}

func (c WSChannelConfig) withDefaults() WSChannelConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	return c
}

// WSChannel implements chat.PushChannel over a gorilla websocket. A reader
// goroutine decodes frames into the event union; a writer goroutine drains
// the outgoing queue. Reconnection is handled internally at a fixed interval;
// each completed reconnect is signalled so the session can reload.
type WSChannel struct {
	cfg WSChannelConfig
	log zerolog.Logger

	events      chan chat.Event
	out         chan []byte
	reconnected chan struct{}
	done        chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// DialWS connects and starts the channel's goroutines.
func DialWS(cfg WSChannelConfig, log zerolog.Logger) (*WSChannel, error) {
	cfg = cfg.withDefaults()
	ch := &WSChannel{
		cfg:         cfg,
		log:         log,
		events:      make(chan chat.Event, eventBufferSize),
		out:         make(chan []byte, writeBufferSize),
		reconnected: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	conn, err := ch.dial()
	if err != nil {
		return nil, err
	}
	ch.conn = conn

	go ch.runReader()
	go ch.runWriter()
	return ch, nil
}

func (ch *WSChannel) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: ch.cfg.DialTimeout}
	header := http.Header{}
	if ch.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+ch.cfg.Token)
	}
	conn, _, err := dialer.Dial(ch.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (ch *WSChannel) current() *websocket.Conn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn
}

// runReader pumps frames into the event channel, redialling forever until
// Close. A successful redial emits one reconnect signal.
func (ch *WSChannel) runReader() {
	defer close(ch.events)

	for {
		conn := ch.current()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ev, err := decodeEvent(payload)
			if err != nil {
				ch.log.Warn().Err(err).Msg("dropping undecodable push frame")
				continue
			}
			select {
			case ch.events <- ev:
			case <-ch.done:
				return
			}
		}

		if ch.isClosed() {
			return
		}
		ch.log.Warn().Msg("push channel lost, reconnecting")

		for {
			select {
			case <-ch.done:
				return
			case <-time.After(ch.cfg.ReconnectInterval):
			}
			next, err := ch.dial()
			if err != nil {
				ch.log.Debug().Err(err).Msg("reconnect attempt failed")
				continue
			}
			ch.mu.Lock()
			ch.conn = next
			ch.mu.Unlock()
			select {
			case ch.reconnected <- struct{}{}:
			default:
			}
			break
		}
	}
}

func (ch *WSChannel) runWriter() {
	for {
		select {
		case <-ch.done:
			return
		case payload := <-ch.out:
			conn := ch.current()
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				// Fire-and-forget: the reader's reconnect loop owns recovery,
				// and the session reloads state after it signals.
				ch.log.Debug().Err(err).Msg("push command write failed")
			}
		}
	}
}

func (ch *WSChannel) send(f wireFrame) error {
	if ch.isClosed() {
		return ErrChannelClosed
	}
	payload, err := encodeCommand(f)
	if err != nil {
		return err
	}
	select {
	case ch.out <- payload:
		return nil
	case <-ch.done:
		return ErrChannelClosed
	}
}

func (ch *WSChannel) Subscribe(conv chat.ConversationRef) error {
	return ch.send(wireFrame{Type: "subscribe", Conversation: toWireConversation(conv)})
}

func (ch *WSChannel) SendMessage(conv chat.ConversationRef, content string, attachmentIDs []string) error {
	return ch.send(wireFrame{
		Type:          "send_message",
		Conversation:  toWireConversation(conv),
		Content:       content,
		AttachmentIDs: attachmentIDs,
	})
}

func (ch *WSChannel) TypingStart(conv chat.ConversationRef) error {
	return ch.send(wireFrame{Type: "typing_start", Conversation: toWireConversation(conv)})
}

func (ch *WSChannel) TypingStop(conv chat.ConversationRef) error {
	return ch.send(wireFrame{Type: "typing_stop", Conversation: toWireConversation(conv)})
}

func (ch *WSChannel) Events() <-chan chat.Event { return ch.events }

func (ch *WSChannel) Reconnected() <-chan struct{} { return ch.reconnected }

func (ch *WSChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *WSChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()

	close(ch.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
