package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined         = errors.New("signal: not joined to a conversation")
	ErrWrongConversation = errors.New("signal: message for another conversation")
)

// ClientTokenCookie carries the client identity to the relay.
const ClientTokenCookie = "ct"

// Control is a non-signaling frame received from the relay.
type Control struct {
	Type         string                `json:"type"`
	Error        string                `json:"error,omitempty"`
	For          string                `json:"for,omitempty"`
	Conversation domain.ConversationID `json:"conversation,omitempty"`
	Members      []core.MemberDTO      `json:"members,omitempty"`
	User         *domain.User          `json:"user,omitempty"`
}

type ClientOptions struct {
	URL string
	// Token becomes the relay-side user id. Empty lets the relay assign one.
	Token      string
	SendBuffer int
	Dialer     *websocket.Dialer
	// OnControl observes relay control frames (member events, errors).
	OnControl func(Control)
}

// Client is the websocket SignalTransport used by a call participant.
type Client struct {
	opts ClientOptions
	conn *websocket.Conn
	send chan core.Frame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.RWMutex
	closed       bool
	conversation domain.ConversationID
	joinWait     chan Control
	started      bool
}

// Dial connects to the relay and starts the write pump. Inbound frames are
// read only after Start.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Cookie", (&http.Cookie{Name: ClientTokenCookie, Value: opts.Token}).String())
	}
	ws, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("signal: dial %s: %w", opts.URL, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:   opts,
		conn:   ws,
		send:   make(chan core.Frame, opts.SendBuffer),
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.writePump()
	log.Info().Str("module", "signal.client").Str("url", opts.URL).Msg("connected")
	return c, nil
}

// Start begins delivering inbound signaling to h. Calling it twice is a no-op.
func (c *Client) Start(h core.SignalHandler) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.readPump(h)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Conversation() domain.ConversationID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversation
}

// Join enters a conversation and waits for the relay to confirm it.
func (c *Client) Join(ctx context.Context, id domain.ConversationID, name string) (Control, error) {
	wait := make(chan Control, 1)
	c.mu.Lock()
	c.joinWait = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.joinWait == wait {
			c.joinWait = nil
		}
		c.mu.Unlock()
	}()

	b, err := json.Marshal(struct {
		Type         string                `json:"type"`
		Conversation domain.ConversationID `json:"conversation"`
		Name         string                `json:"name,omitempty"`
	}{typeJoin, id, name})
	if err != nil {
		return Control{}, err
	}
	if err := c.enqueue(ctx, b); err != nil {
		return Control{}, err
	}

	select {
	case ctl := <-wait:
		if ctl.Type == typeError {
			return ctl, fmt.Errorf("signal: join %s: %s", id, ctl.Error)
		}
		return ctl, nil
	case <-ctx.Done():
		return Control{}, ctx.Err()
	case <-c.done:
		return Control{}, ErrClosed
	}
}

// Send implements core.SignalTransport. It never blocks: a full buffer
// returns ErrBackpressure so the caller's retry policy can back off.
func (c *Client) Send(ctx context.Context, conversation domain.ConversationID, msg signaling.Message) error {
	cur := c.Conversation()
	if cur == "" {
		return ErrNotJoined
	}
	if conversation != cur {
		return fmt.Errorf("%w: %s", ErrWrongConversation, conversation)
	}
	b, err := signaling.Encode(msg)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, b)
}

func (c *Client) enqueue(ctx context.Context, f core.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(h core.SignalHandler) {
	defer func() {
		close(c.done)
		c.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "signal.client").Msg("readPump read error")
			}
			return
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h core.SignalHandler, data []byte) {
	t, err := signaling.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal.client").Msg("bad frame")
		return
	}
	if signaling.IsSignal(t) {
		msg, err := signaling.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Str("type", string(t)).Msg("dropping invalid signaling frame")
			return
		}
		if h == nil {
			log.Debug().Str("module", "signal.client").Str("type", string(t)).Msg("no handler")
			return
		}
		h.HandleSignalingMessage(c.ctx, msg)
		return
	}

	var ctl Control
	if err := json.Unmarshal(data, &ctl); err != nil {
		log.Warn().Err(err).Str("module", "signal.client").Msg("bad control frame")
		return
	}
	switch ctl.Type {
	case typeConversationState:
		c.mu.Lock()
		c.conversation = ctl.Conversation
		c.mu.Unlock()
		c.resolveJoin(ctl)
	case typeError:
		if ctl.For == "" {
			c.resolveJoin(ctl)
		}
		log.Warn().Str("module", "signal.client").Str("error", ctl.Error).Str("for", ctl.For).Msg("relay error")
	case typeLeft:
		c.mu.Lock()
		c.conversation = ""
		c.mu.Unlock()
	default:
		log.Debug().Str("module", "signal.client").Str("type", ctl.Type).Msg("control frame")
	}
	if c.opts.OnControl != nil {
		c.opts.OnControl(ctl)
	}
}

func (c *Client) resolveJoin(ctl Control) {
	c.mu.RLock()
	wait := c.joinWait
	c.mu.RUnlock()
	if wait == nil {
		return
	}
	select {
	case wait <- ctl:
	default:
	}
}
