package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicecall/internal/app/orch"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const writeWait = 5 * time.Second

// Settings tunes relay connections.
type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// RateLimit is signaling frames per second per user; zero disables limiting.
	RateLimit float64
	RateBurst int
}

func DefaultSettings() Settings {
	return Settings{
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		SendBuffer: 32,
		RateLimit:  20,
		RateBurst:  40,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *UserRateLimiter
	settings Settings
}

func NewSignalWSController(o *orch.Orchestrator, s Settings) *SignalWSController {
	if s.SendBuffer <= 0 {
		s.SendBuffer = 32
	}
	ctl := &SignalWSController{Orch: o, settings: s}
	if s.RateLimit > 0 {
		ctl.Limiter = NewUserRateLimiter(s.RateLimit, s.RateBurst)
	}
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// BroadcastFrom sends v to everyone else in the client's conversation.
func (ctl *SignalWSController) BroadcastFrom(cid core.ClientID, v any) {
	for _, peer := range ctl.Orch.Registry.PeersOf(cid) {
		ctl.sendJSON(peer.Session.Signal(), v)
	}
}

func (ctl *SignalWSController) BroadcastConversation(id domain.ConversationID, v any) {
	for _, snap := range ctl.Orch.Registry.MembersOf(id) {
		ctl.sendJSON(snap.Session.Signal(), v)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	cid := core.ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("new WS connection")

	user, err := ctl.Orch.Registry.GetOrCreateUser(cid)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("rejecting client token")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.settings.ReadLimit > 0 {
		ws.SetReadLimit(ctl.settings.ReadLimit)
	}
	if ctl.settings.PingPeriod > 0 {
		pongWait := ctl.settings.PingPeriod * 10 / 9
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	conn := newWsSignalConn(ws, ctl.settings.SendBuffer)
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(cid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, sess, conn)
}
