package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/auth"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const cleanupTimeout = 5 * time.Second

// Authenticator turns a bearer token into a trusted identity.
type Authenticator interface {
	Verify(token string) (domain.Identity, error)
}

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

func (o *Options) defaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

// pongWait is how long a silent client survives; a little over one ping period.
func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

type handlerFunc func(ctx context.Context, s *session, data []byte)

// SignalWSController serves the signaling socket. The dispatch table is built
// once here and shared by every connection.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	Hub     *app.Hub
	Auth    Authenticator
	Limiter *RoomRateLimiter

	opts     Options
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

func NewSignalWSController(o *orch.Orchestrator, hub *app.Hub, verifier Authenticator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	opts.defaults()
	ctl := &SignalWSController{
		Orch:    o,
		Hub:     hub,
		Auth:    verifier,
		Limiter: limiter,
		opts:    opts,
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	ctl.handlers = map[string]handlerFunc{
		protocol.TypeJoin:                ctl.handleJoin,
		protocol.TypeLeave:               ctl.handleLeave,
		protocol.TypeGetRoomParticipants: ctl.handleRoomParticipants,
		protocol.TypeOffer:               ctl.handleRelay,
		protocol.TypeAnswer:              ctl.handleRelay,
		protocol.TypeIceCandidate:        ctl.handleRelay,
		protocol.TypeHangUp:              ctl.handleHangUp,
		protocol.TypePing:                ctl.handlePing,
		protocol.TypeWhoAmI:              ctl.handleWhoAmI,
		protocol.TypeLogout:              ctl.handleLogout,
	}
	return ctl
}

// checkOrigin allows same-host requests, requests without Origin, and the
// configured origins. An empty list allows everything.
func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range ctl.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// WsSignalConn is a core.SignalConnection over a gorilla socket. Frames are
// queued on send and written by the connection's write pump.
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
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
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

// session is the per-connection state owned by the read goroutine.
type session struct {
	caller core.Caller
	conn   *WsSignalConn
	client string
	// done is set by handlers that end the connection.
	done bool
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	ident, authErr := ctl.Auth.Verify(auth.TokenFromRequest(c.Request))

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if authErr != nil {
		log.Warn().Err(authErr).Str("module", "signal").Str("client", client).Msg("authentication failed")
		ctl.rejectAuth(ws, authErr)
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	addr := ctl.Hub.Attach(conn)
	s := &session{
		caller: core.Caller{Identity: ident, Addr: addr},
		conn:   conn,
		client: client,
	}

	if err := ctl.Orch.Registry.Bind(ctx, ident.UserID, addr); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(ident.UserID)).Msg("bind connection")
		ctl.Hub.Detach(addr)
		ctl.reject(ws, protocol.TypeError, protocol.NewErrorEvent("connect", "", publicError(err)),
			websocket.CloseTryAgainLater, "try again later")
		return
	}
	log.Info().Str("module", "signal").Str("user", string(ident.UserID)).Str("username", ident.Username).
		Str("client", client).Str("addr", string(addr)).Msg("new WS connection")

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go func() {
		defer cancel()
		ctl.readPump(connCtx, s)
		ctl.cleanup(context.WithoutCancel(ctx), s)
	}()
}

// rejectAuth writes authError to a socket that never became a session, then
// closes it with a policy violation.
func (ctl *SignalWSController) rejectAuth(ws *websocket.Conn, cause error) {
	ctl.reject(ws, protocol.TypeAuthError, protocol.AuthError{
		Message: "Authentication failed",
		Error:   cause.Error(),
	}, websocket.ClosePolicyViolation, "unauthorized")
}

func (ctl *SignalWSController) reject(ws *websocket.Conn, typ string, payload any, code int, reason string) {
	defer ws.Close()
	f, err := protocol.Encode(typ, payload)
	if err != nil {
		return
	}
	deadline := time.Now().Add(ctl.opts.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, f); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// cleanup runs once per connection after its read loop ends. Membership is
// torn down unless a newer connection of the same user owns the mapping.
func (ctl *SignalWSController) cleanup(ctx context.Context, s *session) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	s.conn.Close()
	ctl.Hub.Detach(s.caller.Addr)

	user := s.caller.UserID()
	if !ctl.releaseOwned(ctx, s) {
		log.Info().Str("module", "signal").Str("user", string(user)).Str("addr", string(s.caller.Addr)).Msg("connection superseded, keeping rooms")
		return
	}
	if err := ctl.Orch.Disconnect(ctx, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user)).Msg("disconnect cleanup")
	}
}

// releaseOwned drops the user's mapping if it still points at this session and
// reports whether the session's rooms should be torn down. Only a different
// address observed in the registry keeps them; a failed or missing lookup
// counts as ours.
func (ctl *SignalWSController) releaseOwned(ctx context.Context, s *session) bool {
	user := s.caller.UserID()
	released, err := ctl.Orch.Registry.Release(ctx, user, s.caller.Addr)
	if err == nil && released {
		return true
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user)).Msg("release connection")
	}
	cur, err := ctl.Orch.Registry.Lookup(ctx, user)
	if err != nil {
		return true
	}
	if cur != s.caller.Addr {
		return false
	}
	if err := ctl.Orch.Registry.Unbind(ctx, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user)).Msg("unbind connection")
	}
	return true
}
