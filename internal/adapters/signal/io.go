package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles the connection's events one at a time, in arrival order.
func (ctl *SignalWSController) readPump(ctx context.Context, s *session) {
	ws := s.conn.conn
	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	user := string(s.caller.UserID())
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("user", user).Msg("readPump read error")
			} else {
				log.Info().Str("module", "signal").Str("user", user).Msg("readPump closing")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))

		ctl.handleSignal(ctx, s, data)
		if s.done {
			return
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	typ, err := protocol.ParseType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.send(s, protocol.TypeError, protocol.NewErrorEvent("message", "", err))
		return
	}
	h, ok := ctl.handlers[typ]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.send(s, protocol.TypeError, protocol.NewErrorEvent(typ, "", errUnknownEvent))
		return
	}
	h(ctx, s, data)
}

var errUnknownEvent = errors.New("unknown event")

// send encodes and queues one event for this connection only.
func (ctl *SignalWSController) send(s *session, typ string, payload any) {
	f, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("encode")
		return
	}
	if err := ctl.Hub.DeliverLocal(s.caller.Addr, f); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", typ).Msg("send")
	}
}

// sendError reports err on the failure channel of the inbound event.
func (ctl *SignalWSController) sendError(s *session, typ, inbound string, room domain.RoomID, err error) {
	ctl.send(s, typ, protocol.NewErrorEvent(inbound, room, publicError(err)))
}

var errTryAgain = errors.New("service temporarily unavailable, try again")

// publicError hides store internals from clients.
func publicError(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return errTryAgain
	}
	return err
}
