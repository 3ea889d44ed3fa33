package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quadrumtech/signal-gateway/internal/gateway"
)

// Socket defaults applied when the configuration leaves them unset.
const (
	defaultMaxMessageSize = 64 * 1024
	defaultPingInterval   = 30 // seconds
	defaultPongTimeout    = 10 // seconds

	// writeWait bounds every frame write, including pongs.
	writeWait = 10 * time.Second
)

// wsConn couples a socket with its registry entry.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	gc     *gateway.Conn
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Controllers send no Origin header.
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket upgrades the request and registers the new connection as
// unidentified. The first frame is expected to be an identify.
//
// The connection is registered before the handshake completes so that a
// peer never observes an open socket the registry does not know about.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gc := gateway.NewConn(s.wsCfg.SendBuffer)
	registry := s.gateway.Registry()
	registry.Register(gc)

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		registry.Unregister(gc)
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	s.logger.Debug("websocket connected", "conn_id", gc.ID(), "remote_addr", r.RemoteAddr)

	c := &wsConn{server: s, conn: conn, gc: gc}
	s.pumps.Add(2)
	go c.writePump()
	go c.readPump(s.baseContext())
}

// baseContext is cancelled when the server closes. A request's own context
// ends as soon as the upgrade handler returns.
func (s *Server) baseContext() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (c *wsConn) readDeadline() time.Time {
	cfg := c.server.wsCfg
	return time.Now().Add(time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second)
}

// readPump hands every text frame to the gateway in arrival order.
func (c *wsConn) readPump(ctx context.Context) {
	defer func() {
		c.server.gateway.Registry().Unregister(c.gc)
		c.conn.Close()
		c.server.pumps.Done()
	}()

	logger := c.server.logger
	c.conn.SetReadLimit(int64(c.server.wsCfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(c.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.readDeadline())
	})
	c.conn.SetPingHandler(c.handlePing)

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "conn_id", c.gc.ID(), "error", err)
			} else {
				logger.Debug("websocket closed", "conn_id", c.gc.ID(), "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(c.readDeadline())

		if msgType != websocket.TextMessage {
			logger.Debug("ignoring non-text frame", "conn_id", c.gc.ID(), "type", msgType)
			continue
		}
		c.server.gateway.Handle(ctx, c.gc, message)
	}
}

// handlePing treats a protocol ping as a heartbeat, then answers it with a
// pong carrying the same data.
func (c *wsConn) handlePing(appData string) error {
	c.server.gateway.Heartbeat(c.gc, appData)
	//nolint:errcheck // Best-effort deadline reset
	c.conn.SetReadDeadline(c.readDeadline())

	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

// writePump drains the connection's outbound queue and keeps the peer alive
// with periodic pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(time.Duration(c.server.wsCfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.server.pumps.Done()
	}()

	for {
		select {
		case message, ok := <-c.gc.Outbound():
			if !ok {
				// Unregistered or shutting down.
				//nolint:errcheck // Best-effort close message
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
