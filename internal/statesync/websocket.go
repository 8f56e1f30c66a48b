package statesync

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// HandleWebSocket upgrades the HTTP request and registers the resulting
// connection with the hub, replays any durable history to it, and returns
// once its read and write pumps are started; they run until the
// connection closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.clientsMu.RLock()
	atCapacity := h.cfg.MaxConnections > 0 && len(h.clients) >= h.cfg.MaxConnections
	h.clientsMu.RUnlock()
	if atCapacity {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("state-sync websocket upgrade failed", "err", err)
		return
	}

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", "err", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{
		conn:          conn,
		subscribed:    make(map[string]bool),
		authenticated: !h.cfg.RequireAuthentication,
	}

	h.clientsMu.Lock()
	h.clients[conn] = c
	total := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info("state-sync client connected", "addr", conn.RemoteAddr(), "total", total)

	h.replayTo(c)

	done := make(chan struct{})
	h.clientWg.Add(2)
	go h.clientReadPump(c, done)
	go h.clientWritePump(c, done)
}

func (h *Hub) clientReadPump(c *client, done chan struct{}) {
	defer h.clientWg.Done()
	defer close(done)

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("state-sync read error", "addr", c.conn.RemoteAddr(), "err", err)
			}
			return
		}
		h.handleClientMessage(c, msg)
	}
}

func (h *Hub) handleClientMessage(c *client, msg clientMessage) {
	switch msg.Type {
	case msgAuth:
		userID, ok := h.auth.Validate(msg.Token)
		c.subMu.Lock()
		c.authenticated = ok
		c.userID = userID
		c.subMu.Unlock()
		h.writeServerMessage(c, serverMessage{Type: msgAuthAck, Success: ok, UserID: userID})
	case msgSubscribe:
		c.subscribe(msg.WorkspaceIDs)
	case msgUnsubscribe:
		c.unsubscribe(msg.WorkspaceIDs)
	case msgPing:
		h.writeServerMessage(c, serverMessage{Type: msgPong})
	}
}

func (h *Hub) writeServerMessage(c *client, msg serverMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Error("failed to set write deadline", "err", err)
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		h.logger.Error("failed to write control message", "err", err)
	}
}

func (h *Hub) clientWritePump(c *client, done chan struct{}) {
	defer h.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer h.removeClient(c.conn)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err1 := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err2 error
			if err1 == nil {
				err2 = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.writeMu.Unlock()
			if err1 != nil || err2 != nil {
				h.logger.Error("state-sync ping failed", "addr", c.conn.RemoteAddr())
				return
			}
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
		h.logger.Info("state-sync client disconnected", "total", len(h.clients))
	}
}
