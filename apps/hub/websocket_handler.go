package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/presence"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// conn bridges one websocket to a hub session.
type conn struct {
	ws      *websocket.Conn
	session *Session
	inbound chan model.Command
}

// readPump decodes client commands into the session's inbound channel. Pongs
// refresh the presence TTL so an idle but live connection never expires.
func (c *conn) readPump(ps presence.Store) {
	defer func() {
		close(c.inbound)
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return ps.Connect(context.Background(), c.session.UserID, c.session.ConnID)
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read: %v", err)
			}
			return
		}

		var cmd model.Command
		if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Type == "" {
			c.session.trySend(model.Event{Type: model.EventError, Reason: "invalid"})
			continue
		}

		select {
		case c.inbound <- cmd:
		case <-c.session.done:
			return
		}
	}
}

// writePump encodes session events onto the websocket and keeps the
// connection alive with pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case ev, ok := <-c.session.Events():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session ended.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates the connection, upgrades it, and runs the session.
// The user identity comes from the token claim; clients never supply it.
func serveWs(hub *Hub, ps presence.Store, tokens *auth.Tokens, w http.ResponseWriter, r *http.Request) {
	claims, err := tokens.FromRequest(r)
	if err != nil {
		log.Printf("unauthorized websocket: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	session := hub.NewSession(r.Context(), claims.UserID, uuid.NewString())
	c := &conn{
		ws:      ws,
		session: session,
		inbound: make(chan model.Command, 16),
	}

	go c.writePump()
	go c.readPump(ps)
	go session.Run(context.Background(), c.inbound)
}
