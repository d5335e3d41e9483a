package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"connectfour/internal/search"
	"connectfour/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is sent by a websocket client. Type is one of "move",
// "hint", "resign" or "state".
type clientMessage struct {
	Type   string `json:"type"`
	Column *int   `json:"column,omitempty"`
}

type serverMessage struct {
	Type    string              `json:"type"`
	Session *session.Session    `json:"session,omitempty"`
	Move    *session.MoveResult `json:"move,omitempty"`
	Hint    *search.Result      `json:"hint,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type wsClient struct {
	name      string
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	server    *Server
}

// hub tracks the clients watching each session.
type hub struct {
	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[string]map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.sessionID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.sessionID)
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

// sendTo queues msg for one client. Slow clients drop messages.
func (h *hub) sendTo(c *wsClient, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Msg("ws-encode-failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.sessionID][c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *hub) publish(sessionID string, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Msg("ws-encode-failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// broadcast pushes the session state, and the move that produced it, to
// everyone watching.
func (s *Server) broadcast(sess session.Session, res *session.MoveResult) {
	s.hub.publish(sess.ID, serverMessage{Type: "state", Session: &sess, Move: res})
}

func (s *Server) handleWS(c *gin.Context) {
	id, name := c.Query("session"), c.Query("name")
	if id == "" || name == "" {
		fail(c, badRequest(errors.New("session and name required")))
		return
	}
	sess, err := s.lookup(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", id).Msg("ws-upgrade-failed")
		return
	}
	client := &wsClient{
		name:      name,
		sessionID: id,
		conn:      conn,
		send:      make(chan []byte, 16),
		server:    s,
	}
	s.hub.add(client)
	s.hub.sendTo(client, serverMessage{Type: "state", Session: &sess})
	log.Info().Str("session", id).Str("name", name).Msg("ws-connected")

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer c.server.hub.remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.fail(badRequest(err))
			continue
		}
		c.handle(context.Background(), msg)
	}
}

func (c *wsClient) handle(ctx context.Context, msg clientMessage) {
	s := c.server
	switch msg.Type {
	case "move":
		if msg.Column == nil {
			c.fail(badRequest(errors.New("column required")))
			return
		}
		if _, err := s.active(ctx, c.sessionID); err != nil {
			c.fail(err)
			return
		}
		res, sess, err := s.manager.Move(c.sessionID, c.name, *msg.Column)
		if err != nil {
			c.fail(err)
			return
		}
		s.broadcast(sess, &res)
		if _, err := s.advance(ctx, c.sessionID); err != nil {
			c.fail(err)
		}
	case "hint":
		res, err := s.hint(ctx, c.sessionID)
		if err != nil {
			c.fail(err)
			return
		}
		s.hub.sendTo(c, serverMessage{Type: "hint", Hint: &res})
	case "resign":
		if _, err := s.active(ctx, c.sessionID); err != nil {
			c.fail(err)
			return
		}
		sess, err := s.manager.Resign(c.sessionID, c.name)
		if err != nil {
			c.fail(err)
			return
		}
		s.broadcast(sess, nil)
	case "state":
		sess, err := s.lookup(ctx, c.sessionID)
		if err != nil {
			c.fail(err)
			return
		}
		s.hub.sendTo(c, serverMessage{Type: "state", Session: &sess})
	default:
		c.fail(badRequest(fmt.Errorf("unknown message type %q", msg.Type)))
	}
}

func (c *wsClient) fail(err error) {
	c.server.hub.sendTo(c, serverMessage{Type: "error", Error: err.Error()})
}
