package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed message types.
const (
	MsgBattlefield = "battlefield"
	MsgDraw        = "draw"
	// MsgSubscribe narrows draw events to one team; teamId 0 clears it.
	MsgSubscribe   = "subscribe"
)

// WSMessage is the envelope of every feed message.
type WSMessage struct {
	Type   string `json:"type"`
	TeamID int64  `json:"teamId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type drawEvent struct {
	UserID  int64        `json:"userId"`
	TeamID  int64        `json:"teamId"`
	SiteID  int64        `json:"siteId"`
	Outcome drawResponse `json:"outcome"`
}

type outbound struct {
	teamID int64 // 0 goes to every client
	data   []byte
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	teamMu sync.RWMutex
	teamID int64
}

func (c *wsClient) team() int64 {
	c.teamMu.RLock()
	defer c.teamMu.RUnlock()
	return c.teamID
}

// Hub fans committed changes out to websocket clients. It implements
// reward.Notifier; notifications never block the caller.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *zap.Logger

	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	// initial returns the message sent to a client right after it connects.
	initial func(ctx context.Context) (*WSMessage, error)
}

var _ reward.Notifier = (*Hub)(nil)

// NewHub creates a hub. Origins are checked against allowedOrigins; an empty
// list or "*" accepts any origin.
func NewHub(cfg config.WebSocketConfig, allowedOrigins []string, logger *zap.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	h := &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// Run serves registrations and broadcasts until ctx is done. It must be
// called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("feed client registered", zap.String("client_id", c.id))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("feed client unregistered", zap.String("client_id", c.id))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if msg.teamID != 0 {
					if t := c.team(); t != 0 && t != msg.teamID {
						continue
					}
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping slow feed client", zap.String("client_id", c.id))
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

func (h *Hub) publish(teamID int64, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode feed message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{teamID: teamID, data: data}:
	default:
		h.logger.Warn("feed backlog full, dropping message", zap.String("type", msg.Type))
	}
}

// BattlefieldChanged broadcasts the new battlefield to every client.
func (h *Hub) BattlefieldChanged(st reward.BattlefieldState) {
	h.publish(0, WSMessage{Type: MsgBattlefield, Data: newBattlefieldState(st)})
}

// RewardDrawn broadcasts a draw. Clients subscribed to a team only see
// their own team's draws.
func (h *Hub) RewardDrawn(userID, teamID, siteID int64, out reward.DrawOutcome) {
	h.publish(teamID, WSMessage{
		Type:   MsgDraw,
		TeamID: teamID,
		Data: drawEvent{
			UserID:  userID,
			TeamID:  teamID,
			SiteID:  siteID,
			Outcome: newDrawResponse(&out),
		},
	})
}

// ServeWS upgrades the request and attaches a client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}

	if h.initial != nil {
		if msg, err := h.initial(r.Context()); err != nil {
			h.logger.Warn("failed to build initial feed state", zap.Error(err))
		} else if data, err := json.Marshal(msg); err == nil {
			c.send <- data
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("ignoring malformed feed message", zap.String("client_id", c.id), zap.Error(err))
			continue
		}

		if msg.Type == MsgSubscribe {
			c.teamMu.Lock()
			c.teamID = msg.TeamID
			c.teamMu.Unlock()
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
