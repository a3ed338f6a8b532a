// Package ws streams training state transitions to websocket clients.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"StockCast/internal/domain/models"
	xlogger "StockCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	hub    *TrainingHub
	conn   *websocket.Conn
	send   chan models.TrainingEvent
	ticker string
}

// TrainingHub fans training events out to connected clients. A client that
// cannot keep up is dropped rather than stalling the trainer.
type TrainingHub struct {
	logger     *xlogger.Logger
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan models.TrainingEvent
	done       chan struct{}
}

func NewTrainingHub(logger *xlogger.Logger) *TrainingHub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &TrainingHub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.TrainingEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is done and disconnects everyone.
func (h *TrainingHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case ev := <-h.broadcast:
			for c := range h.clients {
				if c.ticker != "" && c.ticker != ev.Key.Ticker {
					continue
				}
				select {
				case c.send <- ev:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish queues an event for broadcast without blocking. It matches the
// trainer's observer signature.
func (h *TrainingHub) Publish(ev models.TrainingEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("training hub backlog full, event dropped", xlogger.String("run_id", ev.RunID))
	}
}

func (h *TrainingHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/training", h.Serve)
}

// Serve upgrades the request. The optional ticker query parameter limits the
// stream to one ticker.
func (h *TrainingHub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan models.TrainingEvent, sendBuffer),
		ticker: strings.ToUpper(strings.TrimSpace(c.QueryParam("ticker"))),
	}
	select {
	case h.register <- cl:
	case <-h.done:
		_ = conn.Close()
		return nil
	}

	go cl.writePump()
	go cl.readPump()
	return nil
}

// readPump only watches the connection; clients send nothing meaningful.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", xlogger.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
