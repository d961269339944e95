package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64

	maxTopicsPerConn = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler bridges bus subscriptions onto websocket connections. Each
// connection manages its own topic set with subscribe/unsubscribe
// control messages; every event for a subscribed topic is pushed to the
// client as JSON.
type WSHandler struct {
	bus events.Bus
	log *zap.Logger
}

func NewWSHandler(bus events.Bus, log *zap.Logger) *WSHandler {
	return &WSHandler{bus: bus, log: log}
}

type wsControlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *zap.Logger

	mu     sync.Mutex
	topics map[string]context.CancelFunc
}

func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	wc := &wsConn{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
		log:    h.log,
		topics: make(map[string]context.CancelFunc),
	}

	// Every connection starts on the global feed.
	wc.subscribe(c.Request.Context(), h.bus, events.TopicGlobal)

	go wc.writePump()
	wc.readPump(c.Request.Context(), h.bus)
}

func (wc *wsConn) subscribe(ctx context.Context, bus events.Bus, topic string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if _, ok := wc.topics[topic]; ok {
		return
	}
	if len(wc.topics) >= maxTopicsPerConn {
		wc.log.Warn("websocket topic limit reached", zap.String("topic", topic))
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := bus.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		wc.log.Error("websocket subscribe failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	wc.topics[topic] = cancel

	go func() {
		for event := range ch {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			select {
			case wc.send <- payload:
			default:
				// Slow client, drop rather than stall the bus.
				wc.log.Warn("websocket send buffer full, dropping event",
					zap.String("topic", topic),
					zap.String("event_type", string(event.Type)))
			}
		}
	}()
}

func (wc *wsConn) unsubscribe(topic string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if cancel, ok := wc.topics[topic]; ok {
		cancel()
		delete(wc.topics, topic)
	}
}

func (wc *wsConn) readPump(ctx context.Context, bus events.Bus) {
	defer wc.close()

	wc.conn.SetReadLimit(4096)
	_ = wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wc.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg wsControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			for _, topic := range msg.Topics {
				wc.subscribe(ctx, bus, topic)
			}
		case "unsubscribe":
			for _, topic := range msg.Topics {
				wc.unsubscribe(topic)
			}
		}
	}
}

func (wc *wsConn) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = wc.conn.Close()
	}()

	for {
		select {
		case payload := <-wc.send:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-wc.done:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (wc *wsConn) close() {
	wc.mu.Lock()
	for topic, cancel := range wc.topics {
		cancel()
		delete(wc.topics, topic)
	}
	wc.mu.Unlock()

	close(wc.done)
	_ = wc.conn.Close()
}
