package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 50 * time.Second
	wsSendBuffer   = 256

	defaultMaxMessageBytes = 10 << 20
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type WebSocketClient struct {
	conn      *websocket.Conn
	clientID  string
	tripID    int64
	send      chan WebSocketMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newWebSocketClient(conn *websocket.Conn, tripID int64) *WebSocketClient {
	return &WebSocketClient{
		conn:     conn,
		clientID: uuid.NewString(),
		tripID:   tripID,
		send:     make(chan WebSocketMessage, wsSendBuffer),
		done:     make(chan struct{}),
	}
}

// push queues a message; it is dropped when the client is gone or too slow.
func (c *WebSocketClient) push(e event) bool {
	msg := WebSocketMessage{Type: e.Type, Payload: e.Payload, ClientID: c.clientID, Timestamp: time.Now().Unix()}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *WebSocketClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

type WebSocketClients struct {
	mu      sync.RWMutex
	clients map[string]*WebSocketClient
}

func newWebSocketClients() *WebSocketClients {
	return &WebSocketClients{clients: make(map[string]*WebSocketClient)}
}

func (cs *WebSocketClients) add(c *WebSocketClient) {
	cs.mu.Lock()
	cs.clients[c.clientID] = c
	cs.mu.Unlock()
}

func (cs *WebSocketClients) remove(c *WebSocketClient) {
	cs.mu.Lock()
	delete(cs.clients, c.clientID)
	cs.mu.Unlock()
}

func (cs *WebSocketClients) len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}

func (cs *WebSocketClients) closeAll() {
	cs.mu.Lock()
	clients := cs.clients
	cs.clients = make(map[string]*WebSocketClient)
	cs.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}

// handleWebSocket streams the frames of one active trip:
// /ws?trip_id=N with the driver in the X-Driver-ID header or driver_id query
// parameter (browsers cannot set headers on websocket requests).
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tripID, err := strconv.ParseInt(q.Get("trip_id"), 10, 64)
	if err != nil || tripID <= 0 {
		writeError(w, http.StatusBadRequest, "trip_id is required", "bad_request")
		return
	}
	rawDriver := r.Header.Get(DriverIDHeader)
	if rawDriver == "" {
		rawDriver = q.Get("driver_id")
	}
	userID, err := strconv.ParseInt(rawDriver, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid driver id", "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	trip, err := a.Trips.Get(ctx, tripID, userID)
	cancel()
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}
	if trip.Status != models.TripActive {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}
	m, err := a.Registry.Ensure(tripID, userID)
	if err != nil {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(a.AllowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn("websocket upgrade failed", zap.Error(err))
		a.Metrics.IncrementWebSocketErrors()
		return
	}

	client := newWebSocketClient(conn, tripID)
	log := a.Logger.With(zap.String("client_id", client.clientID), zap.Int64("trip_id", tripID))

	a.clients.add(client)
	a.Metrics.IncrementWebSocketConnections()
	log.Info("websocket client connected")

	defer func() {
		a.clients.remove(client)
		a.Metrics.DecrementWebSocketConnections()
		client.close()
		log.Info("websocket client disconnected")
	}()

	go a.writePump(client)
	client.push(event{MsgWelcome, map[string]interface{}{
		"message": "Connected to DriveGuard",
		"trip_id": tripID,
		"version": a.Version,
	}})

	queue := monitor.NewFrameQueue(nil)
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	go func() {
		if err := m.Run(runCtx, queue, a.observer(tripID, func(e event) { client.push(e) })); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("frame loop ended", zap.Error(err))
		}
		// The trip was ended elsewhere or the loop failed.
		if runCtx.Err() == nil {
			client.close()
		}
	}()

	a.readPump(client, m, queue, log)
	queue.Close()
}

func (a *API) readPump(c *WebSocketClient, m *monitor.Monitor, queue *monitor.FrameQueue, log *zap.Logger) {
	limit := a.MaxMessageBytes
	if limit <= 0 {
		limit = defaultMaxMessageBytes
	}
	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	send := func(e event) { c.push(e) }
	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
				a.Metrics.IncrementWebSocketErrors()
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		a.Metrics.IncrementWebSocketMessages()

		switch msg.Type {
		case MsgPing:
			c.push(event{Type: MsgPong})

		case MsgFrame:
			var f models.Frame
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				c.push(errorEvent("bad_frame", err))
				continue
			}
			if !queue.OfferLazy(a.lazyFrame(f, time.Now(), send)) {
				m.FrameDropped()
				a.Metrics.IncrementDropped()
			}

		default:
			log.Debug("unknown message type", zap.String("type", msg.Type))
			c.push(errorEvent("unknown_type", errors.New("unknown message type "+msg.Type)))
		}
	}
}

func (a *API) writePump(c *WebSocketClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				a.Metrics.IncrementWebSocketErrors()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
