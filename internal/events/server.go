package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Server는 엔진 이벤트를 WebSocket으로 중계하는 브로드캐스터입니다
// core.Listener를 구현하여 Notifier에 직접 등록됩니다
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients map[*Client]bool
	mutex   sync.RWMutex
}

// Client는 WebSocket 구독자를 나타냅니다
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	logger *zap.Logger
}

// NewServer는 새로운 이벤트 브로드캐스터를 생성합니다
func NewServer(logger *zap.Logger) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]bool),
	}
}

// OnEvent는 core.Listener 구현입니다
// mux/serve 경로에서 호출되므로 느린 구독자는 버리고 지나갑니다
func (s *Server) OnEvent(event core.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// 송신 버퍼가 가득 찬 구독자에게는 이 이벤트를 건너뜁니다
		}
	}
}

// HandleWebSocket은 WebSocket 연결을 처리합니다
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		server: s,
	}
	client.logger = s.logger.With(zap.String("client_id", client.id))

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	client.logger.Info("Event subscriber connected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// ClientCount는 현재 구독자 수를 반환합니다
func (s *Server) ClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// registerClient는 구독자를 등록합니다
func (s *Server) registerClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[client] = true
}

// unregisterClient는 구독자를 등록 해제합니다
func (s *Server) unregisterClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.clients[client]; exists {
		delete(s.clients, client)
		close(client.send)
	}
}

// readPump은 구독자의 수신 루프입니다
// 이벤트 피드는 단방향이므로 수신 메시지는 버리고 연결 상태만 감시합니다
func (c *Client) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		c.conn.Close()
		c.logger.Info("Event subscriber disconnected")
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump은 구독자의 송신 루프입니다
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
