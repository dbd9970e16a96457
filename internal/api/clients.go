package api

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

// ClientConnection은 연결된 시청 클라이언트 하나의 상태
type ClientConnection struct {
	Addr         string    `json:"addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ClientTracker는 클라이언트별 활성 상태를 추적합니다
// 타임아웃을 넘겨 비활성인 클라이언트는 주기적으로 정리됩니다
type ClientTracker struct {
	logger   *zap.Logger
	notifier *core.Notifier

	timeout        time.Duration
	maxConnections int

	mu      sync.Mutex
	clients map[string]*ClientConnection
}

// NewClientTracker는 새로운 ClientTracker를 생성합니다
func NewClientTracker(timeout time.Duration, maxConnections int,
	notifier *core.Notifier, logger *zap.Logger) *ClientTracker {
	return &ClientTracker{
		logger:         logger,
		notifier:       notifier,
		timeout:        timeout,
		maxConnections: maxConnections,
		clients:        make(map[string]*ClientConnection),
	}
}

// Touch는 클라이언트 활동을 기록합니다
// 새 클라이언트가 연결 제한을 넘으면 false를 반환합니다
func (t *ClientTracker) Touch(addr string) bool {
	now := time.Now()
	var connected bool

	t.mu.Lock()
	client, exists := t.clients[addr]
	if exists {
		client.LastActivity = now
	} else {
		if t.maxConnections > 0 && len(t.clients) >= t.maxConnections {
			t.mu.Unlock()
			return false
		}
		t.clients[addr] = &ClientConnection{
			Addr:         addr,
			ConnectedAt:  now,
			LastActivity: now,
		}
		connected = true
	}
	t.mu.Unlock()

	if connected {
		t.logger.Info("Client connected",
			zap.String("addr", addr),
		)
		t.notifier.Notify(core.EventClientConnected, map[string]interface{}{
			"addr": addr,
		})
	}
	return true
}

// Count는 현재 추적 중인 클라이언트 수를 반환합니다
func (t *ClientTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Snapshot은 현재 클라이언트 목록의 복사본을 반환합니다
func (t *ClientTracker) Snapshot() []ClientConnection {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]ClientConnection, 0, len(t.clients))
	for _, c := range t.clients {
		list = append(list, *c)
	}
	return list
}

// PruneLoop는 비활성 클라이언트를 주기적으로 정리합니다
func (t *ClientTracker) PruneLoop(ctx context.Context) {
	interval := t.timeout / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.prune()
		case <-ctx.Done():
			return
		}
	}
}

// prune은 타임아웃을 넘긴 클라이언트를 제거합니다
func (t *ClientTracker) prune() {
	cutoff := time.Now().Add(-t.timeout)
	var removed []string

	t.mu.Lock()
	for addr, client := range t.clients {
		if client.LastActivity.Before(cutoff) {
			delete(t.clients, addr)
			removed = append(removed, addr)
		}
	}
	t.mu.Unlock()

	for _, addr := range removed {
		t.logger.Info("Client disconnected (inactive)",
			zap.String("addr", addr),
			zap.Duration("timeout", t.timeout),
		)
		t.notifier.Notify(core.EventClientDisconnected, map[string]interface{}{
			"addr": addr,
		})
	}
}

// Reset은 추적 상태를 초기화합니다 (세션 교체 시)
func (t *ClientTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients = make(map[string]*ClientConnection)
}
