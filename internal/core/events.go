package core

import (
	"sync"
	"time"
)

// EventType은 엔진 이벤트 종류
type EventType string

const (
	EventStreamStarted      EventType = "stream_started"
	EventStreamStopped      EventType = "stream_stopped"
	EventPathRegenerated    EventType = "path_regenerated"
	EventSegmentCreated     EventType = "segment_created"
	EventSegmentEvicted     EventType = "segment_evicted"
	EventIngestionError     EventType = "ingestion_error"
	EventMuxError           EventType = "mux_error"
	EventBufferHighWater    EventType = "buffer_high_water"
	EventClientConnected    EventType = "client_connected"
	EventClientDisconnected EventType = "client_disconnected"
)

// Event는 엔진에서 발생한 단일 이벤트
type Event struct {
	Type   EventType              `json:"type"`
	Time   time.Time              `json:"time"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Listener는 이벤트 수신자 인터페이스
// OnEvent는 mux/serve 경로에서 직접 호출되므로 블로킹하면 안 됩니다
type Listener interface {
	OnEvent(event Event)
}

// Notifier는 등록된 리스너에게 이벤트를 전달합니다
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewNotifier는 새로운 Notifier를 생성합니다
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Register는 리스너를 등록합니다
func (n *Notifier) Register(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Notify는 이벤트를 모든 리스너에게 전달합니다
func (n *Notifier) Notify(eventType EventType, fields map[string]interface{}) {
	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	event := Event{
		Type:   eventType,
		Time:   time.Now(),
		Fields: fields,
	}

	for _, l := range listeners {
		l.OnEvent(event)
	}
}

// ListenerFunc는 함수를 Listener로 사용할 수 있게 합니다
type ListenerFunc func(event Event)

// OnEvent는 Listener 인터페이스 구현
func (f ListenerFunc) OnEvent(event Event) {
	f(event)
}
