package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNotifier는 리스너 등록과 이벤트 전달을 검증합니다
func TestNotifier(t *testing.T) {
	notifier := NewNotifier()

	var received []Event
	notifier.Register(ListenerFunc(func(event Event) {
		received = append(received, event)
	}))

	notifier.Notify(EventStreamStarted, map[string]interface{}{"path": "abc"})
	notifier.Notify(EventStreamStopped, nil)

	require.Len(t, received, 2)
	assert.Equal(t, EventStreamStarted, received[0].Type)
	assert.Equal(t, "abc", received[0].Fields["path"])
	assert.Equal(t, EventStreamStopped, received[1].Type)
	assert.False(t, received[0].Time.IsZero())
}

// TestNotifierMultipleListeners는 모든 리스너가 이벤트를 받는지 검증합니다
func TestNotifierMultipleListeners(t *testing.T) {
	notifier := NewNotifier()

	var first, second int
	notifier.Register(ListenerFunc(func(Event) { first++ }))
	notifier.Register(ListenerFunc(func(Event) { second++ }))

	notifier.Notify(EventSegmentCreated, nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

// TestNotifierNoListeners는 리스너 없는 Notify가 안전한지 검증합니다
func TestNotifierNoListeners(t *testing.T) {
	notifier := NewNotifier()
	assert.NotPanics(t, func() {
		notifier.Notify(EventSegmentCreated, nil)
	})
}

// TestStatusHolder는 제목/위치 홀더의 동작을 검증합니다
func TestStatusHolder(t *testing.T) {
	status := NewStatus("My Stream")
	assert.Equal(t, "My Stream", status.Title())
	assert.Nil(t, status.Location())

	status.SetTitle("Renamed")
	assert.Equal(t, "Renamed", status.Title())

	status.SetLocation(Location{Latitude: 37.5, Longitude: 127.0, Accuracy: 5})
	loc := status.Location()
	require.NotNil(t, loc)
	assert.Equal(t, 37.5, loc.Latitude)

	// 반환된 복사본을 수정해도 내부 상태는 바뀌지 않습니다
	loc.Latitude = 0
	assert.Equal(t, 37.5, status.Location().Latitude)

	status.ClearLocation()
	assert.Nil(t, status.Location())
}
