package core

import (
	"sync"
)

// Location은 스트림 송출 위치 정보
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Status는 스트림 제목과 위치를 보관하는 동기화된 값 홀더
// 마지막 쓰기가 항상 이깁니다 (latest-writer-wins)
type Status struct {
	mu       sync.RWMutex
	title    string
	location *Location
}

// NewStatus는 새로운 Status 홀더를 생성합니다
func NewStatus(title string) *Status {
	return &Status{title: title}
}

// Title은 현재 스트림 제목을 반환합니다
func (s *Status) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// SetTitle은 스트림 제목을 갱신합니다
func (s *Status) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Location은 마지막으로 게시된 위치를 반환합니다 (없으면 nil)
func (s *Status) Location() *Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return nil
	}
	loc := *s.location
	return &loc
}

// SetLocation은 위치를 갱신합니다
func (s *Status) SetLocation(loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = &loc
}

// ClearLocation은 위치 정보를 제거합니다
func (s *Status) ClearLocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = nil
}
