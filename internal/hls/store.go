package hls

import (
	"sync"
	"sync/atomic"

	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

// Store는 완성된 세그먼트를 순서대로 보관하는 유한 인메모리 윈도우
//
// append/evict만 짧은 critical section으로 보호하고, 읽기는 스냅샷
// 복사본 위에서 이루어지므로 HTTP 서빙이 muxing 파이프라인을
// 블로킹하지 않습니다. 세그먼트 바이트는 게시 이후 불변입니다.
type Store struct {
	logger   *zap.Logger
	notifier *core.Notifier

	windowSize       int
	maxBufferedBytes int64

	mu            sync.RWMutex
	segments      []*Segment
	init          *InitSegment
	bufferedBytes int64
	highWater     bool // 고수위 이벤트 중복 발행 방지

	notFoundCount atomic.Uint64
	evictedCount  atomic.Uint64
}

// NewStore는 새로운 세그먼트 Store를 생성합니다
func NewStore(windowSize int, maxBufferedBytes int64, notifier *core.Notifier, logger *zap.Logger) *Store {
	return &Store{
		logger:           logger,
		notifier:         notifier,
		windowSize:       windowSize,
		maxBufferedBytes: maxBufferedBytes,
	}
}

// SetInit은 현재 세션의 init 세그먼트를 설정합니다
func (s *Store) SetInit(init *InitSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init = init
}

// Init은 현재 init 세그먼트를 반환합니다 (준비 전이면 nil)
func (s *Store) Init() *InitSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.init
}

// Append는 세그먼트를 꼬리에 추가하고 윈도우 크기를 넘으면
// 머리(가장 오래된 세그먼트)부터 evict합니다
func (s *Store) Append(seg *Segment) {
	var evicted []*Segment
	var buffered int64
	var crossed bool

	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.bufferedBytes += seg.Size()

	for len(s.segments) > s.windowSize {
		old := s.segments[0]
		s.segments = s.segments[1:]
		s.bufferedBytes -= old.Size()
		evicted = append(evicted, old)
	}

	buffered = s.bufferedBytes

	// 고수위는 경계를 넘는 순간 한 번만 보고합니다
	// 윈도우를 최소 크기 아래로 줄이지는 않습니다 (보고 전용)
	if s.bufferedBytes > s.maxBufferedBytes && !s.highWater {
		s.highWater = true
		crossed = true
	} else if s.bufferedBytes <= s.maxBufferedBytes {
		s.highWater = false
	}
	s.mu.Unlock()

	for _, old := range evicted {
		s.evictedCount.Add(1)
		s.notifier.Notify(core.EventSegmentEvicted, map[string]interface{}{
			"sequence": old.Sequence,
			"size":     old.Size(),
		})
	}

	if crossed {
		s.logger.Warn("Segment buffer exceeded high-water mark",
			zap.Int64("buffered_bytes", buffered),
			zap.Int64("max_bytes", s.maxBufferedBytes),
		)
		s.notifier.Notify(core.EventBufferHighWater, map[string]interface{}{
			"buffered_bytes": buffered,
			"max_bytes":      s.maxBufferedBytes,
		})
	}
}

// Window는 현재 윈도우의 스냅샷을 반환합니다
// 호출자는 락 없이 순회하거나 I/O에 사용할 수 있습니다
func (s *Store) Window() []*Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := make([]*Segment, len(s.segments))
	copy(window, s.segments)
	return window
}

// Get은 시퀀스 번호로 세그먼트를 조회합니다
// 없는 세그먼트 요청은 라이브 스트림에서 빈번한 정상 상황입니다
func (s *Store) Get(sequence uint32) (*Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, seg := range s.segments {
		if seg.Sequence == sequence {
			return seg, true
		}
	}

	s.notFoundCount.Add(1)
	return nil, false
}

// Clear는 윈도우와 init 세그먼트를 모두 제거합니다 (세션 교체 시)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
	s.init = nil
	s.bufferedBytes = 0
	s.highWater = false
}

// Count는 현재 윈도우의 세그먼트 수를 반환합니다
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// BufferedBytes는 현재 버퍼링된 총 바이트 수를 반환합니다
func (s *Store) BufferedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufferedBytes
}

// NotFoundCount는 누적 not-found 조회 수를 반환합니다
func (s *Store) NotFoundCount() uint64 {
	return s.notFoundCount.Load()
}

// EvictedCount는 누적 evict 수를 반환합니다
func (s *Store) EvictedCount() uint64 {
	return s.evictedCount.Load()
}
