package hls

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

// 테스트용 H.264 파라미터 셋 (1280x720 baseline)
var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5,
		0x84, 0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00,
		0xf0, 0x3c, 0x60, 0xc9, 0x20,
	}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

// testTrackConfig는 비디오+오디오 트랙 구성을 반환합니다
func testTrackConfig() TrackConfiguration {
	return TrackConfiguration{
		Video: &VideoConfig{
			Width:     1280,
			Height:    720,
			FrameRate: 15,
			SPS:       testSPS,
			PPS:       testPPS,
		},
		Audio: &AudioConfig{
			SampleRate: 48000,
			Channels:   2,
		},
	}
}

// videoOnlyConfig는 비디오 전용 트랙 구성을 반환합니다
func videoOnlyConfig() TrackConfiguration {
	return TrackConfiguration{
		Video: &VideoConfig{
			Width:     1280,
			Height:    720,
			FrameRate: 15,
			SPS:       testSPS,
			PPS:       testPPS,
		},
	}
}

// videoUnit은 테스트용 비디오 access unit을 생성합니다
func videoUnit(ts time.Duration, keyframe bool) AccessUnit {
	return AccessUnit{
		Track:    TrackVideo,
		PTS:      ts,
		DTS:      ts,
		Data:     []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x01, 0x02, 0x03},
		Keyframe: keyframe,
	}
}

// audioUnit은 테스트용 오디오 access unit을 생성합니다
func audioUnit(ts time.Duration) AccessUnit {
	return AccessUnit{
		Track: TrackAudio,
		PTS:   ts,
		DTS:   ts,
		Data:  []byte{0x21, 0x10, 0x05},
	}
}

// testSegment는 Store 테스트용 가짜 세그먼트를 생성합니다
func testSegment(sequence uint32, size int) *Segment {
	data := make([]byte, size)
	return &Segment{
		Sequence:  sequence,
		Duration:  4 * time.Second,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// topLevelBoxes는 fMP4 바이트에서 최상위 박스 타입 목록을 파싱합니다
func topLevelBoxes(data []byte) []string {
	var boxes []string
	for offset := 0; offset+8 <= len(data); {
		size := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		boxes = append(boxes, string(data[offset+4:offset+8]))
		if size < 8 {
			break
		}
		offset += size
	}
	return boxes
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func testNotifier() *core.Notifier {
	return core.NewNotifier()
}

// eventCollector는 발생한 이벤트를 수집하는 테스트 리스너입니다
type eventCollector struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *eventCollector) OnEvent(event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) typesSeen() map[core.EventType]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[core.EventType]int)
	for _, e := range c.events {
		seen[e.Type]++
	}
	return seen
}
