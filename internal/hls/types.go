package hls

import (
	"time"
)

// TrackType은 access unit이 속한 트랙 종류
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
)

// AccessUnit은 외부 인코더가 전달하는 인코딩된 프레임 하나
// Muxer가 정확히 한 번 소비하며 muxing 이후에는 유지되지 않습니다
type AccessUnit struct {
	Track    TrackType
	PTS      time.Duration // presentation timestamp
	DTS      time.Duration // decode timestamp
	Data     []byte
	Keyframe bool // 비디오 전용
}

// VideoConfig는 비디오 트랙 코덱 파라미터 (H.264)
type VideoConfig struct {
	Width     int
	Height    int
	FrameRate int
	SPS       []byte
	PPS       []byte
}

// AudioConfig는 오디오 트랙 코덱 파라미터 (AAC)
type AudioConfig struct {
	SampleRate int
	Channels   int
	ObjectType byte // AAC object type (기본 LC)
}

// TrackConfiguration은 세션 시작 시 한 번 설정되는 트랙 구성
// 세션이 살아있는 동안 불변입니다
type TrackConfiguration struct {
	Video *VideoConfig
	Audio *AudioConfig
}

// InitSegment는 ftyp/moov 박스를 담은 불변 바이트 버퍼
// 스트리밍 세션당 정확히 하나 존재합니다
type InitSegment struct {
	Data      []byte
	CreatedAt time.Time
}

// Segment는 완성된 fMP4 미디어 세그먼트 (styp + moof + mdat)
// 완성 이후 불변이며 Store의 eviction으로만 제거됩니다
type Segment struct {
	Sequence      uint32
	Duration      time.Duration // 측정된 길이 (명목치 아님)
	Data          []byte
	Discontinuity bool
	CreatedAt     time.Time
}

// Size는 세그먼트가 차지하는 바이트 수를 반환합니다
func (s *Segment) Size() int64 {
	return int64(len(s.Data))
}
