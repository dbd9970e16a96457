package hls

import (
	"fmt"
	"sync"

	"github.com/grafov/m3u8"
)

// Renderer는 Store 윈도우 스냅샷으로부터 라이브 manifest 텍스트를 생성합니다
type Renderer struct {
	// targetDuration은 윈도우가 비어 있을 때 광고할 목표 길이 (초)
	// 세그먼트가 있으면 측정된 최대 길이의 ceiling이 항상 우선합니다
	targetDuration float64
}

// NewRenderer는 새로운 playlist Renderer를 생성합니다
func NewRenderer(targetDuration float64) *Renderer {
	return &Renderer{targetDuration: targetDuration}
}

// Render는 현재 윈도우에 대한 manifest를 렌더링합니다
//
// TARGETDURATION은 윈도우 내 측정된 최대 세그먼트 길이의 ceiling이므로
// 플레이어가 광고된 값보다 긴 세그먼트를 만나는 일이 없습니다.
// ended가 true면 EXT-X-ENDLIST가 붙은 종료 manifest를 생성합니다.
func (r *Renderer) Render(window []*Segment, sessionPath string, ended bool) (string, error) {
	size := uint(len(window))
	if size == 0 {
		size = 1
	}

	p, err := m3u8.NewMediaPlaylist(size, size)
	if err != nil {
		return "", fmt.Errorf("failed to create media playlist: %w", err)
	}

	// fMP4 기반 HLS는 버전 6 필요
	p.SetVersion(6)
	p.SetDefaultMap("init.mp4", 0, 0)

	for _, seg := range window {
		uri := fmt.Sprintf("/%s/segment_%d.m4s", sessionPath, seg.Sequence)
		if err := p.Append(uri, seg.Duration.Seconds(), ""); err != nil {
			return "", fmt.Errorf("failed to append segment %d: %w", seg.Sequence, err)
		}
		if seg.Discontinuity {
			if err := p.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("failed to flag discontinuity on segment %d: %w", seg.Sequence, err)
			}
		}
	}

	if len(window) > 0 {
		p.SeqNo = uint64(window[0].Sequence)
	} else if p.TargetDuration < r.targetDuration {
		p.TargetDuration = r.targetDuration
	}

	if ended {
		p.Close()
	}

	return p.Encode().String(), nil
}

// Playlist는 게시된 manifest 텍스트를 보관합니다
//
// muxing 고루틴이 swap하고 HTTP 핸들러들이 읽는 유일한 공유 텍스트로,
// critical section은 문자열 교체뿐입니다
type Playlist struct {
	mu    sync.RWMutex
	text  string
	ended bool
}

// NewPlaylist는 새로운 Playlist 홀더를 생성합니다
func NewPlaylist() *Playlist {
	return &Playlist{}
}

// Publish는 새 manifest 텍스트를 게시합니다
// 종료 manifest가 게시된 이후의 갱신은 무시됩니다 (frozen)
func (p *Playlist) Publish(text string, ended bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	p.text = text
	p.ended = ended
}

// Text는 현재 게시된 manifest 텍스트를 반환합니다
func (p *Playlist) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Ended는 종료 manifest가 게시되었는지 반환합니다
func (p *Playlist) Ended() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ended
}

// Reset은 세션 교체 시 게시 상태를 초기화합니다
func (p *Playlist) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = ""
	p.ended = false
}
