package hls

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

// Ingestor는 캡처/인코더 컨텍스트에서 access unit을 받아
// 전용 muxing 고루틴으로 전달합니다
//
// Ingest는 큐에 넣기만 하므로 호출자를 블로킹하지 않습니다.
// 경계 판정과 시퀀스 번호 부여는 muxing 고루틴 하나에서만 일어나므로
// 레이스 없이 단조 증가가 보장됩니다.
type Ingestor struct {
	logger   *zap.Logger
	notifier *core.Notifier

	muxer    *Muxer
	store    *Store
	renderer *Renderer
	playlist *Playlist

	sessionPath    string
	targetDuration time.Duration
	maxDuration    time.Duration
	hasVideo       bool

	// mu는 Ingest의 stopped 판정+send와 Stop의 큐 close를 직렬화합니다
	// producer는 read lock을 쥔 채로만 큐에 send할 수 있습니다
	mu      sync.RWMutex
	queue   chan AccessUnit
	stopped atomic.Bool
	done    chan struct{}

	// 아래 필드는 muxing 고루틴 전용
	pending      []AccessUnit
	segmentStart time.Duration
	nextSequence uint32
	lastVideoDTS time.Duration
	lastAudioDTS time.Duration
	seenVideo    bool
	seenAudio    bool

	// 통계
	droppedVideo    atomic.Uint64
	droppedAudio    atomic.Uint64
	timestampErrors atomic.Uint64
	segmentsCreated atomic.Uint64
}

// IngestorConfig는 Ingestor 구성
type IngestorConfig struct {
	SessionPath    string
	TargetDuration time.Duration
	MaxDuration    time.Duration
	QueueSize      int
	HasVideo       bool
}

// NewIngestor는 새로운 Ingestor를 생성합니다
func NewIngestor(cfg IngestorConfig, muxer *Muxer, store *Store, renderer *Renderer,
	playlist *Playlist, notifier *core.Notifier, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		logger:         logger,
		notifier:       notifier,
		muxer:          muxer,
		store:          store,
		renderer:       renderer,
		playlist:       playlist,
		sessionPath:    cfg.SessionPath,
		targetDuration: cfg.TargetDuration,
		maxDuration:    cfg.MaxDuration,
		hasVideo:       cfg.HasVideo,
		queue:          make(chan AccessUnit, cfg.QueueSize),
		done:           make(chan struct{}),
	}
}

// Start는 muxing 고루틴을 시작합니다
func (in *Ingestor) Start() {
	go in.run()
}

// Ingest는 access unit을 muxing 큐에 넣습니다
//
// 지속적인 backpressure에서는 비키프레임 비디오를 먼저, 그 다음
// 오디오를 버려서 실시간 전달을 완전성보다 우선합니다.
// 의도된 lossy 정책입니다.
func (in *Ingestor) Ingest(unit AccessUnit) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.stopped.Load() {
		return ErrStopped
	}

	depth := len(in.queue)
	capacity := cap(in.queue)

	if depth >= capacity*3/4 && unit.Track == TrackVideo && !unit.Keyframe {
		in.droppedVideo.Add(1)
		return nil
	}
	if depth >= capacity*9/10 && unit.Track == TrackAudio {
		in.droppedAudio.Add(1)
		return nil
	}

	select {
	case in.queue <- unit:
		return nil
	default:
		// 큐가 가득 차면 호출자를 블로킹하는 대신 버립니다
		if unit.Track == TrackAudio {
			in.droppedAudio.Add(1)
		} else {
			in.droppedVideo.Add(1)
		}
		return nil
	}
}

// Stop은 ingest를 멈추고 부분 세그먼트를 flush한 뒤
// 종료 manifest가 게시될 때까지 기다립니다
func (in *Ingestor) Stop(ctx context.Context) error {
	// write lock은 진행 중인 send가 모두 빠져나간 뒤에만 잡히므로
	// 닫힌 큐에 send하는 경우가 없습니다
	in.mu.Lock()
	if in.stopped.CompareAndSwap(false, true) {
		close(in.queue)
	}
	in.mu.Unlock()

	select {
	case <-in.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run은 muxing 루프입니다 (단일 고루틴)
func (in *Ingestor) run() {
	for unit := range in.queue {
		in.process(unit)
	}

	// 큐가 닫히면 남은 부분 세그먼트를 마무리하고 종료 manifest를 게시합니다
	if len(in.pending) > 0 {
		in.finalize()
	}
	in.publish(true)
	close(in.done)
}

// process는 unit 하나를 검증하고 경계를 판정합니다
func (in *Ingestor) process(unit AccessUnit) {
	if !in.checkTimestamp(unit) {
		return
	}

	if len(in.pending) > 0 && in.boundaryReached(unit) {
		in.finalize()
	}

	if len(in.pending) == 0 {
		in.segmentStart = unit.DTS
	}
	in.pending = append(in.pending, unit)
}

// checkTimestamp는 트랙별 단조 증가를 검증합니다
// 어긋난 unit은 버리고 ingestion-error 이벤트만 남깁니다 (비치명)
func (in *Ingestor) checkTimestamp(unit AccessUnit) bool {
	var last time.Duration
	var seen bool

	switch unit.Track {
	case TrackVideo:
		last, seen = in.lastVideoDTS, in.seenVideo
	case TrackAudio:
		last, seen = in.lastAudioDTS, in.seenAudio
	default:
		return false
	}

	if seen && unit.DTS <= last {
		in.timestampErrors.Add(1)
		in.logger.Warn("Dropping unit with non-monotonic timestamp",
			zap.String("track", string(unit.Track)),
			zap.Duration("dts", unit.DTS),
			zap.Duration("last_dts", last),
		)
		in.notifier.Notify(core.EventIngestionError, map[string]interface{}{
			"track": string(unit.Track),
			"dts":   unit.DTS.Seconds(),
		})
		return false
	}

	switch unit.Track {
	case TrackVideo:
		in.lastVideoDTS, in.seenVideo = unit.DTS, true
	case TrackAudio:
		in.lastAudioDTS, in.seenAudio = unit.DTS, true
	}
	return true
}

// boundaryReached는 unit을 추가하기 전에 새 세그먼트를 시작해야 하는지 판정합니다
//
// 비디오 세그먼트는 목표 길이를 지난 키프레임에서만 시작합니다.
// 키프레임이 드물면 상한에서 강제 분할합니다 (무한 세그먼트 방지).
// 오디오는 경계를 만들지 않고 열린 세그먼트에 계속 붙습니다.
func (in *Ingestor) boundaryReached(unit AccessUnit) bool {
	elapsed := unit.DTS - in.segmentStart

	if elapsed >= in.maxDuration {
		return true
	}

	if in.hasVideo {
		return unit.Track == TrackVideo && unit.Keyframe && elapsed >= in.targetDuration
	}

	return elapsed >= in.targetDuration
}

// finalize는 누적된 unit들로 세그먼트를 완성하고 게시합니다
func (in *Ingestor) finalize() {
	units := in.pending
	in.pending = nil

	seg, err := in.muxer.FinalizeSegment(units, in.nextSequence)
	if err != nil {
		// 박스 생성 실패는 해당 세그먼트만 버리고 파이프라인은 계속합니다
		in.logger.Error("Failed to finalize segment",
			zap.Uint32("sequence", in.nextSequence),
			zap.Int("units", len(units)),
			zap.Error(err),
		)
		in.notifier.Notify(core.EventMuxError, map[string]interface{}{
			"sequence": in.nextSequence,
			"error":    err.Error(),
		})
		return
	}

	in.nextSequence++
	in.segmentsCreated.Add(1)
	in.store.Append(seg)
	in.publish(false)

	in.logger.Debug("Segment published",
		zap.Uint32("sequence", seg.Sequence),
		zap.Duration("duration", seg.Duration),
		zap.Int64("size", seg.Size()),
		zap.Bool("discontinuity", seg.Discontinuity),
	)
	in.notifier.Notify(core.EventSegmentCreated, map[string]interface{}{
		"sequence": seg.Sequence,
		"duration": seg.Duration.Seconds(),
		"size":     seg.Size(),
	})
}

// publish는 현재 윈도우 스냅샷으로 manifest를 렌더링해 교체합니다
func (in *Ingestor) publish(ended bool) {
	text, err := in.renderer.Render(in.store.Window(), in.sessionPath, ended)
	if err != nil {
		in.logger.Error("Failed to render playlist", zap.Error(err))
		return
	}
	in.playlist.Publish(text, ended)
}

// DroppedUnits는 backpressure로 버린 unit 수를 반환합니다 (video, audio)
func (in *Ingestor) DroppedUnits() (uint64, uint64) {
	return in.droppedVideo.Load(), in.droppedAudio.Load()
}

// TimestampErrors는 타임스탬프 오류로 버린 unit 수를 반환합니다
func (in *Ingestor) TimestampErrors() uint64 {
	return in.timestampErrors.Load()
}

// SegmentsCreated는 완성된 세그먼트 수를 반환합니다
func (in *Ingestor) SegmentsCreated() uint64 {
	return in.segmentsCreated.Load()
}
