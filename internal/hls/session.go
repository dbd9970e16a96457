package hls

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/hlsorigin/internal/core"
	"go.uber.org/zap"
)

// State는 세션 상태
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateStreaming
	StateStopped
)

// String은 상태 이름을 반환합니다
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TokenStatus는 경로 토큰 검증 결과
type TokenStatus int

const (
	// TokenCurrent는 현재 세션의 유효한 토큰
	TokenCurrent TokenStatus = iota
	// TokenRevoked는 경로 재생성으로 명시적으로 무효화된 토큰 (410 Gone)
	TokenRevoked
	// TokenUnknown은 발급된 적 없는 토큰 (404)
	TokenUnknown
)

const stopFlushTimeout = 5 * time.Second

// maxRevokedTokens는 410으로 답하는 무효화된 토큰의 보관 상한
// 넘치면 가장 오래된 토큰부터 404 대상으로 강등됩니다
const maxRevokedTokens = 32

// Session은 스트리밍 세션의 상태 머신과 경로 토큰을 관리합니다
//
// Idle → Preparing → Streaming → Stopped
// RegeneratePath는 어느 상태에서든 Preparing으로 되돌리며 이전 토큰을
// 즉시 무효화하고 버퍼링된 상태를 모두 비웁니다
type Session struct {
	logger   *zap.Logger
	notifier *core.Notifier
	cfg      core.HLSConfig

	// listenerReady는 HTTP 리스너 바인딩 여부를 보고합니다
	listenerReady func() bool

	mu            sync.RWMutex
	state         State
	token         string
	tokenIssuedAt time.Time
	revoked       map[string]time.Time

	trackConfig TrackConfiguration
	configured  bool

	muxer    *Muxer
	store    *Store
	renderer *Renderer
	playlist *Playlist
	ingestor *Ingestor
}

// NewSession은 새로운 Session을 생성합니다
func NewSession(cfg core.HLSConfig, notifier *core.Notifier, logger *zap.Logger) *Session {
	return &Session{
		logger:   logger,
		notifier: notifier,
		cfg:      cfg,
		state:    StateIdle,
		revoked:  make(map[string]time.Time),
		store:    NewStore(cfg.WindowSize, cfg.MaxBufferedBytes, notifier, logger),
		renderer: NewRenderer(cfg.TargetSegmentDuration),
		playlist: NewPlaylist(),
	}
}

// SetListenerCheck는 리스너 바인딩 확인 함수를 주입합니다
func (s *Session) SetListenerCheck(check func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenerReady = check
}

// Prepare는 트랙 구성으로 새 세션을 준비합니다
// init 세그먼트를 생성하고 새 경로 토큰을 발급합니다
func (s *Session) Prepare(config TrackConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStreaming {
		return ErrAlreadyStreaming
	}

	s.trackConfig = config
	s.configured = true

	if err := s.resetSessionLocked(); err != nil {
		return err
	}

	s.state = StatePreparing
	s.logger.Info("Session prepared",
		zap.String("path", s.token),
	)
	return nil
}

// resetSessionLocked는 토큰 발급, init 재생성, 버퍼 초기화를 수행합니다
// 호출자가 s.mu를 쥔 상태여야 합니다
func (s *Session) resetSessionLocked() error {
	if s.token != "" {
		s.revoked[s.token] = time.Now()
		for len(s.revoked) > maxRevokedTokens {
			var oldest string
			var oldestAt time.Time
			for token, revokedAt := range s.revoked {
				if oldest == "" || revokedAt.Before(oldestAt) {
					oldest, oldestAt = token, revokedAt
				}
			}
			delete(s.revoked, oldest)
		}
	}

	s.token = newPathToken()
	s.tokenIssuedAt = time.Now()

	s.store.Clear()
	s.playlist.Reset()
	s.ingestor = nil

	if !s.configured {
		return nil
	}

	s.muxer = NewMuxer(s.logger)
	init, err := s.muxer.BuildInitSegment(s.trackConfig)
	if err != nil {
		return err
	}
	s.muxer.ResetTimeline()
	s.store.SetInit(init)

	// 첫 세그먼트가 나오기 전에도 플레이어가 폴링할 수 있도록
	// 빈 라이브 manifest를 게시합니다
	if text, rerr := s.renderer.Render(nil, s.token, false); rerr == nil {
		s.playlist.Publish(text, false)
	}

	s.ingestor = NewIngestor(IngestorConfig{
		SessionPath:    s.token,
		TargetDuration: secondsToDuration(s.cfg.TargetSegmentDuration),
		MaxDuration:    secondsToDuration(s.cfg.MaxSegmentDuration),
		QueueSize:      s.cfg.IngestQueueSize,
		HasVideo:       s.trackConfig.Video != nil,
	}, s.muxer, s.store, s.renderer, s.playlist, s.notifier, s.logger)

	return nil
}

// StartStreaming은 Preparing → Streaming 전이를 수행합니다
// 유효한 트랙 구성과 바인딩된 리스너가 없으면 StartupError로 실패합니다
func (s *Session) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreparing {
		return &StartupError{Err: ErrNotPrepared}
	}
	if !s.configured || s.ingestor == nil {
		return &StartupError{Err: &ConfigurationError{Reason: "no track configuration"}}
	}
	if s.listenerReady == nil || !s.listenerReady() {
		return &StartupError{Err: ErrListenerNotBound}
	}

	s.ingestor.Start()
	s.state = StateStreaming

	s.logger.Info("Streaming started",
		zap.String("path", s.token),
	)
	s.notifier.Notify(core.EventStreamStarted, map[string]interface{}{
		"path": s.token,
	})
	return nil
}

// Ingest는 access unit을 현재 세션의 파이프라인에 넣습니다
func (s *Session) Ingest(unit AccessUnit) error {
	s.mu.RLock()
	state := s.state
	ingestor := s.ingestor
	s.mu.RUnlock()

	if state != StateStreaming || ingestor == nil {
		return ErrNotStreaming
	}
	return ingestor.Ingest(unit)
}

// StopStreaming은 부분 세그먼트를 flush하고 종료 manifest를 게시합니다
// 이후 ingest는 거부되고 HTTP 서버는 frozen manifest만 서빙합니다
func (s *Session) StopStreaming() error {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.state = StateStopped
	ingestor := s.ingestor
	token := s.token
	s.mu.Unlock()

	// flush 동안 락을 쥐고 있으면 토큰 해석이 같이 멈추므로 락 밖에서 기다립니다
	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	if err := ingestor.Stop(ctx); err != nil {
		s.logger.Warn("Ingest flush timed out", zap.Error(err))
	}

	s.logger.Info("Streaming stopped",
		zap.String("path", token),
		zap.Uint64("segments_created", ingestor.SegmentsCreated()),
	)
	s.notifier.Notify(core.EventStreamStopped, map[string]interface{}{
		"path": token,
	})
	return nil
}

// RegeneratePath는 새 토큰을 발급하고 이전 토큰을 즉시 무효화합니다
// 버퍼링된 세그먼트와 playlist 상태를 모두 비워 세션 간 누출을 막습니다
func (s *Session) RegeneratePath() (string, error) {
	s.mu.Lock()
	var ingestor *Ingestor
	if s.state == StateStreaming {
		ingestor = s.ingestor
	}
	s.mu.Unlock()

	// 이전 세션의 flush도 락 밖에서 기다립니다
	if ingestor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
		defer cancel()
		if err := ingestor.Stop(ctx); err != nil {
			s.logger.Warn("Ingest flush timed out during path regeneration", zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldToken := s.token
	if err := s.resetSessionLocked(); err != nil {
		return "", err
	}
	s.state = StatePreparing

	s.logger.Info("Session path regenerated",
		zap.String("old_path", oldToken),
		zap.String("new_path", s.token),
	)
	s.notifier.Notify(core.EventPathRegenerated, map[string]interface{}{
		"path": s.token,
	})
	return s.token, nil
}

// ResolveToken은 요청 경로의 토큰을 검증합니다
func (s *Session) ResolveToken(token string) TokenStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token != "" && token == s.token {
		return TokenCurrent
	}
	if _, ok := s.revoked[token]; ok {
		return TokenRevoked
	}
	return TokenUnknown
}

// Path는 현재 경로 토큰을 반환합니다
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State는 현재 세션 상태를 반환합니다
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InitSegment는 현재 init 세그먼트를 반환합니다 (준비 전이면 nil)
func (s *Session) InitSegment() *InitSegment {
	return s.store.Init()
}

// PlaylistText는 게시된 manifest 텍스트를 반환합니다
func (s *Session) PlaylistText() string {
	return s.playlist.Text()
}

// GetSegment는 시퀀스 번호로 세그먼트를 조회합니다
func (s *Session) GetSegment(sequence uint32) (*Segment, bool) {
	return s.store.Get(sequence)
}

// Store는 세그먼트 store를 반환합니다 (상태 조회용)
func (s *Session) Store() *Store {
	return s.store
}

// newPathToken은 추측 불가능한 경로 토큰을 생성합니다
func newPathToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
