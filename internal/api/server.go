package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/hlsorigin/internal/core"
	"github.com/yourusername/hlsorigin/internal/hls"
	"go.uber.org/zap"
)

const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeInit     = "video/mp4"
	contentTypeSegment  = "video/iso.segment"
)

// Server는 playlist/세그먼트와 보조 엔드포인트를 서빙하는 HTTP 서버입니다
//
// 미디어 경로는 현재 세션 토큰 아래에만 존재합니다:
//
//	GET /{token}/playlist.m3u8
//	GET /{token}/init.mp4
//	GET /{token}/segment_{N}.m4s
//
// 읽기는 모두 불변 스냅샷 위에서 이루어지므로 서로 다른 클라이언트의
// 요청 처리와 muxing 파이프라인이 서로를 블로킹하지 않습니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	listener   net.Listener
	port       int
	bound      atomic.Bool

	session *hls.Session
	status  *core.Status
	clients *ClientTracker

	pruneCancel context.CancelFunc
}

// ServerConfig는 HTTP 서버 설정
type ServerConfig struct {
	Port           int
	Production     bool
	ClientTimeout  time.Duration
	MaxConnections int
	Logger         *zap.Logger
	Session        *hls.Session
	Status         *core.Status
	Notifier       *core.Notifier

	// EventsHandler는 /ws 이벤트 피드 핸들러 (옵션)
	EventsHandler http.HandlerFunc
}

// NewServer는 새로운 HTTP 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:  config.Logger,
		router:  router,
		port:    config.Port,
		session: config.Session,
		status:  config.Status,
		clients: NewClientTracker(config.ClientTimeout, config.MaxConnections,
			config.Notifier, config.Logger),
	}

	router.Use(server.clientMiddleware())
	server.setupRoutes(config.EventsHandler)

	return server
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes(eventsHandler http.HandlerFunc) {
	// 세션 독립 보조 엔드포인트
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/location", s.handleLocation)

	if eventsHandler != nil {
		s.router.GET("/ws", gin.WrapF(eventsHandler))
	}

	// 토큰 스코프 미디어 경로는 NoRoute에서 직접 해석합니다
	// 토큰이 요청마다 달라질 수 있으므로 고정 라우트로 등록하지 않습니다
	s.router.NoRoute(s.handleSessionPath)
}

// Start는 리스너를 바인딩하고 서빙을 시작합니다
// 바인딩 실패는 StartupError로 호스트에 전달됩니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return &hls.StartupError{Err: fmt.Errorf("failed to bind %s: %w", addr, err)}
	}

	s.listener = listener
	s.bound.Store(true)

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pruneCtx, cancel := context.WithCancel(context.Background())
	s.pruneCancel = cancel
	go s.clients.PruneLoop(pruneCtx)

	s.logger.Info("Starting HTTP server",
		zap.String("addr", addr),
	)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Bound는 리스너가 바인딩되었는지 반환합니다
// Session의 Preparing → Streaming 전이 조건으로 주입됩니다
func (s *Server) Bound() bool {
	return s.bound.Load()
}

// Stop은 HTTP 서버를 종료합니다
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	if s.pruneCancel != nil {
		s.pruneCancel()
	}
	s.bound.Store(false)

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Clients는 클라이언트 트래커를 반환합니다
func (s *Server) Clients() *ClientTracker {
	return s.clients
}

// Router는 gin 엔진을 반환합니다 (테스트용)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// handleSessionPath는 /{token}/{file} 요청을 해석합니다
func (s *Server) handleSessionPath(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(c.Request.URL.Path, "/"), "/")
	if len(parts) != 2 {
		c.Status(http.StatusNotFound)
		return
	}
	token, file := parts[0], parts[1]

	switch s.session.ResolveToken(token) {
	case hls.TokenRevoked:
		// 재생성으로 무효화된 토큰: 클라이언트는 재시도 대신
		// URL을 다시 받아야 합니다
		c.String(http.StatusGone, "stream path expired")
		return
	case hls.TokenUnknown:
		c.Status(http.StatusNotFound)
		return
	}

	switch {
	case file == "playlist.m3u8":
		s.servePlaylist(c)
	case file == "init.mp4":
		s.serveInit(c)
	case strings.HasPrefix(file, "segment_") && strings.HasSuffix(file, ".m4s"):
		s.serveSegment(c, file)
	default:
		c.Status(http.StatusNotFound)
	}
}

// servePlaylist는 현재 manifest 텍스트를 서빙합니다
func (s *Server) servePlaylist(c *gin.Context) {
	text := s.session.PlaylistText()
	if text == "" {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, contentTypePlaylist, []byte(text))
}

// serveInit은 init 세그먼트 바이트를 서빙합니다
func (s *Server) serveInit(c *gin.Context) {
	init := s.session.InitSegment()
	if init == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "max-age=3600")
	c.Data(http.StatusOK, contentTypeInit, init.Data)
}

// serveSegment는 미디어 세그먼트 바이트를 서빙합니다
// evict되었거나 아직 없는 세그먼트의 404는 정상 동작입니다
func (s *Server) serveSegment(c *gin.Context, file string) {
	numStr := strings.TrimSuffix(strings.TrimPrefix(file, "segment_"), ".m4s")
	sequence, err := strconv.ParseUint(numStr, 10, 32)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	seg, ok := s.session.GetSegment(uint32(sequence))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "max-age=30")
	c.Data(http.StatusOK, contentTypeSegment, seg.Data)
}

// handleStatus는 세션 독립 상태 JSON을 반환합니다
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"title": s.status.Title(),
	}
	if loc := s.status.Location(); loc != nil {
		resp["location"] = loc
	}
	c.JSON(http.StatusOK, resp)
}

// handleLocation은 마지막으로 게시된 위치를 반환합니다
func (s *Server) handleLocation(c *gin.Context) {
	loc := s.status.Location()
	if loc == nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, loc)
}

// clientMiddleware는 요청마다 클라이언트 활성 상태를 갱신합니다
func (s *Server) clientMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.clients.Touch(c.ClientIP()) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Cache-Control, Range")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
