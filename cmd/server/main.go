package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/yourusername/hlsorigin/internal/api"
	"github.com/yourusername/hlsorigin/internal/core"
	"github.com/yourusername/hlsorigin/internal/events"
	"github.com/yourusername/hlsorigin/internal/hls"
	"github.com/yourusername/hlsorigin/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/config.yaml"
	version           = "0.1.0"
)

func main() {
	// 커맨드라인 플래그 파싱
	configPath := flag.String("config", defaultConfigPath, "설정 파일 경로")
	showVersion := flag.Bool("version", false, "버전 정보 출력")
	synthetic := flag.Bool("synthetic", false, "내장 합성 소스로 스트리밍 시작 (인코더 없이 서빙 경로 테스트)")
	title := flag.String("title", "Live Stream", "스트림 제목")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Live HLS Origin Server v%s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// 설정 로드 (기본 경로에 파일이 없으면 기본값 사용)
	config, err := core.LoadConfig(*configPath)
	if err != nil {
		if *configPath == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			config = core.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	// 로거 초기화
	if err := logger.InitLogger(logger.LogConfig{
		Level:      config.Logging.Level,
		Output:     config.Logging.Output,
		FilePath:   config.Logging.FilePath,
		MaxSize:    config.Logging.MaxSize,
		MaxBackups: config.Logging.MaxBackups,
		MaxAge:     config.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting Live HLS Origin Server",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Float64("target_segment_duration", config.HLS.TargetSegmentDuration),
		zap.Int("window_size", config.HLS.WindowSize),
	)

	// 컴포넌트 조립
	notifier := core.NewNotifier()
	status := core.NewStatus(*title)
	session := hls.NewSession(config.HLS, notifier, logger.Log)

	eventServer := events.NewServer(logger.Log)
	notifier.Register(eventServer)

	server := api.NewServer(api.ServerConfig{
		Port:           config.Server.HTTPPort,
		Production:     config.Server.Production,
		ClientTimeout:  time.Duration(config.Server.ClientTimeout) * time.Second,
		MaxConnections: config.Server.MaxConnections,
		Logger:         logger.Log,
		Session:        session,
		Status:         status,
		Notifier:       notifier,
		EventsHandler:  eventServer.HandleWebSocket,
	})

	// 리스너 바인딩 실패는 치명적 오류로 호스트에 그대로 전달됩니다
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	session.SetListenerCheck(server.Bound)

	var stopSynthetic context.CancelFunc
	if *synthetic {
		ctx, cancel := context.WithCancel(context.Background())
		stopSynthetic = cancel

		if err := startSyntheticSource(ctx, session); err != nil {
			logger.Fatal("Failed to start synthetic source", zap.Error(err))
		}

		logger.Info("Synthetic stream started",
			zap.String("playlist_url",
				fmt.Sprintf("http://localhost:%d/%s/playlist.m3u8", config.Server.HTTPPort, session.Path())),
		)
	}

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info("Shutting down", zap.String("signal", sig.String()))

	if stopSynthetic != nil {
		stopSynthetic()
	}

	if session.State() == hls.StateStreaming {
		if err := session.StopStreaming(); err != nil {
			logger.Warn("Failed to stop streaming cleanly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
