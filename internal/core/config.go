package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HLS     HLSConfig     `yaml:"hls"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort       int  `yaml:"http_port"`
	Production     bool `yaml:"production"`
	ClientTimeout  int  `yaml:"client_timeout"`  // 클라이언트 비활성 타임아웃 (초)
	MaxConnections int  `yaml:"max_connections"` // 동시 연결 제한
}

type HLSConfig struct {
	TargetSegmentDuration float64 `yaml:"target_segment_duration"` // 세그먼트 목표 길이 (초)
	MaxSegmentDuration    float64 `yaml:"max_segment_duration"`    // 키프레임이 없어도 강제 분할하는 상한 (초)
	WindowSize            int     `yaml:"window_size"`             // 메모리에 유지할 세그먼트 수
	MinWindowSize         int     `yaml:"min_window_size"`         // 메모리 압박 시에도 유지하는 최소 세그먼트 수
	MaxBufferedBytes      int64   `yaml:"max_buffered_bytes"`      // 고수위 이벤트 기준 (bytes)
	IngestQueueSize       int     `yaml:"ingest_queue_size"`       // ingest 큐 깊이
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// DefaultConfig는 기본 설정을 반환합니다
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			Production:     false,
			ClientTimeout:  30,
			MaxConnections: 100,
		},
		HLS: HLSConfig{
			TargetSegmentDuration: 4.0,
			MaxSegmentDuration:    8.0,
			WindowSize:            20,
			MinWindowSize:         3,
			MaxBufferedBytes:      30 * 1024 * 1024, // 30 MB
			IngestQueueSize:       128,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "logs/hls-origin.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     7,
		},
	}
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.ClientTimeout <= 0 {
		return fmt.Errorf("client_timeout must be positive")
	}

	if c.HLS.TargetSegmentDuration <= 0 {
		return fmt.Errorf("target_segment_duration must be positive")
	}

	if c.HLS.MaxSegmentDuration < c.HLS.TargetSegmentDuration {
		return fmt.Errorf("max_segment_duration (%v) must be >= target_segment_duration (%v)",
			c.HLS.MaxSegmentDuration, c.HLS.TargetSegmentDuration)
	}

	if c.HLS.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive")
	}

	if c.HLS.MinWindowSize <= 0 || c.HLS.MinWindowSize > c.HLS.WindowSize {
		return fmt.Errorf("min_window_size must be in [1, window_size]")
	}

	if c.HLS.IngestQueueSize <= 0 {
		return fmt.Errorf("ingest_queue_size must be positive")
	}

	return nil
}
