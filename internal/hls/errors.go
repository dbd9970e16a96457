package hls

import (
	"errors"
	"fmt"
)

var (
	// ErrSegmentNotFound는 evict되었거나 아직 생성되지 않은 세그먼트 요청
	// 라이브 스트림에서는 정상적인 상황이므로 카운트만 하고 에러로 취급하지 않습니다
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrNotPrepared는 세션이 준비되기 전의 동작 요청
	ErrNotPrepared = errors.New("session not prepared")

	// ErrStopped는 스트리밍 종료 이후의 ingest 요청
	ErrStopped = errors.New("streaming stopped")

	// ErrNotStreaming은 Streaming 상태가 아닐 때의 ingest 요청
	ErrNotStreaming = errors.New("not streaming")

	// ErrAlreadyStreaming은 스트리밍 중의 재준비 요청
	ErrAlreadyStreaming = errors.New("already streaming")

	// ErrListenerNotBound는 HTTP 리스너가 바인딩되기 전의 스트리밍 시작 요청
	ErrListenerNotBound = errors.New("http listener not bound")
)

// ConfigurationError는 코덱 파라미터가 없거나 일관되지 않을 때 세션 시작을 실패시킵니다
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid track configuration: %s", e.Reason)
}

// StartupError는 리스너 바인딩 실패 등 세션 시작 단계의 치명적 오류
// 호스트 애플리케이션에 그대로 전달됩니다
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed: %v", e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
