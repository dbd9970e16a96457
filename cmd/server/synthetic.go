package main

import (
	"context"
	"time"

	"github.com/yourusername/hlsorigin/internal/hls"
	"github.com/yourusername/hlsorigin/pkg/logger"
	"go.uber.org/zap"
)

// 합성 소스용 H.264 파라미터 셋 (1280x720 baseline)
var (
	syntheticSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5,
		0x84, 0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00,
		0xf0, 0x3c, 0x60, 0xc9, 0x20,
	}
	syntheticPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

const (
	syntheticFrameRate   = 15
	syntheticKeyInterval = 4 * time.Second
	syntheticSampleRate  = 48000
	syntheticFrameBytes  = 4096
)

// startSyntheticSource는 인코더 없이 서빙 경로를 확인할 수 있도록
// 패턴 payload로 된 access unit을 실시간 속도로 공급합니다
func startSyntheticSource(ctx context.Context, session *hls.Session) error {
	config := hls.TrackConfiguration{
		Video: &hls.VideoConfig{
			Width:     1280,
			Height:    720,
			FrameRate: syntheticFrameRate,
			SPS:       syntheticSPS,
			PPS:       syntheticPPS,
		},
		Audio: &hls.AudioConfig{
			SampleRate: syntheticSampleRate,
			Channels:   2,
		},
	}

	if err := session.Prepare(config); err != nil {
		return err
	}
	if err := session.StartStreaming(); err != nil {
		return err
	}

	go feedUnits(ctx, session)
	return nil
}

// feedUnits는 비디오 프레임과 AAC 프레임을 실시간 간격으로 주입합니다
func feedUnits(ctx context.Context, session *hls.Session) {
	frameInterval := time.Second / syntheticFrameRate
	audioInterval := time.Duration(1024) * time.Second / syntheticSampleRate

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	videoPayload := make([]byte, syntheticFrameBytes)
	for i := range videoPayload {
		videoPayload[i] = byte(i)
	}
	audioPayload := make([]byte, 256)

	var videoPTS, audioPTS time.Duration
	var frames int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		keyframe := videoPTS%syntheticKeyInterval == 0
		err := session.Ingest(hls.AccessUnit{
			Track:    hls.TrackVideo,
			PTS:      videoPTS,
			DTS:      videoPTS,
			Data:     videoPayload,
			Keyframe: keyframe,
		})
		if err != nil {
			logger.Debug("Synthetic video unit rejected", zap.Error(err))
			return
		}
		videoPTS += frameInterval
		frames++

		// 비디오 프레임 사이에 들어가는 오디오 프레임들
		for audioPTS < videoPTS {
			err := session.Ingest(hls.AccessUnit{
				Track: hls.TrackAudio,
				PTS:   audioPTS,
				DTS:   audioPTS,
				Data:  audioPayload,
			})
			if err != nil {
				return
			}
			audioPTS += audioInterval
		}
	}
}
