package hls

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/hlsorigin/internal/core"
)

// TestPipelineEndToEnd는 ingest부터 manifest 게시까지 전체 파이프라인을
// 실제 muxing 고루틴으로 검증합니다
//
// 10fps 비디오(4초마다 키프레임)와 48kHz AAC를 40초 분량 주입하면
// 정확히 4초짜리 세그먼트 10개가 나와야 합니다
func TestPipelineEndToEnd(t *testing.T) {
	cfg := core.HLSConfig{
		TargetSegmentDuration: 4.0,
		MaxSegmentDuration:    8.0,
		WindowSize:            20,
		MinWindowSize:         3,
		MaxBufferedBytes:      30 << 20,
		// 전체 unit이 큐에 담겨도 drop이 없도록 충분히 크게 잡습니다
		IngestQueueSize: 4096,
	}

	session := NewSession(cfg, testNotifier(), testLogger())
	session.SetListenerCheck(func() bool { return true })

	require.NoError(t, session.Prepare(testTrackConfig()))
	require.NoError(t, session.StartStreaming())

	const (
		frameInterval = 100 * time.Millisecond
		totalFrames   = 400 // 40초
		framesPerKey  = 40  // 4초마다 키프레임
	)
	audioInterval := time.Duration(1024) * time.Second / 48000

	var audioPTS time.Duration
	for i := 0; i < totalFrames; i++ {
		videoPTS := time.Duration(i) * frameInterval
		require.NoError(t, session.Ingest(videoUnit(videoPTS, i%framesPerKey == 0)))

		for audioPTS <= videoPTS {
			require.NoError(t, session.Ingest(audioUnit(audioPTS)))
			audioPTS += audioInterval
		}
	}

	// Stop은 큐를 모두 소화하고 부분 세그먼트를 flush한 뒤 반환합니다
	require.NoError(t, session.StopStreaming())

	// 키프레임 경계 9개 + 종료 flush 1개 = 세그먼트 10개
	store := session.Store()
	require.Equal(t, 10, store.Count())

	window := store.Window()
	for i, seg := range window {
		// 시퀀스는 0부터 gap 없이 증가합니다
		assert.Equal(t, uint32(i), seg.Sequence)
		// 100ms 간격 40프레임 → 정확히 4초
		assert.Equal(t, 4*time.Second, seg.Duration, "segment %d", i)
		assert.False(t, seg.Discontinuity, "segment %d", i)
		assert.Equal(t, []string{"styp", "moof", "mdat"}, topLevelBoxes(seg.Data))
	}

	text := session.PlaylistText()
	assert.Equal(t, 10, strings.Count(text, "#EXTINF"))
	assert.Equal(t, 1, strings.Count(text, "#EXT-X-ENDLIST"))
	assert.Contains(t, text, "#EXT-X-MEDIA-SEQUENCE:0")
	assert.Contains(t, text, "#EXT-X-TARGETDURATION:4")
	assert.Contains(t, text, `#EXT-X-MAP:URI="init.mp4"`)

	// init 세그먼트는 세션 내내 동일합니다
	init := session.InitSegment()
	require.NotNil(t, init)
	assert.Equal(t, []string{"ftyp", "moov"}, topLevelBoxes(init.Data))
}

// TestPipelineWindowSliding은 윈도우 초과 시 오래된 세그먼트가
// 밀려나고 MEDIA-SEQUENCE가 전진하는지 검증합니다
func TestPipelineWindowSliding(t *testing.T) {
	cfg := core.HLSConfig{
		TargetSegmentDuration: 4.0,
		MaxSegmentDuration:    8.0,
		WindowSize:            3,
		MinWindowSize:         3,
		MaxBufferedBytes:      30 << 20,
		IngestQueueSize:       4096,
	}

	session := NewSession(cfg, testNotifier(), testLogger())
	session.SetListenerCheck(func() bool { return true })
	require.NoError(t, session.Prepare(videoOnlyConfig()))
	require.NoError(t, session.StartStreaming())

	// 4초마다 키프레임만: 경계마다 세그먼트 하나
	for i := 0; i <= 6; i++ {
		require.NoError(t, session.Ingest(videoUnit(time.Duration(i)*4*time.Second, true)))
	}
	require.NoError(t, session.StopStreaming())

	// 세그먼트 7개 중 윈도우에는 마지막 3개만 남습니다
	store := session.Store()
	require.Equal(t, 3, store.Count())
	assert.Equal(t, uint64(4), store.EvictedCount())

	window := store.Window()
	assert.Equal(t, uint32(4), window[0].Sequence)
	assert.Equal(t, uint32(6), window[2].Sequence)

	text := session.PlaylistText()
	assert.Contains(t, text, "#EXT-X-MEDIA-SEQUENCE:4")
	assert.Equal(t, 3, strings.Count(text, "#EXTINF"))

	// 밀려난 세그먼트는 404 대상입니다
	_, ok := session.GetSegment(0)
	assert.False(t, ok)
	_, ok = session.GetSegment(4)
	assert.True(t, ok)
}

// TestPipelineSequenceRestartsAfterRegenerate는 경로 재생성 후
// 시퀀스가 0부터 다시 시작하는지 검증합니다
func TestPipelineSequenceRestartsAfterRegenerate(t *testing.T) {
	session := NewSession(core.HLSConfig{
		TargetSegmentDuration: 4.0,
		MaxSegmentDuration:    8.0,
		WindowSize:            20,
		MinWindowSize:         3,
		MaxBufferedBytes:      30 << 20,
		IngestQueueSize:       4096,
	}, testNotifier(), testLogger())
	session.SetListenerCheck(func() bool { return true })

	require.NoError(t, session.Prepare(videoOnlyConfig()))
	require.NoError(t, session.StartStreaming())
	for i := 0; i <= 3; i++ {
		require.NoError(t, session.Ingest(videoUnit(time.Duration(i)*4*time.Second, true)))
	}

	_, err := session.RegeneratePath()
	require.NoError(t, err)
	require.NoError(t, session.StartStreaming())

	// 새 세션의 타임라인은 0부터 다시 시작합니다
	for i := 0; i <= 2; i++ {
		require.NoError(t, session.Ingest(videoUnit(time.Duration(i)*4*time.Second, true)))
	}
	require.NoError(t, session.StopStreaming())

	window := session.Store().Window()
	require.NotEmpty(t, window)
	assert.Equal(t, uint32(0), window[0].Sequence)
	assert.Contains(t, session.PlaylistText(), "#EXT-X-MEDIA-SEQUENCE:0")
}
