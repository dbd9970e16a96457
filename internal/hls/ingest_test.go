package hls

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/hlsorigin/internal/core"
)

func newTestIngestor(t *testing.T, config TrackConfiguration, queueSize int) (*Ingestor, *Store, *Playlist) {
	t.Helper()

	notifier := testNotifier()
	muxer := NewMuxer(testLogger())
	_, err := muxer.BuildInitSegment(config)
	require.NoError(t, err)

	store := NewStore(20, 30<<20, notifier, testLogger())
	playlist := NewPlaylist()

	ingestor := NewIngestor(IngestorConfig{
		SessionPath:    "testtoken",
		TargetDuration: 4 * time.Second,
		MaxDuration:    8 * time.Second,
		QueueSize:      queueSize,
		HasVideo:       config.Video != nil,
	}, muxer, store, NewRenderer(4.0), playlist, notifier, testLogger())

	return ingestor, store, playlist
}

// TestIngestorKeyframeBoundary는 목표 길이를 지난 키프레임에서만
// 세그먼트가 분할되는지 검증합니다
func TestIngestorKeyframeBoundary(t *testing.T) {
	in, store, playlist := newTestIngestor(t, videoOnlyConfig(), 128)

	// 2초 시점 키프레임: 목표(4초) 미달이므로 경계가 아닙니다
	in.process(videoUnit(0, true))
	in.process(videoUnit(2*time.Second, true))
	assert.Equal(t, 0, store.Count())

	// 4초 시점 키프레임: 경계 → 앞선 unit들이 세그먼트로 완성됩니다
	in.process(videoUnit(4*time.Second, true))
	require.Equal(t, 1, store.Count())
	assert.Equal(t, uint64(1), in.SegmentsCreated())

	seg, ok := store.Get(0)
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, seg.Duration)
	assert.Contains(t, playlist.Text(), "/testtoken/segment_0.m4s")
}

// TestIngestorNonKeyframeNoBoundary는 목표를 지났어도 키프레임이
// 아니면 분할하지 않는지 검증합니다
func TestIngestorNonKeyframeNoBoundary(t *testing.T) {
	in, store, _ := newTestIngestor(t, videoOnlyConfig(), 128)

	in.process(videoUnit(0, true))
	in.process(videoUnit(5*time.Second, false))
	in.process(videoUnit(6*time.Second, false))

	assert.Equal(t, 0, store.Count())
}

// TestIngestorMaxDurationForcedSplit은 키프레임이 없어도 상한에서
// 강제 분할되는지 검증합니다
func TestIngestorMaxDurationForcedSplit(t *testing.T) {
	in, store, _ := newTestIngestor(t, videoOnlyConfig(), 128)

	in.process(videoUnit(0, true))
	for i := 1; i <= 7; i++ {
		in.process(videoUnit(time.Duration(i)*time.Second, false))
	}
	assert.Equal(t, 0, store.Count())

	// 8초 경과: 키프레임 없이도 강제 분할
	in.process(videoUnit(8*time.Second, false))
	require.Equal(t, 1, store.Count())
}

// TestIngestorAudioOnlyBoundary는 오디오 전용 스트림이 목표 길이로
// 분할되는지 검증합니다
func TestIngestorAudioOnlyBoundary(t *testing.T) {
	audioOnly := TrackConfiguration{
		Audio: &AudioConfig{SampleRate: 48000, Channels: 2},
	}
	in, store, _ := newTestIngestor(t, audioOnly, 128)

	frame := time.Duration(1024) * time.Second / 48000
	for ts := time.Duration(0); ts < 4*time.Second; ts += frame {
		in.process(audioUnit(ts))
	}
	assert.Equal(t, 0, store.Count())

	in.process(audioUnit(4 * time.Second))
	require.Equal(t, 1, store.Count())
}

// TestIngestorMonotonicTimestamps는 역행/중복 타임스탬프 unit의
// 폐기를 검증합니다
func TestIngestorMonotonicTimestamps(t *testing.T) {
	notifier := testNotifier()
	collector := &eventCollector{}
	notifier.Register(collector)

	muxer := NewMuxer(testLogger())
	_, err := muxer.BuildInitSegment(videoOnlyConfig())
	require.NoError(t, err)

	in := NewIngestor(IngestorConfig{
		SessionPath:    "testtoken",
		TargetDuration: 4 * time.Second,
		MaxDuration:    8 * time.Second,
		QueueSize:      128,
		HasVideo:       true,
	}, muxer, NewStore(20, 30<<20, notifier, testLogger()),
		NewRenderer(4.0), NewPlaylist(), notifier, testLogger())

	in.process(videoUnit(time.Second, true))
	in.process(videoUnit(500*time.Millisecond, false)) // 역행
	in.process(videoUnit(time.Second, false))          // 중복
	in.process(videoUnit(2*time.Second, false))        // 정상

	assert.Equal(t, uint64(2), in.TimestampErrors())
	assert.Len(t, in.pending, 2)
	assert.Equal(t, 2, collector.typesSeen()[core.EventIngestionError])
}

// TestIngestorPerTrackTimestamps는 트랙별로 독립적인 단조 검사를 검증합니다
func TestIngestorPerTrackTimestamps(t *testing.T) {
	in, _, _ := newTestIngestor(t, testTrackConfig(), 128)

	in.process(videoUnit(time.Second, true))
	// 오디오는 비디오보다 뒤처진 타임스탬프로 시작해도 정상입니다
	in.process(audioUnit(100 * time.Millisecond))
	in.process(audioUnit(200 * time.Millisecond))

	assert.Equal(t, uint64(0), in.TimestampErrors())
	assert.Len(t, in.pending, 3)
}

// TestIngestorBackpressureDropsNonKeyframes는 큐 적체 시 비키프레임
// 비디오부터 버리는지 검증합니다
func TestIngestorBackpressureDropsNonKeyframes(t *testing.T) {
	// 고루틴을 시작하지 않아 큐가 소비되지 않는 상태를 만듭니다
	in, _, _ := newTestIngestor(t, testTrackConfig(), 4)

	// 깊이 3 = 용량의 3/4: 비키프레임 비디오 폐기 임계값
	for i := 0; i < 3; i++ {
		require.NoError(t, in.Ingest(videoUnit(time.Duration(i)*time.Second, true)))
	}

	require.NoError(t, in.Ingest(videoUnit(3*time.Second, false)))
	require.NoError(t, in.Ingest(audioUnit(0)))

	droppedVideo, droppedAudio := in.DroppedUnits()
	assert.Equal(t, uint64(1), droppedVideo)
	assert.Equal(t, uint64(1), droppedAudio)

	// 키프레임은 임계값을 넘어도 큐 여유가 있으면 들어갑니다
	require.NoError(t, in.Ingest(videoUnit(4*time.Second, true)))

	// 큐가 가득 차면 키프레임도 버립니다 (호출자는 블로킹되지 않음)
	require.NoError(t, in.Ingest(videoUnit(5*time.Second, true)))
	droppedVideo, _ = in.DroppedUnits()
	assert.Equal(t, uint64(2), droppedVideo)
}

// TestIngestorStopFlushesPartialSegment는 Stop이 부분 세그먼트를
// flush하고 종료 manifest를 게시하는지 검증합니다
func TestIngestorStopFlushesPartialSegment(t *testing.T) {
	in, store, playlist := newTestIngestor(t, videoOnlyConfig(), 128)
	in.Start()

	require.NoError(t, in.Ingest(videoUnit(0, true)))
	require.NoError(t, in.Ingest(videoUnit(time.Second, false)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, in.Stop(ctx))

	// 목표 길이에 못 미친 부분 세그먼트도 게시됩니다
	assert.Equal(t, 1, store.Count())
	assert.Contains(t, playlist.Text(), "#EXT-X-ENDLIST")
	assert.True(t, playlist.Ended())

	// 정지 후 ingest는 거부됩니다
	assert.ErrorIs(t, in.Ingest(videoUnit(2*time.Second, false)), ErrStopped)

	// 중복 Stop은 멱등합니다
	require.NoError(t, in.Stop(ctx))
}

// TestIngestorStopDuringConcurrentIngest는 producer들이 ingest하는
// 도중의 Stop이 send-on-closed-channel panic 없이 이후 요청을
// ErrStopped로 거부하는지 검증합니다
func TestIngestorStopDuringConcurrentIngest(t *testing.T) {
	for iter := 0; iter < 25; iter++ {
		in, _, playlist := newTestIngestor(t, videoOnlyConfig(), 16)
		in.Start()

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				base := time.Duration(g) * time.Hour
				for i := 0; ; i++ {
					err := in.Ingest(videoUnit(base+time.Duration(i)*time.Millisecond, i == 0))
					if err != nil {
						assert.ErrorIs(t, err, ErrStopped)
						return
					}
				}
			}(g)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		assert.NoError(t, in.Stop(ctx))
		cancel()
		wg.Wait()

		assert.True(t, playlist.Ended())
	}
}

// TestIngestorStopEmptyPipeline은 unit 없이 정지해도 종료 manifest가
// 게시되는지 검증합니다
func TestIngestorStopEmptyPipeline(t *testing.T) {
	in, store, playlist := newTestIngestor(t, videoOnlyConfig(), 128)
	in.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, in.Stop(ctx))

	assert.Equal(t, 0, store.Count())
	assert.Contains(t, playlist.Text(), "#EXT-X-ENDLIST")
}

// TestIngestorSequenceNumbers는 세그먼트 시퀀스의 gap 없는
// 단조 증가를 검증합니다
func TestIngestorSequenceNumbers(t *testing.T) {
	in, store, _ := newTestIngestor(t, videoOnlyConfig(), 128)

	for i := 0; i <= 12; i++ {
		// 4초마다 키프레임
		ts := time.Duration(i) * time.Second
		in.process(videoUnit(ts, i%4 == 0))
	}

	require.Equal(t, 3, store.Count())
	window := store.Window()
	for i, seg := range window {
		assert.Equal(t, uint32(i), seg.Sequence)
	}
}
