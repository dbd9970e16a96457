package hls

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/Eyevinn/mp4ff/mp4"
	"go.uber.org/zap"
)

const (
	// videoTimescale은 H.264 표준 clock rate
	videoTimescale = 90000

	// aacSamplesPerFrame은 AAC 프레임당 PCM 샘플 수
	aacSamplesPerFrame = 1024

	defaultFrameRate = 30
)

// Muxer는 fMP4 init 세그먼트와 미디어 세그먼트를 생성합니다
//
// FinalizeSegment는 트랙별 base decode time을 내부에 누적하므로
// 세그먼트가 각각 독립적으로 재생 가능하면서도 경계를 넘어
// 타임스탬프가 끊기지 않습니다. 상태를 가지므로 muxing 전용
// 고루틴에서만 호출해야 합니다.
type Muxer struct {
	logger *zap.Logger
	config TrackConfiguration

	videoTrackID   uint32
	audioTrackID   uint32
	audioTimescale uint32

	// 트랙별 누적 decode time (이전 세그먼트 길이의 합)
	videoBaseTime uint64
	audioBaseTime uint64
}

// NewMuxer는 새로운 Muxer를 생성합니다
func NewMuxer(logger *zap.Logger) *Muxer {
	return &Muxer{logger: logger}
}

// BuildInitSegment는 트랙 구성으로부터 ftyp/moov 박스를 생성합니다
// 세션당 한 번 호출되며 코덱 파라미터가 없거나 일관되지 않으면
// ConfigurationError를 반환합니다
func (m *Muxer) BuildInitSegment(config TrackConfiguration) (*InitSegment, error) {
	if config.Video == nil && config.Audio == nil {
		return nil, &ConfigurationError{Reason: "no tracks configured"}
	}

	init := mp4.CreateEmptyInit()

	if config.Video != nil {
		if len(config.Video.SPS) == 0 || len(config.Video.PPS) == 0 {
			return nil, &ConfigurationError{Reason: "video track requires SPS and PPS"}
		}

		init.AddEmptyTrack(videoTimescale, "video", "und")
		trak := init.Moov.Traks[len(init.Moov.Traks)-1]
		if err := trak.SetAVCDescriptor("avc1",
			[][]byte{config.Video.SPS}, [][]byte{config.Video.PPS}, true); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("avc descriptor: %v", err)}
		}
		m.videoTrackID = trak.Tkhd.TrackID
	}

	if config.Audio != nil {
		if config.Audio.SampleRate <= 0 || config.Audio.Channels <= 0 {
			return nil, &ConfigurationError{Reason: "audio track requires sample rate and channel count"}
		}

		objType := config.Audio.ObjectType
		if objType == 0 {
			objType = byte(aac.AAClc)
		}

		init.AddEmptyTrack(uint32(config.Audio.SampleRate), "audio", "und")
		trak := init.Moov.Traks[len(init.Moov.Traks)-1]
		if err := trak.SetAACDescriptor(objType, config.Audio.SampleRate); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("aac descriptor: %v", err)}
		}
		m.audioTrackID = trak.Tkhd.TrackID
		m.audioTimescale = uint32(config.Audio.SampleRate)
	}

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode init segment: %w", err)
	}

	m.config = config

	m.logger.Info("Init segment built",
		zap.Int("size", buf.Len()),
		zap.Bool("video", config.Video != nil),
		zap.Bool("audio", config.Audio != nil),
	)

	return &InitSegment{Data: buf.Bytes(), CreatedAt: time.Now()}, nil
}

// ResetTimeline은 트랙별 누적 decode time을 초기화합니다
// 새 세션(경로 재생성) 시작 시 호출합니다
func (m *Muxer) ResetTimeline() {
	m.videoBaseTime = 0
	m.audioBaseTime = 0
}

// FinalizeSegment는 누적된 access unit들로 자급식 moof/mdat 세그먼트를 생성합니다
// 비디오 unit에 키프레임이 하나도 없으면 세그먼트는 그대로 완성하되
// discontinuity 플래그를 세웁니다
func (m *Muxer) FinalizeSegment(units []AccessUnit, sequence uint32) (*Segment, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("cannot finalize segment %d: no access units", sequence)
	}

	var video, audio []AccessUnit
	for _, u := range units {
		switch u.Track {
		case TrackVideo:
			video = append(video, u)
		case TrackAudio:
			audio = append(audio, u)
		}
	}

	var trackIDs []uint32
	if len(video) > 0 {
		trackIDs = append(trackIDs, m.videoTrackID)
	}
	if len(audio) > 0 {
		trackIDs = append(trackIDs, m.audioTrackID)
	}
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("cannot finalize segment %d: units match no configured track", sequence)
	}

	var frag *mp4.Fragment
	var err error
	if len(trackIDs) == 1 {
		frag, err = mp4.CreateFragment(sequence, trackIDs[0])
	} else {
		frag, err = mp4.CreateMultiTrackFragment(sequence, trackIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create fragment %d: %w", sequence, err)
	}

	var videoTicks, audioTicks uint64
	hasKeyframe := false

	if len(video) > 0 {
		defaultDur := uint32(videoTimescale / m.videoFrameRate())
		samples, total := buildSamples(video, videoTimescale, m.videoBaseTime, defaultDur)
		for _, s := range samples {
			if err := frag.AddFullSampleToTrack(s, m.videoTrackID); err != nil {
				return nil, fmt.Errorf("failed to add video sample to fragment %d: %w", sequence, err)
			}
		}
		videoTicks = total
		for _, u := range video {
			if u.Keyframe {
				hasKeyframe = true
				break
			}
		}
	}

	if len(audio) > 0 {
		samples, total := buildSamples(audio, m.audioTimescale, m.audioBaseTime, aacSamplesPerFrame)
		for _, s := range samples {
			if err := frag.AddFullSampleToTrack(s, m.audioTrackID); err != nil {
				return nil, fmt.Errorf("failed to add audio sample to fragment %d: %w", sequence, err)
			}
		}
		audioTicks = total
	}

	seg := mp4.NewMediaSegment()
	seg.AddFragment(frag)

	var buf bytes.Buffer
	if err := seg.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode media segment %d: %w", sequence, err)
	}

	// 측정된 길이: 비디오가 있으면 비디오 트랙 기준
	var duration time.Duration
	if videoTicks > 0 {
		duration = ticksToDuration(videoTicks, videoTimescale)
	} else {
		duration = ticksToDuration(audioTicks, m.audioTimescale)
	}

	// base decode time은 세그먼트가 완성된 뒤에만 전진시킵니다
	// 인코딩 실패 시 다음 경계에서 같은 base로 재시도됩니다
	m.videoBaseTime += videoTicks
	m.audioBaseTime += audioTicks

	discontinuity := len(video) > 0 && !hasKeyframe
	if discontinuity {
		m.logger.Warn("Segment finalized without keyframe, flagging discontinuity",
			zap.Uint32("sequence", sequence),
			zap.Int("video_units", len(video)),
		)
	}

	return &Segment{
		Sequence:      sequence,
		Duration:      duration,
		Data:          buf.Bytes(),
		Discontinuity: discontinuity,
		CreatedAt:     time.Now(),
	}, nil
}

// videoFrameRate는 기본 샘플 길이 계산용 프레임레이트를 반환합니다
func (m *Muxer) videoFrameRate() int {
	if m.config.Video != nil && m.config.Video.FrameRate > 0 {
		return m.config.Video.FrameRate
	}
	return defaultFrameRate
}

// buildSamples는 한 트랙의 access unit들을 mp4ff FullSample로 변환합니다
//
// 샘플 길이는 연속된 decode timestamp의 차이로 계산하고, 마지막 샘플은
// 다음 timestamp가 아직 없으므로 앞선 샘플들의 평균을 사용합니다.
// decode time은 base부터 길이를 누적해 gap 없이 이어집니다.
func buildSamples(units []AccessUnit, timescale uint32, base uint64, defaultDur uint32) ([]mp4.FullSample, uint64) {
	n := len(units)
	durations := make([]uint32, n)

	var sum uint64
	for i := 0; i < n-1; i++ {
		delta := durationToTicks(units[i+1].DTS-units[i].DTS, timescale)
		durations[i] = uint32(delta)
		sum += delta
	}

	if n > 1 {
		durations[n-1] = uint32(sum / uint64(n-1))
	} else {
		durations[n-1] = defaultDur
	}

	samples := make([]mp4.FullSample, 0, n)
	decodeTime := base
	var total uint64

	for i, u := range units {
		flags := mp4.NonSyncSampleFlags
		if u.Track == TrackAudio || u.Keyframe {
			flags = mp4.SyncSampleFlags
		}

		cto := int64(durationToTicks(u.PTS, timescale)) - int64(durationToTicks(u.DTS, timescale))

		samples = append(samples, mp4.FullSample{
			Sample: mp4.Sample{
				Flags:                 flags,
				Dur:                   durations[i],
				Size:                  uint32(len(u.Data)),
				CompositionTimeOffset: int32(cto),
			},
			DecodeTime: decodeTime,
			Data:       u.Data,
		})

		decodeTime += uint64(durations[i])
		total += uint64(durations[i])
	}

	return samples, total
}

// durationToTicks는 time.Duration을 주어진 timescale의 tick으로 변환합니다
func durationToTicks(d time.Duration, timescale uint32) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * uint64(timescale) / uint64(time.Second)
}

// ticksToDuration은 tick을 time.Duration으로 변환합니다
func ticksToDuration(ticks uint64, timescale uint32) time.Duration {
	return time.Duration(ticks * uint64(time.Second) / uint64(timescale))
}
