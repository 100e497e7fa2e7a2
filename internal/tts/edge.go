package tts

import (
	"bytes"
	"context"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/hanyin/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现免凭据的云端神经语音合成，
// 通过 edge-tts-go 获取 MP3 音频字节。
// Edge 接口只支持选择语音，rate/pitch 参数会被忽略。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定默认语音的 Edge TTS 引擎。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

// Name 返回后端名称。
func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize 将文本合成为 MP3 音频字节。
func (e *EdgeEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.voice
	}
	if req.Rate != 1.0 || req.Pitch != 1.0 {
		logger.Debugf("[tts] edge: 不支持 rate/pitch 调整，忽略 (rate=%.2f, pitch=%.2f)", req.Rate, req.Pitch)
	}

	logger.Debugf("[tts] edge: 正在合成 %d 个字符，语音=%s", len([]rune(req.Text)), voice)

	// 创建 Communicate 实例并通过 Stream() 获取 MP3 音频块
	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice))
	if err != nil {
		return nil, &SynthesisError{Backend: "edge", Detail: "创建实例失败", Err: err}
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, &SynthesisError{Backend: "edge", Detail: "开始流式合成失败", Err: err}
	}

	// 从 channel 收集所有音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return nil, &SynthesisError{Backend: "edge", Detail: ErrNoAudio.Error(), Err: ErrNoAudio}
	}

	logger.Debugf("[tts] edge: 收到 %d 字节 MP3 数据", mp3Buf.Len())
	return mp3Buf.Bytes(), nil
}
