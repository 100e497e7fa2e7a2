package audio

import (
	"context"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/hanyin/internal/logger"
	"github.com/iabetor/hanyin/internal/tts"
)

// Player 解码云端返回的 MP3 音频并通过 malgo (miniaudio) 播放。
// 单声道输出；同一时刻只应有一次 Play 在进行，并发控制由编排层负责。
type Player struct {
	ctx    *malgo.AllocatedContext
	mu     sync.Mutex
	closed bool
}

// NewPlayer 创建音频播放实例。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &tts.PlaybackError{Stage: "device", Err: err}
	}
	return &Player{ctx: ctx}, nil
}

// Play 解码 MP3 字节并通过默认扬声器播放，gain 为 [0, 1.0] 的音量系数。
// 阻塞直到播放自然结束、出错或 ctx 被取消。
// 设备资源在每条退出路径上都恰好释放一次。
func (p *Player) Play(ctx context.Context, mp3Data []byte, gain float64) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return &tts.PlaybackError{Stage: "device", Err: context.Canceled}
	}
	p.mu.Unlock()

	samples, sampleRate, err := DecodeMP3(mp3Data)
	if err != nil {
		return &tts.PlaybackError{Stage: "decode", Err: err}
	}
	if len(samples) == 0 {
		return nil
	}
	if gain != 1.0 {
		ApplyGain(samples, gain)
	}

	pcmBytes := Float32ToBytes(samples)
	pos := 0
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate) // 使用音频实际采样率
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			bytesNeeded := int(frameCount) * 2 // 每个 int16 采样点 2 字节
			if pos >= len(pcmBytes) {
				// 数据播完，填充静音
				for i := range outputSamples[:bytesNeeded] {
					outputSamples[i] = 0
				}
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}

			end := pos + bytesNeeded
			if end > len(pcmBytes) {
				end = len(pcmBytes)
			}
			copy(outputSamples, pcmBytes[pos:end])
			// 如果数据不够，剩余部分填零
			if end-pos < bytesNeeded {
				for i := end - pos; i < bytesNeeded; i++ {
					outputSamples[i] = 0
				}
			}
			pos = end
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return &tts.PlaybackError{Stage: "device", Err: err}
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return &tts.PlaybackError{Stage: "device", Err: err}
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Debugf("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debugf("[audio] 播放完成")
		return nil
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
