package tts

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform 当前平台没有可用的本地语音合成器。
var ErrUnsupportedPlatform = errors.New("[tts] 当前平台没有可用的本地语音合成器")

// ErrNoAudio 后端返回成功但没有音频数据。
var ErrNoAudio = errors.New("[tts] 未收到音频数据")

// ValidationError 请求参数非法。在调用任何后端之前返回。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[tts] 请求参数 %s 非法: %s", e.Field, e.Reason)
}

// SynthesisError 后端（云端或本地）报告的合成失败，
// Detail 携带后端给出的错误详情。
type SynthesisError struct {
	Backend string // 后端名称: azure, edge, tencent, local
	Detail  string
	Err     error // 可选的底层错误
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[tts] %s 合成失败: %s: %v", e.Backend, e.Detail, e.Err)
	}
	return fmt.Sprintf("[tts] %s 合成失败: %s", e.Backend, e.Detail)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PlaybackError 音频解码或播放设备错误。
type PlaybackError struct {
	Stage string // decode, device
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("[audio] %s 阶段出错: %v", e.Stage, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
