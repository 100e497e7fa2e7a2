package tts

import "context"

// CloudEngine 定义云端语音合成后端接口。
// 返回压缩音频字节（MP3），解码和播放由上层负责。
// 实现不做重试，失败的重试/降级策略在编排层。
type CloudEngine interface {
	// Name 返回后端名称，用于日志和错误信息。
	Name() string
	// Synthesize 将文本按请求参数合成为 MP3 音频字节。
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// LocalEngine 定义平台本地语音合成后端接口。
// 本地后端自行发声，不产生字节缓冲；Speak 阻塞到播放结束、
// 出错或 ctx 被取消。
type LocalEngine interface {
	Name() string
	Speak(ctx context.Context, req Request) error
	// Voices 枚举平台可用的语音。平台无合成能力时返回
	// ErrUnsupportedPlatform。
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice 平台语音描述，只读。
type Voice struct {
	Name     string // 语音名称，如 Tingting
	Language string // 语言标签，如 zh_CN
}

// Request 一次语音合成请求的参数。每次调用单独构造，不持久化。
type Request struct {
	Text   string  // 要朗读的文本，不能为空
	Rate   float64 // 语速倍率 [0.5, 2.0]，1.0 为正常
	Pitch  float64 // 音高倍率 [0.5, 2.0]，1.0 为正常
	Volume float64 // 音量 [0, 1.0]
	Voice  string  // 可选，覆盖默认语音
}

// NewRequest 构造使用默认参数的请求。
func NewRequest(text string) Request {
	return Request{
		Text:   text,
		Rate:   1.0,
		Pitch:  1.0,
		Volume: 1.0,
	}
}

// Validate 检查请求参数。越界的参数直接拒绝，不做静默钳位。
func (r Request) Validate() error {
	if r.Text == "" {
		return &ValidationError{Field: "text", Reason: "文本不能为空"}
	}
	if r.Rate < 0.5 || r.Rate > 2.0 {
		return &ValidationError{Field: "rate", Reason: "语速必须在 [0.5, 2.0] 范围内"}
	}
	if r.Pitch < 0.5 || r.Pitch > 2.0 {
		return &ValidationError{Field: "pitch", Reason: "音高必须在 [0.5, 2.0] 范围内"}
	}
	if r.Volume < 0 || r.Volume > 1.0 {
		return &ValidationError{Field: "volume", Reason: "音量必须在 [0, 1.0] 范围内"}
	}
	return nil
}
