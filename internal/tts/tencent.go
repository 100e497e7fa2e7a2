package tts

import (
	"context"
	"encoding/base64"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tencenttts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/hanyin/internal/logger"
)

// TencentEngine 使用腾讯云 TTS 实现云端语音合成。
// 适用于中国大陆网络环境，支持多种中文音色。
type TencentEngine struct {
	client    *tencenttts.Client
	voiceType int64
}

// TencentConfig 腾讯云 TTS 引擎配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, &SynthesisError{Backend: "tencent", Detail: "需要 SecretID 和 SecretKey"}
	}

	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001 // 默认音色：智瑜（女声）
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tencenttts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, &SynthesisError{Backend: "tencent", Detail: "创建客户端失败", Err: err}
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)

	return &TencentEngine{
		client:    client,
		voiceType: cfg.VoiceType,
	}, nil
}

// Name 返回后端名称。
func (e *TencentEngine) Name() string { return "tencent" }

// Synthesize 将文本合成为 MP3 音频字节。
// 腾讯云的语速区间为 [-2, 6]（0 为正常），音量区间为 [0, 10]，
// 从请求的倍率参数线性映射过去；腾讯云不支持音高调整。
func (e *TencentEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	logger.Debugf("[tts] tencent: 正在合成 %d 个字符，音色=%d", len([]rune(req.Text)), e.voiceType)

	request := tencenttts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(req.Text)
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr((req.Rate - 1.0) * 2)
	request.Volume = common.Float64Ptr(req.Volume * 10)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return nil, &SynthesisError{Backend: "tencent", Detail: "合成请求失败", Err: err}
	}

	if response.Response == nil || response.Response.Audio == nil {
		return nil, &SynthesisError{Backend: "tencent", Detail: ErrNoAudio.Error(), Err: ErrNoAudio}
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, &SynthesisError{Backend: "tencent", Detail: "Base64 解码失败", Err: err}
	}
	if len(mp3Data) == 0 {
		return nil, &SynthesisError{Backend: "tencent", Detail: ErrNoAudio.Error(), Err: ErrNoAudio}
	}

	logger.Debugf("[tts] tencent: 收到 %d 字节 MP3 数据", len(mp3Data))
	return mp3Data, nil
}
