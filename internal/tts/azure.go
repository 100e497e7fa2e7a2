package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iabetor/hanyin/internal/logger"
)

// azureOutputFormat 请求的音频输出格式：48kbps 单声道 MP3。
const azureOutputFormat = "audio-24khz-48kbitrate-mono-mp3"

// AzureConfig Azure 语音服务引擎配置。
type AzureConfig struct {
	Key      string
	Region   string
	Endpoint string // 覆盖默认区域端点，留空则按 Region 推导
	Language string // 如 zh-CN
	Voice    string // 默认语音，如 zh-CN-XiaoxiaoNeural
}

// AzureEngine 通过 Azure 语音服务 REST 接口实现云端神经语音合成。
// 文本经转义后嵌入 SSML，返回 MP3 字节。
type AzureEngine struct {
	key      string
	endpoint string
	language string
	voice    string
	client   *http.Client
}

// NewAzureEngine 创建 Azure 语音引擎。
func NewAzureEngine(cfg AzureConfig) *AzureEngine {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
	}
	return &AzureEngine{
		key:      cfg.Key,
		endpoint: endpoint,
		language: cfg.Language,
		voice:    cfg.Voice,
		client:   &http.Client{},
	}
}

// Name 返回后端名称。
func (e *AzureEngine) Name() string { return "azure" }

// Synthesize 将文本合成为 MP3 音频字节。
// 超时控制由调用方通过 ctx 传入，这里不做重试。
func (e *AzureEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.voice
	}

	ssml := buildSSML(e.language, voice, req)
	logger.Debugf("[tts] azure: 正在合成 %d 个字符，语音=%s", len([]rune(req.Text)), voice)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, &SynthesisError{Backend: "azure", Detail: "构造请求失败", Err: err}
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", e.key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	httpReq.Header.Set("User-Agent", "hanyin")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Backend: "azure", Detail: "请求发送失败", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 错误详情在响应体里，读取时做长度限制
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = resp.Status
		}
		return nil, &SynthesisError{
			Backend: "azure",
			Detail:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, detail),
		}
	}

	mp3Data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Backend: "azure", Detail: "读取音频数据失败", Err: err}
	}
	if len(mp3Data) == 0 {
		return nil, &SynthesisError{Backend: "azure", Detail: ErrNoAudio.Error(), Err: ErrNoAudio}
	}

	logger.Debugf("[tts] azure: 收到 %d 字节 MP3 数据", len(mp3Data))
	return mp3Data, nil
}

// buildSSML 构造带 prosody 参数的 SSML 文档。
// 文本和语音名称视为不可信输入，嵌入前必须做 XML 转义。
func buildSSML(language, voice string, req Request) string {
	var b strings.Builder
	b.WriteString(`<speak version='1.0' xml:lang='`)
	b.WriteString(xmlEscape(language))
	b.WriteString(`'><voice name='`)
	b.WriteString(xmlEscape(voice))
	b.WriteString(`'><prosody rate='`)
	b.WriteString(prosodyPercent(req.Rate))
	b.WriteString(`' pitch='`)
	b.WriteString(prosodyPercent(req.Pitch))
	b.WriteString(`' volume='`)
	b.WriteString(fmt.Sprintf("%d", int(req.Volume*100)))
	b.WriteString(`'>`)
	b.WriteString(xmlEscape(req.Text))
	b.WriteString(`</prosody></voice></speak>`)
	return b.String()
}

// prosodyPercent 将 [0.5, 2.0] 的倍率映射为 SSML 百分比偏移，
// 1.0 对应 "+0%"。
func prosodyPercent(ratio float64) string {
	return fmt.Sprintf("%+d%%", int((ratio-1.0)*100))
}

// xmlEscape 转义 XML 特殊字符，防止标记注入。
func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		// EscapeText 只在 writer 出错时失败，bytes.Buffer 不会
		return ""
	}
	return buf.String()
}
