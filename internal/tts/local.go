package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/iabetor/hanyin/internal/logger"
)

// PlatformEngine 使用平台内置的语音合成器实现本地合成，作为云端
// 后端不可用时的备用方案。macOS 用 say，Linux 用 espeak-ng/espeak，
// Windows 用 PowerShell 的 System.Speech。
// 本地合成器自行发声，不经过播放器；取消 ctx 会杀掉子进程。
type PlatformEngine struct {
	voice    string // 首选语音，按名称/语言标签子串匹配
	language string // 语言标签，如 zh-CN
}

// NewPlatformEngine 创建平台本地合成引擎。
// voice 为空时按 language 挑选语音，仍无匹配则用平台默认。
func NewPlatformEngine(voice, language string) *PlatformEngine {
	return &PlatformEngine{voice: voice, language: language}
}

// Name 返回后端名称。
func (p *PlatformEngine) Name() string { return "local" }

// synthKind 标识平台合成器的种类。
type synthKind int

const (
	synthSay synthKind = iota
	synthESpeak
	synthSAPI
)

// findSynthesizer 按当前平台查找可用的合成器。
// 找不到返回 ErrUnsupportedPlatform。
func findSynthesizer() (string, synthKind, error) {
	switch runtime.GOOS {
	case "darwin":
		if path, err := exec.LookPath("say"); err == nil {
			return path, synthSay, nil
		}
	case "windows":
		if path, err := exec.LookPath("powershell"); err == nil {
			return path, synthSAPI, nil
		}
	default:
		for _, candidate := range []string{"espeak-ng", "espeak"} {
			if path, err := exec.LookPath(candidate); err == nil {
				return path, synthESpeak, nil
			}
		}
	}
	return "", 0, ErrUnsupportedPlatform
}

// Speak 调用平台合成器朗读文本，阻塞到播放结束或 ctx 被取消。
func (p *PlatformEngine) Speak(ctx context.Context, req Request) error {
	bin, kind, err := findSynthesizer()
	if err != nil {
		return err
	}

	// 语音匹配是尽力而为：失败时静默退回平台默认语音
	preferred := req.Voice
	if preferred == "" {
		preferred = p.voice
	}
	var voice string
	if voices, err := p.Voices(ctx); err == nil {
		voice = MatchVoice(voices, preferred, p.language)
	}

	logger.Debugf("[tts] local: 正在合成 %d 个字符，语音=%q", len([]rune(req.Text)), voice)

	var cmd *exec.Cmd
	switch kind {
	case synthSay:
		// say 以词/分钟计速，默认约 175；不支持音高和音量参数
		args := []string{"-r", strconv.Itoa(int(175 * req.Rate))}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		if req.Pitch != 1.0 || req.Volume != 1.0 {
			logger.Debugf("[tts] local: say 不支持 pitch/volume 调整，忽略")
		}
		args = append(args, req.Text)
		cmd = exec.CommandContext(ctx, bin, args...)

	case synthESpeak:
		// espeak: -s 语速(wpm，默认 175)，-p 音高(0-99，默认 50)，
		// -a 音量(0-200，默认 100)
		args := []string{
			"-s", strconv.Itoa(int(175 * req.Rate)),
			"-p", strconv.Itoa(int(50 * req.Pitch)),
			"-a", strconv.Itoa(int(100 * req.Volume)),
		}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		args = append(args, req.Text)
		cmd = exec.CommandContext(ctx, bin, args...)

	case synthSAPI:
		// SAPI: Rate 区间 [-10, 10]，Volume 区间 [0, 100]
		script := fmt.Sprintf(`Add-Type -AssemblyName System.Speech;
$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer;
$synth.Rate = %d;
$synth.Volume = %d;
%s$synth.Speak('%s')`,
			sapiRate(req.Rate),
			int(req.Volume*100),
			sapiSelectVoice(voice),
			strings.ReplaceAll(req.Text, "'", "''"))
		cmd = exec.CommandContext(ctx, bin, "-Command", script)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// 被 Stop/新请求打断时进程被杀，按取消处理而不是合成失败
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return &SynthesisError{Backend: "local", Detail: detail, Err: err}
	}
	return nil
}

// Voices 枚举平台可用的语音。
func (p *PlatformEngine) Voices(ctx context.Context) ([]Voice, error) {
	bin, kind, err := findSynthesizer()
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	switch kind {
	case synthSay:
		cmd = exec.CommandContext(ctx, bin, "-v", "?")
	case synthESpeak:
		cmd = exec.CommandContext(ctx, bin, "--voices")
	case synthSAPI:
		cmd = exec.CommandContext(ctx, bin, "-Command",
			`Add-Type -AssemblyName System.Speech;
$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer;
foreach ($v in $synth.GetInstalledVoices()) { $i = $v.VoiceInfo; Write-Output "$($i.Name)`+"`t"+`$($i.Culture)" }`)
	}

	output, err := cmd.Output()
	if err != nil {
		return nil, &SynthesisError{Backend: "local", Detail: "枚举语音失败", Err: err}
	}

	switch kind {
	case synthSay:
		return parseSayVoices(string(output)), nil
	case synthESpeak:
		return parseESpeakVoices(string(output)), nil
	default:
		return parseTabVoices(string(output)), nil
	}
}

// parseSayVoices 解析 `say -v ?` 的输出。
// 每行格式：名称（可含空格）、语言标签、"# 示例文本"。
func parseSayVoices(output string) []Voice {
	var voices []Voice
	for _, line := range strings.Split(output, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		voices = append(voices, Voice{
			Name:     strings.Join(fields[:len(fields)-1], " "),
			Language: fields[len(fields)-1],
		})
	}
	return voices
}

// parseESpeakVoices 解析 `espeak --voices` 的输出。
// 列格式：Pty Language Age/Gender VoiceName File ...
func parseESpeakVoices(output string) []Voice {
	lines := strings.Split(output, "\n")
	var voices []Voice
	for i, line := range lines {
		// 跳过表头
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			voices = append(voices, Voice{Name: fields[3], Language: fields[1]})
		}
	}
	return voices
}

// parseTabVoices 解析 "名称\t语言" 格式的输出（Windows）。
func parseTabVoices(output string) []Voice {
	var voices []Voice
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "\t", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		voices = append(voices, Voice{Name: parts[0], Language: parts[1]})
	}
	return voices
}

// MatchVoice 在平台语音中做尽力匹配：want 与语音名称或语言标签做
// 大小写不敏感的子串匹配；want 为空时按 language 匹配语言标签。
// 都匹配不到返回空串，表示使用平台默认语音（这不是错误）。
func MatchVoice(voices []Voice, want, language string) string {
	if want != "" {
		needle := normalizeTag(want)
		for _, v := range voices {
			if strings.Contains(normalizeTag(v.Name), needle) ||
				strings.Contains(normalizeTag(v.Language), needle) {
				return v.Name
			}
		}
	}
	if language != "" {
		needle := normalizeTag(language)
		for _, v := range voices {
			if strings.Contains(normalizeTag(v.Language), needle) {
				return v.Name
			}
		}
	}
	return ""
}

// normalizeTag 统一大小写和分隔符，让 zh-CN 能匹配 zh_CN。
func normalizeTag(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

// sapiRate 将语速倍率映射到 SAPI 的 [-10, 10] 区间。
func sapiRate(rate float64) int {
	r := int((rate - 1.0) * 10)
	if r < -10 {
		r = -10
	} else if r > 10 {
		r = 10
	}
	return r
}

// sapiSelectVoice 生成可选的 SelectVoice 语句。
func sapiSelectVoice(voice string) string {
	if voice == "" {
		return ""
	}
	return fmt.Sprintf("$synth.SelectVoice('%s');\n", strings.ReplaceAll(voice, "'", "''"))
}
