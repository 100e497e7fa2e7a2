package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/hanyin/internal/audio"
	"github.com/iabetor/hanyin/internal/config"
	"github.com/iabetor/hanyin/internal/database"
	"github.com/iabetor/hanyin/internal/logger"
	"github.com/iabetor/hanyin/internal/pinyin"
	"github.com/iabetor/hanyin/internal/tts"
)

// Options 单次朗读的可选参数，零值字段使用默认值。
type Options struct {
	Rate   float64 // 语速倍率，0 表示默认 1.0
	Pitch  float64 // 音高倍率，0 表示默认 1.0
	Volume float64 // 音量，0 表示默认 1.0
	Voice  string  // 覆盖默认语音
}

// player 播放器接口，便于测试注入。
type player interface {
	Play(ctx context.Context, mp3Data []byte, gain float64) error
}

// Service 双后端语音合成编排器。优先云端神经语音，云端不可用或
// 失败时透明降级到平台本地合成器。负责单会话并发约束：任一时刻
// 最多一个语音在播放，新的 Speak 会先停掉当前会话。
// 由调用方显式构造并持有，不做包级单例。
type Service struct {
	cloud   tts.CloudEngine // nil 表示云端未配置
	local   tts.LocalEngine
	player  player
	history *History      // nil 表示不记录历史
	timeout time.Duration // 云端合成超时，0 表示不限时

	startMu sync.Mutex // 串行化会话切换
	mu      sync.Mutex // 保护 current 和 speaking
	current *session
	// speaking 只由编排器自身翻转，后端通过返回值汇报结果，
	// 不直接改共享状态
	speaking bool

	closers []func()
}

// session 一次朗读请求的音频生命周期。进程内最多一个处于活跃状态。
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New 根据配置构建编排器。
func New(cfg *config.Config) (*Service, error) {
	s := &Service{
		timeout: time.Duration(cfg.TTS.TimeoutMS) * time.Millisecond,
		local:   tts.NewPlatformEngine(cfg.TTS.Local.Voice, cfg.TTS.Language),
	}

	// 云端后端选择。残缺/占位凭据在配置加载时已归一化为 nil，
	// 这里不存在魔法字符串比较。
	switch cfg.TTS.Engine {
	case "azure":
		if cfg.TTS.Azure != nil {
			s.cloud = tts.NewAzureEngine(tts.AzureConfig{
				Key:      cfg.TTS.Azure.Key,
				Region:   cfg.TTS.Azure.Region,
				Endpoint: cfg.TTS.Azure.Endpoint,
				Language: cfg.TTS.Language,
				Voice:    cfg.TTS.Voice,
			})
		} else {
			logger.Infof("[speech] 云端后端未配置，只使用本地合成")
		}
	case "edge":
		s.cloud = tts.NewEdgeEngine(cfg.TTS.Edge.Voice)
	case "tencent":
		if cfg.TTS.Tencent != nil {
			eng, err := tts.NewTencentEngine(tts.TencentConfig{
				SecretID:  cfg.TTS.Tencent.SecretID,
				SecretKey: cfg.TTS.Tencent.SecretKey,
				VoiceType: cfg.TTS.Tencent.VoiceType,
				Region:    cfg.TTS.Tencent.Region,
			})
			if err != nil {
				return nil, err
			}
			s.cloud = eng
		} else {
			logger.Infof("[speech] 腾讯云凭据未配置，只使用本地合成")
		}
	case "local":
		// 不使用云端后端
	default:
		return nil, fmt.Errorf("不支持的 TTS 引擎: %s", cfg.TTS.Engine)
	}

	if s.cloud != nil {
		p, err := audio.NewPlayer()
		if err != nil {
			return nil, err
		}
		s.player = p
		s.closers = append(s.closers, p.Close)
	}

	if cfg.History.Enabled {
		db, err := database.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		h, err := NewHistory(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.history = h
		s.closers = append(s.closers, func() { _ = db.Close() })
	}

	return s, nil
}

// Speak 朗读文本。优先云端合成（字节交给播放器），云端不可用或
// 云端/播放任一环节失败时降级到本地合成；两个后端都失败时返回
// 最初的云端错误，便于定位真正出错的后端。
// 调用时如有正在播放的会话会先被停掉——这是隐式取消，不算错误，
// 也不会让新调用失败。
func (s *Service) Speak(ctx context.Context, text string, opts Options) error {
	req := buildRequest(text, opts)
	// 参数校验在接触任何后端之前完成，越界直接拒绝
	if err := req.Validate(); err != nil {
		return err
	}

	sess := s.begin(ctx)
	defer s.end(sess)

	logger.Debugf("[speech] 会话 %s: 朗读 %d 个字符", sess.id, len([]rune(text)))

	var cloudErr error
	if s.cloudUsable() {
		err := s.speakCloud(sess, req)
		if err == nil {
			s.record(req, s.cloud.Name())
			return nil
		}
		if sess.ctx.Err() != nil {
			return sess.ctx.Err()
		}
		cloudErr = err
		logger.Warnf("[speech] 会话 %s: 云端路径失败，降级到本地合成: %v", sess.id, err)
	}

	s.setSpeaking(true)
	err := s.local.Speak(sess.ctx, req)
	s.setSpeaking(false)

	if err == nil {
		if cloudErr != nil {
			logger.Infof("[speech] 会话 %s: 本地合成完成（云端错误: %v）", sess.id, cloudErr)
		}
		s.record(req, s.local.Name())
		return nil
	}
	if sess.ctx.Err() != nil {
		return sess.ctx.Err()
	}
	if cloudErr != nil {
		logger.Errorf("[speech] 会话 %s: 本地合成也失败: %v", sess.id, err)
		return cloudErr
	}
	return err
}

// speakCloud 云端合成并播放。合成超时只约束网络调用，不约束播放。
func (s *Service) speakCloud(sess *session, req tts.Request) error {
	synthCtx := sess.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(synthCtx, s.timeout)
		defer cancel()
	}

	data, err := s.cloud.Synthesize(synthCtx, req)
	if err != nil {
		return err
	}

	// azure/tencent 在合成参数里已应用音量；edge 不支持音量参数，
	// 在播放端补偿
	gain := 1.0
	if s.cloud.Name() == "edge" {
		gain = req.Volume
	}

	s.setSpeaking(true)
	err = s.player.Play(sess.ctx, data, gain)
	s.setSpeaking(false)
	return err
}

// Stop 停止当前播放。幂等、同步、不会出错；没有会话在播时为空操作。
// 云端会话停掉播放设备，本地会话杀掉合成器子进程。
func (s *Service) Stop() {
	s.mu.Lock()
	sess := s.current
	s.speaking = false
	s.mu.Unlock()

	if sess != nil {
		sess.cancel()
	}
}

// IsPlaying 返回当前是否有语音在播放。
func (s *Service) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Voices 返回平台可用的语音名称。枚举失败时返回空列表而不是错误。
func (s *Service) Voices(ctx context.Context) []string {
	voices, err := s.local.Voices(ctx)
	if err != nil {
		logger.Debugf("[speech] 枚举语音失败: %v", err)
		return []string{}
	}
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.Name)
	}
	return names
}

// Recent 返回最近的朗读历史，未启用历史记录时返回空列表。
func (s *Service) Recent(ctx context.Context, limit int) ([]Utterance, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}

// Close 停止播放并释放资源。
func (s *Service) Close() {
	s.Stop()
	for _, c := range s.closers {
		c()
	}
}

// cloudUsable 在每次 Speak 时重新判定云端是否可用。
func (s *Service) cloudUsable() bool {
	return s.cloud != nil
}

// begin 停掉当前会话并注册新会话，保证单会话约束。
func (s *Service) begin(ctx context.Context) *session {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		// 等待旧会话完全结束，避免两个会话同时出声
		<-prev.done
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:     uuid.NewString()[:8],
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return sess
}

// end 结束会话并清理共享状态。
func (s *Service) end(sess *session) {
	sess.cancel()
	s.mu.Lock()
	if s.current == sess {
		s.current = nil
		s.speaking = false
	}
	s.mu.Unlock()
	close(sess.done)
}

func (s *Service) setSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

// record 写入朗读历史，失败只记日志不影响结果。
func (s *Service) record(req tts.Request, backend string) {
	if s.history == nil {
		return
	}
	u := Utterance{
		Text:    req.Text,
		Pinyin:  pinyin.Annotate(req.Text),
		Backend: backend,
		Voice:   req.Voice,
	}
	if err := s.history.Record(context.Background(), u); err != nil {
		logger.Warnf("[speech] 写入朗读历史失败: %v", err)
	}
}

// buildRequest 把可选参数合并为完整请求，零值字段取默认。
func buildRequest(text string, opts Options) tts.Request {
	req := tts.NewRequest(text)
	if opts.Rate != 0 {
		req.Rate = opts.Rate
	}
	if opts.Pitch != 0 {
		req.Pitch = opts.Pitch
	}
	if opts.Volume != 0 {
		req.Volume = opts.Volume
	}
	req.Voice = opts.Voice
	return req
}
