package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/hanyin/internal/tts"
)

// fakeCloud 可编程的云端引擎。
type fakeCloud struct {
	mu    sync.Mutex
	name  string
	data  []byte
	err   error
	calls int
	last  tts.Request
	block bool // 阻塞到 ctx 取消，模拟挂起的网络调用
}

func (f *fakeCloud) Name() string {
	if f.name == "" {
		return "azure"
	}
	return f.name
}

func (f *fakeCloud) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeCloud) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLocal 可编程的本地引擎。
type fakeLocal struct {
	mu        sync.Mutex
	err       error
	voices    []tts.Voice
	voicesErr error
	calls     int
	last      tts.Request
	block     bool
}

func (f *fakeLocal) Name() string { return "local" }

func (f *fakeLocal) Speak(ctx context.Context, req tts.Request) error {
	f.mu.Lock()
	f.calls++
	f.last = req
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeLocal) Voices(ctx context.Context) ([]tts.Voice, error) {
	return f.voices, f.voicesErr
}

func (f *fakeLocal) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePlayer 可编程的播放器。
type fakePlayer struct {
	mu    sync.Mutex
	err   error
	plays int
	gain  float64
	block bool
}

func (f *fakePlayer) Play(ctx context.Context, mp3Data []byte, gain float64) error {
	f.mu.Lock()
	f.plays++
	f.gain = gain
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func newTestService(cloud tts.CloudEngine, local tts.LocalEngine, p player) *Service {
	return &Service{cloud: cloud, local: local, player: p}
}

// waitFor 轮询等待条件成立。
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", what)
}

func TestSpeak_ValidationBeforeBackends(t *testing.T) {
	cloud := &fakeCloud{data: []byte("mp3")}
	local := &fakeLocal{}
	s := newTestService(cloud, local, &fakePlayer{})

	cases := []struct {
		name string
		text string
		opts Options
	}{
		{"空文本", "", Options{}},
		{"语速越界", "你好", Options{Rate: 3.0}},
		{"音高越界", "你好", Options{Pitch: 0.1}},
		{"音量越界", "你好", Options{Volume: 1.5}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := s.Speak(context.Background(), c.text, c.opts)
			var vErr *tts.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}

	if cloud.callCount() != 0 {
		t.Errorf("非法请求不应触达云端后端，calls=%d", cloud.callCount())
	}
	if local.callCount() != 0 {
		t.Errorf("非法请求不应触达本地后端，calls=%d", local.callCount())
	}
}

func TestSpeak_CloudSuccess(t *testing.T) {
	cloud := &fakeCloud{data: []byte("mp3-bytes")}
	local := &fakeLocal{}
	p := &fakePlayer{}
	s := newTestService(cloud, local, p)

	if err := s.Speak(context.Background(), "你好", Options{}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if cloud.callCount() != 1 {
		t.Errorf("cloud calls: got %d, want 1", cloud.callCount())
	}
	if p.playCount() != 1 {
		t.Errorf("player plays: got %d, want 1", p.playCount())
	}
	if local.callCount() != 0 {
		t.Errorf("云端成功时不应调用本地后端，calls=%d", local.callCount())
	}
	if s.IsPlaying() {
		t.Error("播放结束后 IsPlaying 应为 false")
	}

	// 默认参数传递给云端
	if cloud.last.Rate != 1.0 || cloud.last.Pitch != 1.0 || cloud.last.Volume != 1.0 {
		t.Errorf("默认请求参数错误: %+v", cloud.last)
	}
}

func TestSpeak_UnconfiguredCloudUsesLocal(t *testing.T) {
	local := &fakeLocal{}
	s := newTestService(nil, local, nil)

	if err := s.Speak(context.Background(), "你好", Options{}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if local.callCount() != 1 {
		t.Errorf("local calls: got %d, want 1", local.callCount())
	}
}

func TestSpeak_UnconfiguredCloudLocalUnsupported(t *testing.T) {
	local := &fakeLocal{err: tts.ErrUnsupportedPlatform}
	s := newTestService(nil, local, nil)

	err := s.Speak(context.Background(), "你好", Options{})
	if !errors.Is(err, tts.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestSpeak_CloudFailureFallsBackToLocal(t *testing.T) {
	cloud := &fakeCloud{err: &tts.SynthesisError{Backend: "azure", Detail: "quota exceeded"}}
	local := &fakeLocal{}
	s := newTestService(cloud, local, &fakePlayer{})

	// 本地成功，用户能听到声音，整体不算失败
	if err := s.Speak(context.Background(), "你好", Options{}); err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if local.callCount() != 1 {
		t.Errorf("local calls: got %d, want 1", local.callCount())
	}
}

func TestSpeak_BothFail_ReturnsOriginalCloudError(t *testing.T) {
	cloud := &fakeCloud{err: &tts.SynthesisError{Backend: "azure", Detail: "quota exceeded"}}
	local := &fakeLocal{err: &tts.SynthesisError{Backend: "local", Detail: "espeak crashed"}}
	s := newTestService(cloud, local, &fakePlayer{})

	err := s.Speak(context.Background(), "你好", Options{})
	if err == nil {
		t.Fatal("expected error when both backends fail")
	}

	var synErr *tts.SynthesisError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected *SynthesisError, got %T", err)
	}
	// 返回最初的云端错误，而不是后发生的本地错误
	if synErr.Backend != "azure" || !strings.Contains(synErr.Detail, "quota exceeded") {
		t.Errorf("应返回云端原始错误, got %+v", synErr)
	}
}

func TestSpeak_PlaybackFailureFallsBackToLocal(t *testing.T) {
	cloud := &fakeCloud{data: []byte("mp3")}
	local := &fakeLocal{}
	p := &fakePlayer{err: &tts.PlaybackError{Stage: "decode", Err: errors.New("bad frame")}}
	s := newTestService(cloud, local, p)

	if err := s.Speak(context.Background(), "你好", Options{}); err != nil {
		t.Fatalf("expected fallback success after playback error, got %v", err)
	}
	if local.callCount() != 1 {
		t.Errorf("local calls: got %d, want 1", local.callCount())
	}
}

func TestSpeak_CloudTimeoutFallsBackToLocal(t *testing.T) {
	cloud := &fakeCloud{block: true}
	local := &fakeLocal{}
	s := newTestService(cloud, local, &fakePlayer{})
	s.timeout = 10 * time.Millisecond

	if err := s.Speak(context.Background(), "你好", Options{}); err != nil {
		t.Fatalf("expected fallback success after cloud timeout, got %v", err)
	}
	if local.callCount() != 1 {
		t.Errorf("local calls: got %d, want 1", local.callCount())
	}
}

func TestSpeak_SecondCallStopsFirst(t *testing.T) {
	cloud := &fakeCloud{data: []byte("mp3")}
	local := &fakeLocal{}
	p := &fakePlayer{block: true}
	s := newTestService(cloud, local, p)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.Speak(context.Background(), "第一句", Options{})
	}()

	waitFor(t, "第一个会话开始播放", s.IsPlaying)

	// 第二个会话播放不阻塞
	p.mu.Lock()
	p.block = false
	p.mu.Unlock()

	if err := s.Speak(context.Background(), "第二句", Options{}); err != nil {
		t.Fatalf("新的 Speak 不应因打断旧会话而失败: %v", err)
	}

	select {
	case err := <-firstDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("被打断的会话应以取消结束, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("第一个会话未结束")
	}

	if p.playCount() != 2 {
		t.Errorf("player plays: got %d, want 2", p.playCount())
	}
	if s.IsPlaying() {
		t.Error("全部结束后 IsPlaying 应为 false")
	}
}

func TestStop_Idempotent(t *testing.T) {
	s := newTestService(nil, &fakeLocal{}, nil)

	// 没有会话在播时 Stop 是空操作，调用多次也安全
	s.Stop()
	s.Stop()

	if s.IsPlaying() {
		t.Error("Stop 后 IsPlaying 应为 false")
	}
}

func TestStop_CancelsInFlightSession(t *testing.T) {
	local := &fakeLocal{block: true}
	s := newTestService(nil, local, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Speak(context.Background(), "你好", Options{})
	}()

	waitFor(t, "本地会话开始", s.IsPlaying)
	s.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("被停止的会话应以取消结束, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop 后会话未结束")
	}

	if s.IsPlaying() {
		t.Error("Stop 后 IsPlaying 应为 false")
	}
}

func TestSpeak_EdgeVolumeCompensatedAtPlayer(t *testing.T) {
	cloud := &fakeCloud{name: "edge", data: []byte("mp3")}
	p := &fakePlayer{}
	s := newTestService(cloud, &fakeLocal{}, p)

	if err := s.Speak(context.Background(), "你好", Options{Volume: 0.5}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if p.gain != 0.5 {
		t.Errorf("edge 后端应在播放端应用音量, gain=%v", p.gain)
	}
}

func TestSpeak_AzureVolumeNotDoubled(t *testing.T) {
	cloud := &fakeCloud{data: []byte("mp3")}
	p := &fakePlayer{}
	s := newTestService(cloud, &fakeLocal{}, p)

	if err := s.Speak(context.Background(), "你好", Options{Volume: 0.5}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	// 音量已在 SSML 里应用，播放端不再衰减
	if p.gain != 1.0 {
		t.Errorf("azure 后端播放增益应为 1.0, gain=%v", p.gain)
	}
}

func TestVoices_EmptyOnError(t *testing.T) {
	local := &fakeLocal{voicesErr: tts.ErrUnsupportedPlatform}
	s := newTestService(nil, local, nil)

	voices := s.Voices(context.Background())
	if voices == nil {
		t.Fatal("枚举失败应返回空列表而不是 nil")
	}
	if len(voices) != 0 {
		t.Errorf("expected empty list, got %v", voices)
	}
}

func TestVoices_Names(t *testing.T) {
	local := &fakeLocal{voices: []tts.Voice{
		{Name: "Tingting", Language: "zh_CN"},
		{Name: "Alex", Language: "en_US"},
	}}
	s := newTestService(nil, local, nil)

	voices := s.Voices(context.Background())
	if len(voices) != 2 || voices[0] != "Tingting" || voices[1] != "Alex" {
		t.Errorf("unexpected voices: %v", voices)
	}
}

func TestBuildRequest_Defaults(t *testing.T) {
	req := buildRequest("你好", Options{})
	if req.Rate != 1.0 || req.Pitch != 1.0 || req.Volume != 1.0 {
		t.Errorf("零值选项应取默认参数: %+v", req)
	}

	req = buildRequest("你好", Options{Rate: 1.5, Voice: "zh-CN-YunxiNeural"})
	if req.Rate != 1.5 {
		t.Errorf("Rate: got %v, want 1.5", req.Rate)
	}
	if req.Voice != "zh-CN-YunxiNeural" {
		t.Errorf("Voice: got %q", req.Voice)
	}
	if req.Pitch != 1.0 {
		t.Errorf("未设置的 Pitch 应为默认值: %v", req.Pitch)
	}
}
