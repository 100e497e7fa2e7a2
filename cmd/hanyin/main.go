package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iabetor/hanyin/internal/config"
	"github.com/iabetor/hanyin/internal/logger"
	"github.com/iabetor/hanyin/internal/pinyin"
	"github.com/iabetor/hanyin/internal/speech"
)

func main() {
	configPath := flag.String("config", "configs/hanyin.yaml", "配置文件路径")
	rate := flag.Float64("rate", 0, "语速倍率 [0.5, 2.0]，0 使用默认")
	voice := flag.String("voice", "", "覆盖默认语音")
	listVoices := flag.Bool("voices", false, "列出平台可用语音后退出")
	recent := flag.Int("recent", 0, "显示最近 N 条朗读历史后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，停止播放并退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在停止", sig)
		cancel()
	}()

	svc, err := speech.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建语音服务失败: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	if *listVoices {
		for _, name := range svc.Voices(ctx) {
			fmt.Println(name)
		}
		return
	}

	if *recent > 0 {
		entries, err := svc.Recent(ctx, *recent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取朗读历史失败: %v\n", err)
			os.Exit(1)
		}
		for _, u := range entries {
			fmt.Printf("%s  %s  [%s]\n", u.Text, u.Pinyin, u.Backend)
		}
		return
	}

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "用法: hanyin [选项] 要朗读的文本")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// 先打印读音标注，再朗读
	fmt.Printf("%s  %s\n", text, pinyin.Annotate(text))

	opts := speech.Options{Rate: *rate, Voice: *voice}
	if err := svc.Speak(ctx, text, opts); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "朗读失败: %v\n", err)
		os.Exit(1)
	}
}
