package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/LJTian/CryptoNewsHub/internal/api"
	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/config"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/processor"
	"github.com/LJTian/CryptoNewsHub/internal/scheduler"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// channels 每一类来源对应一个渠道
var channels = []struct {
	platform collector.Platform
	name     string
	baseURL  string
}{
	{collector.PlatformSocial, "Twitter / X", "https://twitter.com"},
	{collector.PlatformForum, "Reddit", "https://www.reddit.com"},
	{collector.PlatformFeed, "RSS / Atom", ""},
	{collector.PlatformRepo, "GitHub", "https://github.com"},
}

func main() {
	cfg := config.Load()
	cfg.ApplyLogLevel()
	if err := cfg.Finalize(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 确保各个渠道存在
	for _, ch := range channels {
		if _, err := store.EnsureChannel(string(ch.platform), ch.name, ch.baseURL); err != nil {
			log.Fatalf("ensure channel %s failed: %v", ch.platform, err)
		}
	}

	// 延迟执行首轮采集，避免与首次打开页面的请求争抢资源
	s, err := scheduler.New(cfg.CronSpec, scheduler.BuildJobs(cfg),
		processor.NewSimpleProcessor(cfg.Location),
		output.NewWriter(cfg.OutputDir, cfg.Location),
		store,
		scheduler.Options{
			MaxPerSource: cfg.MaxItemsPerSource,
			Format:       cfg.OutputFormat,
			Location:     cfg.Location,
			StartupDelay: 15 * time.Second,
		})
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(store, cfg.OutputDir, s)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		log.Printf("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", "err", err)
	}
}
