package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/LJTian/CryptoNewsHub/internal/config"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/processor"
	"github.com/LJTian/CryptoNewsHub/internal/scheduler"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"
)

// options 命令行参数，未指定的沿用环境变量 / 默认配置
type options struct {
	OutDir   string `long:"out-dir" short:"o" description:"Directory for latest.json / latest.csv / latest.html (env OUTPUT_DIR)"`
	Format   string `long:"format" short:"f" description:"Results format: json or csv (env OUTPUT_FORMAT)"`
	Timezone string `long:"timezone" description:"IANA timezone that defines \"today\" (env NEWS_TIMEZONE)"`
	MaxItems int    `long:"max-items" default:"-1" description:"Max items per source (env MAX_ITEMS_PER_SOURCE)"`
	Sources  string `long:"sources" description:"YAML file with source lists (env SOURCES_FILE)"`
	LogLevel string `long:"log-level" description:"debug, info, warn or error (env LOG_LEVEL)"`
	Store    bool   `long:"store" description:"Also save the run as a snapshot in PostgreSQL (POSTGRES_DSN, REDIS_ADDR)"`
}

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集或外部 cron 调用
func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg := config.Load()
	opts.apply(cfg)
	cfg.ApplyLogLevel()
	if err := cfg.Finalize(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 不落库时必须传 nil 接口，不能是 nil 的 *storage.Store
	var store scheduler.SnapshotStore
	if opts.Store {
		st, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		store = st
	}

	s, err := scheduler.New("", scheduler.BuildJobs(cfg),
		processor.NewSimpleProcessor(cfg.Location),
		output.NewWriter(cfg.OutputDir, cfg.Location),
		store,
		scheduler.Options{
			MaxPerSource: cfg.MaxItemsPerSource,
			Format:       cfg.OutputFormat,
			Location:     cfg.Location,
		})
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 只执行一轮采集任务后退出
	report, err := s.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, output.ErrUnsupportedFormat) {
			log.Error("unsupported output format", "format", cfg.OutputFormat)
		}
		log.Error("collect failed", "err", err)
		stop()
		os.Exit(1)
	}
	for _, p := range report.Outputs {
		log.Printf("wrote %s", p)
	}
}

func (o options) apply(cfg *config.Config) {
	if o.OutDir != "" {
		cfg.OutputDir = o.OutDir
	}
	if o.Format != "" {
		cfg.OutputFormat = o.Format
	}
	if o.Timezone != "" {
		cfg.Timezone = o.Timezone
	}
	if o.MaxItems >= 0 {
		cfg.MaxItemsPerSource = o.MaxItems
	}
	if o.Sources != "" {
		cfg.SourcesFile = o.Sources
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}
