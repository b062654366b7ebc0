package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/processor"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// ErrRunCanceled 抓取阶段 ctx 被取消，本轮不写文件也不存快照，保留上一轮结果
var ErrRunCanceled = errors.New("collect run canceled")

// Job 一个采集器及其要采集的标识符（用户名 / 子版块 / 订阅源名 / 仓库）
type Job struct {
	Fetcher     collector.Fetcher
	Identifiers []string
}

// SnapshotStore 保存每轮运行的最终结果，nil 表示不落库
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *storage.Snapshot) error
}

type Options struct {
	MaxPerSource int
	Format       string
	Location     *time.Location
	// StartupDelay > 0 时 Start 之后延迟执行首轮采集
	StartupDelay time.Duration
	Now          func() time.Time
}

type Scheduler struct {
	// runMu 保证同一时间只有一轮在跑：定时、启动延迟、手动触发共用同一组输出文件
	runMu sync.Mutex

	cron      *cron.Cron
	jobs      []Job
	processor *processor.SimpleProcessor
	writer    *output.Writer
	store     SnapshotStore
	opts      Options
}

// New spec 为空时不注册定时任务，只用 RunOnce
func New(spec string, jobs []Job, p *processor.SimpleProcessor, w *output.Writer, store SnapshotStore, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Format == "" {
		opts.Format = output.FormatJSON
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if p == nil {
		p = processor.NewSimpleProcessor(opts.Location)
	}
	if w == nil {
		return nil, errors.New("scheduler: output writer is required")
	}

	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	s := &Scheduler{
		cron:      c,
		jobs:      jobs,
		processor: p,
		writer:    w,
		store:     store,
		opts:      opts,
	}

	if spec != "" {
		if _, err := c.AddFunc(spec, s.runScheduled); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.opts.StartupDelay > 0 {
		time.AfterFunc(s.opts.StartupDelay, s.runScheduled)
	}
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Cron 暴露底层 cron，方便追加其它定时任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		log.Error("collect job failed", "err", err)
	}
}

// RunOnce 执行一轮完整采集：并发抓取 → 聚合 → 过滤今天 → 排序 → 写文件 → 存快照。
// 只有写文件失败或 ctx 被取消会返回错误；单个来源失败只记录在报告里
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.opts.Now()
	log.Info("start collect job...", "jobs", len(s.jobs), "today", processor.Today(s.opts.Location, started))

	batches := make([]collector.Batch, len(s.jobs))
	var wg sync.WaitGroup
	for i, j := range s.jobs {
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			log.Printf("fetch from %s...", j.Fetcher.Name())
			batches[i] = j.Fetcher.Fetch(ctx, j.Identifiers, s.opts.MaxPerSource)
		}(i, j)
	}
	wg.Wait()

	report := &Report{StartedAt: started}
	collections := make([][]collector.Item, 0, len(batches))
	for i, b := range batches {
		report.addBatch(s.jobs[i], b, s.opts.Location, started)
		collections = append(collections, b.Items())
	}

	if err := ctx.Err(); err != nil {
		report.FinishedAt = s.opts.Now()
		log.Warn("collect job canceled, keep previous results", "err", err)
		return report, fmt.Errorf("scheduler: %w: %w", ErrRunCanceled, err)
	}

	final := s.processor.Process(processor.Aggregate(collections...), started)
	report.Kept = len(final)

	paths, err := s.writer.Write(final, s.opts.Format, started)
	report.Outputs = paths
	report.FinishedAt = s.opts.Now()
	report.log()
	if err != nil {
		return report, err
	}

	s.saveSnapshot(ctx, report, final)
	return report, nil
}

func (s *Scheduler) saveSnapshot(ctx context.Context, report *Report, items []collector.Item) {
	if s.store == nil {
		return
	}
	runDate := processor.Today(s.opts.Location, report.StartedAt)
	snap, err := storage.NewSnapshot(runDate, report.StartedAt, report.FinishedAt, items, report)
	if err != nil {
		log.Warn("build snapshot failed", "err", err)
		return
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		log.Warn("save snapshot failed", "err", err)
		return
	}
	log.Printf("snapshot %d saved, items=%d", snap.ID, snap.ItemCount)
}
