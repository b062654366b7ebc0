package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/processor"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
)

var runAt = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	name     string
	platform collector.Platform
	skipped  string
	// items / errs 按标识符给出
	items map[string][]collector.Item
	errs  map[string]error
}

func (f *fakeFetcher) Name() string                 { return f.name }
func (f *fakeFetcher) Platform() collector.Platform { return f.platform }

func (f *fakeFetcher) Fetch(_ context.Context, ids []string, max int) collector.Batch {
	b := collector.Batch{Platform: f.platform, Skipped: f.skipped}
	if f.skipped != "" {
		return b
	}
	for _, id := range ids {
		items := f.items[id]
		if len(items) > max {
			items = items[:max]
		}
		b.Results = append(b.Results, collector.SourceResult{Platform: f.platform, Identifier: id, Items: items, Err: f.errs[id]})
	}
	return b
}

type memoryStore struct {
	mu    sync.Mutex
	snaps []*storage.Snapshot
	err   error
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap *storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	snap.ID = uint(len(m.snaps) + 1)
	m.snaps = append(m.snaps, snap)
	return nil
}

func item(p collector.Platform, source, title, published string) collector.Item {
	return collector.Item{Platform: p, Source: source, Title: title, URL: "https://example.com/" + title, Published: published}
}

func testJobs() []Job {
	social := &fakeFetcher{
		name:     "twitter",
		platform: collector.PlatformSocial,
		items: map[string][]collector.Item{
			"alice": {
				item(collector.PlatformSocial, "alice", "a1", "2024-01-02T08:00:00Z"),
				item(collector.PlatformSocial, "alice", "a-old", "2023-12-30T08:00:00Z"),
			},
			"bob": {item(collector.PlatformSocial, "bob", "b-old", "2023-12-31T08:00:00Z")},
		},
		errs: map[string]error{"carol": errors.New("rate limited")},
	}
	feed := &fakeFetcher{
		name:     "rss",
		platform: collector.PlatformFeed,
		items: map[string][]collector.Item{
			"CoinDesk": {
				item(collector.PlatformFeed, "CoinDesk", "f1", "2024-01-02T09:30:00Z"),
				item(collector.PlatformFeed, "CoinDesk", "f-nodate", "garbage"),
			},
		},
	}
	forum := &fakeFetcher{name: "reddit", platform: collector.PlatformForum, skipped: "missing credentials"}
	return []Job{
		{Fetcher: social, Identifiers: []string{"alice", "bob", "carol"}},
		{Fetcher: forum, Identifiers: []string{"Bitcoin", "DeFi"}},
		{Fetcher: feed, Identifiers: []string{"CoinDesk"}},
	}
}

func newTestScheduler(t *testing.T, store SnapshotStore, format string) (*Scheduler, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New("", testJobs(), processor.NewSimpleProcessor(time.UTC), output.NewWriter(dir, time.UTC), store, Options{
		MaxPerSource: 5,
		Format:       format,
		Location:     time.UTC,
		Now:          func() time.Time { return runAt },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s, dir
}

func TestRunOnceEndToEnd(t *testing.T) {
	store := &memoryStore{}
	s, dir := newTestScheduler(t, store, output.FormatJSON)

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	got, err := output.ReadJSON(filepath.Join(dir, output.JSONFile))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	// 无法解析的时间按 now 处理，排第一
	wantTitles := []string{"f-nodate", "f1", "a1"}
	if len(got) != len(wantTitles) {
		t.Fatalf("items = %+v, want titles %v", got, wantTitles)
	}
	for i, w := range wantTitles {
		if got[i].Title != w {
			t.Fatalf("item %d title = %q, want %q", i, got[i].Title, w)
		}
	}

	if report.Fetched != 5 || report.Kept != 3 || report.Failed != 1 || report.Skipped != 2 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if len(report.Sources) != 6 {
		t.Fatalf("sources = %d, want 6", len(report.Sources))
	}
	bob := report.Sources[1]
	if bob.Identifier != "bob" || bob.Fetched != 1 || bob.Kept != 0 || bob.Error != "" {
		t.Fatalf("bob should be filtered, not failed: %+v", bob)
	}
	if fails := report.Failures(); len(fails) != 1 || fails[0].Identifier != "carol" {
		t.Fatalf("failures = %+v", fails)
	}
	if report.Sources[3].Skipped == "" || report.Sources[3].Identifier != "Bitcoin" {
		t.Fatalf("reddit identifiers should be marked skipped: %+v", report.Sources[3])
	}
	if len(report.Outputs) != 2 {
		t.Fatalf("outputs = %v", report.Outputs)
	}

	if len(store.snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(store.snaps))
	}
	snap := store.snaps[0]
	if snap.RunDate != "2024-01-02" || snap.ItemCount != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	var stored []collector.Item
	if err := json.Unmarshal(snap.Items, &stored); err != nil || len(stored) != 3 {
		t.Fatalf("snapshot items = %d (%v)", len(stored), err)
	}
}

func TestRunOnceUnsupportedFormatFails(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestScheduler(t, store, "yaml")

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, output.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if len(store.snaps) != 0 {
		t.Fatalf("no snapshot expected after a write failure")
	}
}

func TestRunOnceStoreFailureIsNotFatal(t *testing.T) {
	s, _ := newTestScheduler(t, &memoryStore{err: errors.New("db down")}, output.FormatCSV)
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("store failure should only be logged, got %v", err)
	}
}

func TestRunOnceWithoutStore(t *testing.T) {
	s, dir := newTestScheduler(t, nil, output.FormatCSV)
	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if report.Outputs[0] != filepath.Join(dir, output.CSVFile) {
		t.Fatalf("outputs = %v", report.Outputs)
	}
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	_, err := New("not a cron", nil, nil, output.NewWriter(t.TempDir(), nil), nil, Options{})
	if err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
	s, err := New("*/30 * * * *", nil, nil, output.NewWriter(t.TempDir(), nil), nil, Options{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if len(s.Cron().Entries()) != 1 {
		t.Fatalf("cron entries = %d, want 1", len(s.Cron().Entries()))
	}
}

func TestRunOnceCanceledKeepsPreviousResults(t *testing.T) {
	store := &memoryStore{}
	s, dir := newTestScheduler(t, store, output.FormatJSON)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RunOnce(ctx)
	if !errors.Is(err, ErrRunCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrRunCanceled wrapping context.Canceled", err)
	}

	got, err := output.ReadJSON(filepath.Join(dir, output.JSONFile))
	if err != nil || len(got) != 3 {
		t.Fatalf("latest.json should keep the previous run, got %d items (%v)", len(got), err)
	}
	if len(store.snaps) != 1 {
		t.Fatalf("snapshots = %d, canceled run must not save", len(store.snaps))
	}
}

// slowFetcher 记录同时在抓取的调用数
type slowFetcher struct {
	active  int32
	maxSeen int32
}

func (f *slowFetcher) Name() string                 { return "slow" }
func (f *slowFetcher) Platform() collector.Platform { return collector.PlatformFeed }

func (f *slowFetcher) Fetch(_ context.Context, ids []string, _ int) collector.Batch {
	n := atomic.AddInt32(&f.active, 1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&f.active, -1)

	b := collector.Batch{Platform: collector.PlatformFeed}
	for _, id := range ids {
		b.Results = append(b.Results, collector.SourceResult{
			Platform:   collector.PlatformFeed,
			Identifier: id,
			Items:      []collector.Item{item(collector.PlatformFeed, id, "x", "2024-01-02T09:00:00Z")},
		})
	}
	return b
}

func TestRunOnceDoesNotOverlap(t *testing.T) {
	f := &slowFetcher{}
	dir := t.TempDir()
	s, err := New("", []Job{{Fetcher: f, Identifiers: []string{"a"}}}, nil, output.NewWriter(dir, time.UTC), nil, Options{
		MaxPerSource: 5,
		Now:          func() time.Time { return runAt },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RunOnce(context.Background()); err != nil {
				t.Errorf("RunOnce error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&f.maxSeen); got != 1 {
		t.Fatalf("concurrent runs = %d, want 1", got)
	}
	items, err := output.ReadJSON(filepath.Join(dir, output.JSONFile))
	if err != nil || len(items) != 1 {
		t.Fatalf("latest.json = %d items (%v)", len(items), err)
	}
}
