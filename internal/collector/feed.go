package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"
)

// FeedSource 一个 RSS/Atom 订阅源，Name 作为展示用的来源名
type FeedSource struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// FeedFetcher 解析 RSS/Atom 订阅源，标识符为订阅源名称
type FeedFetcher struct {
	Client *Client
	Feeds  []FeedSource
	// Discover 为 true 时，若地址返回的是 HTML 页面，则尝试从页面中发现订阅地址
	Discover bool
	Now      func() time.Time
}

func (f *FeedFetcher) Name() string {
	return "rss"
}

func (f *FeedFetcher) Platform() Platform {
	return PlatformFeed
}

// Names 按配置顺序返回订阅源名称
func (f *FeedFetcher) Names() []string {
	names := make([]string, 0, len(f.Feeds))
	for _, fs := range f.Feeds {
		names = append(names, fs.Name)
	}
	return names
}

func (f *FeedFetcher) lookup(name string) (string, bool) {
	for _, fs := range f.Feeds {
		if fs.Name == name {
			return fs.URL, fs.URL != ""
		}
	}
	return "", false
}

func (f *FeedFetcher) Fetch(ctx context.Context, names []string, max int) Batch {
	batch := Batch{Platform: PlatformFeed}
	for _, name := range names {
		items, err := f.fetchFeed(ctx, name, max)
		if err != nil {
			log.Warn("rss: fetch failed", "feed", name, "err", err)
		}
		batch.Results = append(batch.Results, SourceResult{
			Platform:   PlatformFeed,
			Identifier: name,
			Items:      items,
			Err:        err,
		})
	}
	return batch
}

func (f *FeedFetcher) parser() *gofeed.Parser {
	p := gofeed.NewParser()
	if f.Client != nil {
		p.Client = f.Client.HTTP
		p.UserAgent = f.Client.UserAgent
	}
	return p
}

func (f *FeedFetcher) fetchFeed(ctx context.Context, name string, max int) ([]Item, error) {
	feedURL, ok := f.lookup(name)
	if !ok {
		return nil, fmt.Errorf("rss: no url configured for feed %q", name)
	}
	if max <= 0 {
		return nil, nil
	}
	if f.Client != nil {
		if err := f.Client.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	p := f.parser()
	parsed, err := p.ParseURLWithContext(feedURL, ctx)
	if err != nil && f.Discover && errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		var found string
		found, err = discoverFeedURL(ctx, feedURL, f.Client)
		if err == nil {
			log.Debug("rss: discovered feed", "feed", name, "url", found)
			parsed, err = p.ParseURLWithContext(found, ctx)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", feedURL, err)
	}

	return feedItems(parsed, name, max, nowFunc(f.Now)), nil
}

func feedItems(parsed *gofeed.Feed, source string, max int, now time.Time) []Item {
	entries := parsed.Items
	if len(entries) > max {
		entries = entries[:max]
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		summary := e.Description
		if strings.TrimSpace(summary) == "" {
			summary = e.Content
		}

		var published *time.Time
		switch {
		case e.PublishedParsed != nil:
			t := e.PublishedParsed.UTC()
			published = &t
		case e.UpdatedParsed != nil:
			t := e.UpdatedParsed.UTC()
			published = &t
		}

		items = append(items, Normalize(RawRecord{
			Title:       e.Title,
			Body:        summary,
			URL:         e.Link,
			PublishedAt: published,
		}, PlatformFeed, source, now))
	}
	return items
}
